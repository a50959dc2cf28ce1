// Package backend is the typed REST client for the shop backend that owns
// products, customers, settings and persisted bills.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/resilience"
)

const userAgent = "kasir-api/1.0"

// Client calls the shop backend. Reads go through the configured retry budget;
// writes are attempted exactly once.
type Client struct {
	baseURL      string
	token        string
	http         resilience.HTTPClient
	readAttempts int
}

// New constructs a Client. baseURL must be absolute; token is optional.
func New(baseURL, token string, httpClient resilience.HTTPClient, readAttempts int) *Client {
	if readAttempts <= 0 {
		readAttempts = 1
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        strings.TrimSpace(token),
		http:         httpClient,
		readAttempts: readAttempts,
	}
}

// NewHTTPClient returns an instrumented http.Client for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// PrintURL returns the print view address of a saved bill.
func (c *Client) PrintURL(billID ID) string {
	return c.baseURL + "/api/bills/" + url.PathEscape(billID.String()) + "/print"
}

// Ping checks that the backend answers a cheap read. It is used by readiness
// probes and does not retry.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/settings/vat", nil)
	if err != nil {
		return err
	}
	return c.do(ctx, "ping", req, c.http.WithAttempts(1), nil)
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, op, req, c.http.WithAttempts(c.readAttempts), dst)
}

func (c *Client) post(ctx context.Context, op, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, op, req, c.http.WithAttempts(1), dst)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request, hc resilience.HTTPClient, dst any) (err error) {
	started := time.Now()
	defer func() { obs.ObserveBackend(op, started, err) }()

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := hc.Do(ctx, req)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return &Error{Operation: op, Status: statusErr.StatusCode, Message: messageFrom(statusErr.Body, statusErr.Status)}
		}
		var open *resilience.OpenCircuitError
		if errors.As(err, &open) {
			return unavailable(op, err, open.RetryAfter)
		}
		return unavailable(op, err, 0)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return unavailable(op, fmt.Errorf("read body: %w", err), 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Operation: op, Status: resp.StatusCode, Message: messageFrom(data, resp.Status)}
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var env envelope
		if json.Unmarshal(data, &env) == nil {
			if msg, failed := env.failure(); failed {
				return &Error{Operation: op, Status: resp.StatusCode, Message: msg}
			}
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &Error{Operation: op, Status: resp.StatusCode, Message: "unreadable response: " + err.Error()}
	}
	return nil
}

func messageFrom(body []byte, fallback string) string {
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		if env.Error != "" {
			return env.Error
		}
		if env.Message != "" {
			return env.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return fallback
}

// unwrapData returns the value under "data" when the backend uses an envelope.
func unwrapData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(trimmed, &env) == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return trimmed
}
