package backend

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// SearchProducts looks products up by name or code.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "search_products", "/api/products/search", url.Values{"q": {strings.TrimSpace(query)}}, &raw); err != nil {
		return nil, err
	}
	var wires []productWire
	if err := decodeList(unwrapData(raw), "products", &wires); err != nil {
		return nil, &Error{Operation: "search_products", Message: "unreadable response: " + err.Error()}
	}
	out := make([]Product, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.product())
	}
	return out, nil
}

// SearchCustomers looks customers up by phone or name.
func (c *Client) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "search_customers", "/api/customers/search", url.Values{"q": {strings.TrimSpace(query)}}, &raw); err != nil {
		return nil, err
	}
	var wires []customerWire
	if err := decodeList(unwrapData(raw), "customers", &wires); err != nil {
		return nil, &Error{Operation: "search_customers", Message: "unreadable response: " + err.Error()}
	}
	out := make([]Customer, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.customer())
	}
	return out, nil
}

// decodeList accepts either a bare array or an object holding it under key.
func decodeList(data json.RawMessage, key string, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, dst)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	inner, ok := obj[key]
	if !ok {
		inner, ok = obj["results"]
	}
	if !ok || string(inner) == "null" {
		return nil
	}
	return json.Unmarshal(inner, dst)
}
