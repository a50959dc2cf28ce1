package common

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if first, _, _ := strings.Cut(ip, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// SessionParam returns the billing session id bound to the matched route, if any.
func SessionParam(r *http.Request) string {
	if r == nil {
		return ""
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return strings.TrimSpace(rc.URLParam("id"))
	}
	return ""
}

// SessionOrClientKey keys per-caller limits by billing session, falling back
// to the client address for routes without one.
func SessionOrClientKey(r *http.Request) string {
	if id := SessionParam(r); id != "" {
		return "session:" + id
	}
	return "ip:" + ClientIP(r)
}
