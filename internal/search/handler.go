package search

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/backend"
	"github.com/noah-isme/backend-kasir/internal/common"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Source runs the lookups against the shop backend.
type Source interface {
	SearchProducts(ctx context.Context, query string) ([]backend.Product, error)
	SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error)
}

// Handler serves the search-as-you-type endpoints of a billing session.
type Handler struct {
	Source    Source
	Products  *Debouncer[[]backend.Product]
	Customers *Debouncer[[]backend.Customer]
	// Middleware wraps both routes (rate limiting).
	Middleware []func(http.Handler) http.Handler
}

// Routes registers the search endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.Middleware...)
		r.Get("/sessions/{id}/search/products", h.SearchProducts)
		r.Get("/sessions/{id}/search/customers", h.SearchCustomers)
	})
}

func query(r *http.Request) (string, int) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	return q, limit
}

// SearchProducts looks up products for the item entry form.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil || h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "search not configured", nil)
		return
	}
	q, limit := query(r)
	if q == "" {
		common.Data(w, http.StatusOK, []backend.Product{})
		return
	}
	key := "products:" + chi.URLParam(r, "id")
	items, err := h.Products.Do(r.Context(), key, func(ctx context.Context) ([]backend.Product, error) {
		return h.Source.SearchProducts(ctx, q)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, truncate(items, limit))
}

// SearchCustomers looks up customers by phone or name.
func (h *Handler) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil || h.Customers == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "search not configured", nil)
		return
	}
	q, limit := query(r)
	if q == "" {
		common.Data(w, http.StatusOK, []backend.Customer{})
		return
	}
	key := "customers:" + chi.URLParam(r, "id")
	items, err := h.Customers.Do(r.Context(), key, func(ctx context.Context) ([]backend.Customer, error) {
		return h.Source.SearchCustomers(ctx, q)
	})
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, truncate(items, limit))
}

func truncate[T any](items []T, limit int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSuperseded):
		common.JSONError(w, http.StatusConflict, "SUPERSEDED", err.Error(), nil)
	case errors.Is(err, context.Canceled):
		common.JSONError(w, 499, "CANCELLED", "request cancelled", nil)
	default:
		common.WriteError(w, err)
	}
}
