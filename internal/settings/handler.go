package settings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes the configuration to the billing front-end.
type Handler struct {
	Provider *Provider
}

// Routes registers the settings endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/settings", h.get)
	r.Post("/settings/refresh", h.refresh)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusOK, h.view(h.Provider.Snapshot()))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Provider.Refresh(r.Context())
	if err != nil && !snap.Loaded {
		common.WriteError(w, err)
		return
	}
	body := h.view(snap)
	if err != nil {
		body["warning"] = err.Error()
	}
	common.Data(w, http.StatusOK, body)
}

func (h *Handler) view(snap Snapshot) map[string]any {
	return map[string]any{
		"vat":                    snap.Vat,
		"payment_mode":           snap.PaymentMode,
		"effective_payment_mode": snap.EffectivePaymentMode(),
		"billing":                snap.Billing,
		"loaded":                 snap.Loaded,
		"loaded_at":              snap.LoadedAt,
	}
}
