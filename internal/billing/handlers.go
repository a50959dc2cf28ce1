package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler wires the billing service to HTTP.
type Handler struct {
	Svc *Service
	// Actions wrap the save, print and share endpoints (idempotency, rate limits).
	Actions []func(http.Handler) http.Handler
}

// Routes registers the session endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.Create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Discard)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{index}", h.UpdateItem)
		r.Post("/items/{index}/edit", h.EditItem)
		r.Delete("/items/{index}", h.DeleteItem)
		r.Put("/customer", h.SetCustomer)
		r.Put("/meta", h.SetMeta)
		r.Get("/preview", h.Preview)
		r.Post("/reset", h.Reset)
		r.Group(func(r chi.Router) {
			r.Use(h.Actions...)
			r.Post("/save", h.Save)
			r.Post("/print", h.Print)
			r.Post("/share", h.Share)
		})
	})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "billing service not configured", nil)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

func itemIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item index", nil)
		return 0, false
	}
	return index, true
}

// Create opens a new billing session.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Svc.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// Get renders the session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Svc.View(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Discard drops the session.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	if err := h.Svc.Discard(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a product line. A duplicate product needs confirm_merge.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload struct {
		Draft
		ConfirmMerge *bool `json:"confirm_merge"`
	}
	if !decode(w, r, &payload) {
		return
	}
	res, view, err := h.Svc.AddItem(r.Context(), chi.URLParam(r, "id"), payload.Draft, Answer(payload.ConfirmMerge))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Merged || res.Declined {
		status = http.StatusOK
	}
	common.Data(w, status, map[string]any{"result": res, "session": view})
}

// UpdateItem sets one field of a line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	index, ok := itemIndex(w, r)
	if !ok {
		return
	}
	var payload struct {
		Field string `json:"field"`
		Value any    `json:"value"`
	}
	if !decode(w, r, &payload) {
		return
	}
	view, err := h.Svc.UpdateItem(chi.URLParam(r, "id"), index, payload.Field, payload.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// EditItem moves a line item back into the entry form.
func (h *Handler) EditItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	index, ok := itemIndex(w, r)
	if !ok {
		return
	}
	item, view, err := h.Svc.EditItem(chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"item": item, "session": view})
}

// DeleteItem removes a line item once ?confirm=true is given.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	index, ok := itemIndex(w, r)
	if !ok {
		return
	}
	confirm := common.ParseBoolPtr(r.URL.Query().Get("confirm"))
	removed, view, err := h.Svc.DeleteItem(r.Context(), chi.URLParam(r, "id"), index, Answer(confirm))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"removed": removed, "session": view})
}

// SetCustomer replaces the customer fields.
func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload Customer
	if !decode(w, r, &payload) {
		return
	}
	view, err := h.Svc.SetCustomer(chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// SetMeta replaces the bill metadata.
func (h *Handler) SetMeta(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload Meta
	if !decode(w, r, &payload) {
		return
	}
	view, err := h.Svc.SetMeta(chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Preview returns the payload Save would send.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	sub, err := h.Svc.Prepare(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, sub)
}

// Save persists the bill.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.Save(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadySaved {
		status = http.StatusOK
	}
	common.Data(w, status, res)
}

// Print saves when needed and returns the print view.
func (h *Handler) Print(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	res, err := h.Svc.Print(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Share sends the bill by message.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var payload ShareRequest
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return
	}
	res, err := h.Svc.Share(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

// Reset clears the session.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	view, err := h.Svc.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var cerr *ConfirmationError
	switch {
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid input", map[string]any{"fields": verr.Fields})
	case errors.As(err, &cerr):
		common.JSONError(w, http.StatusConflict, "CONFIRM_REQUIRED", cerr.Prompt.Message, cerr.Prompt)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "add at least one item", map[string]any{"fields": map[string]string{"items": "is empty"}})
	case errors.Is(err, ErrMissingMobile):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "customer mobile is required", map[string]any{"fields": map[string]string{"customer.mobile": "is required"}})
	case errors.Is(err, ErrUnknownField):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), nil)
	case errors.Is(err, ErrActionInProgress):
		common.JSONError(w, http.StatusConflict, "IN_PROGRESS", err.Error(), nil)
	case errors.Is(err, ErrBillLocked):
		common.JSONError(w, http.StatusConflict, "BILL_LOCKED", err.Error(), nil)
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
