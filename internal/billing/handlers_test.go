package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/backend"
)

type apiError struct {
	Error struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newRouter(h *harness) http.Handler {
	r := chi.NewRouter()
	(&Handler{Svc: h.svc}).Routes(r)
	return r
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) apiError {
	t.Helper()
	var out apiError
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHandlerBillingFlow(t *testing.T) {
	h := newHarness(t)
	router := newRouter(h)

	rr := do(t, router, http.MethodPost, "/sessions", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var view View
	decodeData(t, rr, &view)
	base := "/sessions/" + view.ID

	rr = do(t, router, http.MethodPost, base+"/items", `{"product_id":9,"product_name":"Abaya","quantity":3,"rate":50}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/items", `{"product_id":"9","quantity":1,"rate":50}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	apiErr := decodeError(t, rr)
	require.Equal(t, "CONFIRM_REQUIRED", apiErr.Error.Code)
	require.Contains(t, string(apiErr.Error.Details), `"field":"confirm_merge"`)

	rr = do(t, router, http.MethodPost, base+"/save", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", decodeError(t, rr).Error.Code)

	rr = do(t, router, http.MethodPut, base+"/customer", `{"name":"Mariam","mobile":"0501234567"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, base+"/preview", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sub Submission
	decodeData(t, rr, &sub)
	require.Equal(t, 157.5, sub.Request.Bill.TotalAmount)

	rr = do(t, router, http.MethodPost, base+"/save", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	var saved SaveResult
	decodeData(t, rr, &saved)
	require.Equal(t, backend.ID("42"), saved.BillID)

	rr = do(t, router, http.MethodPatch, base+"/items/0", `{"field":"quantity","value":5}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "BILL_LOCKED", decodeError(t, rr).Error.Code)

	rr = do(t, router, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decodeData(t, rr, &view)
	require.Equal(t, StateEmpty, view.State)
}

func TestHandlerItemRoutes(t *testing.T) {
	h := newHarness(t)
	router := newRouter(h)
	id := h.compose(t)
	base := "/sessions/" + id

	rr := do(t, router, http.MethodPatch, base+"/items/0", `{"field":"advance_paid","value":"1000"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var view View
	decodeData(t, rr, &view)
	require.Equal(t, view.Items[0].Total, view.Items[0].AdvancePaid)

	rr = do(t, router, http.MethodPatch, base+"/items/0", `{"field":"colour","value":"red"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPatch, base+"/items/x", `{"field":"rate","value":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, base+"/items/0", "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPost, base+"/items/0/edit", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var edited struct {
		Item    LineItem `json:"item"`
		Session View     `json:"session"`
	}
	decodeData(t, rr, &edited)
	require.Equal(t, "Abaya", edited.Item.ProductName)
	require.Empty(t, edited.Session.Items)

	rr = do(t, router, http.MethodDelete, base+"/items/0?confirm=true", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerUnknownSession(t *testing.T) {
	router := newRouter(newHarness(t))
	rr := do(t, router, http.MethodGet, "/sessions/missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", decodeError(t, rr).Error.Code)

	rr = do(t, router, http.MethodDelete, "/sessions/missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerShareNeedsAnswer(t *testing.T) {
	h := newHarness(t)
	router := newRouter(h)
	id := h.compose(t)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/share", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, string(decodeError(t, rr).Error.Details), "save_first")

	rr = do(t, router, http.MethodPost, "/sessions/"+id+"/share", `{"save_first":false,"language":"en"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var res ShareResult
	decodeData(t, rr, &res)
	require.Equal(t, ShareDraft, res.Mode)
}

func TestHandlerBackendFailureMapsToBadGateway(t *testing.T) {
	h := newHarness(t)
	h.backend.createErr = &backend.Error{Operation: "create_bill", Status: 500, Message: "db down"}
	router := newRouter(h)
	id := h.compose(t)

	rr := do(t, router, http.MethodPost, "/sessions/"+id+"/print", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Equal(t, "BACKEND_ERROR", decodeError(t, rr).Error.Code)
}
