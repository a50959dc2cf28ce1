package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/backend"
)

type fakeSource struct {
	queries []string
	err     error
}

func (f *fakeSource) SearchProducts(_ context.Context, q string) ([]backend.Product, error) {
	f.queries = append(f.queries, "p:"+q)
	if f.err != nil {
		return nil, f.err
	}
	return []backend.Product{{ID: "1", Name: "Abaya", Rate: 50}, {ID: "2", Name: "Abaya Lux", Rate: 90}}, nil
}

func (f *fakeSource) SearchCustomers(_ context.Context, q string) ([]backend.Customer, error) {
	f.queries = append(f.queries, "c:"+q)
	return []backend.Customer{{ID: "7", Name: "Mariam", Phone: "0501234567"}}, nil
}

func newTestRouter(src Source) http.Handler {
	r := chi.NewRouter()
	(&Handler{
		Source:    src,
		Products:  NewDebouncer[[]backend.Product](0),
		Customers: NewDebouncer[[]backend.Customer](0),
	}).Routes(r)
	return r
}

func TestSearchProducts(t *testing.T) {
	src := &fakeSource{}
	router := newTestRouter(src)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/s1/search/products?q=aba&limit=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []backend.Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "Abaya", body.Data[0].Name)
	require.Equal(t, []string{"p:aba"}, src.queries)
}

func TestSearchEmptyQuerySkipsBackend(t *testing.T) {
	src := &fakeSource{}
	router := newTestRouter(src)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/s1/search/customers?q=%20", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":[]}`, rr.Body.String())
	require.Empty(t, src.queries)
}

func TestSearchBackendFailure(t *testing.T) {
	src := &fakeSource{err: &backend.Error{Operation: "search_products", Status: 500, Message: "boom"}}
	router := newTestRouter(src)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/s1/search/products?q=x", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)
}
