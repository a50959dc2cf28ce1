package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/backend"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/resilience"
	"github.com/noah-isme/backend-kasir/internal/settings"
)

func newClient(t *testing.T, handler http.Handler) (*backend.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	hc := resilience.HTTPClient{
		Client:      srv.Client(),
		Breaker:     resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 100, FailureRatio: 1, OpenFor: time.Minute}),
		BaseBackoff: time.Millisecond,
	}
	return backend.New(srv.URL, "secret", hc, 2), srv
}

func TestFetchSettings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/settings/vat", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"vat_percent":"15","include_vat_in_price":1}`))
	})
	mux.HandleFunc("/api/settings/payment-mode", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"payment_mode":"full"}}`))
	})
	mux.HandleFunc("/api/settings/billing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"enable_trial_date":true,"enable_delivery_date":"1","enable_advance_payment":false,
			"enable_customer_notes":0,"enable_employee_assignment":true,"default_delivery_days":"7",
			"default_trial_days":3,"default_employee_id":12}`))
	})
	client, _ := newClient(t, mux)
	ctx := context.Background()

	vat, err := client.FetchVatConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, 15.0, vat.Percent)
	require.True(t, vat.Inclusive)

	mode, err := client.FetchPaymentMode(ctx)
	require.NoError(t, err)
	require.Equal(t, settings.PaymentFull, mode)

	billing, err := client.FetchBillingConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, settings.BillingConfig{
		EnableTrialDate:          true,
		EnableDeliveryDate:       true,
		EnableEmployeeAssignment: true,
		DefaultDeliveryDays:      7,
		DefaultTrialDays:         3,
		DefaultEmployeeID:        "12",
	}, billing)
}

func TestReadsRetryWritesDoNot(t *testing.T) {
	var reads, writes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bills/next-number", func(w http.ResponseWriter, r *http.Request) {
		if reads.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"bill_number":1043}`))
	})
	mux.HandleFunc("/api/bills", func(w http.ResponseWriter, r *http.Request) {
		writes.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"database is locked"}`))
	})
	client, _ := newClient(t, mux)
	ctx := context.Background()

	number, err := client.NextBillNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "1043", number)
	require.Equal(t, int32(2), reads.Load())

	_, err = client.CreateBill(ctx, backend.BillRequest{})
	var beErr *backend.Error
	require.True(t, errors.As(err, &beErr))
	require.Equal(t, http.StatusInternalServerError, beErr.Status)
	require.Equal(t, "database is locked", beErr.Message)
	require.Equal(t, int32(1), writes.Load())
}

func TestCreateBillRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bills", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body, "bill")
		require.JSONEq(t, `[{"product_id":7,"product_name":"Kandura","quantity":3,"rate":50,"discount":0,
			"vat_percent":5,"vat_amount":7.5,"subtotal":150,"total":157.5,"advance_paid":0}]`, string(body["items"]))
		_, _ = w.Write([]byte(`{"bill_id":42,"bill_number":"BILL-42"}`))
	})
	client, _ := newClient(t, mux)

	created, err := client.CreateBill(context.Background(), backend.BillRequest{
		Bill: backend.BillHeader{CustomerPhone: "0501234567", TotalAmount: 157.5},
		Items: []backend.BillItem{{
			ProductID: "7", ProductName: "Kandura", Quantity: 3, Rate: 50,
			VatPercent: 5, VatAmount: 7.5, Subtotal: 150, Total: 157.5,
		}},
	})
	require.NoError(t, err)
	require.Equal(t, backend.ID("42"), created.BillID)
	require.Equal(t, backend.ID("BILL-42"), created.BillNumber)
}

func TestErrorPayloadOn200(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/bills/42/whatsapp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"invalid phone"}`))
	})
	client, _ := newClient(t, mux)

	_, err := client.SendBillMessage(context.Background(), "42", "123", "en")
	require.Error(t, err)
	app := err.(common.Mapper).AppError()
	require.Equal(t, http.StatusBadGateway, app.HTTPStatus)
	require.Equal(t, "invalid phone", app.Message)
}

func TestUnavailableWhenCircuitOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	breaker := resilience.NewBreaker(resilience.BreakerConfig{OpenFor: time.Minute})
	breaker.Report(context.Background(), false)
	client := backend.New(srv.URL, "", resilience.HTTPClient{Client: srv.Client(), Breaker: breaker}, 1)

	_, err := client.SearchProducts(context.Background(), "ab")
	require.ErrorIs(t, err, backend.ErrUnavailable)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)

	rr := httptest.NewRecorder()
	common.WriteError(rr, err)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "BACKEND_UNAVAILABLE")
	require.Contains(t, rr.Body.String(), "retry_after_ms")
}

func TestSearchShapes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "kan", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"products":[{"product_id":"P-1","product_name":"Kandura","price":"120.5"}]}`))
	})
	mux.HandleFunc("/api/customers/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"name":"Aisha","mobile":"0501234567","city":"Dubai"}]`))
	})
	client, _ := newClient(t, mux)
	ctx := context.Background()

	products, err := client.SearchProducts(ctx, " kan ")
	require.NoError(t, err)
	require.Equal(t, []backend.Product{{ID: "P-1", Name: "Kandura", Rate: 120.5}}, products)

	customers, err := client.SearchCustomers(ctx, "050")
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "0501234567", customers[0].Phone)
	require.Equal(t, backend.ID("3"), customers[0].ID)
}

func TestPrintURL(t *testing.T) {
	client := backend.New("https://shop.example.com/", "", resilience.HTTPClient{Client: http.DefaultClient}, 1)
	require.Equal(t, "https://shop.example.com/api/bills/42/print", client.PrintURL("42"))
}

func TestIDMarshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A backend.ID `json:"a"`
		B backend.ID `json:"b"`
	}{A: "17", B: "P-1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":17,"b":"P-1"}`, string(out))
}

func TestIDMarshalKeepsNonCanonicalDigits(t *testing.T) {
	for _, raw := range []string{"007", "+5", "-0", "0012"} {
		out, err := json.Marshal(struct {
			A backend.ID `json:"a"`
		}{A: backend.ID(raw)})
		require.NoError(t, err, raw)
		require.JSONEq(t, `{"a":"`+raw+`"}`, string(out))

		var back struct {
			A backend.ID `json:"a"`
		}
		require.NoError(t, json.Unmarshal(out, &back))
		require.Equal(t, backend.ID(raw), back.A)
	}
}
