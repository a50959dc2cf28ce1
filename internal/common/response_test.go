package common_test

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
)

func TestDataWritesEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	common.Data(rr, http.StatusCreated, map[string]int{"count": 2})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"data":{"count":2}}`, rr.Body.String())
}

func TestJSONUnencodableValueAnswers500AndLogs(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	rr := httptest.NewRecorder()
	common.Data(rr, http.StatusOK, map[string]float64{"total": math.Inf(1)})

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "INTERNAL", body.Error.Code)
	require.Contains(t, buf.String(), "response encode failed")
	require.Contains(t, buf.String(), `"status":200`)
}
