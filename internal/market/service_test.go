package market

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lagrangedao/go-compute-market/constants"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (n *testNode) call(t *testing.T, method, path, caller, body string) (int, util.BasicResponse) {
	req := httptest.NewRequest(method, apiPrefix+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(constants.HEADER_ADDRESS, caller)
	}
	w := httptest.NewRecorder()
	n.engine.ServeHTTP(w, req)

	var resp util.BasicResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestServiceStatusMapping(t *testing.T) {
	n := newTestNode(t, false)

	status, resp := n.call(t, http.MethodPost, "/providers", "provider1", `{"resources":1000,"price_per_unit":10}`)
	require.Equal(t, http.StatusOK, status, resp.Message)

	tests := []struct {
		name         string
		method, path string
		caller, body string
		status, code int
	}{
		{"duplicate provider", http.MethodPost, "/providers", "provider1", `{"resources":1,"price_per_unit":1}`, http.StatusConflict, 103},
		{"unknown provider", http.MethodGet, "/providers/nobody", "", "", http.StatusNotFound, 101},
		{"update unknown provider", http.MethodPut, "/providers", "nobody", `{"resources":1,"price_per_unit":1}`, http.StatusNotFound, 101},
		{"over capacity", http.MethodPost, "/jobs", "consumer1", `{"provider":"provider1","resources":1001}`, http.StatusBadRequest, 104},
		{"no balance", http.MethodPost, "/jobs", "consumer1", `{"provider":"provider1","resources":10}`, http.StatusPaymentRequired, 105},
		{"nothing to withdraw", http.MethodPost, "/providers/withdraw", "provider1", `{}`, http.StatusBadRequest, 104},
		{"unknown job", http.MethodPost, "/jobs/7/complete", "provider1", `{}`, http.StatusNotFound, 101},
		{"bad job id", http.MethodGet, "/jobs/abc", "", "", http.StatusBadRequest, util.JsonError},
		{"bad json", http.MethodPost, "/consumers/funds", "consumer1", `{"amount":-5}`, http.StatusBadRequest, util.JsonError},
		{"missing provider field", http.MethodPost, "/jobs", "consumer1", `{"resources":1}`, http.StatusBadRequest, util.JsonError},
		{"unknown status filter", http.MethodGet, "/jobs?status=paused", "", "", http.StatusBadRequest, util.JsonError},
		{"missing caller", http.MethodPost, "/consumers/funds", "", `{"amount":5}`, http.StatusUnauthorized, util.SignatureError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			status, resp := n.call(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
			assert.False(t, resp.Succeeded())
		})
	}
}

func TestServiceComputeFlow(t *testing.T) {
	n := newTestNode(t, false)

	steps := []struct {
		method, path, caller, body string
	}{
		{http.MethodPost, "/providers", "provider1", `{"resources":1000,"price_per_unit":10}`},
		{http.MethodPost, "/consumers/funds", "consumer1", `{"amount":1000}`},
		{http.MethodPost, "/jobs", "consumer1", `{"provider":"provider1","resources":50}`},
	}
	for _, s := range steps {
		status, resp := n.call(t, s.method, s.path, s.caller, s.body)
		require.Equal(t, http.StatusOK, status, resp.Message)
	}

	status, resp := n.call(t, http.MethodPost, "/jobs/1/complete", "consumer1", `{}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 102, resp.Code)

	status, _ = n.call(t, http.MethodPost, "/jobs/1/complete", "provider1", `{}`)
	require.Equal(t, http.StatusOK, status)

	status, resp = n.call(t, http.MethodPost, "/providers/withdraw", "provider1", `{}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"amount": float64(500)}, resp.Data)

	status, resp = n.call(t, http.MethodGet, "/jobs?provider=provider1&status=completed", "", "")
	require.Equal(t, http.StatusOK, status)
	jobs := resp.Data.(map[string]interface{})["jobs"].([]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "completed", jobs[0].(map[string]interface{})["status"])

	status, resp = n.call(t, http.MethodGet, "/audit", "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["broken"])

	status, resp = n.call(t, http.MethodGet, "/host/info", "", "")
	require.Equal(t, http.StatusOK, status)
	info := resp.Data.(map[string]interface{})
	assert.Equal(t, "test-node", info["node_name"])
	assert.Equal(t, float64(1), info["last_job_id"])
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, httpStatus(&ledger.MarketError{Code: 999}))
	for me, want := range map[*ledger.MarketError]int{
		ledger.ErrNotFound:            http.StatusNotFound,
		ledger.ErrUnauthorized:        http.StatusForbidden,
		ledger.ErrAlreadyExists:       http.StatusConflict,
		ledger.ErrInvalidAmount:       http.StatusBadRequest,
		ledger.ErrInsufficientBalance: http.StatusPaymentRequired,
	} {
		assert.Equal(t, want, httpStatus(me), me.Kind)
	}
}
