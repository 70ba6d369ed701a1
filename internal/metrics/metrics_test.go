package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.newMux())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ActionFinished("buy", "success", 3*time.Second)
	m.ActionFinished("buy", "error", time.Second)
	m.ActionFinished("buy", "success", time.Second)
	m.TxSent("buy", nil)
	m.TxSent("buy", errors.New("user rejected"))
	m.ObserveRPC("CallContract", 20*time.Millisecond, nil)
	m.ObserveRPC("SendTransaction", time.Millisecond, errors.New("nonce too low"))
	m.SetConnected(true)

	out := scrape(t, m)
	assert.Contains(t, out, `nftwallet_actions_total{action="buy",status="success"} 2`)
	assert.Contains(t, out, `nftwallet_actions_total{action="buy",status="error"} 1`)
	assert.Contains(t, out, `nftwallet_transactions_total{action="buy",result="failed"} 1`)
	assert.Contains(t, out, `nftwallet_transactions_total{action="buy",result="submitted"} 1`)
	assert.Contains(t, out, `nftwallet_rpc_calls_total{method="CallContract",result="ok"} 1`)
	assert.Contains(t, out, `nftwallet_rpc_calls_total{method="SendTransaction",result="error"} 1`)
	assert.Contains(t, out, `nftwallet_wallet_connected 1`)
	assert.Contains(t, out, `nftwallet_action_duration_seconds_count{action="buy"} 3`)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ActionFinished("mint", "success", 0)
	assert.NotContains(t, scrape(t, b), `action="mint"`)
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/listings/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/api/listings/1", "/api/listings/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := scrape(t, m)
	assert.Contains(t, out, `nftwallet_api_requests_total{method="GET",path="/api/listings/:id",status="204"} 2`)
	assert.Contains(t, out, `nftwallet_api_requests_total{method="GET",path="unmatched",status="404"} 1`)
}

func TestPprofRegistered(t *testing.T) {
	srv := httptest.NewServer(New().newMux())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/debug/pprof/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
