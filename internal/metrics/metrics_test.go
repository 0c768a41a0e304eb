package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegistered(t *testing.T) {
	RPCCallsTotal.WithLabelValues("metrics_test_fn", "ok").Inc()

	families, err := Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "relaygate_rpc_calls_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "function" && l.GetValue() == "metrics_test_fn" {
					found = true
					assert.InDelta(t, 1, m.GetCounter().GetValue(), 0)
				}
			}
		}
	}
	assert.True(t, found)
}

func TestHandler(t *testing.T) {
	WebhookVerificationsTotal.WithLabelValues("metrics_test", "valid").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `relaygate_webhook_verifications_total{provider="metrics_test",result="valid"} 1`)
}
