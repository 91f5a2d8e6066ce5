package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.AlertsAccepted.WithLabelValues("live").Inc()
	m.Deliveries.WithLabelValues("email", "error").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsAccepted.WithLabelValues("live")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `shopwatch_alerts_accepted_total{origin="live"} 1`)
	assert.Contains(t, body, `shopwatch_notifications_total{channel="email",result="error"} 2`)
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.FramesProcessed.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesProcessed))
}
