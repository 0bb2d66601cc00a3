package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"consignado-bot/internal/domain"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveOutcome("processed")
	m.ObserveOutcome("processed")
	m.ObserveOutcome("duplicate")
	m.ObserveTransition(domain.StateGreeting, domain.StateAwaitingCPF)
	m.ObserveSend(true)
	m.ObserveSend(false)
	m.ObserveSend(false)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("processed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("GREETING", "AWAITING_CPF")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Sends.WithLabelValues("delivered")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Sends.WithLabelValues("failed")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveOutcome("processed")
		m.ObserveTransition(domain.StateGreeting, domain.StateHelp)
		m.ObserveSend(true)
		m.ObserveWebhook(time.Second)
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveOutcome("ignored")
	require.Equal(t, 0.0, testutil.ToFloat64(b.Outcomes.WithLabelValues("ignored")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveWebhook(120 * time.Millisecond)
	m.ObserveOutcome("processed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `consignado_webhook_outcomes_total{status="processed"} 1`)
	require.Contains(t, body, "consignado_webhook_duration_seconds_count 1")
	require.Contains(t, body, "go_goroutines")
}
