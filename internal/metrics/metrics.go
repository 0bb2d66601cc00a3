// Package metrics exposes Prometheus counters for the conversation flow.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consignado-bot/internal/domain"
)

type Metrics struct {
	registry *prometheus.Registry

	// Webhook outcomes by status: processed, ignored, duplicate, error.
	Outcomes *prometheus.CounterVec

	// State machine transitions by from/to state.
	Transitions *prometheus.CounterVec

	// Gateway sends by result: delivered, failed.
	Sends *prometheus.CounterVec

	WebhookLatency prometheus.Histogram
}

// New registers all metrics on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consignado_webhook_outcomes_total",
			Help: "Inbound webhook messages by processing outcome",
		}, []string{"status"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consignado_state_transitions_total",
			Help: "Conversation state transitions",
		}, []string{"from", "to"}),
		Sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consignado_gateway_sends_total",
			Help: "Replies sent through the gateway by result",
		}, []string{"result"}),
		WebhookLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "consignado_webhook_duration_seconds",
			Help:    "Time spent handling one webhook request",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) ObserveOutcome(status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) ObserveTransition(from, to domain.State) {
	if m != nil {
		m.Transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (m *Metrics) ObserveSend(delivered bool) {
	if m == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.Sends.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveWebhook(d time.Duration) {
	if m != nil {
		m.WebhookLatency.Observe(d.Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
