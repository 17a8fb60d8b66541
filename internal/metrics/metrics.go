package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geno"

// Metrics holds the Prometheus collectors of the chat relay. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequestsTotal     *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec
	SessionsEvictedTotal  prometheus.Counter
	AuditDroppedTotal     prometheus.Counter
	EventsPublishFailures prometheus.Counter
}

// New creates a registry with process/go collectors and the chat metrics.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ChatRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Latency of Gemini round trips.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"model", "status"}),
		SessionsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions dropped by the idle TTL or the session cap.",
		}),
		AuditDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Exchange audit records dropped because the writer queue was full.",
		}),
		EventsPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Exchange events that could not be published.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ChatRequestsTotal,
		m.UpstreamDuration,
		m.SessionsEvictedTotal,
		m.AuditDroppedTotal,
		m.EventsPublishFailures,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}

// TrackSessions exposes the live session count through fn.
func (m *Metrics) TrackSessions(fn func() int) error {
	if m == nil {
		return nil
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(fn()) })
	if err := m.registry.Register(gauge); err != nil {
		return fmt.Errorf("register sessions gauge: %w", err)
	}
	return nil
}

func (m *Metrics) ChatRequest(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) UpstreamCall(model, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamDuration.WithLabelValues(model, status).Observe(d.Seconds())
}

func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.SessionsEvictedTotal.Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedTotal.Inc()
}

func (m *Metrics) EventPublishFailed() {
	if m == nil {
		return
	}
	m.EventsPublishFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
