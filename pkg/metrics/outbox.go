package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts publisher results per event type and tracks how far
// the publisher is behind.
type OutboxMetrics struct {
	results       *prometheus.CounterVec
	backlog       *prometheus.GaugeVec
	oldestPending prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_results_total",
			Help:      "Outbox publish results by event type.",
		}, []string{"event_type", "result"}),
		backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "rows",
			Help:      "Outbox rows waiting to publish (pending) or parked (terminal).",
		}, []string{"state"}),
		oldestPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "oldest_pending_age_seconds",
			Help:      "Age of the oldest unpublished outbox row; zero when none.",
		}),
	}
	reg.MustRegister(m.results, m.backlog, m.oldestPending)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) { m.inc(eventType, "published") }

func (m *OutboxMetrics) IncFailed(eventType string) { m.inc(eventType, "failed") }

func (m *OutboxMetrics) IncTerminal(eventType string) { m.inc(eventType, "terminal") }

func (m *OutboxMetrics) inc(eventType, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

// SetBacklog records the latest backlog sample.
func (m *OutboxMetrics) SetBacklog(pending, terminal int64, oldestAge time.Duration) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.WithLabelValues("pending").Set(float64(pending))
	m.backlog.WithLabelValues("terminal").Set(float64(terminal))
	m.oldestPending.Set(max(oldestAge, 0).Seconds())
}
