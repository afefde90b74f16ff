package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics tracks fulfillment attempts and provider latency.
type FulfillmentMetrics struct {
	outcomes *prometheus.CounterVec
	provider *prometheus.HistogramVec
}

func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return &FulfillmentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fulfillment",
		Name:      "attempts_total",
		Help:      "Fulfillment attempts by outcome and error kind.",
	}, []string{"outcome", "error_kind"})
	provider := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "fulfillment",
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of fulfillment provider calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"op", "status"})
	reg.MustRegister(outcomes, provider)
	return &FulfillmentMetrics{outcomes: outcomes, provider: provider}
}

// ObserveOutcome counts one finished attempt. errorKind is empty on success.
func (m *FulfillmentMetrics) ObserveOutcome(outcome, errorKind string) {
	if m == nil || m.outcomes == nil {
		return
	}
	if errorKind == "" {
		errorKind = "none"
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome), errorKind).Inc()
}

// ObserveProviderRequest records one provider HTTP call. Status zero means
// no response was received.
func (m *FulfillmentMetrics) ObserveProviderRequest(op string, status int, elapsed time.Duration) {
	if m == nil || m.provider == nil {
		return
	}
	label := "network_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.provider.WithLabelValues(normalizeLabel(op), label).Observe(elapsed.Seconds())
}
