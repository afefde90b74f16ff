package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherValues flattens a registry into "name{v1,v2}" -> value, reading
// counters, gauges and histogram sample counts.
func gatherValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			out[seriesKey(family.GetName(), metric.GetLabel())] = sampleValue(metric)
		}
	}
	return out
}

func seriesKey(name string, labels []*dto.LabelPair) string {
	values := make([]string, 0, len(labels))
	for _, label := range labels {
		values = append(values, label.GetValue())
	}
	return name + "{" + strings.Join(values, ",") + "}"
}

func sampleValue(metric *dto.Metric) float64 {
	switch {
	case metric.GetCounter() != nil:
		return metric.GetCounter().GetValue()
	case metric.GetGauge() != nil:
		return metric.GetGauge().GetValue()
	case metric.GetHistogram() != nil:
		return float64(metric.GetHistogram().GetSampleCount())
	}
	return 0
}

func TestCronJobMetricsObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.now = func() time.Time { return time.Unix(1_760_000_000, 0) }

	m.ObserveRun("fulfillment-retry", 200*time.Millisecond, nil)
	m.ObserveRun("fulfillment-retry", time.Second, errors.New("provider down"))
	m.ObserveRun("", time.Millisecond, nil)

	got := gatherValues(t, reg)
	want := map[string]float64{
		"teamprint_cron_job_runs_total{fulfillment-retry,success}":             1,
		"teamprint_cron_job_runs_total{fulfillment-retry,failure}":             1,
		"teamprint_cron_job_runs_total{unknown,success}":                       1,
		"teamprint_cron_job_duration_seconds{fulfillment-retry}":               2,
		"teamprint_cron_job_last_success_timestamp_seconds{fulfillment-retry}": 1_760_000_000,
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("%s: expected %v got %v", key, value, got[key])
		}
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("job", time.Second, nil)
	NewCronJobMetrics(nil).ObserveRun("job", time.Second, errors.New("x"))
}
