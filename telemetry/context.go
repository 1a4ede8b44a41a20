// Package telemetry adapts the module's core.Telemetry/core.MetricsRegistry
// contracts onto OpenTelemetry: a tracer/meter provider (provider.go), a
// bridge that lets core.ProductionLogger emit OTel metrics without core
// importing this package (registry.go), and baggage propagation for
// request-scoped correlation labels (this file).
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
)

// Baggage holds request-scoped labels that flow through context and get
// attached to logs and metrics emitted further down the call chain.
type Baggage map[string]string

const (
	maxBaggageItems     = 64
	maxBaggageKeyLength = 128
	maxBaggageValLength = 512
)

// WithBaggage adds key/value label pairs that flow through every span, log
// line, and metric emitted from ctx onward. Later values override earlier
// ones with the same key. Items beyond maxBaggageItems are dropped rather
// than returning an error, since baggage is best-effort correlation data.
func WithBaggage(ctx context.Context, labels ...string) context.Context {
	bag := baggage.FromContext(ctx)
	if len(bag.Members()) >= maxBaggageItems {
		return ctx
	}

	for i := 0; i+1 < len(labels); i += 2 {
		if len(bag.Members()) >= maxBaggageItems {
			break
		}
		key, value := labels[i], labels[i+1]
		if key == "" {
			continue
		}
		if len(key) > maxBaggageKeyLength {
			key = key[:maxBaggageKeyLength]
		}
		if len(value) > maxBaggageValLength {
			value = value[:maxBaggageValLength]
		}
		member, err := baggage.NewMember(key, value)
		if err != nil {
			continue
		}
		if next, err := bag.SetMember(member); err == nil {
			bag = next
		}
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// GetBaggage returns the labels attached to ctx, or nil if none were set.
func GetBaggage(ctx context.Context) Baggage {
	members := baggage.FromContext(ctx).Members()
	if len(members) == 0 {
		return nil
	}
	out := make(Baggage, len(members))
	for _, m := range members {
		out[m.Key()] = m.Value()
	}
	return out
}
