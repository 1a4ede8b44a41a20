package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := NewProvider(context.Background(), Config{ServiceName: "test-service"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestProvider_StartSpanReturnsUsableSpan(t *testing.T) {
	p := newTestProvider(t)

	ctx, span := p.StartSpan(context.Background(), "test.op")
	require.NotNil(t, span)
	require.NotNil(t, ctx)

	span.SetAttribute("task.kind", "code_generation")
	span.RecordError(nil)
	span.End()
}

func TestProvider_RecordMetricDoesNotPanic(t *testing.T) {
	p := newTestProvider(t)
	assert.NotPanics(t, func() {
		p.RecordMetric("coordinator.queue_depth", 5, map[string]string{"node": "node-1"})
	})
}

func TestProvider_ShutdownIsIdempotent(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{ServiceName: "test-service"})
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_RequiresServiceName(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{})
	require.Error(t, err)
}

func TestLogMetricsBridge_EmitWithContextMergesBaggage(t *testing.T) {
	p := newTestProvider(t)
	bridge := NewLogMetricsBridge(p)

	ctx := WithBaggage(context.Background(), "request_id", "abc")
	assert.NotPanics(t, func() {
		bridge.EmitWithContext(ctx, "orchestrator.log.events", 1, "level", "INFO")
	})
	assert.Equal(t, map[string]string{"request_id": "abc"}, bridge.GetBaggage(ctx))
}
