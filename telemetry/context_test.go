package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithBaggage_AddsLabelsToEmptyContext(t *testing.T) {
	ctx := WithBaggage(context.Background(), "request_id", "123", "user_id", "456")
	assert.Equal(t, Baggage{"request_id": "123", "user_id": "456"}, GetBaggage(ctx))
}

func TestWithBaggage_IsAdditiveAcrossCalls(t *testing.T) {
	ctx := WithBaggage(context.Background(), "existing", "value")
	ctx = WithBaggage(ctx, "new_key", "new_value")
	assert.Equal(t, Baggage{"existing": "value", "new_key": "new_value"}, GetBaggage(ctx))
}

func TestWithBaggage_LaterValueOverridesEarlier(t *testing.T) {
	ctx := WithBaggage(context.Background(), "env", "staging")
	ctx = WithBaggage(ctx, "env", "production")
	assert.Equal(t, Baggage{"env": "production"}, GetBaggage(ctx))
}

func TestWithBaggage_SkipsEmptyKey(t *testing.T) {
	ctx := WithBaggage(context.Background(), "", "ignored", "kept", "value")
	assert.Equal(t, Baggage{"kept": "value"}, GetBaggage(ctx))
}

func TestGetBaggage_EmptyContextReturnsNil(t *testing.T) {
	assert.Nil(t, GetBaggage(context.Background()))
}
