package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceparentRoundTrip(t *testing.T) {
	SetupPropagation()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	tp := InjectTraceparent(ctx)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", tp)

	resumed := ExtractTraceparent(context.Background(), tp)
	got := trace.SpanContextFromContext(resumed)
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsRemote())
}

func TestExtractEmptyTraceparentIsNoop(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractTraceparent(ctx, ""))
}

func TestInjectWithoutSpanReturnsEmpty(t *testing.T) {
	SetupPropagation()
	assert.Empty(t, InjectTraceparent(context.Background()))
}
