package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// traceparentKey is the carrier key the W3C propagator reads and writes.
const traceparentKey = "traceparent"

// InjectTraceparent serializes the active span context to a W3C
// traceparent value for embedding in a bus envelope. Returns "" when no
// span is recording or no propagator is installed.
func InjectTraceparent(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.Get(traceparentKey)
}

// ExtractTraceparent resumes a trace from an envelope's traceparent
// value. With an empty value the context is returned unchanged, so a
// consumer stage starts a fresh trace instead of failing.
func ExtractTraceparent(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{traceparentKey: traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
