package telemetry

import (
	"context"
	"testing"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	ctx := context.Background()
	p, err := Setup(ctx, Config{ServiceName: "verification-service"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, span := p.Tracer("test").Start(ctx, "op")
	if span.SpanContext().IsValid() {
		t.Fatal("no-op tracer should not produce a valid span context")
	}
	span.End()

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
