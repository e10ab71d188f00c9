package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerAndShutdown(t *testing.T) {
	ctx := context.Background()

	// The exporter connects lazily, so an unreachable endpoint is fine here.
	tp, err := InitTracer(ctx, "agent-relay-test", "127.0.0.1:1", 0.5)
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := Tracer().Start(ctx, "test")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	// Export of the buffered span fails on a cancelled context; only the call shape matters.
	_ = Shutdown(cancelled, tp)
}

func TestShutdownNil(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background(), nil))
}
