package telemetry_test

import (
	"context"
	"testing"

	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), "xtransfer-test", config.TelemetryConfig{})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := telemetry.Tracer().Start(context.Background(), "lookup")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
