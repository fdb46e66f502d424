package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const TRACER_NAME = "github.com/scalarorg/xtransfer"

// InitTracer installs the global tracer provider. Without an endpoint spans
// are still created but never exported.
func InitTracer(ctx context.Context, serviceName string, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	if cfg.OtlpEndpoint != "" {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OtlpEndpoint)}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		log.Info().Str("endpoint", cfg.OtlpEndpoint).Msg("[Telemetry] exporting traces")
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func Tracer() trace.Tracer {
	return otel.Tracer(TRACER_NAME)
}
