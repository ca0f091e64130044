// Package tracing installs the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/opensource-finance/claimrisk/internal/domain"
)

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Init registers a batching OTLP exporter as the global tracer provider.
// When tracing is disabled or no endpoint is set the global no-op provider
// stays in place and the returned shutdown does nothing.
func Init(ctx context.Context, cfg domain.TracingConfig, version string, logger *slog.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)
	return tp.Shutdown, nil
}
