// Package observability wires the keeper's OpenTelemetry tracer, meter,
// and logger providers. It is the ambient logging/metrics stack carried
// from the teacher's observability bootstrap (internal/infrastructure/observability
// in the pre-transform tree): spec.md §6.6 only requires that logs reach
// stderr by default and that cache/queue stats be retrievable, but it
// never forbids a real telemetry pipeline, so the keeper keeps one.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// DefaultServiceName identifies this service in OTEL_SERVICE_NAME and
// resource attributes when the config doesn't override it.
const DefaultServiceName = "solcron-keeper"

// Config controls whether telemetry is actually exported (metrics.enabled
// in spec.md §6.1) and what service name it reports as.
type Config struct {
	Enabled     bool
	ServiceName string
	Level       slog.Level
}

func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	custom, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	res, err := resource.Merge(resource.Default(), custom)
	if err != nil {
		if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
			return res, nil
		}
		return nil, fmt.Errorf("merge resources: %w", err)
	}
	return res, nil
}

// InitTracerProvider builds a batching OTLP/gRPC trace exporter pipeline,
// or a no-op provider when cfg.Enabled is false.
func InitTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// InitMeterProvider builds a periodic OTLP/gRPC metric exporter pipeline.
// No instruments are registered on the resulting meter; the Supervisor's
// cache/queue/health stats are served as JSON by the metrics HTTP
// server instead, so this stays a thin bootstrap.
func InitMeterProvider(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(context.Background(), otlpmetricgrpc.WithTimeout(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// InitLogger returns a structured logger: an OTLP-backed one when
// telemetry export is enabled, otherwise a plain stderr text handler at
// cfg.Level (spec.md §6.6's "logs to stderr by default" default).
func InitLogger(ctx context.Context, cfg Config) (*log.LoggerProvider, *slog.Logger, error) {
	if !cfg.Enabled {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level})
		return log.NewLoggerProvider(), slog.New(handler), nil
	}

	res, err := newResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otlploggrpc.New(context.Background(), otlploggrpc.WithTimeout(10*time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("create log exporter: %w", err)
	}

	lp := log.NewLoggerProvider(
		log.WithProcessor(log.NewBatchProcessor(exporter, log.WithExportTimeout(5*time.Second))),
		log.WithResource(res),
	)
	logger := otelslog.NewLogger(cfg.ServiceName, otelslog.WithLoggerProvider(lp))
	return lp, logger, nil
}
