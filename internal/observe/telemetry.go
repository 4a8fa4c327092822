package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryConfig configures the OTel SDK for the server process. In this
// codebase "provider" means a speech or completion backend, so the telemetry
// setup avoids the word.
type TelemetryConfig struct {
	// ServiceName is reported in every metric and span. Default "nina".
	ServiceName string

	// ServiceVersion is reported alongside ServiceName.
	ServiceVersion string

	// SpanExporter, when set, receives finished spans in batches. Left nil,
	// spans still propagate trace IDs for log correlation but are never
	// exported.
	SpanExporter sdktrace.SpanExporter
}

// InitTelemetry registers the global meter and tracer providers. Metrics
// flow through a Prometheus bridge into the /metrics scrape endpoint; spans
// go to cfg.SpanExporter when one is set.
//
// The returned function flushes and stops both providers. Call it from a
// defer in main.
func InitTelemetry(ctx context.Context, cfg TelemetryConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "nina"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	bridge, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}
