package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config for the OTLP trace pipeline.
type Config struct {
	// Endpoint is the OTLP HTTP collector endpoint (host:port).
	// Default: localhost:4318.
	Endpoint string
	// ServiceName is the service name on exported spans.
	ServiceName string
	// Environment is the deployment environment tag (dev, staging, prod).
	Environment string
}

// DefaultEndpoint is the default local OTLP HTTP collector endpoint.
const DefaultEndpoint = "localhost:4318"

// Setup constructs the process-scoped TracerProvider: selective sampler,
// OTLP HTTP exporter behind a batch span processor, and a resource naming
// the service. The provider is returned for injection into New; callers
// own the returned shutdown function and must invoke it on termination to
// flush pending spans.
//
// Exporter construction failure disables export but never the
// application: a provider with sampling and no processor is returned so
// that span lifecycle semantics stay identical with or without a
// reachable collector.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(NewSelectiveSampler()),
		sdktrace.WithResource(res),
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, span export disabled", "error", err)
	} else {
		opts = append(opts, sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	logger.Debug("tracing pipeline ready",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"export", exporter != nil,
	)

	return tp, tp.Shutdown, nil
}
