package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkTrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/moonshotcommons/timelock/config"
)

// InitTracesOpts contains options for the InitTraces method
type InitTracesOpts struct {
	Config  config.Base
	AppName string
	Sampler sdkTrace.Sampler
}

// InitTraces initializes the OpenTelemetry tracer provider and sets it as the global one.
// Spans are sent to the exporter selected by OTEL_TRACES_EXPORTER ("none" unless set).
func InitTraces(ctx context.Context, opts InitTracesOpts) (traceProvider *sdkTrace.TracerProvider, shutdownFn func(ctx context.Context) error, err error) {
	res, err := opts.Config.GetOtelResource(opts.AppName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get OpenTelemetry resource: %w", err)
	}

	setEnvDefault("OTEL_TRACES_EXPORTER", "none")
	exporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry span exporter: %w", err)
	}

	tracerOpts := []sdkTrace.TracerProviderOption{
		sdkTrace.WithResource(res),
		sdkTrace.WithBatcher(exporter),
	}
	if opts.Sampler != nil {
		tracerOpts = append(tracerOpts, sdkTrace.WithSampler(opts.Sampler))
	}

	traceProvider = sdkTrace.NewTracerProvider(tracerOpts...)
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	// Shutting down the provider flushes the batcher and shuts down the exporter
	return traceProvider, traceProvider.Shutdown, nil
}
