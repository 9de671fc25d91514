package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/moonshotcommons/timelock/config"
)

// InitMetricsOpts contains options for the InitMetrics method
type InitMetricsOpts struct {
	Config  config.Base
	AppName string
	// Name of the meter returned by InitMetrics
	// Default: AppName
	Prefix string
}

// InitMetrics initializes the OpenTelemetry meter provider, with the reader selected by OTEL_METRICS_EXPORTER ("none" unless set).
// The returned meter is used for the metrics of the app.
func InitMetrics(ctx context.Context, opts InitMetricsOpts) (meter api.Meter, shutdownFn func(ctx context.Context) error, err error) {
	res, err := opts.Config.GetOtelResource(opts.AppName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get OpenTelemetry resource: %w", err)
	}

	setEnvDefault("OTEL_METRICS_EXPORTER", "none")
	mr, err := autoexport.NewMetricReader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry metric reader: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(mr),
	)

	name := opts.Prefix
	if name == "" {
		name = opts.AppName
	}
	return mp.Meter(name), mp.Shutdown, nil
}
