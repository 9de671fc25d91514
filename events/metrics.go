package events

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/moonshotcommons/timelock/timelock"
)

// MetricsSink counts events using an OpenTelemetry counter named "timelock.events", with the "event" attribute.
type MetricsSink struct {
	counter metric.Int64Counter
}

// NewMetricsSink returns a new MetricsSink that creates its instrument on the given meter.
func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	counter, err := meter.Int64Counter(
		"timelock.events",
		metric.WithDescription("Number of events emitted by the timelock"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &MetricsSink{counter: counter}, nil
}

// Emit implements timelock.NotificationSink.
func (s *MetricsSink) Emit(ctx context.Context, ev timelock.Event) error {
	s.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", ev.EventName())))
	return nil
}
