// Package events contains implementations of timelock.NotificationSink.
//
//   - Recorder keeps the most recent events in memory, so they can be listed by the API.
//   - LogSink writes events to a slog.Logger.
//   - MetricsSink counts events with an OpenTelemetry counter.
//   - Fanout sends events to multiple sinks.
package events
