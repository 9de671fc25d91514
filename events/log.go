package events

import (
	"context"
	"log/slog"

	"github.com/moonshotcommons/timelock/timelock"
)

// LogSink writes every event to a logger, at the Info level.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements timelock.NotificationSink.
func (s LogSink) Emit(ctx context.Context, ev timelock.Event) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	attrs := []slog.Attr{
		slog.String("event", ev.EventName()),
		slog.String("txId", ev.EventTxID().Hex()),
	}
	switch e := ev.(type) {
	case timelock.QueueEvent:
		attrs = append(attrs,
			slog.String("target", e.Target.Hex()),
			slog.String("value", e.Value.String()),
			slog.String("func", e.Func),
			slog.Uint64("timestamp", e.Timestamp),
		)
	case timelock.ExecuteEvent:
		attrs = append(attrs,
			slog.String("target", e.Target.Hex()),
			slog.String("value", e.Value.String()),
			slog.String("func", e.Func),
			slog.Uint64("timestamp", e.Timestamp),
		)
	}

	log.LogAttrs(ctx, slog.LevelInfo, "Timelock event", attrs...)
	return nil
}
