package events

import (
	"context"
	"errors"

	"github.com/moonshotcommons/timelock/timelock"
)

// Fanout sends events to all the sinks it contains, in order.
// All sinks receive the event even if one fails; the errors are joined.
type Fanout []timelock.NotificationSink

// Emit implements timelock.NotificationSink.
func (f Fanout) Emit(ctx context.Context, ev timelock.Event) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		err := sink.Emit(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
