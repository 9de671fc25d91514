package timelock

import (
	"context"
	"math/big"
)

// Names of the events emitted by the timelock.
const (
	EventQueue   = "Queue"
	EventExecute = "Execute"
	EventCancel  = "Cancel"
)

// Event is a notification emitted after a successful state transition.
type Event interface {
	// EventName returns one of EventQueue, EventExecute, EventCancel.
	EventName() string
	// EventTxID returns the ID of the transaction the event refers to.
	EventTxID() TxID
}

// QueueEvent is emitted when a transaction is queued.
type QueueEvent struct {
	TxID      TxID
	Target    Address
	Value     *big.Int
	Func      string
	Data      []byte
	Timestamp uint64
}

func (e QueueEvent) EventName() string { return EventQueue }
func (e QueueEvent) EventTxID() TxID   { return e.TxID }

// ExecuteEvent is emitted when a queued transaction has been executed successfully.
type ExecuteEvent struct {
	TxID      TxID
	Target    Address
	Value     *big.Int
	Func      string
	Data      []byte
	Timestamp uint64
}

func (e ExecuteEvent) EventName() string { return EventExecute }
func (e ExecuteEvent) EventTxID() TxID   { return e.TxID }

// CancelEvent is emitted when a queued transaction is cancelled.
type CancelEvent struct {
	TxID TxID
}

func (e CancelEvent) EventName() string { return EventCancel }
func (e CancelEvent) EventTxID() TxID   { return e.TxID }

// NotificationSink receives the events emitted by the timelock.
// Errors returned by Emit are logged and do not affect the outcome of the operation.
type NotificationSink interface {
	Emit(ctx context.Context, ev Event) error
}

// NotificationSinkFunc adapts a function to the NotificationSink interface.
type NotificationSinkFunc func(ctx context.Context, ev Event) error

// Emit implements NotificationSink.
func (fn NotificationSinkFunc) Emit(ctx context.Context, ev Event) error {
	return fn(ctx, ev)
}

func newQueueEvent(id TxID, d Descriptor) QueueEvent {
	d = d.Clone()
	return QueueEvent{
		TxID:      id,
		Target:    d.Target,
		Value:     d.ValueOrZero(),
		Func:      d.Func,
		Data:      d.Data,
		Timestamp: d.Timestamp,
	}
}

func newExecuteEvent(id TxID, d Descriptor) ExecuteEvent {
	d = d.Clone()
	return ExecuteEvent{
		TxID:      id,
		Target:    d.Target,
		Value:     d.ValueOrZero(),
		Func:      d.Func,
		Data:      d.Data,
		Timestamp: d.Timestamp,
	}
}
