package timelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	kclock "k8s.io/utils/clock"
)

// tracerName is the instrumentation scope name for timelock tracing.
const tracerName = "github.com/moonshotcommons/timelock"

// Options contains the options for New.
type Options struct {
	// Address of the timelock's own account, used as the sender of outbound calls and as the recipient of deposits
	Address Address
	// Store persisting the owner and the queued set
	// Required
	Store StateStore
	// Port used to dispatch executed transactions
	// Required
	Caller CallPort
	// Sink receiving the events
	// Optional: if nil, events are discarded
	Sink NotificationSink
	// Ledger credited by Deposit
	// Optional: if nil, deposits are accepted without being recorded
	Treasury Treasury
	// Clock used as the ledger time
	// Optional: defaults to the real clock
	Clock kclock.PassiveClock
	// Optional: defaults to slog.Default()
	Logger *slog.Logger
	// Optional: defaults to the tracer from the global TracerProvider
	Tracer trace.Tracer
}

// TimeLock is the delayed-execution gate.
// Methods are safe for concurrent use: mutating operations are serialized, and calls made back into the TimeLock from inside an outbound call are allowed as long as they use the context passed to the CallPort.
// Callers that can't carry that context (such as a webhook receiver calling back over HTTP) can join the operation in progress with its ReentryToken; see Reenter.
type TimeLock struct {
	address  Address
	store    StateStore
	caller   CallPort
	sink     NotificationSink
	treasury Treasury
	clock    kclock.PassiveClock
	log      *slog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	hold atomic.Pointer[hold]
}

// New returns a new TimeLock.
func New(opts Options) (*TimeLock, error) {
	if opts.Store == nil {
		return nil, errors.New("timelock: option Store is required")
	}
	if opts.Caller == nil {
		return nil, errors.New("timelock: option Caller is required")
	}

	t := &TimeLock{
		address:  opts.Address,
		store:    opts.Store,
		caller:   opts.Caller,
		sink:     opts.Sink,
		treasury: opts.Treasury,
		clock:    opts.Clock,
		log:      opts.Logger,
		tracer:   opts.Tracer,
	}
	if t.clock == nil {
		t.clock = kclock.RealClock{}
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(tracerName)
	}

	return t, nil
}

// Address returns the address of the timelock's own account.
func (t *TimeLock) Address() Address {
	return t.address
}

// Initialize sets caller as the owner.
// It can only succeed once; afterwards it returns ErrAlreadyInitialized regardless of the caller.
func (t *TimeLock) Initialize(ctx context.Context, caller Address) (err error) {
	ctx, release := t.enter(ctx)
	defer release()

	ctx, span := t.startSpan(ctx, "timelock.initialize", attribute.String("timelock.caller", caller.Hex()))
	defer func() { endSpan(span, err) }()

	owner, err := t.store.Owner(ctx)
	if err != nil {
		return &StoreError{Op: "read owner", Err: err}
	}
	if !owner.IsZero() {
		return ErrAlreadyInitialized
	}
	if caller.IsZero() {
		return ErrInvalidOwner
	}

	err = t.store.ClaimOwner(ctx, caller)
	if errors.Is(err, ErrOwnerAlreadySet) {
		return ErrAlreadyInitialized
	} else if err != nil {
		return &StoreError{Op: "store owner", Err: err}
	}

	t.log.InfoContext(ctx, "Timelock initialized", slog.String("owner", caller.Hex()))
	return nil
}

// Owner returns the current owner, or the zero Address if the timelock hasn't been initialized.
func (t *TimeLock) Owner(ctx context.Context) (Address, error) {
	owner, err := t.store.Owner(ctx)
	if err != nil {
		return Address{}, &StoreError{Op: "read owner", Err: err}
	}
	return owner, nil
}

// TxID returns the identifier of the transaction described by d.
func (t *TimeLock) TxID(d Descriptor) TxID {
	return ComputeID(d)
}

// IsQueued returns true if the transaction is currently queued.
func (t *TimeLock) IsQueued(ctx context.Context, id TxID) (bool, error) {
	queued, err := t.store.IsQueued(ctx, id)
	if err != nil {
		return false, &StoreError{Op: "read queued flag", Err: err}
	}
	return queued, nil
}

// Deposit credits value to the timelock's own account.
// Anyone can deposit.
func (t *TimeLock) Deposit(ctx context.Context, from Address, value *big.Int) (err error) {
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return ErrInvalidValue
	}

	ctx, release := t.enter(ctx)
	defer release()

	ctx, span := t.startSpan(ctx, "timelock.deposit",
		attribute.String("timelock.caller", from.Hex()),
		attribute.String("timelock.value", value.String()),
	)
	defer func() { endSpan(span, err) }()

	if t.treasury != nil {
		err = t.treasury.Credit(ctx, t.address, value)
		if err != nil {
			return fmt.Errorf("timelock: failed to credit deposit: %w", err)
		}
	}

	t.log.DebugContext(ctx, "Received deposit", slog.String("from", from.Hex()), slog.String("value", value.String()))
	return nil
}

// Queue schedules the transaction described by d.
// The timestamp must be between MinDelay and MaxDelay seconds from now, inclusive.
func (t *TimeLock) Queue(ctx context.Context, caller Address, d Descriptor) (id TxID, err error) {
	ctx, release := t.enter(ctx)
	defer release()

	id = ComputeID(d)
	ctx, span := t.startSpan(ctx, "timelock.queue", txAttributes(caller, id, d)...)
	defer func() { endSpan(span, err) }()

	err = t.authorize(ctx, caller)
	if err != nil {
		return id, err
	}

	queued, err := t.store.IsQueued(ctx, id)
	if err != nil {
		return id, &StoreError{Op: "read queued flag", Err: err}
	}
	if queued {
		return id, &AlreadyQueuedError{TxID: id}
	}

	err = checkQueueWindow(t.now(), d.Timestamp)
	if err != nil {
		return id, err
	}

	// Another instance sharing the store may have queued it since the read above
	ok, err := t.store.TransitionQueued(ctx, id, false, true)
	if err != nil {
		return id, &StoreError{Op: "set queued flag", Err: err}
	}
	if !ok {
		return id, &AlreadyQueuedError{TxID: id}
	}

	t.log.DebugContext(ctx, "Queued transaction", slog.String("txId", id.Hex()), slog.Uint64("timestamp", d.Timestamp))
	t.emit(ctx, newQueueEvent(id, d))

	return id, nil
}

// Execute dispatches a queued transaction.
// The current time must be between the timestamp and the timestamp plus GracePeriod, inclusive.
//
// The transaction is removed from the queue before the call is dispatched, and it's not restored if the call fails: in that case a *TxFailedError is returned and the transaction must be queued again.
func (t *TimeLock) Execute(ctx context.Context, caller Address, d Descriptor) (id TxID, err error) {
	ctx, release := t.enter(ctx)
	defer release()

	id = ComputeID(d)
	ctx, span := t.startSpan(ctx, "timelock.execute", txAttributes(caller, id, d)...)
	defer func() { endSpan(span, err) }()

	err = t.authorize(ctx, caller)
	if err != nil {
		return id, err
	}

	queued, err := t.store.IsQueued(ctx, id)
	if err != nil {
		return id, &StoreError{Op: "read queued flag", Err: err}
	}
	if !queued {
		return id, &NotQueuedError{TxID: id}
	}

	err = checkExecuteWindow(t.now(), d.Timestamp)
	if err != nil {
		return id, err
	}

	// The flag must be cleared before dispatching: the target may call back into the timelock and try to execute the same transaction again.
	// Only the caller that clears it may dispatch the call.
	ok, err := t.store.TransitionQueued(ctx, id, true, false)
	if err != nil {
		return id, &StoreError{Op: "clear queued flag", Err: err}
	}
	if !ok {
		return id, &NotQueuedError{TxID: id}
	}

	callErr := t.caller.Call(ctx, t.address, d.Target, d.ValueOrZero(), d.Calldata())
	if callErr != nil {
		t.log.WarnContext(ctx, "Transaction failed",
			slog.String("txId", id.Hex()),
			slog.String("target", d.Target.Hex()),
			slog.Any("error", callErr),
		)
		return id, &TxFailedError{TxID: id, Err: callErr}
	}

	t.log.DebugContext(ctx, "Executed transaction", slog.String("txId", id.Hex()), slog.String("target", d.Target.Hex()))
	t.emit(ctx, newExecuteEvent(id, d))

	return id, nil
}

// Cancel removes a queued transaction.
// There are no timing restrictions on cancellation.
func (t *TimeLock) Cancel(ctx context.Context, caller Address, d Descriptor) (id TxID, err error) {
	ctx, release := t.enter(ctx)
	defer release()

	id = ComputeID(d)
	ctx, span := t.startSpan(ctx, "timelock.cancel", txAttributes(caller, id, d)...)
	defer func() { endSpan(span, err) }()

	err = t.authorize(ctx, caller)
	if err != nil {
		return id, err
	}

	ok, err := t.store.TransitionQueued(ctx, id, true, false)
	if err != nil {
		return id, &StoreError{Op: "clear queued flag", Err: err}
	}
	if !ok {
		return id, &NotQueuedError{TxID: id}
	}

	t.log.DebugContext(ctx, "Cancelled transaction", slog.String("txId", id.Hex()))
	t.emit(ctx, CancelEvent{TxID: id})

	return id, nil
}

func (t *TimeLock) authorize(ctx context.Context, caller Address) error {
	owner, err := t.store.Owner(ctx)
	if err != nil {
		return &StoreError{Op: "read owner", Err: err}
	}
	// An uninitialized timelock has no owner, so nobody is authorized
	if owner.IsZero() || owner != caller {
		return ErrNotOwner
	}
	return nil
}

func (t *TimeLock) now() uint64 {
	now := t.clock.Now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (t *TimeLock) emit(ctx context.Context, ev Event) {
	if t.sink == nil {
		return
	}

	err := t.sink.Emit(ctx, ev)
	if err != nil {
		t.log.WarnContext(ctx, "Failed to emit event",
			slog.String("event", ev.EventName()),
			slog.String("txId", ev.EventTxID().Hex()),
			slog.Any("error", err),
		)
	}
}

func (t *TimeLock) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("timelock.error_kind", KindOf(err).String()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func txAttributes(caller Address, id TxID, d Descriptor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("timelock.caller", caller.Hex()),
		attribute.String("timelock.tx_id", id.Hex()),
		attribute.String("timelock.target", d.Target.Hex()),
		attribute.String("timelock.func", d.Func),
		attribute.Int64("timelock.timestamp", int64(d.Timestamp)), //nolint:gosec
	}
}
