package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/moonshotcommons/timelock/timelock"
)

// Call is an outbound call received by a Handler.
type Call struct {
	From  timelock.Address
	To    timelock.Address
	Value *big.Int
	// Function selector followed by the arguments
	Input []byte
}

// Handler receives calls for a target address.
// Returning an error makes the call fail.
type Handler interface {
	HandleCall(ctx context.Context, call Call) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, call Call) error

// HandleCall implements Handler.
func (fn HandlerFunc) HandleCall(ctx context.Context, call Call) error {
	return fn(ctx, call)
}

// Dispatcher implements timelock.CallPort.
// For each call it transfers the value on the Ledger and then invokes the Handler registered for the target, if any.
// If the handler fails, the value transfer is reverted.
type Dispatcher struct {
	ledger   *Ledger
	log      *slog.Logger
	lock     sync.RWMutex
	handlers map[timelock.Address]Handler
}

// NewDispatcher returns a new Dispatcher that moves value on ledger.
func NewDispatcher(ledger *Ledger, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		ledger:   ledger,
		log:      log,
		handlers: make(map[timelock.Address]Handler),
	}
}

// Register sets the handler for calls to target, replacing any existing one.
// Passing a nil handler removes it; calls to targets without a handler only transfer value.
func (d *Dispatcher) Register(target timelock.Address, h Handler) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if h == nil {
		delete(d.handlers, target)
		return
	}
	d.handlers[target] = h
}

// Call implements timelock.CallPort.
func (d *Dispatcher) Call(ctx context.Context, from timelock.Address, target timelock.Address, value *big.Int, input []byte) error {
	if value == nil {
		value = new(big.Int)
	}

	err := d.ledger.Transfer(from, target, value)
	if err != nil {
		return fmt.Errorf("failed to transfer value: %w", err)
	}

	d.lock.RLock()
	h := d.handlers[target]
	d.lock.RUnlock()
	if h == nil {
		return nil
	}

	callErr := h.HandleCall(ctx, Call{
		From:  from,
		To:    target,
		Value: new(big.Int).Set(value),
		Input: input,
	})
	if callErr == nil {
		return nil
	}

	// Revert the transfer
	revertErr := d.ledger.Transfer(target, from, value)
	if revertErr != nil {
		d.log.ErrorContext(ctx, "Failed to revert value transfer after a failed call",
			slog.String("from", from.Hex()),
			slog.String("target", target.Hex()),
			slog.String("value", value.String()),
			slog.Any("error", revertErr),
		)
		return errors.Join(callErr, fmt.Errorf("failed to revert value transfer: %w", revertErr))
	}

	return callErr
}
