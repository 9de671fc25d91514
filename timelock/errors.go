package timelock

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInitialized is returned by Initialize when the owner is already set.
	ErrAlreadyInitialized = errors.New("timelock: already initialized")
	// ErrInvalidOwner is returned by Initialize when the caller is the zero address.
	ErrInvalidOwner = errors.New("timelock: the zero address cannot be the owner")
	// ErrNotOwner is returned when a mutating operation is invoked by someone other than the owner.
	ErrNotOwner = errors.New("timelock: caller is not the owner")
	// ErrInvalidValue is returned when a value is negative.
	ErrInvalidValue = errors.New("timelock: invalid value")
	// ErrOwnerAlreadySet is returned by a StateStore when the owner slot has already been claimed.
	ErrOwnerAlreadySet = errors.New("timelock: owner slot already set")
)

// AlreadyQueuedError is returned by Queue when the transaction is already queued.
type AlreadyQueuedError struct {
	TxID TxID
}

func (e *AlreadyQueuedError) Error() string {
	return "timelock: transaction " + e.TxID.Hex() + " is already queued"
}

// NotQueuedError is returned by Execute and Cancel when the transaction is not queued.
type NotQueuedError struct {
	TxID TxID
}

func (e *NotQueuedError) Error() string {
	return "timelock: transaction " + e.TxID.Hex() + " is not queued"
}

// TimestampNotInRangeError is returned by Queue when the timestamp is outside of the delay window.
type TimestampNotInRangeError struct {
	BlockTimestamp uint64
	Timestamp      uint64
}

func (e *TimestampNotInRangeError) Error() string {
	return fmt.Sprintf("timelock: timestamp %d is not in range [%d, %d]", e.Timestamp, e.BlockTimestamp+MinDelay, e.BlockTimestamp+MaxDelay)
}

// TimestampNotPassedError is returned by Execute when the scheduled timestamp has not been reached yet.
type TimestampNotPassedError struct {
	BlockTimestamp uint64
	Timestamp      uint64
}

func (e *TimestampNotPassedError) Error() string {
	return fmt.Sprintf("timelock: timestamp %d has not passed (now: %d)", e.Timestamp, e.BlockTimestamp)
}

// TimestampExpiredError is returned by Execute when the grace period has elapsed.
type TimestampExpiredError struct {
	BlockTimestamp uint64
	ExpiresAt      uint64
}

func (e *TimestampExpiredError) Error() string {
	return fmt.Sprintf("timelock: transaction expired at %d (now: %d)", e.ExpiresAt, e.BlockTimestamp)
}

// TxFailedError is returned by Execute when the outbound call fails.
// The transaction is no longer queued when this error is returned.
type TxFailedError struct {
	TxID TxID
	Err  error
}

func (e *TxFailedError) Error() string {
	if e.Err == nil {
		return "timelock: transaction " + e.TxID.Hex() + " failed"
	}
	return "timelock: transaction " + e.TxID.Hex() + " failed: " + e.Err.Error()
}

func (e *TxFailedError) Unwrap() error {
	return e.Err
}

// Kind is the class of an error returned by the timelock.
type Kind int

const (
	// KindUnknown is used for nil errors and errors not returned by the timelock.
	KindUnknown Kind = iota
	// KindInitialization covers errors from Initialize.
	KindInitialization
	// KindAuthorization is returned when the caller is not the owner.
	KindAuthorization
	// KindStateConflict covers duplicate queues and missing queue entries.
	KindStateConflict
	// KindTiming covers timestamps outside of the delay or grace windows.
	KindTiming
	// KindExecution is returned when the outbound call fails.
	KindExecution
	// KindInvalidInput covers malformed parameters.
	KindInvalidInput
	// KindInternal covers failures of the state store.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindAuthorization:
		return "authorization"
	case KindStateConflict:
		return "state_conflict"
	case KindTiming:
		return "timing"
	case KindExecution:
		return "execution"
	case KindInvalidInput:
		return "invalid_input"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// StoreError wraps a failure of the StateStore.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "timelock: state store failed to " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// KindOf returns the class of err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		alreadyQueued *AlreadyQueuedError
		notQueued     *NotQueuedError
		notInRange    *TimestampNotInRangeError
		notPassed     *TimestampNotPassedError
		expired       *TimestampExpiredError
		txFailed      *TxFailedError
		storeErr      *StoreError
	)
	switch {
	// Checked first: the cause of a failed call may be any error, including one returned by a re-entrant call
	case errors.As(err, &txFailed):
		return KindExecution
	case errors.Is(err, ErrAlreadyInitialized), errors.Is(err, ErrInvalidOwner):
		return KindInitialization
	case errors.Is(err, ErrNotOwner):
		return KindAuthorization
	case errors.As(err, &alreadyQueued), errors.As(err, &notQueued):
		return KindStateConflict
	case errors.As(err, &notInRange), errors.As(err, &notPassed), errors.As(err, &expired):
		return KindTiming
	case errors.Is(err, ErrInvalidValue):
		return KindInvalidInput
	case errors.As(err, &storeErr):
		return KindInternal
	default:
		return KindUnknown
	}
}
