// Package timelock implements a single-owner, delayed-execution authorization gate.
//
// A call (target, value, function signature, payload) can only be dispatched after it has been queued by the owner, once its scheduled timestamp has been reached, and before the grace period after that timestamp elapses.
// Queued calls are referenced only by their TxID, a Keccak-256 digest of the ABI-encoded call parameters.
//
// The package contains the state machine only. Persistence (StateStore), outbound calls (CallPort), notifications (NotificationSink), the value ledger (Treasury) and the clock are supplied by the host.
package timelock
