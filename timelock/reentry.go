package timelock

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/google/uuid"
)

// Key used to mark contexts of operations that are holding the lock.
type reentryKey struct{}

// hold is a top-level operation holding the TimeLock's lock.
// Re-entrant operations join it instead of locking again; the lock is released only after they all returned.
type hold struct {
	t     *TimeLock
	token string

	lock   sync.Mutex
	done   bool
	active sync.WaitGroup
}

func (h *hold) join() bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.done {
		return false
	}
	h.active.Add(1)
	return true
}

func (h *hold) close() {
	h.lock.Lock()
	h.done = true
	h.lock.Unlock()

	h.active.Wait()
}

// enter serializes a mutating operation.
// Operations invoked with a context derived from one that already holds the lock (i.e. re-entrant calls from the CallPort) do not lock again.
func (t *TimeLock) enter(ctx context.Context) (context.Context, func()) {
	h, _ := ctx.Value(reentryKey{}).(*hold)
	if h != nil && h.t == t && h.join() {
		return ctx, h.active.Done
	}

	// The operation that ctx belonged to (if any) has completed, so this is a top-level operation
	t.mu.Lock()
	h = &hold{
		t:     t,
		token: uuid.NewString(),
	}
	t.hold.Store(h)

	return context.WithValue(ctx, reentryKey{}, h), func() {
		t.hold.Store(nil)
		h.close()
		t.mu.Unlock()
	}
}

// ReentryToken returns the token of the operation that ctx belongs to, or an empty string if ctx is not the context of a TimeLock operation.
//
// The token is valid only while the operation is in progress, and it can be passed to Reenter by whoever receives the outbound call.
func ReentryToken(ctx context.Context) string {
	h, _ := ctx.Value(reentryKey{}).(*hold)
	if h == nil {
		return ""
	}
	return h.token
}

// Reenter returns a context that joins the operation in progress identified by token, so operations invoked with it don't wait for the lock that operation is holding.
// It returns false, and ctx unchanged, if token doesn't match the operation in progress.
func (t *TimeLock) Reenter(ctx context.Context, token string) (context.Context, bool) {
	h := t.hold.Load()
	if h == nil || token == "" || subtle.ConstantTimeCompare([]byte(h.token), []byte(token)) != 1 {
		return ctx, false
	}
	return context.WithValue(ctx, reentryKey{}, h), true
}
