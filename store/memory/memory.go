// Package memory implements an in-memory timelock.StateStore.
package memory

import (
	"context"
	"sync/atomic"

	"github.com/alphadose/haxmap"

	"github.com/moonshotcommons/timelock/timelock"
)

// Store is an in-memory timelock.StateStore.
// It's safe for concurrent use.
type Store struct {
	owner atomic.Pointer[timelock.Address]
	// Each entry is created once and then only changed with compare-and-swap
	queued *haxmap.Map[string, *atomic.Bool]
}

// New returns a new, empty Store.
func New() *Store {
	return &Store{
		queued: haxmap.New[string, *atomic.Bool](),
	}
}

// Owner implements timelock.StateStore.
func (s *Store) Owner(_ context.Context) (timelock.Address, error) {
	owner := s.owner.Load()
	if owner == nil {
		return timelock.Address{}, nil
	}
	return *owner, nil
}

// ClaimOwner implements timelock.StateStore.
func (s *Store) ClaimOwner(_ context.Context, owner timelock.Address) error {
	if !s.owner.CompareAndSwap(nil, &owner) {
		return timelock.ErrOwnerAlreadySet
	}
	return nil
}

// IsQueued implements timelock.StateStore.
func (s *Store) IsQueued(_ context.Context, id timelock.TxID) (bool, error) {
	// Missing keys read as false
	flag, ok := s.queued.Get(key(id))
	if !ok {
		return false, nil
	}
	return flag.Load(), nil
}

// TransitionQueued implements timelock.StateStore.
// Entries are never removed: clearing the flag stores false.
func (s *Store) TransitionQueued(_ context.Context, id timelock.TxID, from bool, to bool) (bool, error) {
	flag, ok := s.queued.Get(key(id))
	if !ok {
		if from {
			// Missing keys read as false
			return false, nil
		}
		// Another goroutine may create the entry at the same time: GetOrSet returns the winner
		flag, _ = s.queued.GetOrSet(key(id), &atomic.Bool{})
	}
	return flag.CompareAndSwap(from, to), nil
}

// Len returns the number of transactions that have an entry in the store, queued or not.
func (s *Store) Len() int {
	return int(s.queued.Len())
}

func key(id timelock.TxID) string {
	return string(id[:])
}
