package memory

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshotcommons/timelock/timelock"
)

func TestStoreOwner(t *testing.T) {
	s := New()

	owner, err := s.Owner(t.Context())
	require.NoError(t, err)
	assert.True(t, owner.IsZero())

	alice := timelock.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob := timelock.MustParseAddress("0x0000000000000000000000000000000000000b0b")

	require.NoError(t, s.ClaimOwner(t.Context(), alice))
	require.ErrorIs(t, s.ClaimOwner(t.Context(), bob), timelock.ErrOwnerAlreadySet)

	owner, err = s.Owner(t.Context())
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
}

func TestStoreClaimOwnerConcurrent(t *testing.T) {
	s := New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := range 32 {
		wg.Go(func() {
			var a timelock.Address
			a[19] = byte(i + 1)
			if s.ClaimOwner(t.Context(), a) == nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, claimed)
}

func TestStoreQueued(t *testing.T) {
	s := New()
	id := timelock.ComputeID(timelock.Descriptor{Func: "foo()", Timestamp: 1010})

	// Missing entries are not queued
	queued, err := s.IsQueued(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 0, s.Len())

	// Clearing a missing entry fails and doesn't create it
	ok, err := s.TransitionQueued(t.Context(), id, true, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	ok, err = s.TransitionQueued(t.Context(), id, false, true)
	require.NoError(t, err)
	assert.True(t, ok)
	queued, err = s.IsQueued(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, queued)

	// Already queued
	ok, err = s.TransitionQueued(t.Context(), id, false, true)
	require.NoError(t, err)
	assert.False(t, ok)

	// Clearing keeps the entry
	ok, err = s.TransitionQueued(t.Context(), id, true, false)
	require.NoError(t, err)
	assert.True(t, ok)
	queued, err = s.IsQueued(t.Context(), id)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 1, s.Len())
}

func TestStoreTransitionQueuedConcurrent(t *testing.T) {
	s := New()
	id := timelock.ComputeID(timelock.Descriptor{Func: "foo()", Timestamp: 1010})

	count := func(from, to bool) int {
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for range 32 {
			wg.Go(func() {
				ok, err := s.TransitionQueued(t.Context(), id, from, to)
				assert.NoError(t, err)
				if ok {
					won.Add(1)
				}
			})
		}
		wg.Wait()
		return int(won.Load())
	}

	assert.Equal(t, 1, count(false, true), "only one goroutine can queue")
	assert.Equal(t, 1, count(true, false), "only one goroutine can clear")
}
