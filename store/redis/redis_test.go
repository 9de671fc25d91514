package redis

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshotcommons/timelock/timelock"
)

var (
	alice = timelock.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob   = timelock.MustParseAddress("0x0000000000000000000000000000000000000b0b")
)

// newTestStore returns a Store backed by an in-process server.
// If TIMELOCK_TEST_REDIS_ADDR is set, the store connects to that server instead.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("TIMELOCK_TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}

	return newTestStoreAt(t, addr, "timelock-test-"+uuid.NewString())
}

func newTestStoreAt(t *testing.T, addr string, prefix string) *Store {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	s := New(Options{
		Client:    client,
		KeyPrefix: prefix,
	})
	require.NoError(t, s.Ping(t.Context()))

	t.Cleanup(func() {
		_ = client.Del(t.Context(), s.ownerKey, s.queuedKey).Err()
		_ = s.Close()
	})

	return s
}

func TestNewDefaultPrefix(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, "timelock:owner", s.ownerKey)
	assert.Equal(t, "timelock:queued", s.queuedKey)
}

func TestStore(t *testing.T) {
	s := newTestStore(t)
	id := timelock.ComputeID(timelock.Descriptor{Func: "foo()", Timestamp: 1010})

	t.Run("owner", func(t *testing.T) {
		owner, err := s.Owner(t.Context())
		require.NoError(t, err)
		assert.True(t, owner.IsZero())

		require.NoError(t, s.ClaimOwner(t.Context(), alice))
		require.ErrorIs(t, s.ClaimOwner(t.Context(), bob), timelock.ErrOwnerAlreadySet)

		owner, err = s.Owner(t.Context())
		require.NoError(t, err)
		assert.Equal(t, alice, owner)
	})

	t.Run("queued", func(t *testing.T) {
		queued, err := s.IsQueued(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, queued)

		// Missing fields read as not queued
		ok, err := s.TransitionQueued(t.Context(), id, true, false)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.TransitionQueued(t.Context(), id, false, true)
		require.NoError(t, err)
		assert.True(t, ok)
		queued, err = s.IsQueued(t.Context(), id)
		require.NoError(t, err)
		assert.True(t, queued)

		ok, err = s.TransitionQueued(t.Context(), id, false, true)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.TransitionQueued(t.Context(), id, true, false)
		require.NoError(t, err)
		assert.True(t, ok)
		queued, err = s.IsQueued(t.Context(), id)
		require.NoError(t, err)
		assert.False(t, queued)
	})
}

func TestStoreLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStoreAt(t, mr.Addr(), "tl")
	id := timelock.ComputeID(timelock.Descriptor{Func: "foo()", Timestamp: 1010})

	require.NoError(t, s.ClaimOwner(t.Context(), alice))
	raw, err := mr.Get("tl:owner")
	require.NoError(t, err)
	assert.Equal(t, string(alice[:]), raw)

	ok, err := s.TransitionQueued(t.Context(), id, false, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", mr.HGet("tl:queued", id.Hex()))

	ok, err = s.TransitionQueued(t.Context(), id, true, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0", mr.HGet("tl:queued", id.Hex()))

	// Values written by other clients are honored
	mr.HSet("tl:queued", id.Hex(), "1")
	queued, err := s.IsQueued(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, queued)

	mr.Set("tl:owner", "short")
	_, err = s.Owner(t.Context())
	require.ErrorContains(t, err, "invalid length 5")
}

func TestStoreSharedServer(t *testing.T) {
	// Two stores with the same prefix behave like two processes sharing the server
	mr := miniredis.RunT(t)
	stores := []*Store{
		newTestStoreAt(t, mr.Addr(), "shared"),
		newTestStoreAt(t, mr.Addr(), "shared"),
	}
	id := timelock.ComputeID(timelock.Descriptor{Func: "baz()", Timestamp: 1500})

	race := func(from, to bool) int {
		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for i := range 16 {
			s := stores[i%len(stores)]
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

	assert.Equal(t, 1, race(false, true))
	assert.Equal(t, 1, race(true, false))
}

func TestStoreServerErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newTestStoreAt(t, mr.Addr(), "tl")
	mr.Close()

	_, err := s.Owner(t.Context())
	require.ErrorContains(t, err, "failed to read owner")

	_, err = s.IsQueued(t.Context(), timelock.TxID{})
	require.ErrorContains(t, err, "failed to read queued flag")

	_, err = s.TransitionQueued(t.Context(), timelock.TxID{}, false, true)
	require.ErrorContains(t, err, "failed to store queued flag")

	require.Error(t, s.Ping(t.Context()))
}
