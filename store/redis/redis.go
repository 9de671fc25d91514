// Package redis implements a timelock.StateStore persisted in Redis.
//
// The owner is stored in the key "<prefix>:owner" and the queued flags in the hash "<prefix>:queued", keyed by the hex-encoded transaction ID.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/moonshotcommons/timelock/timelock"
)

// DefaultKeyPrefix is the prefix used for keys when none is set.
const DefaultKeyPrefix = "timelock"

// Options contains the options for New.
type Options struct {
	// Client connected to the Redis server
	Client goredis.UniversalClient
	// Prefix for the keys
	// Defaults to DefaultKeyPrefix
	KeyPrefix string
}

// Store is a timelock.StateStore persisted in Redis.
type Store struct {
	client    goredis.UniversalClient
	ownerKey  string
	queuedKey string
}

// New returns a new Store.
func New(opts Options) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}

	return &Store{
		client:    opts.Client,
		ownerKey:  opts.KeyPrefix + ":owner",
		queuedKey: opts.KeyPrefix + ":queued",
	}
}

// Ping verifies the connection to the server.
func (s *Store) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Owner implements timelock.StateStore.
func (s *Store) Owner(ctx context.Context) (timelock.Address, error) {
	var owner timelock.Address

	raw, err := s.client.Get(ctx, s.ownerKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return owner, nil
	} else if err != nil {
		return owner, fmt.Errorf("failed to read owner: %w", err)
	}

	if len(raw) != timelock.AddressLength {
		return owner, fmt.Errorf("stored owner has invalid length %d", len(raw))
	}
	copy(owner[:], raw)
	return owner, nil
}

// ClaimOwner implements timelock.StateStore.
func (s *Store) ClaimOwner(ctx context.Context, owner timelock.Address) error {
	ok, err := s.client.SetNX(ctx, s.ownerKey, owner[:], 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store owner: %w", err)
	}
	if !ok {
		return timelock.ErrOwnerAlreadySet
	}
	return nil
}

// IsQueued implements timelock.StateStore.
func (s *Store) IsQueued(ctx context.Context, id timelock.TxID) (bool, error) {
	val, err := s.client.HGet(ctx, s.queuedKey, id.Hex()).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to read queued flag: %w", err)
	}
	return val == "1", nil
}

// Sets the field ARGV[1] of the hash KEYS[1] to ARGV[3] if its current value is ARGV[2]; missing fields read as "0".
var transitionScript = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], ARGV[1])
if not cur then
	cur = "0"
end
if cur ~= ARGV[2] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// TransitionQueued implements timelock.StateStore.
// The transition runs in a Lua script, so it's atomic for all clients of the server.
func (s *Store) TransitionQueued(ctx context.Context, id timelock.TxID, from bool, to bool) (bool, error) {
	res, err := transitionScript.
		Run(ctx, s.client, []string{s.queuedKey}, id.Hex(), flagValue(from), flagValue(to)).
		Int()
	if err != nil {
		return false, fmt.Errorf("failed to store queued flag: %w", err)
	}
	return res == 1, nil
}

func flagValue(queued bool) string {
	if queued {
		return "1"
	}
	return "0"
}
