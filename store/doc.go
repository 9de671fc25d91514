// Package store contains the implementations of timelock.StateStore.
//
// Each sub-package persists the same two logical slots: the owner address and the map from transaction ID to the "queued" flag.
//
//   - memory: in-process store backed by a concurrent hash map; state is lost on restart.
//   - sqlite: durable store in a SQLite database file.
//   - redis: store shared by multiple processes, in a Redis server.
package store

import (
	"fmt"
)

// Type names accepted by the "store.type" configuration option.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
)

// ValidateType returns an error if t is not a known store type.
func ValidateType(t string) error {
	switch t {
	case TypeMemory, TypeSQLite, TypeRedis:
		return nil
	default:
		return fmt.Errorf("unknown store type '%s'", t)
	}
}
