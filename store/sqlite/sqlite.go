// Package sqlite implements a timelock.StateStore persisted in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	// Register the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/moonshotcommons/timelock/timelock"
)

const migration = `
CREATE TABLE IF NOT EXISTS timelock_owner (
	slot INTEGER PRIMARY KEY CHECK (slot = 0),
	address BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS timelock_queued (
	tx_id BLOB PRIMARY KEY,
	queued INTEGER NOT NULL
);`

// Store is a timelock.StateStore persisted in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and returns a Store using it.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?" + url.Values{
		"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", path, err)
	}

	// A single connection avoids SQLITE_BUSY between our own connections
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a Store using an existing database handle, creating the tables if needed.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	_, err := db.ExecContext(ctx, migration)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Owner implements timelock.StateStore.
func (s *Store) Owner(ctx context.Context) (timelock.Address, error) {
	var (
		owner timelock.Address
		raw   []byte
	)
	err := s.db.
		QueryRowContext(ctx, `SELECT address FROM timelock_owner WHERE slot = 0`).
		Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return owner, nil
	} else if err != nil {
		return owner, fmt.Errorf("failed to query owner: %w", err)
	}

	if len(raw) != timelock.AddressLength {
		return owner, fmt.Errorf("stored owner has invalid length %d", len(raw))
	}
	copy(owner[:], raw)
	return owner, nil
}

// ClaimOwner implements timelock.StateStore.
func (s *Store) ClaimOwner(ctx context.Context, owner timelock.Address) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO timelock_owner (slot, address) VALUES (0, ?) ON CONFLICT (slot) DO NOTHING`,
		owner[:],
	)
	if err != nil {
		return fmt.Errorf("failed to insert owner: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if n == 0 {
		return timelock.ErrOwnerAlreadySet
	}
	return nil
}

// IsQueued implements timelock.StateStore.
func (s *Store) IsQueued(ctx context.Context, id timelock.TxID) (bool, error) {
	var queued bool
	err := s.db.
		QueryRowContext(ctx, `SELECT queued FROM timelock_queued WHERE tx_id = ?`, id[:]).
		Scan(&queued)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to query queued flag: %w", err)
	}
	return queued, nil
}

// TransitionQueued implements timelock.StateStore.
// The check and the write happen in a single statement, so the transition is atomic across connections and processes.
func (s *Store) TransitionQueued(ctx context.Context, id timelock.TxID, from bool, to bool) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if from {
		res, err = s.db.ExecContext(ctx,
			`UPDATE timelock_queued SET queued = ? WHERE tx_id = ? AND queued = 1`,
			to, id[:],
		)
	} else {
		// Missing rows read as false, so they are inserted
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO timelock_queued (tx_id, queued) VALUES (?, ?)
			ON CONFLICT (tx_id) DO UPDATE SET queued = excluded.queued WHERE timelock_queued.queued = 0`,
			id[:], to,
		)
	}
	if err != nil {
		return false, fmt.Errorf("failed to store queued flag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count affected rows: %w", err)
	}
	return n > 0, nil
}
