package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/moonshotcommons/timelock/config"
	"github.com/moonshotcommons/timelock/host"
	"github.com/moonshotcommons/timelock/store"
	"github.com/moonshotcommons/timelock/store/memory"
	"github.com/moonshotcommons/timelock/store/redis"
	"github.com/moonshotcommons/timelock/store/sqlite"
	"github.com/moonshotcommons/timelock/timelock"
)

// openStore returns the state store selected in the configuration, and a function that closes it.
func openStore(ctx context.Context, cfg config.StoreConfig) (timelock.StateStore, func() error, error) {
	switch cfg.Type {
	case store.TypeMemory:
		return memory.New(), func() error { return nil }, nil

	case store.TypeSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open SQLite store: %w", err)
		}
		return s, s.Close, nil

	case store.TypeRedis:
		client := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s := redis.New(redis.Options{
			Client:    client,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		err := s.Ping(ctx)
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return s, s.Close, nil

	default:
		return nil, nil, store.ValidateType(cfg.Type)
	}
}

// newHost returns the value ledger and the dispatcher for outbound calls, with a webhook for each configured target.
func newHost(cfg *config.Config, log *slog.Logger) (*host.Ledger, *host.Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}

	ledger := host.NewLedger()
	dispatcher := host.NewDispatcher(ledger, log)
	if cfg.Store.Type != store.TypeMemory {
		log.Warn("The value ledger is kept in memory: balances are not persisted in the state store and are reset when the process restarts",
			slog.String("store", cfg.Store.String()),
		)
	}

	for _, t := range cfg.Targets {
		addr, err := timelock.ParseAddress(t.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid target address '%s': %w", t.Address, err)
		}
		dispatcher.Register(addr, &host.Webhook{
			URL:     t.URL,
			Timeout: t.Timeout,
		})
		log.Debug("Registered webhook target", slog.String("target", addr.Hex()), slog.String("url", t.URL))
	}

	return ledger, dispatcher, nil
}
