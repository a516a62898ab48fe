package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"spotHook/internal/config"
	"spotHook/internal/model"
	"spotHook/internal/simulate"
	"spotHook/internal/storage"
	"spotHook/internal/storage/postgres"
)

// openSinks builds the snapshot outputs named by cfg. The returned store is
// nil unless a Postgres DSN was given.
func openSinks(ctx context.Context, cfg config.Shadow, logger *zap.Logger) (storage.Fanout, *postgres.Store, error) {
	var sinks storage.Fanout
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN == "" {
		return sinks, nil, nil
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("postgres ready", zap.String("pg_dsn", redactDSN(cfg.PGDSN)))
	return append(sinks, store), store, nil
}

func driverConfig(cfg config.Config, shadow config.Shadow) simulate.Config {
	return simulate.Config{
		ProtocolAccount: cfg.ProtocolAccount,
		Initial0:        shadow.Initial0,
		Initial1:        shadow.Initial1,
		ProcessEvery:    uint64(shadow.ProcessEvery.Seconds()),
		BatchSize:       shadow.BatchSize,
	}
}

// registerPool records the shadow pool key once the driver has started.
func registerPool(ctx context.Context, store *postgres.Store, driver *simulate.Driver) error {
	if store == nil || !driver.Started() {
		return nil
	}
	key, err := driver.Core().Key(driver.PoolID())
	if err != nil {
		return err
	}
	if err := store.UpsertPools(ctx, []model.PoolKey{key}); err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}
