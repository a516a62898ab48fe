package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spotHook/internal/config"
	"spotHook/internal/simulate"
	"spotHook/internal/storage"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	policies, err := cfg.PolicyStore(logger.Named("policy"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks, store, err := openSinks(ctx, cfg.Shadow, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	var stateStore storage.StateStore
	switch {
	case cfg.StateFile != "":
		stateStore = &storage.FileStateStore{Path: cfg.StateFile}
	case store != nil:
		stateStore = &storage.DBStateStore{Store: store, Name: cfg.StateName}
	}

	driver := simulate.NewDriver(driverConfig(cfg.Config, cfg.Shadow), policies, sinks, logger)
	replayer := simulate.NewReplayer(simulate.ReplayConfig{
		Pool:  cfg.Pool,
		From:  cfg.From,
		Hooks: cfg.Hooks,
		State: stateStore,
	}, driver, logger)

	logger.Info("replay start",
		zap.String("run_id", driver.RunID()),
		zap.String("input", cfg.Input),
		zap.String("pool", cfg.Pool),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("process_every", cfg.ProcessEvery),
		zap.Uint64("from", cfg.From),
	)

	if _, err := replayer.Run(ctx, cfg.Input); err != nil {
		return err
	}
	return registerPool(ctx, store, driver)
}
