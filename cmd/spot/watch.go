package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spotHook/internal/chain"
	"spotHook/internal/config"
	"spotHook/internal/simulate"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWatch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Pool == "" {
		return fmt.Errorf("pool address is required")
	}

	policies, err := cfg.PolicyStore(logger.Named("policy"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, logger.Named("chain"))
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sinks, store, err := openSinks(ctx, cfg.Shadow, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	driver := simulate.NewDriver(driverConfig(cfg.Config, cfg.Shadow), policies, sinks, logger)
	watcher, err := simulate.NewWatcher(simulate.WatchConfig{
		Pool:          common.HexToAddress(cfg.Pool),
		Hooks:         cfg.Hooks,
		Interval:      cfg.Interval,
		MaxBlockRange: cfg.MaxBlockRange,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
	}, chainClient, driver, logger)
	if err != nil {
		return err
	}

	logger.Info("watch start",
		zap.String("run_id", driver.RunID()),
		zap.String("chain_id", chainClient.ChainID().String()),
		zap.String("pool", cfg.Pool),
		zap.Duration("interval", cfg.Interval),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	if err := watcher.Init(ctx); err != nil {
		return err
	}
	if err := registerPool(ctx, store, driver); err != nil {
		return err
	}
	err = watcher.Follow(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return srv
}
