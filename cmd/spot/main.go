package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "spot",
		Short:        "Full-range liquidity pool with oracle-capped dynamic fees",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay typed Swap events through a shadow pool",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("in", "", "input typed events JSONL")
	replayCmd.Flags().String("pool", "", "only replay this V3 pool address (default: first pool seen)")
	replayCmd.Flags().String("hooks", "", "hooks address of the shadow pool key")
	replayCmd.Flags().String("out", "./data/snapshots.jsonl", "output snapshots JSONL (empty disables)")
	replayCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	replayCmd.Flags().Int("batch-size", 500, "snapshots per write")
	replayCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	replayCmd.Flags().String("state-name", "replay", "progress row name when state is kept in Postgres")
	replayCmd.Flags().String("initial0", "1000000000000000000000", "token0 seeded into the shadow pool")
	replayCmd.Flags().String("initial1", "1000000000000000000000", "token1 seeded into the shadow pool")
	replayCmd.Flags().Duration("process-every", time.Hour, "minimum spacing between fee reinvestment attempts")
	replayCmd.Flags().String("from", "", "replay from timestamp (unix seconds or RFC3339)")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live V3 pool and run its swaps through a shadow pool",
		RunE:  runWatch,
	}

	watchCmd.Flags().String("rpc", "", "RPC URL")
	watchCmd.Flags().String("pool", "", "V3 pool address")
	watchCmd.Flags().String("hooks", "", "hooks address of the shadow pool key")
	watchCmd.Flags().String("out", "./data/snapshots.jsonl", "output snapshots JSONL (empty disables)")
	watchCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	watchCmd.Flags().Int("batch-size", 500, "snapshots per write")
	watchCmd.Flags().String("initial0", "1000000000000000000000", "token0 seeded into the shadow pool")
	watchCmd.Flags().String("initial1", "1000000000000000000000", "token1 seeded into the shadow pool")
	watchCmd.Flags().Duration("process-every", time.Hour, "minimum spacing between fee reinvestment attempts")
	watchCmd.Flags().Duration("interval", 15*time.Second, "poll interval")
	watchCmd.Flags().Uint64("max-block-range", 2000, "maximum blocks per log query")
	watchCmd.Flags().String("metrics-addr", ":9102", "Prometheus listen address (empty disables)")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(watchCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
