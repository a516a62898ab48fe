package simulate

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"spotHook/internal/dex"
	"spotHook/internal/metrics"
)

// ChainReader is the subset of chain.Client the watcher needs.
type ChainReader interface {
	dex.Caller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// WatchConfig controls a live shadow run.
type WatchConfig struct {
	Pool          common.Address
	Hooks         common.Address
	Interval      time.Duration
	MaxBlockRange uint64
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Watcher follows Swap logs of a live V3 pool and feeds them into a Driver.
type Watcher struct {
	cfg    WatchConfig
	chain  ChainReader
	driver *Driver
	logger *zap.Logger

	swapTopic common.Hash
	lastBlock uint64
}

func NewWatcher(cfg WatchConfig, chain ChainReader, driver *Driver, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 2000
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	topic, err := dex.SwapTopic()
	if err != nil {
		return nil, err
	}
	return &Watcher{cfg: cfg, chain: chain, driver: driver, logger: logger, swapTopic: topic}, nil
}

// LastBlock returns the last block whose swaps were applied.
func (w *Watcher) LastBlock() uint64 { return w.lastBlock }

// Init starts the shadow pool at the live pool's current tick.
func (w *Watcher) Init(ctx context.Context) error {
	meta, err := dex.FetchPoolMeta(ctx, w.chain, w.cfg.Pool)
	if err != nil {
		return fmt.Errorf("fetch pool meta: %w", err)
	}
	key, err := KeyFromMeta(meta, w.cfg.Hooks)
	if err != nil {
		return err
	}

	var latest uint64
	if err := w.retry(ctx, func(ctx context.Context) error {
		latest, err = w.chain.LatestBlockNumber(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	state, err := dex.FetchPoolState(ctx, w.chain, w.cfg.Pool, new(big.Int).SetUint64(latest), w.logger)
	if err != nil {
		metrics.IncHostReadFailure()
		return fmt.Errorf("fetch pool state: %w", err)
	}
	ts, err := w.blockTimestamp(ctx, latest)
	if err != nil {
		return err
	}

	if err := w.driver.Start(ctx, key, state.Tick, ts, meta.Fee); err != nil {
		return err
	}
	w.lastBlock = latest
	w.logger.Info("watch start",
		zap.String("address", w.cfg.Pool.Hex()),
		zap.String("pool", w.driver.PoolID().Hex()),
		zap.Uint64("block", latest),
		zap.Int32("tick", state.Tick),
		zap.String("liquidity", state.Liquidity.Dec()),
	)
	return nil
}

// Poll applies every swap between the last applied block and the chain head,
// at most MaxBlockRange blocks per call. It returns the number of swaps applied.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	var latest uint64
	var err error
	if err := w.retry(ctx, func(ctx context.Context) error {
		latest, err = w.chain.LatestBlockNumber(ctx)
		return err
	}); err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	if latest <= w.lastBlock {
		return 0, nil
	}
	from := w.lastBlock + 1
	to := latest
	if to-from+1 > w.cfg.MaxBlockRange {
		to = from + w.cfg.MaxBlockRange - 1
	}

	var logs []types.Log
	if err := w.retry(ctx, func(ctx context.Context) error {
		logs, err = w.chain.FilterLogs(ctx, from, to, []common.Address{w.cfg.Pool}, []common.Hash{w.swapTopic})
		return err
	}); err != nil {
		metrics.IncHostReadFailure()
		return 0, fmt.Errorf("filter logs %d-%d: %w", from, to, err)
	}

	applied := 0
	for _, log := range logs {
		if log.Removed {
			continue
		}
		data, err := dex.DecodeSwap(log)
		if err != nil {
			w.logger.Warn("decode swap", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
			continue
		}
		ts, err := w.blockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return applied, err
		}
		swap, err := SwapFromEvent(data, log.BlockNumber, uint64(log.Index), ts)
		if err != nil {
			w.logger.Warn("parse swap", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
			continue
		}
		if err := w.driver.Apply(ctx, swap); err != nil {
			return applied, err
		}
		applied++
	}

	w.lastBlock = to
	if err := w.driver.Flush(ctx); err != nil {
		return applied, err
	}
	w.logger.Debug("watch poll",
		zap.Uint64("from", from),
		zap.Uint64("to", to),
		zap.Int("swaps", applied),
	)
	return applied, nil
}

// Run initializes the shadow pool and follows the chain until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Init(ctx); err != nil {
		return err
	}
	return w.Follow(ctx)
}

// Follow polls every Interval until ctx is done, then flushes what is buffered.
func (w *Watcher) Follow(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.driver.Flush(context.Background())
		case <-ticker.C:
		}
		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return w.driver.Flush(context.Background())
			}
			return err
		}
	}
}

func (w *Watcher) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := w.retry(ctx, func(ctx context.Context) error {
		var err error
		ts, err = w.chain.BlockTimestamp(ctx, number)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("block %d timestamp: %w", number, err)
	}
	return ts, nil
}

func (w *Watcher) retry(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, fn)
}
