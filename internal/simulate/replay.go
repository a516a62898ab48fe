package simulate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/storage"
)

// ReplayConfig controls which records a replay consumes.
type ReplayConfig struct {
	// Pool restricts the replay to one V3 pool address. Empty means the
	// first pool seen in the input.
	Pool string
	// From replays records at or after this timestamp, overriding the
	// saved state.
	From  uint64
	Hooks common.Address
	State storage.StateStore
}

// ReplayStats summarizes the input side of a replay.
type ReplayStats struct {
	Total   int
	Applied int
	Skipped int
	Failed  int
	LastTs  uint64
}

// Replayer feeds typed-events JSONL swaps into a Driver.
type Replayer struct {
	cfg    ReplayConfig
	driver *Driver
	logger *zap.Logger
}

func NewReplayer(cfg ReplayConfig, driver *Driver, logger *zap.Logger) *Replayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replayer{cfg: cfg, driver: driver, logger: logger}
}

// Run replays the file at inputPath.
func (r *Replayer) Run(ctx context.Context, inputPath string) (ReplayStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return r.Replay(ctx, file)
}

// Replay consumes records from in until EOF or ctx is done.
func (r *Replayer) Replay(ctx context.Context, in io.Reader) (ReplayStats, error) {
	startTs, err := r.loadStartTimestamp(ctx)
	if err != nil {
		return ReplayStats{}, err
	}

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	stats := ReplayStats{LastTs: startTs}
	pool := strings.ToLower(r.cfg.Pool)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			r.logger.Warn("decode typed event", zap.Error(err))
			continue
		}
		if record.Timestamp <= startTs {
			stats.Skipped++
			continue
		}
		if pool != "" && strings.ToLower(record.Address) != pool {
			stats.Skipped++
			continue
		}

		swap, ok, err := SwapFromRecord(record)
		if err != nil {
			stats.Failed++
			r.logger.Warn("decode swap", zap.Error(err), zap.String("tx", record.TxHash))
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}

		if !r.driver.Started() {
			key, err := KeyFromMeta(record.PoolMeta, r.cfg.Hooks)
			if err != nil {
				return stats, fmt.Errorf("pool %s: %w", record.Address, err)
			}
			if err := r.driver.Start(ctx, key, swap.Tick, swap.Timestamp, record.PoolMeta.Fee); err != nil {
				return stats, err
			}
			pool = strings.ToLower(record.Address)
			r.logger.Info("replay pool",
				zap.String("address", record.Address),
				zap.String("pool", r.driver.PoolID().Hex()),
				zap.Uint64("block", record.BlockNumber),
			)
		}

		if err := r.driver.Apply(ctx, swap); err != nil {
			return stats, err
		}
		stats.Applied++
		if record.Timestamp > stats.LastTs {
			stats.LastTs = record.Timestamp
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	if err := r.driver.Flush(ctx); err != nil {
		return stats, err
	}
	if r.cfg.State != nil && stats.LastTs > startTs {
		if err := r.cfg.State.Save(ctx, stats.LastTs); err != nil {
			return stats, fmt.Errorf("save state: %w", err)
		}
	}

	ds := r.driver.Stats()
	r.logger.Info("replay complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("cap_events", ds.CapEvents),
		zap.Int("cap_episodes", ds.CapEpisodes),
		zap.Int("reinvestments", ds.Reinvestments),
		zap.Int("snapshots", ds.Snapshots),
	)
	return stats, nil
}

func (r *Replayer) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if r.cfg.From > 0 {
		return r.cfg.From - 1, nil
	}
	if r.cfg.State == nil {
		return 0, nil
	}
	last, ok, err := r.cfg.State.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}
