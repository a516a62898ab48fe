package simulate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/host"
	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
	"spotHook/internal/spot"
	"spotHook/internal/storage"
)

// DefaultProvider seeds the shadow pool with its initial liquidity.
var DefaultProvider = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// Config controls a shadow pool run.
type Config struct {
	RunID           string
	ProtocolAccount common.Address
	Provider        common.Address
	Initial0        *uint256.Int
	Initial1        *uint256.Int
	// ProcessEvery is the minimum spacing, in seconds, between queued fee sweeps.
	ProcessEvery uint64
	BatchSize    int
}

// Stats counts what a run did.
type Stats struct {
	Swaps         int
	Skipped       int
	CapEvents     int
	CapEpisodes   int
	Reinvestments int
	Snapshots     int

	Revenue Revenue
	Caps    []CapRecord
}

// Revenue is the fee income of the shadow pool next to what the same swaps
// would have paid at the V3 pool's static fee tier.
type Revenue struct {
	BaselineFeePpm uint32
	Dynamic0       *uint256.Int
	Dynamic1       *uint256.Int
	Baseline0      *uint256.Int
	Baseline1      *uint256.Int
}

func newRevenue(baselineFeePpm uint32) Revenue {
	return Revenue{
		BaselineFeePpm: baselineFeePpm,
		Dynamic0:       new(uint256.Int),
		Dynamic1:       new(uint256.Int),
		Baseline0:      new(uint256.Int),
		Baseline1:      new(uint256.Int),
	}
}

func (r Revenue) clone() Revenue {
	out := newRevenue(r.BaselineFeePpm)
	out.Dynamic0.Set(r.Dynamic0)
	out.Dynamic1.Set(r.Dynamic1)
	out.Baseline0.Set(r.Baseline0)
	out.Baseline1.Set(r.Baseline1)
	return out
}

func (r *Revenue) add(dynamic0, dynamic1, baseline0, baseline1 *uint256.Int) error {
	next := r.clone()
	var err error
	if next.Dynamic0, err = pricemath.Add(next.Dynamic0, dynamic0); err != nil {
		return err
	}
	if next.Dynamic1, err = pricemath.Add(next.Dynamic1, dynamic1); err != nil {
		return err
	}
	if next.Baseline0, err = pricemath.Add(next.Baseline0, baseline0); err != nil {
		return err
	}
	if next.Baseline1, err = pricemath.Add(next.Baseline1, baseline1); err != nil {
		return err
	}
	*r = next
	return nil
}

// CapRecord is one CAP event raised by a swap.
type CapRecord struct {
	Block           uint64
	Timestamp       uint64
	RawTick         int32
	AppliedTick     int32
	Magnitude       uint32
	SurgeFeePpm     uint32
	EffectiveFeePpm uint32
}

// Driver replays swaps against an in-memory pool run by spot.Core and emits
// a snapshot after every swap.
type Driver struct {
	cfg    Config
	core   *spot.Core
	host   *host.Memory
	sink   storage.SnapshotSink
	logger *zap.Logger

	id          model.PoolID
	started     bool
	tracker     *FeeTracker
	seq         uint64
	lastProcess uint64
	batch       []model.PoolSnapshot
	stats       Stats
	capRaised   bool
}

func NewDriver(cfg Config, policies *policy.Store, sink storage.SnapshotSink, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.Provider == (common.Address{}) {
		cfg.Provider = DefaultProvider
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	mem := host.NewMemory(logger.Named("host"))
	return &Driver{
		cfg:    cfg,
		core:   spot.New(spot.Config{ProtocolAccount: cfg.ProtocolAccount}, mem, policies, logger.Named("core")),
		host:   mem,
		sink:   sink,
		logger: logger.With(zap.String("run_id", cfg.RunID)),
		stats:  Stats{Revenue: newRevenue(0)},
	}
}

func (d *Driver) Core() *spot.Core     { return d.core }
func (d *Driver) Host() *host.Memory   { return d.host }
func (d *Driver) PoolID() model.PoolID { return d.id }
func (d *Driver) RunID() string        { return d.cfg.RunID }
func (d *Driver) Started() bool        { return d.started }

// Stats returns a copy of the run counters.
func (d *Driver) Stats() Stats {
	out := d.stats
	out.Revenue = d.stats.Revenue.clone()
	out.Caps = append([]CapRecord(nil), d.stats.Caps...)
	return out
}

// Start initializes the shadow pool at tick and seeds it with the initial
// liquidity. baselineFeePpm is the static fee tier revenue is compared with.
func (d *Driver) Start(ctx context.Context, key model.PoolKey, tick int32, ts uint64, baselineFeePpm uint32) error {
	if d.started {
		return fmt.Errorf("shadow pool %s: %w", d.id.Hex(), model.ErrPoolExists)
	}
	id, err := d.core.InitializePool(ctx, key, tick, ts)
	if err != nil {
		return fmt.Errorf("initialize pool: %w", err)
	}
	if err := d.host.CreatePool(id, tick, key.TickSpacing); err != nil {
		return fmt.Errorf("create host pool: %w", err)
	}
	d.id = id
	d.started = true
	d.stats.Revenue = newRevenue(baselineFeePpm)
	d.tracker = NewFeeTracker(d.core, id, d.logger)
	d.lastProcess = ts

	if d.cfg.Initial0 != nil && d.cfg.Initial1 != nil && !(d.cfg.Initial0.IsZero() && d.cfg.Initial1.IsZero()) {
		if err := d.host.Fund(id, d.cfg.Provider, d.cfg.Initial0, d.cfg.Initial1); err != nil {
			return fmt.Errorf("fund provider: %w", err)
		}
		res, err := d.core.Deposit(ctx, id, d.cfg.Provider, d.cfg.Initial0, d.cfg.Initial1, nil, ts)
		if err != nil {
			return fmt.Errorf("seed liquidity: %w", err)
		}
		d.logger.Info("shadow pool seeded",
			zap.String("pool", id.Hex()),
			zap.Int32("tick", tick),
			zap.String("shares", res.Shares.Dec()),
			zap.String("amount0", res.Amount0.Dec()),
			zap.String("amount1", res.Amount1.Dec()),
		)
	}
	return d.record(ctx, ts)
}

// Apply feeds one swap: the host moves to the swap tick and collects fees at
// the pool's current effective fee, then the core observes the trade. Queued
// fees are swept once ProcessEvery has elapsed since the last sweep.
func (d *Driver) Apply(ctx context.Context, swap Swap) error {
	if !d.started {
		return fmt.Errorf("apply swap: %w", model.ErrUnknownPool)
	}

	feePpm, err := d.core.GetEffectiveFeePpm(d.id, swap.Timestamp)
	if err != nil {
		return err
	}
	fee0, fee1, err := swap.Fees(feePpm)
	if err != nil {
		return err
	}

	state, err := d.core.OracleState(d.id)
	if err != nil {
		return err
	}
	if swap.Timestamp < state.LastTimestamp {
		d.stats.Skipped++
		d.logger.Warn("swap out of order",
			zap.Uint64("block", swap.Block),
			zap.Uint64("ts", swap.Timestamp),
			zap.Uint64("last_ts", state.LastTimestamp),
		)
		return nil
	}

	base0, base1, err := swap.Fees(d.stats.Revenue.BaselineFeePpm)
	if err != nil {
		return err
	}

	restore, err := d.host.Mark(d.id)
	if err != nil {
		return err
	}
	if err := d.host.ApplySwap(d.id, swap.Tick, fee0, fee1); err != nil {
		return fmt.Errorf("host swap at block %d: %w", swap.Block, err)
	}
	res, err := d.core.OnTrade(ctx, d.id, swap.Tick, swap.Timestamp, fee0, fee1)
	if err != nil {
		// the core stored nothing, so the host must not keep the swap either
		restore()
		return fmt.Errorf("trade at block %d: %w", swap.Block, err)
	}
	d.stats.Swaps++
	if err := d.stats.Revenue.add(fee0, fee1, base0, base1); err != nil {
		return fmt.Errorf("revenue at block %d: %w", swap.Block, err)
	}
	d.capRaised = res.CapEvent != nil
	if res.CapEvent != nil {
		d.stats.CapEvents++
		d.stats.Caps = append(d.stats.Caps, CapRecord{
			Block:           swap.Block,
			Timestamp:       swap.Timestamp,
			RawTick:         res.CapEvent.RawTick,
			AppliedTick:     res.CapEvent.AppliedTick,
			Magnitude:       res.CapEvent.Magnitude,
			SurgeFeePpm:     res.SurgeFeePpm,
			EffectiveFeePpm: res.EffectiveFeePpm,
		})
	}
	if _, edge, err := d.tracker.Observe(swap.Timestamp); err != nil {
		return err
	} else if edge == CapStart {
		d.stats.CapEpisodes++
	}

	if d.cfg.ProcessEvery > 0 && swap.Timestamp-d.lastProcess >= d.cfg.ProcessEvery {
		if err := d.process(ctx, swap.Timestamp); err != nil {
			return err
		}
	}
	return d.record(ctx, swap.Timestamp)
}

func (d *Driver) process(ctx context.Context, now uint64) error {
	res, err := d.core.ProcessQueuedFees(ctx, d.id, now)
	if err != nil {
		return fmt.Errorf("process queued fees: %w", err)
	}
	d.lastProcess = now
	if res.Reinvested() {
		d.stats.Reinvestments++
		return nil
	}
	if !errors.Is(res.Skipped, model.ErrTooSoon) {
		d.logger.Debug("reinvestment skipped", zap.Uint64("ts", now), zap.Error(res.Skipped))
	}
	return nil
}

func (d *Driver) record(ctx context.Context, ts uint64) error {
	snap, err := d.core.Snapshot(d.id, ts)
	if err != nil {
		return err
	}
	d.seq++
	snap.RunID = d.cfg.RunID
	snap.Seq = d.seq
	snap.CapRaised = d.capRaised
	d.capRaised = false
	rev := d.stats.Revenue
	snap.BaselineFeePpm = rev.BaselineFeePpm
	snap.DynamicFees0 = rev.Dynamic0.Dec()
	snap.DynamicFees1 = rev.Dynamic1.Dec()
	snap.BaselineFees0 = rev.Baseline0.Dec()
	snap.BaselineFees1 = rev.Baseline1.Dec()
	d.batch = append(d.batch, snap)
	if len(d.batch) >= d.cfg.BatchSize {
		return d.Flush(ctx)
	}
	return nil
}

// Flush writes buffered snapshots to the sink.
func (d *Driver) Flush(ctx context.Context) error {
	if len(d.batch) == 0 || d.sink == nil {
		d.batch = d.batch[:0]
		return nil
	}
	if err := d.sink.PutSnapshots(ctx, d.batch); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	d.stats.Snapshots += len(d.batch)
	d.batch = d.batch[:0]
	return nil
}
