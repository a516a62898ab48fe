package spot

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/fee"
	"spotHook/internal/metrics"
	"spotHook/internal/model"
	"spotHook/internal/oracle"
)

// TradeResult describes the state a trade leaves behind. The fee fields are
// what the next trade pays.
type TradeResult struct {
	AppliedTick     int32
	CapEvent        *model.CapEvent
	MaxTickMove     uint32
	BaseFeePpm      uint32
	SurgeFeePpm     uint32
	EffectiveFeePpm uint32
	// BaseFeeErr is ErrFrozenPolicy when the base fee was not allowed to move.
	BaseFeeErr error
	// ObservationSkipped is set for a second trade in the same second.
	ObservationSkipped bool
}

// OnTrade records the post-trade tick, updates both fee layers and queues the
// trade's fees. Nothing is stored unless every step succeeds.
func (c *Core) OnTrade(ctx context.Context, id model.PoolID, tick int32, ts uint64, fee0, fee1 *uint256.Int) (TradeResult, error) {
	if _, err := c.acquire(id); err != nil {
		return TradeResult{}, err
	}
	defer c.unlock(id)
	p := c.policies.Get(id)

	hp, err := c.readPool(ctx, id)
	if err != nil {
		return TradeResult{}, err
	}
	state, err := c.oracle.State(id)
	if err != nil {
		return TradeResult{}, err
	}

	var (
		res    TradeResult
		update *oracle.Update
	)
	if ts == state.LastTimestamp {
		res.ObservationSkipped = true
		res.AppliedTick = state.LastTick
		res.MaxTickMove = state.CurrentMaxTickMove
	} else {
		u, err := c.oracle.Prepare(id, tick, hp.Liquidity, ts, p)
		if err != nil {
			return TradeResult{}, err
		}
		update = &u
		res.AppliedTick = u.State.LastTick
		res.MaxTickMove = u.State.CurrentMaxTickMove
		res.CapEvent = u.CapEvent
	}

	fs, err := c.fees.State(id)
	if err != nil {
		return TradeResult{}, err
	}
	if res.CapEvent != nil {
		fs = fee.ApplyCapEvent(fs, ts, p)
	}
	stepped, err := fee.StepBaseFee(fs, ts, res.MaxTickMove, p)
	switch {
	case errors.Is(err, model.ErrFrozenPolicy):
		res.BaseFeeErr = err
	case err != nil:
		return TradeResult{}, err
	default:
		fs = stepped
	}
	res.BaseFeePpm = fs.BaseFeePpm
	res.SurgeFeePpm = fee.DecayedSurge(fs, ts)
	res.EffectiveFeePpm = fee.Effective(fs, ts)

	// Accrue is the only step that can still fail; it goes first.
	if err := c.reinvest.Accrue(id, fee0, fee1); err != nil {
		return TradeResult{}, err
	}
	if update != nil {
		if err := c.oracle.Commit(*update); err != nil {
			return TradeResult{}, fmt.Errorf("commit observation: %w", err)
		}
	}
	if err := c.fees.Commit(id, fs); err != nil {
		return TradeResult{}, fmt.Errorf("commit fee state: %w", err)
	}

	if res.CapEvent != nil {
		metrics.ObserveCapEvent(*res.CapEvent)
		c.logger.Info("cap event",
			zap.String("pool", id.Hex()),
			zap.Int32("raw_tick", res.CapEvent.RawTick),
			zap.Int32("applied_tick", res.CapEvent.AppliedTick),
			zap.Uint32("magnitude", res.CapEvent.Magnitude),
			zap.Stringer("direction", res.CapEvent.Direction),
			zap.Uint32("surge_fee_ppm", res.SurgeFeePpm),
		)
	}
	metrics.SetMaxTickMove(id, res.MaxTickMove)
	metrics.SetFees(id, res.BaseFeePpm, res.SurgeFeePpm, res.EffectiveFeePpm)
	return res, nil
}
