package spot

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/ledger"
	"spotHook/internal/metrics"
	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/reinvest"
)

// ReinvestResult is the outcome of one fee processing cycle. Skipped carries
// ErrTooSoon, ErrSurgeActive, ErrBelowThreshold or ErrNoPoolLiquidity when
// the cycle did not reinvest; these are results, not failures.
type ReinvestResult struct {
	Skipped   error
	Shares    *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Donated0  *uint256.Int
	Donated1  *uint256.Int
	Leftover0 *uint256.Int
	Leftover1 *uint256.Int
	// Carry0/1 is LP fee the position could not hold yet; it stays queued
	// for the next cycle.
	Carry0    *uint256.Int
	Carry1    *uint256.Int
}

// Reinvested reports whether the cycle minted protocol shares.
func (r ReinvestResult) Reinvested() bool {
	return r.Skipped == nil
}

// ProcessQueuedFees runs a fee processing cycle. Anyone may call it.
func (c *Core) ProcessQueuedFees(ctx context.Context, id model.PoolID, now uint64) (ReinvestResult, error) {
	key, err := c.acquire(id)
	if err != nil {
		return ReinvestResult{}, err
	}
	defer c.unlock(id)
	return c.processQueuedFees(ctx, id, key, now, c.policies.Get(id))
}

func (c *Core) processQueuedFees(ctx context.Context, id model.PoolID, key model.PoolKey, now uint64, p policy.PoolPolicy) (ReinvestResult, error) {
	pending, err := c.reinvest.State(id)
	if err != nil {
		return ReinvestResult{}, err
	}
	if err := reinvest.Due(pending, now, p); err != nil {
		metrics.ObserveReinvestment(id, err, 0)
		return ReinvestResult{Skipped: err}, nil
	}

	inSurge, err := c.fees.InCap(id, now)
	if err != nil {
		return ReinvestResult{}, err
	}
	hp, err := c.readPool(ctx, id)
	if err != nil {
		return ReinvestResult{}, err
	}
	if err := c.ledger.Reconcile(id, hp); err != nil {
		return ReinvestResult{}, err
	}
	ls, err := c.ledger.State(id)
	if err != nil {
		return ReinvestResult{}, err
	}

	lower, upper, err := fullRange(key)
	if err != nil {
		return ReinvestResult{}, err
	}
	plan, err := reinvest.PlanCycle(reinvest.Cycle{
		Pool:     id,
		Pending:  pending,
		Ledger:   ls,
		Now:      now,
		InSurge:  inSurge,
		Position: &ledger.Position{
			SqrtPriceX96: hp.SqrtPriceX96,
			SqrtLowerX96: lower,
			SqrtUpperX96: upper,
			Liquidity:    hp.Liquidity,
		},
	}, p)
	if err != nil {
		return ReinvestResult{}, err
	}
	if !plan.Reinvests() {
		if err := c.reinvest.Commit(id, plan); err != nil {
			return ReinvestResult{}, err
		}
		metrics.ObserveReinvestment(id, plan.Skipped, 0)
		return ReinvestResult{Skipped: plan.Skipped}, nil
	}

	legs := reinvestLegs(c.protocol, plan)
	if err := c.host.Settle(ctx, id, legs...); err != nil {
		return ReinvestResult{}, fmt.Errorf("settle reinvestment: %w", err)
	}

	// Counters are cleared only after the host moved the tokens.
	if err := c.ledger.ApplyReinvest(id, c.protocol, plan.Donate0, plan.Donate1, plan.Deposit); err != nil {
		c.logger.Error("reinvestment settled but ledger rejected it", zap.String("pool", id.Hex()), zap.Error(err))
		return ReinvestResult{}, fmt.Errorf("apply reinvestment: %w: %v", model.ErrInconsistentState, err)
	}
	if err := c.reinvest.Commit(id, plan); err != nil {
		return ReinvestResult{}, err
	}

	minted := plan.Deposit.Minted()
	metrics.ObserveReinvestment(id, nil, float64(minted.Uint64()))
	return ReinvestResult{
		Shares:    minted,
		Amount0:   plan.Deposit.Amount0,
		Amount1:   plan.Deposit.Amount1,
		Donated0:  plan.Donate0,
		Donated1:  plan.Donate1,
		Leftover0: plan.Next.Leftover0,
		Leftover1: plan.Next.Leftover1,
		Carry0:    plan.Next.Carry0,
		Carry1:    plan.Next.Carry1,
	}, nil
}

// reinvestLegs pays the planned amounts into the position. Both parts were
// priced at the host's current price, so every token paid in is held by the
// liquidity it buys.
func reinvestLegs(protocol common.Address, plan reinvest.Plan) []model.Settlement {
	var legs []model.Settlement
	if plan.DonateLiquidity != nil && !plan.DonateLiquidity.IsZero() {
		legs = append(legs, model.Settlement{
			Kind:      model.SettleDonate,
			Amount0:   plan.Donate0,
			Amount1:   plan.Donate1,
			Liquidity: plan.DonateLiquidity,
		})
	}
	return append(legs, model.Settlement{
		Kind:      model.SettleReinvest,
		Account:   protocol,
		Amount0:   plan.Deposit.Amount0,
		Amount1:   plan.Deposit.Amount1,
		Liquidity: plan.Deposit.Liquidity,
	})
}
