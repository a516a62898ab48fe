package spot

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"spotHook/internal/ledger"
	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

// ConsistencyReport details CheckStateConsistency. A nil check error means
// the check passed.
type ConsistencyReport struct {
	// Err is set when the pool or the host could not be read.
	Err error
	// ShareSum checks totalShares == lockedShares + account shares.
	ShareSum error
	// Reserves checks the host reserves are empty exactly when there are no shares.
	Reserves error
	// FeesBacked checks the host holds every queued, leftover and carried fee.
	FeesBacked error
	// Backing checks the host reserves are held by the position liquidity at
	// the current price. Reserves above that would vanish on the next swap.
	Backing error

	TotalShares    *uint256.Int
	ProtocolShares *uint256.Int
	// PolTarget is LockedShares * MinPolMultiplier. Falling short of it is
	// informational and does not make the pool inconsistent.
	PolTarget    *uint256.Int
	PolTargetMet bool
}

// Consistent reports whether every check passed.
func (r ConsistencyReport) Consistent() bool {
	return r.Err == nil && r.ShareSum == nil && r.Reserves == nil && r.FeesBacked == nil && r.Backing == nil
}

// CheckStateConsistency compares the stored records of a pool with each
// other and with the host. It changes nothing.
func (c *Core) CheckStateConsistency(ctx context.Context, id model.PoolID) (bool, ConsistencyReport) {
	var report ConsistencyReport

	ls, err := c.ledger.State(id)
	if err != nil {
		report.Err = err
		return false, report
	}
	pending, err := c.reinvest.State(id)
	if err != nil {
		report.Err = err
		return false, report
	}
	hp, err := c.host.ReadPool(ctx, id)
	if err != nil {
		report.Err = fmt.Errorf("read pool %s: %w: %v", id.Hex(), model.ErrFailedToReadPoolData, err)
		return false, report
	}
	if hp.Reserve0 == nil || hp.Reserve1 == nil {
		report.Err = fmt.Errorf("read pool %s: missing reserves: %w", id.Hex(), model.ErrFailedToReadPoolData)
		return false, report
	}

	report.ShareSum = c.ledger.CheckInvariant(id)
	report.Reserves = ledger.CheckReserves(ls.TotalShares, hp.Reserve0, hp.Reserve1)
	report.FeesBacked = feesBacked(pending, hp)
	if key, err := c.Key(id); err != nil {
		report.Err = err
	} else {
		report.Backing = reservesBacked(key, hp)
	}

	report.TotalShares = ls.TotalShares
	report.ProtocolShares = new(uint256.Int)
	if shares, ok := ls.Accounts[c.protocol]; ok {
		report.ProtocolShares.Set(shares)
	}
	p := c.policies.Get(id)
	target, overflow := new(uint256.Int).MulOverflow(ls.LockedShares, uint256.NewInt(uint64(p.MinPolMultiplier)))
	if !overflow {
		report.PolTarget = target
		report.PolTargetMet = !report.ProtocolShares.Lt(target)
	}

	return report.Consistent(), report
}

func feesBacked(pending model.PendingFees, hp model.HostPool) error {
	if hp.Fees0 == nil || hp.Fees1 == nil {
		return nil
	}
	owed0, err := sum(pending.Queued0, pending.Leftover0, pending.Carry0)
	if err != nil {
		return err
	}
	owed1, err := sum(pending.Queued1, pending.Leftover1, pending.Carry1)
	if err != nil {
		return err
	}
	if owed0.Gt(hp.Fees0) || owed1.Gt(hp.Fees1) {
		return fmt.Errorf("queued fees %s/%s exceed host balances %s/%s: %w",
			owed0.Dec(), owed1.Dec(), hp.Fees0.Dec(), hp.Fees1.Dec(), model.ErrInconsistentState)
	}
	return nil
}

// unbackedDust bounds the rounding by which reserves may exceed what the
// liquidity holds between two re-pricings.
const unbackedDust = 1000

func reservesBacked(key model.PoolKey, hp model.HostPool) error {
	if hp.SqrtPriceX96 == nil || hp.Liquidity == nil {
		return nil
	}
	lower, upper, err := fullRange(key)
	if err != nil {
		return err
	}
	held0, held1, err := pricemath.AmountsForLiquidity(hp.SqrtPriceX96, lower, upper, hp.Liquidity)
	if err != nil {
		return err
	}
	limit0 := new(uint256.Int).AddUint64(held0, unbackedDust)
	limit1 := new(uint256.Int).AddUint64(held1, unbackedDust)
	if hp.Reserve0.Gt(limit0) || hp.Reserve1.Gt(limit1) {
		return fmt.Errorf("reserves %s/%s exceed %s/%s held by liquidity %s: %w",
			hp.Reserve0.Dec(), hp.Reserve1.Dec(), held0.Dec(), held1.Dec(), hp.Liquidity.Dec(), model.ErrInconsistentState)
	}
	return nil
}

func sum(values ...*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range values {
		if v == nil {
			continue
		}
		var err error
		if total, err = pricemath.Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}
