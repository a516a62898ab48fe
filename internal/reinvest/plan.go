package reinvest

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"spotHook/internal/ledger"
	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
)

// ThresholdDivisor expresses the minimum reinvestment as a fraction of the
// reserves: 1/1000 is 0.1%.
const ThresholdDivisor = 1000

// Plan is the outcome of one processing cycle. When Skipped is set nothing
// moves on the host and Next is the queue to keep.
type Plan struct {
	Pool    model.PoolID
	Now     uint64
	Skipped error

	// Donate0/1 is the LP portion, paid into the position for existing shares.
	Donate0         *uint256.Int
	Donate1         *uint256.Int
	// DonateLiquidity is the liquidity Donate0/1 buy. Nil without a Position.
	DonateLiquidity *uint256.Int

	// Deposit is the POL portion converted to protocol shares.
	Deposit ledger.DepositQuote

	Next model.PendingFees
}

// Reinvests reports whether the plan moves tokens.
func (p Plan) Reinvests() bool {
	return p.Skipped == nil
}

// Cycle describes the inputs of one processing cycle.
type Cycle struct {
	Pool     model.PoolID
	Pending  model.PendingFees
	Ledger   *model.LedgerState
	Now      uint64
	InSurge  bool
	// Position prices the cycle at the host's current price. With it, only
	// amounts the position can hold are paid in: the unheld LP part is
	// carried to the next cycle and the unheld POL part stays as leftover.
	Position *ledger.Position
}

// Split divides a queued amount into the LP-retained part and the POL part.
func Split(queued *uint256.Int, polSharePpm uint32) (lp, pol *uint256.Int, err error) {
	pol, err = pricemath.MulDiv(queued, uint256.NewInt(uint64(polSharePpm)), uint256.NewInt(uint64(policy.PpmScale)))
	if err != nil {
		return nil, nil, err
	}
	lp, err = pricemath.Sub(queued, pol)
	if err != nil {
		return nil, nil, err
	}
	return lp, pol, nil
}

// Due returns ErrTooSoon until MinCollectionInterval has passed since the
// last processed cycle.
func Due(pending model.PendingFees, now uint64, p policy.PoolPolicy) error {
	if now < pending.LastProcessedTime || now-pending.LastProcessedTime < p.MinCollectionInterval {
		return fmt.Errorf("next cycle at %d: %w", pending.LastProcessedTime+p.MinCollectionInterval, model.ErrTooSoon)
	}
	return nil
}

// PlanCycle computes what processing the queue at c.Now would do. It never
// mutates its inputs. Timing outcomes are reported through Plan.Skipped;
// the returned error is reserved for arithmetic and consistency failures.
func PlanCycle(c Cycle, p policy.PoolPolicy) (Plan, error) {
	plan := Plan{Pool: c.Pool, Now: c.Now, Next: c.Pending.Clone()}

	if err := Due(c.Pending, c.Now, p); err != nil {
		plan.Skipped = err
		return plan, nil
	}
	if p.PauseReinvestDuringSurge && c.InSurge {
		plan.Skipped = model.ErrSurgeActive
		return plan, nil
	}
	if c.Ledger == nil || c.Ledger.TotalShares.IsZero() {
		plan.Skipped = model.ErrNoPoolLiquidity
		return plan, nil
	}

	lp0, pol0, err := Split(c.Pending.Queued0, p.PolSharePpm)
	if err != nil {
		return Plan{}, fmt.Errorf("split token0 fees: %w", err)
	}
	lp1, pol1, err := Split(c.Pending.Queued1, p.PolSharePpm)
	if err != nil {
		return Plan{}, fmt.Errorf("split token1 fees: %w", err)
	}
	avail0, err := pricemath.Add(pol0, c.Pending.Leftover0)
	if err != nil {
		return Plan{}, fmt.Errorf("pol token0 balance: %w", err)
	}
	avail1, err := pricemath.Add(pol1, c.Pending.Leftover1)
	if err != nil {
		return Plan{}, fmt.Errorf("pol token1 balance: %w", err)
	}

	if !significant(avail0, c.Ledger.Reserve0) && !significant(avail1, c.Ledger.Reserve1) {
		return belowThreshold(plan, c.Now), nil
	}

	lp0, err = pricemath.Add(lp0, orZero(c.Pending.Carry0))
	if err != nil {
		return Plan{}, fmt.Errorf("lp token0 balance: %w", err)
	}
	lp1, err = pricemath.Add(lp1, orZero(c.Pending.Carry1))
	if err != nil {
		return Plan{}, fmt.Errorf("lp token1 balance: %w", err)
	}
	donate0, donate1 := lp0, lp1
	var donateLiquidity *uint256.Int
	if pos := c.Position; pos != nil {
		if donateLiquidity, donate0, donate1, err = pricemath.BackedAmounts(pos.SqrtPriceX96, pos.SqrtLowerX96, pos.SqrtUpperX96, lp0, lp1); err != nil {
			return Plan{}, fmt.Errorf("donation liquidity: %w", err)
		}
	}

	// POL shares are priced after the LP portion has been credited.
	staged := c.Ledger.Clone()
	if staged.Reserve0, err = pricemath.Add(staged.Reserve0, donate0); err != nil {
		return Plan{}, err
	}
	if staged.Reserve1, err = pricemath.Add(staged.Reserve1, donate1); err != nil {
		return Plan{}, err
	}
	var quote ledger.DepositQuote
	if c.Position != nil {
		quote, err = ledger.QuoteBacked(staged, avail0, avail1, ledger.LimitsFromPolicy(p), *c.Position)
	} else {
		quote, err = ledger.QuoteDeposit(staged, avail0, avail1, ledger.LimitsFromPolicy(p))
	}
	switch {
	case errors.Is(err, model.ErrDepositTooSmall), errors.Is(err, model.ErrZeroAmount):
		return belowThreshold(plan, c.Now), nil
	case err != nil:
		return Plan{}, fmt.Errorf("quote pol deposit: %w", err)
	}

	left0, err := pricemath.Sub(avail0, quote.Amount0)
	if err != nil {
		return Plan{}, fmt.Errorf("leftover token0: %w", model.ErrInconsistentState)
	}
	left1, err := pricemath.Sub(avail1, quote.Amount1)
	if err != nil {
		return Plan{}, fmt.Errorf("leftover token1: %w", model.ErrInconsistentState)
	}
	carry0, err := pricemath.Sub(lp0, donate0)
	if err != nil {
		return Plan{}, fmt.Errorf("carry token0: %w", model.ErrInconsistentState)
	}
	carry1, err := pricemath.Sub(lp1, donate1)
	if err != nil {
		return Plan{}, fmt.Errorf("carry token1: %w", model.ErrInconsistentState)
	}

	plan.Donate0 = donate0
	plan.Donate1 = donate1
	plan.DonateLiquidity = donateLiquidity
	plan.Deposit = quote
	plan.Next = model.PendingFees{
		Queued0:           new(uint256.Int),
		Queued1:           new(uint256.Int),
		Leftover0:         left0,
		Leftover1:         left1,
		Carry0:            carry0,
		Carry1:            carry1,
		LastProcessedTime: c.Now,
	}
	return plan, nil
}

// belowThreshold keeps the queue but consumes the cycle.
func belowThreshold(plan Plan, now uint64) Plan {
	plan.Skipped = model.ErrBelowThreshold
	plan.Next.LastProcessedTime = now
	return plan
}

func significant(amount, reserve *uint256.Int) bool {
	if amount.IsZero() {
		return false
	}
	threshold := new(uint256.Int).Div(reserve, uint256.NewInt(ThresholdDivisor))
	return !amount.Lt(threshold)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
