package reinvest

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"spotHook/internal/ledger"
	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
)

var testPool = common.HexToHash("0x04")

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func ledgerState(total, r0, r1 uint64) *model.LedgerState {
	s := model.NewLedgerState()
	s.TotalShares = u(total)
	s.LockedShares = u(total)
	s.Reserve0 = u(r0)
	s.Reserve1 = u(r1)
	return s
}

func queued(q0, q1, ts uint64) model.PendingFees {
	p := model.NewPendingFees(ts)
	p.Queued0 = u(q0)
	p.Queued1 = u(q1)
	return p
}

func TestSplit(t *testing.T) {
	lp, pol, err := Split(u(1000), 100_000)
	require.NoError(t, err)
	require.Equal(t, uint64(900), lp.Uint64())
	require.Equal(t, uint64(100), pol.Uint64())

	lp, pol, err = Split(u(7), 100_000)
	require.NoError(t, err)
	require.Equal(t, uint64(7), lp.Uint64())
	require.True(t, pol.IsZero())
}

func TestAccrueIsCheckedAndAtomic(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.Initialize(testPool, 0))
	require.ErrorIs(t, e.Initialize(testPool, 0), model.ErrPoolExists)

	require.NoError(t, e.Accrue(testPool, u(10), u(20)))
	require.NoError(t, e.Accrue(testPool, u(5), nil))

	max := new(uint256.Int).SetAllOne()
	err := e.Accrue(testPool, u(1), max)
	require.ErrorIs(t, err, model.ErrOverflow)

	s, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, uint64(15), s.Queued0.Uint64())
	require.Equal(t, uint64(20), s.Queued1.Uint64())

	require.ErrorIs(t, e.Accrue(common.HexToHash("0xdead"), u(1), u(1)), model.ErrUnknownPool)
}

func TestPlanTooSoonChangesNothing(t *testing.T) {
	p := policy.Default()
	pending := queued(100_000, 100_000, 1000)
	plan, err := PlanCycle(Cycle{Pool: testPool, Pending: pending, Ledger: ledgerState(1000, 1000, 1000), Now: 1000 + p.MinCollectionInterval - 1}, p)
	require.NoError(t, err)
	require.ErrorIs(t, plan.Skipped, model.ErrTooSoon)
	require.False(t, plan.Reinvests())
	require.Equal(t, pending, plan.Next)
}

func TestPlanPausedDuringSurge(t *testing.T) {
	p := policy.Default()
	pending := queued(100_000, 100_000, 0)
	c := Cycle{Pool: testPool, Pending: pending, Ledger: ledgerState(1000, 1000, 1000), Now: p.MinCollectionInterval, InSurge: true}

	plan, err := PlanCycle(c, p)
	require.NoError(t, err)
	require.ErrorIs(t, plan.Skipped, model.ErrSurgeActive)
	require.Equal(t, uint64(0), plan.Next.LastProcessedTime)

	p.PauseReinvestDuringSurge = false
	plan, err = PlanCycle(c, p)
	require.NoError(t, err)
	require.True(t, plan.Reinvests())
}

func TestPlanWithoutLiquidity(t *testing.T) {
	p := policy.Default()
	plan, err := PlanCycle(Cycle{Pool: testPool, Pending: queued(10, 10, 0), Ledger: model.NewLedgerState(), Now: p.MinCollectionInterval}, p)
	require.NoError(t, err)
	require.ErrorIs(t, plan.Skipped, model.ErrNoPoolLiquidity)
}

func TestPlanBelowThresholdKeepsQueue(t *testing.T) {
	p := policy.Default()
	pending := queued(1000, 1000, 0)
	now := p.MinCollectionInterval
	plan, err := PlanCycle(Cycle{Pool: testPool, Pending: pending, Ledger: ledgerState(1_000_000_000, 1_000_000_000, 1_000_000_000), Now: now}, p)
	require.NoError(t, err)
	require.ErrorIs(t, plan.Skipped, model.ErrBelowThreshold)
	require.Equal(t, uint64(1000), plan.Next.Queued0.Uint64())
	require.Equal(t, uint64(1000), plan.Next.Queued1.Uint64())
	require.Equal(t, now, plan.Next.LastProcessedTime)
}

func TestPlanReinvestsPolAndCarriesDust(t *testing.T) {
	p := policy.Default()
	now := p.MinCollectionInterval
	c := Cycle{
		Pool:    testPool,
		Pending: queued(100_000, 50_000, 0),
		Ledger:  ledgerState(1_000_000, 1_000_000, 1_000_000),
		Now:     now,
	}

	plan, err := PlanCycle(c, p)
	require.NoError(t, err)
	require.True(t, plan.Reinvests())

	require.Equal(t, uint64(90_000), plan.Donate0.Uint64())
	require.Equal(t, uint64(45_000), plan.Donate1.Uint64())
	require.Equal(t, uint64(4784), plan.Deposit.Shares.Uint64())
	require.True(t, plan.Deposit.Locked.IsZero())
	require.Equal(t, uint64(5215), plan.Deposit.Amount0.Uint64())
	require.Equal(t, uint64(5000), plan.Deposit.Amount1.Uint64())

	require.True(t, plan.Next.Queued0.IsZero())
	require.True(t, plan.Next.Queued1.IsZero())
	require.Equal(t, uint64(4785), plan.Next.Leftover0.Uint64())
	require.True(t, plan.Next.Leftover1.IsZero())
	require.Equal(t, now, plan.Next.LastProcessedTime)

	// inputs are untouched
	require.Equal(t, uint64(100_000), c.Pending.Queued0.Uint64())
	require.Equal(t, uint64(1_000_000), c.Ledger.Reserve0.Uint64())

	e := NewEngine(nil)
	require.NoError(t, e.Initialize(testPool, 0))
	require.NoError(t, e.Accrue(testPool, u(100_000), u(50_000)))
	require.NoError(t, e.Commit(testPool, plan))
	s, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, plan.Next, s)
}

func fullRangeAtTickZero(t *testing.T) *ledger.Position {
	t.Helper()
	lower, upper, err := pricemath.FullRange(60)
	require.NoError(t, err)
	return &ledger.Position{SqrtPriceX96: pricemath.Q96, SqrtLowerX96: lower, SqrtUpperX96: upper}
}

func TestPlanCarriesUnheldDonation(t *testing.T) {
	p := policy.Default()
	now := p.MinCollectionInterval
	c := Cycle{
		Pool:     testPool,
		Pending:  queued(100_000, 10_000, 0),
		Ledger:   ledgerState(1_000_000, 1_000_000, 1_000_000),
		Now:      now,
		Position: fullRangeAtTickZero(t),
	}

	plan, err := PlanCycle(c, p)
	require.NoError(t, err)
	require.True(t, plan.Reinvests(), "%v", plan.Skipped)

	// at tick 0 the position only holds the token0 fee matching token1
	require.False(t, plan.Donate0.GtUint64(9_000))
	require.False(t, plan.DonateLiquidity.IsZero())
	require.Equal(t, uint64(90_000), new(uint256.Int).Add(plan.Donate0, plan.Next.Carry0).Uint64())
	require.Equal(t, uint64(9_000), new(uint256.Int).Add(plan.Donate1, plan.Next.Carry1).Uint64())
	require.Greater(t, plan.Next.Carry0.Uint64(), uint64(80_000))

	require.False(t, plan.Deposit.Liquidity.IsZero())
	require.Equal(t, uint64(10_000), new(uint256.Int).Add(plan.Deposit.Amount0, plan.Next.Leftover0).Uint64())
	require.Equal(t, uint64(1_000), new(uint256.Int).Add(plan.Deposit.Amount1, plan.Next.Leftover1).Uint64())

	// carried fees are donated first on the next cycle
	next := plan.Next.Clone()
	next.Carry0 = u(50_000)
	next.Carry1 = u(50_000)
	next.Queued0 = u(10_000)
	next.Queued1 = u(10_000)
	plan, err = PlanCycle(Cycle{
		Pool:     testPool,
		Pending:  next,
		Ledger:   ledgerState(1_000_000, 1_000_000, 1_000_000),
		Now:      now + p.MinCollectionInterval,
		Position: fullRangeAtTickZero(t),
	}, p)
	require.NoError(t, err)
	require.True(t, plan.Reinvests(), "%v", plan.Skipped)
	require.Greater(t, plan.Donate0.Uint64(), uint64(58_000))
	require.Greater(t, plan.Donate1.Uint64(), uint64(58_000))
	require.False(t, plan.Next.Carry0.GtUint64(2))
	require.False(t, plan.Next.Carry1.GtUint64(2))
}

func TestCommitRejectsForeignPlan(t *testing.T) {
	e := NewEngine(nil)
	require.NoError(t, e.Initialize(testPool, 0))
	err := e.Commit(testPool, Plan{Pool: common.HexToHash("0x05")})
	require.ErrorIs(t, err, model.ErrInconsistentState)
}
