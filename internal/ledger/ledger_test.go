package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

var (
	testPool = common.HexToHash("0x03")
	alice    = common.HexToAddress("0xa11ce")
	bob      = common.HexToAddress("0xb0b")
	defaults = Limits{MinLockedShares: 1000, MinViableShares: 1000}
)

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func stateWith(total, r0, r1 uint64) *model.LedgerState {
	s := model.NewLedgerState()
	s.TotalShares = u(total)
	s.LockedShares = u(total)
	s.Reserve0 = u(r0)
	s.Reserve1 = u(r1)
	return s
}

func TestFirstDepositLocksBelowMinted(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Initialize(testPool))

	q, err := l.CalculateDepositAmounts(testPool, u(1000), u(1000), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), q.Minted().Uint64())
	require.Equal(t, uint64(999), q.Locked.Uint64())
	require.Equal(t, uint64(1), q.Shares.Uint64())

	require.NoError(t, l.ApplyDeposit(testPool, alice, q))
	require.NoError(t, l.CheckInvariant(testPool))

	s, err := l.State(testPool)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), s.TotalShares.Uint64())
	require.Equal(t, uint64(999), s.LockedShares.Uint64())

	shares, err := l.SharesOf(testPool, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1), shares.Uint64())
}

func TestFirstDepositLargeAmounts(t *testing.T) {
	q, err := QuoteDeposit(model.NewLedgerState(), u(4_000_000), u(1_000_000), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(2_000_000), q.Minted().Uint64())
	require.Equal(t, uint64(1000), q.Locked.Uint64())
	require.Equal(t, uint64(1_999_000), q.Shares.Uint64())
}

func TestFirstDepositFloors(t *testing.T) {
	q, err := QuoteDeposit(model.NewLedgerState(), u(1), u(1), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), q.Minted().Uint64())
	require.Equal(t, uint64(999), q.Locked.Uint64())

	_, err = QuoteDeposit(model.NewLedgerState(), u(1), u(1), Limits{MinLockedShares: 1000, MinViableShares: 1})
	require.ErrorIs(t, err, model.ErrDepositTooSmall)

	_, err = QuoteDeposit(model.NewLedgerState(), u(0), u(1000), defaults)
	require.ErrorIs(t, err, model.ErrZeroAmount)
}

func TestProportionalDeposit(t *testing.T) {
	s := stateWith(1000, 1000, 2000)

	q, err := QuoteDeposit(s, u(100), u(500), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(100), q.Shares.Uint64())
	require.Equal(t, uint64(100), q.Amount0.Uint64())
	require.Equal(t, uint64(200), q.Amount1.Uint64())
	require.True(t, q.Locked.IsZero())

	q, err = QuoteDeposit(s, u(500), u(100), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(50), q.Shares.Uint64())
	require.Equal(t, uint64(50), q.Amount0.Uint64())
	require.Equal(t, uint64(100), q.Amount1.Uint64())
}

func TestProportionalDepositNeverExceedsDesired(t *testing.T) {
	s := stateWith(3, 7, 11)
	q, err := QuoteDeposit(s, u(10), u(16), defaults)
	require.NoError(t, err)
	require.False(t, q.Amount0.Gt(u(10)))
	require.False(t, q.Amount1.Gt(u(16)))
}

func TestOneSidedReserveDeposit(t *testing.T) {
	s := stateWith(1000, 500, 0)

	q, err := QuoteDeposit(s, u(100), u(0), defaults)
	require.NoError(t, err)
	require.Equal(t, uint64(200), q.Shares.Uint64())
	require.Equal(t, uint64(100), q.Amount0.Uint64())
	require.True(t, q.Amount1.IsZero())

	q, err = QuoteDeposit(s, u(100), u(100), defaults)
	require.NoError(t, err)
	require.True(t, q.Amount1.IsZero())

	_, err = QuoteDeposit(s, u(0), u(100), defaults)
	require.ErrorIs(t, err, model.ErrZeroAmount)
}

func TestDepositInconsistentAndDust(t *testing.T) {
	_, err := QuoteDeposit(stateWith(1000, 0, 0), u(10), u(10), defaults)
	require.ErrorIs(t, err, model.ErrInconsistentState)
	require.Equal(t, model.KindConsistency, model.KindOf(err))

	big := u(1_000_000_000_000_000_000)
	_, err = QuoteDeposit(stateWith(1000, big.Uint64(), big.Uint64()), u(1), u(1), defaults)
	require.ErrorIs(t, err, model.ErrDepositTooSmall)

	_, err = QuoteDeposit(stateWith(1000, 10, 10), u(0), u(0), defaults)
	require.ErrorIs(t, err, model.ErrZeroAmount)
}

func TestReconcileFailsClosed(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Initialize(testPool))

	err := l.Reconcile(testPool, model.HostPool{})
	require.ErrorIs(t, err, model.ErrFailedToReadPoolData)

	require.NoError(t, l.ApplyDeposit(testPool, alice, DepositQuote{
		Shares: u(1), Locked: u(999), Amount0: u(1000), Amount1: u(1000),
	}))
	err = l.Reconcile(testPool, model.HostPool{Reserve0: u(0), Reserve1: u(0)})
	require.ErrorIs(t, err, model.ErrInconsistentState)

	require.NoError(t, l.Reconcile(testPool, model.HostPool{Reserve0: u(1200), Reserve1: u(900)}))
	s, err := l.State(testPool)
	require.NoError(t, err)
	require.Equal(t, uint64(1200), s.Reserve0.Uint64())
	require.Equal(t, uint64(900), s.Reserve1.Uint64())
}

func TestWithdrawInsufficientShares(t *testing.T) {
	s := stateWith(1000, 1000, 1000)
	s.LockedShares = u(990)
	s.Accounts[alice] = u(10)

	pos := Position{SqrtPriceX96: pricemath.Q96, Liquidity: u(1000)}
	pos.SqrtLowerX96, pos.SqrtUpperX96, _ = pricemath.FullRange(60)

	_, err := QuoteWithdraw(s, alice, u(11), pos)
	require.ErrorIs(t, err, model.ErrInsufficientShares)
	_, err = QuoteWithdraw(s, bob, u(1), pos)
	require.ErrorIs(t, err, model.ErrInsufficientShares)
	_, err = QuoteWithdraw(s, alice, u(0), pos)
	require.ErrorIs(t, err, model.ErrZeroAmount)
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Initialize(testPool))

	amount := u(1_000_000_000_000_000_000)
	q, err := l.CalculateDepositAmounts(testPool, amount, amount, defaults)
	require.NoError(t, err)
	require.NoError(t, l.ApplyDeposit(testPool, alice, q))

	lower, upper, err := pricemath.FullRange(60)
	require.NoError(t, err)
	liquidity, err := pricemath.LiquidityForAmounts(pricemath.Q96, lower, upper, amount, amount)
	require.NoError(t, err)
	pos := Position{SqrtPriceX96: pricemath.Q96, SqrtLowerX96: lower, SqrtUpperX96: upper, Liquidity: liquidity}

	w, err := l.CalculateWithdrawAmounts(testPool, alice, q.Shares, pos)
	require.NoError(t, err)
	require.NoError(t, l.ApplyWithdraw(testPool, alice, w))
	require.NoError(t, l.CheckInvariant(testPool))

	// expected: amount minus the locked fraction, within rounding
	expected := new(uint256.Int).Sub(amount, q.Locked)
	tolerance := u(10)
	for _, got := range []*uint256.Int{w.Amount0, w.Amount1} {
		require.False(t, got.Gt(expected))
		require.False(t, new(uint256.Int).Sub(expected, got).Gt(tolerance), "got %s want ~%s", got.Dec(), expected.Dec())
	}

	s, err := l.State(testPool)
	require.NoError(t, err)
	require.Equal(t, q.Locked.Dec(), s.TotalShares.Dec())
	require.Empty(t, s.Accounts)
}
