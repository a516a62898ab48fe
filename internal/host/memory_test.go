package host

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

var (
	testPool = common.HexToHash("0x06")
	alice    = common.HexToAddress("0xa11ce")
)

func TestSettleIsAtomic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.CreatePool(testPool, 0, 60))
	require.NoError(t, m.Fund(testPool, alice, uint256.NewInt(100), uint256.NewInt(100)))

	err := m.Settle(ctx, testPool,
		model.Settlement{Kind: model.SettleDeposit, Account: alice, Amount0: uint256.NewInt(60), Amount1: uint256.NewInt(60), Liquidity: uint256.NewInt(60)},
		model.Settlement{Kind: model.SettleDeposit, Account: alice, Amount0: uint256.NewInt(60), Amount1: uint256.NewInt(60), Liquidity: uint256.NewInt(60)},
	)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	a0, a1, err := m.Balance(testPool, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(100), a0.Uint64())
	require.Equal(t, uint64(100), a1.Uint64())

	hp, err := m.ReadPool(ctx, testPool)
	require.NoError(t, err)
	require.True(t, hp.Liquidity.IsZero())
	require.True(t, hp.Reserve0.IsZero())
	require.Zero(t, m.Settlements())
}

func TestSwapRepricesPositionAndCollectsFees(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.CreatePool(testPool, 0, 60))

	amount := uint256.NewInt(1_000_000_000)
	require.NoError(t, m.Fund(testPool, alice, amount, amount))
	lower, upper, err := pricemath.FullRange(60)
	require.NoError(t, err)
	liquidity, err := pricemath.LiquidityForAmounts(pricemath.Q96, lower, upper, amount, amount)
	require.NoError(t, err)
	require.NoError(t, m.Settle(ctx, testPool, model.Settlement{
		Kind: model.SettleDeposit, Account: alice, Amount0: amount, Amount1: amount, Liquidity: liquidity,
	}))

	require.NoError(t, m.ApplySwap(testPool, 1000, uint256.NewInt(30), nil))
	hp, err := m.ReadPool(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, int32(1000), hp.Tick)
	// price of token0 went up, so the position holds less token0
	require.True(t, hp.Reserve0.Lt(amount))
	require.True(t, hp.Reserve1.Gt(amount))
	require.Equal(t, uint64(30), hp.Fees0.Uint64())
	require.True(t, hp.Fees1.IsZero())

	err = m.Settle(ctx, testPool, model.Settlement{Kind: model.SettleReinvest, Amount0: uint256.NewInt(31)})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, m.Settle(ctx, testPool, model.Settlement{Kind: model.SettleDonate, Amount0: uint256.NewInt(30)}))
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.CreatePool(testPool, 0, 60))

	boom := errors.New("rpc down")
	m.FailNextRead(boom)
	_, err := m.ReadPool(ctx, testPool)
	require.ErrorIs(t, err, boom)
	_, err = m.ReadPool(ctx, testPool)
	require.NoError(t, err)

	m.FailNextSettle(boom)
	require.ErrorIs(t, m.Settle(ctx, testPool), boom)
	require.NoError(t, m.Settle(ctx, testPool))

	_, err = m.ReadPool(ctx, common.HexToHash("0x07"))
	require.ErrorIs(t, err, model.ErrUnknownPool)
}

func TestMarkRestoresPool(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.CreatePool(testPool, 0, 60))
	before, err := m.ReadPool(ctx, testPool)
	require.NoError(t, err)

	restore, err := m.Mark(testPool)
	require.NoError(t, err)
	require.NoError(t, m.ApplySwap(testPool, 120, uint256.NewInt(7), nil))
	moved, err := m.ReadPool(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, int32(120), moved.Tick)

	restore()
	after, err := m.ReadPool(ctx, testPool)
	require.NoError(t, err)
	require.Equal(t, before, after)

	_, err = m.Mark(common.HexToHash("0xdead"))
	require.ErrorIs(t, err, model.ErrUnknownPool)
}
