package simulate

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func startedDriver(t *testing.T, sink *recordingSink) *Driver {
	t.Helper()
	driver := newTestDriver(t, sink)
	key, err := KeyFromMeta(testMeta, common.Address{})
	require.NoError(t, err)
	require.NoError(t, driver.Start(context.Background(), key, 0, t0, testMeta.Fee))
	return driver
}

func oneToken(sign int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(sign), big.NewInt(1_000_000_000_000_000_000))
}

func TestVolatileRunOutearnsFeeTier(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	driver := startedDriver(t, sink)

	swaps := []Swap{
		{Block: 1, Timestamp: t0, Tick: 0, Amount0: oneToken(1), Amount1: oneToken(-1)},
		{Block: 2, Timestamp: t0 + 60, Tick: 20_000, Amount0: oneToken(-1), Amount1: oneToken(1)},
		{Block: 3, Timestamp: t0 + 120, Tick: -20_000, Amount0: oneToken(1), Amount1: oneToken(-1)},
		{Block: 4, Timestamp: t0 + 180, Tick: 20_000, Amount0: oneToken(-1), Amount1: oneToken(1)},
	}
	for _, swap := range swaps {
		require.NoError(t, driver.Apply(ctx, swap))
	}
	require.NoError(t, driver.Flush(ctx))

	stats := driver.Stats()
	rev := stats.Revenue
	require.Equal(t, uint32(3000), rev.BaselineFeePpm)
	require.Equal(t, "6000000000000000", rev.Baseline0.Dec())
	require.Equal(t, "6000000000000000", rev.Baseline1.Dec())
	require.True(t, rev.Dynamic0.Gt(rev.Baseline0), "%s <= %s", rev.Dynamic0.Dec(), rev.Baseline0.Dec())
	require.True(t, rev.Dynamic1.Gt(rev.Baseline1), "%s <= %s", rev.Dynamic1.Dec(), rev.Baseline1.Dec())

	require.GreaterOrEqual(t, stats.CapEvents, 1)
	require.Len(t, stats.Caps, stats.CapEvents)
	first := stats.Caps[0]
	require.Equal(t, uint64(2), first.Block)
	require.Equal(t, t0+60, first.Timestamp)
	require.Equal(t, int32(20_000), first.RawTick)
	require.Less(t, first.AppliedTick, first.RawTick)
	require.Greater(t, first.SurgeFeePpm, uint32(0))

	require.Len(t, sink.snapshots, 5)
	require.False(t, sink.snapshots[1].CapRaised)
	require.True(t, sink.snapshots[2].CapRaised)
	last := sink.snapshots[len(sink.snapshots)-1]
	require.Equal(t, uint32(3000), last.BaselineFeePpm)
	require.Equal(t, rev.Dynamic0.Dec(), last.DynamicFees0)
	require.Equal(t, rev.Dynamic1.Dec(), last.DynamicFees1)
	require.Equal(t, rev.Baseline0.Dec(), last.BaselineFees0)
	require.Equal(t, rev.Baseline1.Dec(), last.BaselineFees1)

	// the returned stats are a copy
	dynamic0 := rev.Dynamic0.Dec()
	stats.Revenue.Dynamic0.SetUint64(0)
	stats.Caps[0].Block = 99
	require.Equal(t, dynamic0, driver.Stats().Revenue.Dynamic0.Dec())
	require.Equal(t, uint64(2), driver.Stats().Caps[0].Block)
}

func TestApplyUndoesHostSwapWhenTradeFails(t *testing.T) {
	ctx := context.Background()
	driver := startedDriver(t, &recordingSink{})

	before, err := driver.Host().ReadPool(ctx, driver.PoolID())
	require.NoError(t, err)

	swap := Swap{Block: 7, Timestamp: t0 + 30, Tick: 40, Amount0: oneToken(1), Amount1: oneToken(-1)}
	driver.Host().FailNextRead(errors.New("rpc down"))
	require.Error(t, driver.Apply(ctx, swap))

	after, err := driver.Host().ReadPool(ctx, driver.PoolID())
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Zero(t, driver.Stats().Swaps)
	require.True(t, driver.Stats().Revenue.Dynamic0.IsZero())
	ok, report := driver.Core().CheckStateConsistency(ctx, driver.PoolID())
	require.True(t, ok, "%+v", report)

	// the same swap goes through once the host recovers
	require.NoError(t, driver.Apply(ctx, swap))
	moved, err := driver.Host().ReadPool(ctx, driver.PoolID())
	require.NoError(t, err)
	require.Equal(t, int32(40), moved.Tick)
	require.Equal(t, "3000000000000000", moved.Fees0.Dec())
	require.Equal(t, 1, driver.Stats().Swaps)
}
