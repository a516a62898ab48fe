package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/storage"
)

const (
	t0       uint64 = 1_700_000_000
	poolAddr        = "0x00000000000000000000000000000000000000AA"
)

var (
	testMeta = model.PoolMeta{
		Token0:      "0x0000000000000000000000000000000000001000",
		Token1:      "0x0000000000000000000000000000000000002000",
		Fee:         3000,
		TickSpacing: 60,
	}
	thousandTokens = uint256.MustFromDecimal("1000000000000000000000")
)

type recordingSink struct {
	snapshots []model.PoolSnapshot
	batches   int
}

func (r *recordingSink) PutSnapshots(_ context.Context, snapshots []model.PoolSnapshot) error {
	r.snapshots = append(r.snapshots, snapshots...)
	r.batches++
	return nil
}

func newTestDriver(t *testing.T, sink storage.SnapshotSink) *Driver {
	t.Helper()
	store, err := policy.NewStore(policy.Default(), nil)
	require.NoError(t, err)
	return NewDriver(Config{
		RunID:        "test-run",
		Initial0:     thousandTokens,
		Initial1:     thousandTokens,
		ProcessEvery: 3600,
		BatchSize:    2,
	}, store, sink, nil)
}

func amount(t *testing.T, value string) string {
	t.Helper()
	_, ok := new(big.Int).SetString(value, 10)
	require.True(t, ok, value)
	return value
}

func swapLine(t *testing.T, address string, ts uint64, tick int32, amount0, amount1 string) string {
	t.Helper()
	decoded, err := json.Marshal(model.SwapEventData{
		Amount0: amount(t, amount0),
		Amount1: amount(t, amount1),
		Tick:    tick,
	})
	require.NoError(t, err)
	return recordLine(t, model.TypedEventRecord{
		BlockNumber: ts - t0 + 1,
		Address:     address,
		EventName:   "Swap",
		Timestamp:   ts,
		Decoded:     decoded,
		PoolMeta:    testMeta,
	})
}

func recordLine(t *testing.T, record model.TypedEventRecord) string {
	t.Helper()
	line, err := json.Marshal(record)
	require.NoError(t, err)
	return string(line)
}

func replayInput(t *testing.T) string {
	t.Helper()
	lines := []string{
		swapLine(t, poolAddr, t0-100, 0, "1", "-1"),
		swapLine(t, poolAddr, t0, 0, "5000000000000000000000", "-4990000000000000000000"),
		`{not json`,
		recordLine(t, model.TypedEventRecord{Address: poolAddr, EventName: "Mint", Timestamp: t0 + 10, Decoded: json.RawMessage(`{}`)}),
		swapLine(t, "0x00000000000000000000000000000000000000BB", t0+20, 7, "10", "-10"),
		swapLine(t, poolAddr, t0+60, 1, "-4990000000000000000000", "5000000000000000000000"),
		"",
		swapLine(t, poolAddr, t0+3600, 2, "1000000000000000000", "-999000000000000000"),
		swapLine(t, poolAddr, t0+3700, 500, "-1000000000000000000", "1001000000000000000"),
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestReplayDrivesShadowPool(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	driver := newTestDriver(t, sink)
	state := &storage.FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}

	replayer := NewReplayer(ReplayConfig{Pool: strings.ToLower(poolAddr), From: t0, State: state}, driver, nil)
	stats, err := replayer.Replay(ctx, strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	require.Equal(t, 8, stats.Total)
	require.Equal(t, 4, stats.Applied)
	require.Equal(t, 3, stats.Skipped)
	require.Equal(t, 1, stats.Failed)
	require.Equal(t, t0+3700, stats.LastTs)

	ds := driver.Stats()
	require.Equal(t, 4, ds.Swaps)
	require.Equal(t, 1, ds.CapEvents)
	require.Equal(t, 1, ds.CapEpisodes)
	require.Equal(t, 1, ds.Reinvestments)
	require.Equal(t, 5, ds.Snapshots)

	require.Len(t, sink.snapshots, 5)
	require.Equal(t, 3, sink.batches)
	for i, snap := range sink.snapshots {
		require.Equal(t, uint64(i+1), snap.Seq)
		require.Equal(t, "test-run", snap.RunID)
		require.Equal(t, driver.PoolID().Hex(), snap.PoolID)
	}
	last := sink.snapshots[len(sink.snapshots)-1]
	require.True(t, last.CapEvent)
	require.Greater(t, last.SurgeFeePpm, uint32(0))

	protocol, err := driver.Core().SharesOf(driver.PoolID(), driver.Core().ProtocolAccount())
	require.NoError(t, err)
	require.False(t, protocol.IsZero())
	ok, report := driver.Core().CheckStateConsistency(ctx, driver.PoolID())
	require.True(t, ok, "%+v", report)

	saved, found, err := state.Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, t0+3700, saved)
}

func TestReplayResumesFromState(t *testing.T) {
	ctx := context.Background()
	state := &storage.FileStateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	require.NoError(t, state.Save(ctx, t0+3600))

	sink := &recordingSink{}
	driver := newTestDriver(t, sink)
	stats, err := NewReplayer(ReplayConfig{State: state}, driver, nil).Replay(ctx, strings.NewReader(replayInput(t)))
	require.NoError(t, err)

	// only the CAP swap is newer than the saved timestamp
	require.Equal(t, 1, stats.Applied)
	require.True(t, driver.Started())
	require.Equal(t, 1, driver.Stats().Swaps)
	require.Len(t, sink.snapshots, 2)

	saved, _, err := state.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, t0+3700, saved)

	// a second pass finds nothing new and leaves the state alone
	driver = newTestDriver(t, sink)
	stats, err = NewReplayer(ReplayConfig{State: state}, driver, nil).Replay(ctx, strings.NewReader(replayInput(t)))
	require.NoError(t, err)
	require.Zero(t, stats.Applied)
	require.False(t, driver.Started())
	saved, _, err = state.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, t0+3700, saved)
}

func TestReplayStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	driver := newTestDriver(t, nil)
	_, err := NewReplayer(ReplayConfig{}, driver, nil).Replay(ctx, bytes.NewBufferString(replayInput(t)))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDriverLifecycle(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	driver := newTestDriver(t, sink)

	err := driver.Apply(ctx, Swap{Timestamp: t0})
	require.ErrorIs(t, err, model.ErrUnknownPool)

	key, err := KeyFromMeta(testMeta, common.Address{})
	require.NoError(t, err)
	require.NoError(t, driver.Start(ctx, key, 0, t0, testMeta.Fee))
	require.ErrorIs(t, driver.Start(ctx, key, 0, t0, testMeta.Fee), model.ErrPoolExists)
	require.NotEmpty(t, driver.RunID())

	shares, err := driver.Core().SharesOf(driver.PoolID(), DefaultProvider)
	require.NoError(t, err)
	require.False(t, shares.IsZero())

	require.NoError(t, driver.Apply(ctx, Swap{Timestamp: t0 + 10, Tick: 3, Amount0: big.NewInt(1000), Amount1: big.NewInt(-990)}))
	// older swaps are counted and dropped
	require.NoError(t, driver.Apply(ctx, Swap{Timestamp: t0 + 5, Tick: 4, Amount0: big.NewInt(1000), Amount1: big.NewInt(-990)}))
	require.Equal(t, 1, driver.Stats().Swaps)
	require.Equal(t, 1, driver.Stats().Skipped)

	require.NoError(t, driver.Flush(ctx))
	require.Len(t, sink.snapshots, 2)
	require.Equal(t, int32(3), sink.snapshots[1].Tick)

	pending, err := driver.Core().PendingFees(driver.PoolID())
	require.NoError(t, err)
	require.Equal(t, uint64(3), pending.Queued0.Uint64())
}
