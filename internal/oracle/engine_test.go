package oracle

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
	"spotHook/internal/policy"
)

var testPool = common.HexToHash("0x01")

func testPolicy() policy.PoolPolicy {
	p := policy.Default()
	p.DefaultMaxTickMove = 100
	p.MinCap = 10
	p.MaxCap = 1000
	return p
}

func newTestEngine(t *testing.T, tick int32, ts uint64, p policy.PoolPolicy) *Engine {
	t.Helper()
	e := NewEngine(nil)
	require.NoError(t, e.Initialize(testPool, tick, ts, p))
	return e
}

func TestRecordObservationCapsLargeJump(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	u, err := e.RecordObservation(testPool, 500, uint256.NewInt(1), 1001, p)
	require.NoError(t, err)
	require.NotNil(t, u.CapEvent)
	require.Equal(t, int32(100), u.CapEvent.AppliedTick)
	require.Equal(t, uint32(100), u.CapEvent.Magnitude)
	require.Equal(t, model.CapUp, u.CapEvent.Direction)
	require.Equal(t, int32(500), u.CapEvent.RawTick)

	state, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, int32(100), state.LastTick)

	u, err = e.RecordObservation(testPool, -5000, uint256.NewInt(1), 1002, p)
	require.NoError(t, err)
	require.NotNil(t, u.CapEvent)
	require.Equal(t, model.CapDown, u.CapEvent.Direction)
	require.Equal(t, int32(100)-int32(u.PrevMaxTickMove), u.CapEvent.AppliedTick)
}

func TestRecordObservationWithinCap(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	u, err := e.RecordObservation(testPool, 60, uint256.NewInt(1), 1010, p)
	require.NoError(t, err)
	require.Nil(t, u.CapEvent)
	require.Equal(t, int32(60), u.State.LastTick)
}

func TestRecordObservationStale(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	_, err := e.RecordObservation(testPool, 1, nil, 1000, p)
	require.ErrorIs(t, err, model.ErrStaleObservation)
	_, err = e.RecordObservation(testPool, 1, nil, 999, p)
	require.ErrorIs(t, err, model.ErrStaleObservation)

	_, err = e.RecordObservation(common.HexToHash("0xdead"), 1, nil, 2000, p)
	require.ErrorIs(t, err, model.ErrUnknownPool)
}

func TestPrepareDoesNotMutate(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	_, err := e.Prepare(testPool, 500, nil, 1001, p)
	require.NoError(t, err)

	state, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, int32(0), state.LastTick)
	require.Equal(t, uint64(1000), state.LastTimestamp)
}

func TestCommitRejectsOutdatedUpdate(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	late, err := e.Prepare(testPool, 50, nil, 1020, p)
	require.NoError(t, err)
	early, err := e.Prepare(testPool, 500, nil, 1010, p)
	require.NoError(t, err)

	require.NoError(t, e.Commit(early))
	err = e.Commit(late)
	require.ErrorIs(t, err, model.ErrStaleObservation)

	state, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, uint64(1010), state.LastTimestamp)
	require.Equal(t, int32(100), state.LastTick)
}

func TestCapStaysWithinBounds(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1, p)
	rng := rand.New(rand.NewSource(7))

	ts := uint64(1)
	for i := 0; i < 2000; i++ {
		ts += uint64(rng.Intn(7200) + 1)
		tick := int32(rng.Intn(40001) - 20000)
		u, err := e.RecordObservation(testPool, tick, uint256.NewInt(1000), ts, p)
		require.NoError(t, err)
		require.GreaterOrEqual(t, u.State.CurrentMaxTickMove, p.MinCap)
		require.LessOrEqual(t, u.State.CurrentMaxTickMove, p.MaxCap)
	}
}

func TestCapAutoTunes(t *testing.T) {
	p := testPolicy()

	volatile := newTestEngine(t, 0, 0, p)
	for i := 1; i <= 200; i++ {
		tick := int32(50000)
		if i%2 == 0 {
			tick = -50000
		}
		_, err := volatile.RecordObservation(testPool, tick, nil, uint64(i)*3600, p)
		require.NoError(t, err)
	}
	state, err := volatile.State(testPool)
	require.NoError(t, err)
	require.Equal(t, p.MaxCap, state.CurrentMaxTickMove)

	calm := newTestEngine(t, 0, 0, p)
	for i := 1; i <= 200; i++ {
		_, err := calm.RecordObservation(testPool, int32(i%2), nil, uint64(i)*3600, p)
		require.NoError(t, err)
	}
	state, err = calm.State(testPool)
	require.NoError(t, err)
	require.Equal(t, p.MinCap, state.CurrentMaxTickMove)
}

func TestObserveTickRange(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 1000, p)

	_, err := e.RecordObservation(testPool, 10, nil, 1010, p)
	require.NoError(t, err)
	_, err = e.RecordObservation(testPool, 20, nil, 1020, p)
	require.NoError(t, err)

	cases := []struct {
		from, to uint64
		want     int32
	}{
		{1000, 1020, 5},
		{1010, 1020, 10},
		{1005, 1015, 5},
		{1020, 1030, 20},
		{1000, 1010, 0},
	}
	for _, tc := range cases {
		got, err := e.ObserveTickRange(testPool, tc.from, tc.to)
		require.NoError(t, err)
		require.Equalf(t, tc.want, got, "range [%d, %d]", tc.from, tc.to)
	}

	_, err = e.ObserveTickRange(testPool, 999, 1010)
	require.ErrorIs(t, err, model.ErrInsufficientHistory)

	_, err = e.ObserveTickRange(testPool, 1010, 1010)
	require.ErrorIs(t, err, model.ErrRange)
}

func TestObserveTickRangeRoundsDown(t *testing.T) {
	p := testPolicy()
	e := newTestEngine(t, 0, 0, p)

	_, err := e.RecordObservation(testPool, -1, nil, 10, p)
	require.NoError(t, err)
	_, err = e.RecordObservation(testPool, -2, nil, 11, p)
	require.NoError(t, err)

	got, err := e.ObserveTickRange(testPool, 9, 11)
	require.NoError(t, err)
	require.Equal(t, int32(-1), got)
}

func TestRingOverwritesOldest(t *testing.T) {
	p := testPolicy()
	p.MaxCardinality = 4
	e := newTestEngine(t, 0, 100, p)

	for i := uint64(1); i <= 9; i++ {
		_, err := e.RecordObservation(testPool, 0, nil, 100+i*10, p)
		require.NoError(t, err)
	}

	obs, err := e.Observations(testPool)
	require.NoError(t, err)
	require.Len(t, obs, 4)
	require.Equal(t, uint64(160), obs[0].Timestamp)
	require.Equal(t, uint64(190), obs[3].Timestamp)

	state, err := e.State(testPool)
	require.NoError(t, err)
	require.Equal(t, uint16(4), state.Cardinality)

	_, err = e.ObserveTickRange(testPool, 150, 190)
	require.ErrorIs(t, err, model.ErrInsufficientHistory)
	_, err = e.ObserveTickRange(testPool, 160, 190)
	require.NoError(t, err)
}

func TestRingGrowsAfterWrap(t *testing.T) {
	r := NewRing(2, model.OracleObservation{Timestamp: 1})
	require.NoError(t, r.Write(model.OracleObservation{Timestamp: 2}))
	require.NoError(t, r.Write(model.OracleObservation{Timestamp: 3}))
	require.Equal(t, 2, r.Len())

	r.SetLimit(4)
	// latest is in slot 0, so this write wraps instead of appending
	require.NoError(t, r.Write(model.OracleObservation{Timestamp: 4}))
	require.Equal(t, 2, r.Len())
	require.NoError(t, r.Write(model.OracleObservation{Timestamp: 5}))
	require.Equal(t, 3, r.Len())

	snap := r.Snapshot()
	require.Equal(t, []uint64{3, 4, 5}, []uint64{snap[0].Timestamp, snap[1].Timestamp, snap[2].Timestamp})
}
