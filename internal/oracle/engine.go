package oracle

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
)

const secondsPerDay uint64 = 86_400

type poolOracle struct {
	state model.OracleState
	ring  *Ring
}

// Engine truncates per-observation tick moves and auto-tunes the cap.
type Engine struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[model.PoolID]*poolOracle
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		pools:  make(map[model.PoolID]*poolOracle),
	}
}

// Update is the result of Prepare. Nothing is stored until Commit.
type Update struct {
	Pool            model.PoolID
	State           model.OracleState
	Observation     model.OracleObservation
	CapEvent        *model.CapEvent
	PrevMaxTickMove uint32
	Limit           uint16
	// Base is the LastTimestamp the update was prepared against.
	Base            uint64
}

// Initialize creates the oracle record of a pool.
func (e *Engine) Initialize(id model.PoolID, tick int32, ts uint64, p policy.PoolPolicy) error {
	if tick < pricemath.MinTick || tick > pricemath.MaxTick {
		return model.NewRangeError("tick", tick, pricemath.MinTick, pricemath.MaxTick)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pools[id]; ok {
		return fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrPoolExists)
	}

	ring := NewRing(p.MaxCardinality, model.OracleObservation{
		Timestamp:                     ts,
		SecondsPerLiquidityCumulative: new(uint256.Int),
	})
	e.pools[id] = &poolOracle{
		state: model.OracleState{
			LastTick:           tick,
			LastTimestamp:      ts,
			CurrentMaxTickMove: p.ClampCap(p.DefaultMaxTickMove),
			ObservationIndex:   0,
			Cardinality:        1,
			LastFreqUpdate:     ts,
		},
		ring: ring,
	}
	return nil
}

// State returns a copy of the pool's oracle state.
func (e *Engine) State(id model.PoolID) (model.OracleState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	po, ok := e.pools[id]
	if !ok {
		return model.OracleState{}, fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return po.state, nil
}

// Observations returns the retained history oldest first.
func (e *Engine) Observations(id model.PoolID) ([]model.OracleObservation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	po, ok := e.pools[id]
	if !ok {
		return nil, fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return po.ring.Snapshot(), nil
}

// Grow raises the maximum cardinality of a pool's ring.
func (e *Engine) Grow(id model.PoolID, limit uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	po, ok := e.pools[id]
	if !ok {
		return fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	po.ring.SetLimit(limit)
	return nil
}

// Prepare computes the effect of observing rawTick at ts without storing it.
func (e *Engine) Prepare(id model.PoolID, rawTick int32, liquidity *uint256.Int, ts uint64, p policy.PoolPolicy) (Update, error) {
	if rawTick < pricemath.MinTick || rawTick > pricemath.MaxTick {
		return Update{}, model.NewRangeError("tick", rawTick, pricemath.MinTick, pricemath.MaxTick)
	}

	e.mu.RLock()
	po, ok := e.pools[id]
	if !ok {
		e.mu.RUnlock()
		return Update{}, fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	state := po.state
	latest := po.ring.Latest()
	e.mu.RUnlock()

	if ts <= state.LastTimestamp {
		return Update{}, fmt.Errorf("observation at %d not after %d: %w", ts, state.LastTimestamp, model.ErrStaleObservation)
	}

	maxMove := p.ClampCap(state.CurrentMaxTickMove)
	delta := int64(rawTick) - int64(state.LastTick)
	applied := rawTick
	var capEvent *model.CapEvent
	if abs64(delta) > int64(maxMove) {
		direction := model.CapUp
		if delta < 0 {
			direction = model.CapDown
		}
		applied = pricemath.ClampTick(int64(state.LastTick) + int64(direction)*int64(maxMove))
		capEvent = &model.CapEvent{
			Pool:        id,
			Timestamp:   ts,
			RawTick:     rawTick,
			AppliedTick: applied,
			Magnitude:   maxMove,
			Direction:   direction,
		}
	}

	elapsed := ts - latest.Timestamp
	obs := model.OracleObservation{
		Timestamp:      ts,
		TickCumulative: latest.TickCumulative + int64(state.LastTick)*int64(elapsed),
	}
	spl, err := advanceSecondsPerLiquidity(latest.SecondsPerLiquidityCumulative, elapsed, liquidity)
	if err != nil {
		return Update{}, err
	}
	obs.SecondsPerLiquidityCumulative = spl

	nextCap, nextFreq, err := tuneCap(state, maxMove, capEvent != nil, ts, p)
	if err != nil {
		return Update{}, err
	}

	next := state
	next.LastTick = applied
	next.LastTimestamp = ts
	next.CurrentMaxTickMove = nextCap
	next.CapFreq = nextFreq
	next.LastFreqUpdate = ts

	return Update{
		Pool:            id,
		State:           next,
		Observation:     obs,
		CapEvent:        capEvent,
		PrevMaxTickMove: maxMove,
		Limit:           p.MaxCardinality,
		Base:            state.LastTimestamp,
	}, nil
}

// Commit stores a prepared update. It fails with ErrStaleObservation if
// another update was committed since Prepare.
func (e *Engine) Commit(u Update) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	po, ok := e.pools[u.Pool]
	if !ok {
		return fmt.Errorf("oracle %s: %w", u.Pool.Hex(), model.ErrUnknownPool)
	}
	if po.state.LastTimestamp != u.Base {
		return fmt.Errorf("update prepared at %d, pool now at %d: %w", u.Base, po.state.LastTimestamp, model.ErrStaleObservation)
	}
	po.ring.SetLimit(u.Limit)
	if err := po.ring.Write(u.Observation); err != nil {
		return err
	}
	u.State.ObservationIndex = uint16(po.ring.Index())
	u.State.Cardinality = uint16(po.ring.Len())
	po.state = u.State

	if u.CapEvent != nil {
		e.logger.Debug("tick move capped",
			zap.String("pool", u.Pool.Hex()),
			zap.Int32("raw_tick", u.CapEvent.RawTick),
			zap.Int32("applied_tick", u.CapEvent.AppliedTick),
			zap.Uint32("magnitude", u.CapEvent.Magnitude),
		)
	}
	return nil
}

// RecordObservation observes rawTick at ts and stores the result.
func (e *Engine) RecordObservation(id model.PoolID, rawTick int32, liquidity *uint256.Int, ts uint64, p policy.PoolPolicy) (Update, error) {
	u, err := e.Prepare(id, rawTick, liquidity, ts, p)
	if err != nil {
		return Update{}, err
	}
	if err := e.Commit(u); err != nil {
		return Update{}, err
	}
	return u, nil
}

// ObserveTickRange returns the time-weighted average tick over [from, to].
func (e *Engine) ObserveTickRange(id model.PoolID, from, to uint64) (int32, error) {
	if to <= from {
		return 0, model.NewRangeError("to", to, from+1, "inf")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	po, ok := e.pools[id]
	if !ok {
		return 0, fmt.Errorf("oracle %s: %w", id.Hex(), model.ErrUnknownPool)
	}

	start, err := po.ring.TickCumulativeAt(from, po.state.LastTick)
	if err != nil {
		return 0, err
	}
	end, err := po.ring.TickCumulativeAt(to, po.state.LastTick)
	if err != nil {
		return 0, err
	}

	span := int64(to - from)
	diff := end - start
	avg := diff / span
	if diff < 0 && diff%span != 0 {
		avg--
	}
	return int32(avg), nil
}

// tuneCap decays the CAP-event frequency, counts the current event, and steps
// the cap toward the policy's target event rate.
func tuneCap(state model.OracleState, current uint32, capped bool, ts uint64, p policy.PoolPolicy) (uint32, uint64, error) {
	freq := state.CapFreq
	elapsed := ts - state.LastFreqUpdate
	if elapsed >= p.CapFreqDecayWindow {
		freq = 0
	} else if elapsed > 0 {
		decay, err := pricemath.MulDiv64(freq, elapsed, p.CapFreqDecayWindow)
		if err != nil {
			return 0, 0, err
		}
		freq -= decay
	}
	if capped {
		if freq > ^uint64(0)-model.CapFreqScale {
			freq = ^uint64(0)
		} else {
			freq += model.CapFreqScale
		}
	}

	target, err := pricemath.MulDiv64(uint64(p.TargetCapsPerDay)*model.CapFreqScale, p.CapFreqDecayWindow, secondsPerDay)
	if err != nil {
		return 0, 0, err
	}

	step, err := pricemath.MulDiv64(uint64(current), uint64(p.StepPpm), uint64(policy.PpmScale))
	if err != nil {
		return 0, 0, err
	}
	if step == 0 {
		step = 1
	}

	next := uint64(current)
	switch {
	case freq > target:
		next += step
	case freq < target:
		if step >= next {
			next = 0
		} else {
			next -= step
		}
	}
	if next > uint64(p.MaxCap) {
		next = uint64(p.MaxCap)
	}
	return p.ClampCap(uint32(next)), freq, nil
}

func advanceSecondsPerLiquidity(prev *uint256.Int, elapsed uint64, liquidity *uint256.Int) (*uint256.Int, error) {
	if prev == nil {
		prev = new(uint256.Int)
	}
	denom := uint256.NewInt(1)
	if liquidity != nil && !liquidity.IsZero() {
		denom = liquidity
	}
	delta, err := pricemath.MulDiv(uint256.NewInt(elapsed), pricemath.Q128, denom)
	if err != nil {
		return nil, err
	}
	return pricemath.Add(prev, delta)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
