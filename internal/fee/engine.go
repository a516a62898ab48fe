package fee

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/policy"
)

// Engine keeps the two-layer fee state of every pool: a slowly stepped base
// fee and a surge fee that decays linearly after each CAP event.
type Engine struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[model.PoolID]model.FeeState
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		pools:  make(map[model.PoolID]model.FeeState),
	}
}

// Initialize creates the fee record of a pool at the default base fee.
func (e *Engine) Initialize(id model.PoolID, ts uint64, p policy.PoolPolicy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pools[id]; ok {
		return fmt.Errorf("fee state %s: %w", id.Hex(), model.ErrPoolExists)
	}
	e.pools[id] = model.FeeState{
		BaseFeePpm:        p.DefaultBaseFeePpm,
		LastBaseFeeUpdate: ts,
	}
	return nil
}

// State returns the stored fee record.
func (e *Engine) State(id model.PoolID) (model.FeeState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.pools[id]
	if !ok {
		return model.FeeState{}, fmt.Errorf("fee state %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return s, nil
}

// Commit replaces the stored fee record of an initialized pool.
func (e *Engine) Commit(id model.PoolID, s model.FeeState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pools[id]; !ok {
		return fmt.Errorf("fee state %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	e.pools[id] = s
	return nil
}

// OnCapEvent resets the surge fee of a pool.
func (e *Engine) OnCapEvent(id model.PoolID, now uint64, p policy.PoolPolicy) error {
	s, err := e.State(id)
	if err != nil {
		return err
	}
	if err := e.Commit(id, ApplyCapEvent(s, now, p)); err != nil {
		return err
	}
	e.logger.Debug("surge fee reset", zap.String("pool", id.Hex()), zap.Uint64("now", now))
	return nil
}

// UpdateBaseFee runs one step of the base fee loop and returns the new base fee.
func (e *Engine) UpdateBaseFee(id model.PoolID, now uint64, maxTickMove uint32, p policy.PoolPolicy) (uint32, error) {
	s, err := e.State(id)
	if err != nil {
		return 0, err
	}
	next, err := StepBaseFee(s, now, maxTickMove, p)
	if err != nil {
		return s.BaseFeePpm, err
	}
	if err := e.Commit(id, next); err != nil {
		return 0, err
	}
	return next.BaseFeePpm, nil
}

func (e *Engine) DecayedSurgeFeePpm(id model.PoolID, now uint64) (uint32, error) {
	s, err := e.State(id)
	if err != nil {
		return 0, err
	}
	return DecayedSurge(s, now), nil
}

// GetEffectiveFeePpm returns the fee to charge on a trade at now.
func (e *Engine) GetEffectiveFeePpm(id model.PoolID, now uint64) (uint32, error) {
	s, err := e.State(id)
	if err != nil {
		return 0, err
	}
	return Effective(s, now), nil
}

// GetFeeState returns the base fee and the decayed surge fee at now.
func (e *Engine) GetFeeState(id model.PoolID, now uint64) (uint32, uint32, error) {
	s, err := e.State(id)
	if err != nil {
		return 0, 0, err
	}
	return s.BaseFeePpm, DecayedSurge(s, now), nil
}

// InCap reports whether a surge fee is still decaying at now.
func (e *Engine) InCap(id model.PoolID, now uint64) (bool, error) {
	surge, err := e.DecayedSurgeFeePpm(id, now)
	if err != nil {
		return false, err
	}
	return surge > 0, nil
}
