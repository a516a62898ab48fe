package policy

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"spotHook/internal/model"
)

// Store resolves per-pool policy overrides on top of an immutable default.
type Store struct {
	defaults PoolPolicy
	logger   *zap.Logger

	mu        sync.RWMutex
	overrides map[model.PoolID]PoolPolicy
}

func NewStore(defaults PoolPolicy, logger *zap.Logger) (*Store, error) {
	if err := Validate(defaults); err != nil {
		return nil, fmt.Errorf("default policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		defaults:  defaults.Clone(),
		logger:    logger,
		overrides: make(map[model.PoolID]PoolPolicy),
	}, nil
}

// Defaults returns the fallback policy.
func (s *Store) Defaults() PoolPolicy {
	return s.defaults.Clone()
}

// Get returns the override for id, or the default when none is set.
func (s *Store) Get(id model.PoolID) PoolPolicy {
	s.mu.RLock()
	p, ok := s.overrides[id]
	s.mu.RUnlock()
	if ok {
		return p.Clone()
	}
	return s.defaults.Clone()
}

// HasOverride reports whether id has its own policy.
func (s *Store) HasOverride(id model.PoolID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overrides[id]
	return ok
}

// Set installs an override. A frozen pool only accepts an update that
// leaves every other field unchanged and clears the freeze.
func (s *Store) Set(id model.PoolID, p PoolPolicy) error {
	if err := Validate(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.overrides[id]
	if !ok {
		current = s.defaults
	}
	if current.Frozen && !isUnfreezeOnly(current, p) {
		return fmt.Errorf("set policy %s: %w", id.Hex(), model.ErrFrozenPolicy)
	}

	s.overrides[id] = p.Clone()
	s.logger.Info("policy updated",
		zap.String("pool", id.Hex()),
		zap.Uint32("pol_share_ppm", p.PolSharePpm),
		zap.Uint32("min_cap", p.MinCap),
		zap.Uint32("max_cap", p.MaxCap),
		zap.Bool("frozen", p.Frozen),
	)
	return nil
}

// SetFrozen toggles the freeze flag of a pool's effective policy.
func (s *Store) SetFrozen(id model.PoolID, frozen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.overrides[id]
	if !ok {
		p = s.defaults.Clone()
	}
	p.Frozen = frozen
	s.overrides[id] = p
	s.logger.Info("policy freeze changed", zap.String("pool", id.Hex()), zap.Bool("frozen", frozen))
}

// Delete drops the override so the pool falls back to the default.
func (s *Store) Delete(id model.PoolID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.overrides[id]; ok && p.Frozen {
		return fmt.Errorf("delete policy %s: %w", id.Hex(), model.ErrFrozenPolicy)
	}
	delete(s.overrides, id)
	return nil
}

// Overrides returns a copy of every per-pool override.
func (s *Store) Overrides() map[model.PoolID]PoolPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.PoolID]PoolPolicy, len(s.overrides))
	for id, p := range s.overrides {
		out[id] = p.Clone()
	}
	return out
}

func isUnfreezeOnly(current, next PoolPolicy) bool {
	if next.Frozen {
		return false
	}
	unfrozen := current.Clone()
	unfrozen.Frozen = false
	return reflect.DeepEqual(unfrozen, next.Clone())
}
