package simulate

import (
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/spot"
)

// CapEdge marks the start or end of a CAP episode between two observations.
type CapEdge int

const (
	NoEdge CapEdge = iota
	CapStart
	CapEnd
)

func (e CapEdge) String() string {
	switch e {
	case CapStart:
		return "start"
	case CapEnd:
		return "end"
	default:
		return "none"
	}
}

// FeeSnapshot is the fee state of a pool at one instant.
type FeeSnapshot struct {
	BasePpm  uint32
	SurgePpm uint32
	TotalPpm uint32
}

// FeeTracker observes fee state and reports CAP episode edges. A pool is in
// a CAP episode while its surge fee is positive.
type FeeTracker struct {
	core   *spot.Core
	id     model.PoolID
	logger *zap.Logger
	inCap  bool
}

func NewFeeTracker(core *spot.Core, id model.PoolID, logger *zap.Logger) *FeeTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeTracker{core: core, id: id, logger: logger}
}

// Snapshot returns base, surge and effective fee at now.
func (t *FeeTracker) Snapshot(now uint64) (FeeSnapshot, error) {
	base, surge, err := t.core.GetFeeState(t.id, now)
	if err != nil {
		return FeeSnapshot{}, err
	}
	total, err := t.core.GetEffectiveFeePpm(t.id, now)
	if err != nil {
		return FeeSnapshot{}, err
	}
	return FeeSnapshot{BasePpm: base, SurgePpm: surge, TotalPpm: total}, nil
}

// Observe logs the fee state at now and returns the CAP edge crossed since
// the previous call.
func (t *FeeTracker) Observe(now uint64) (FeeSnapshot, CapEdge, error) {
	snap, err := t.Snapshot(now)
	if err != nil {
		return FeeSnapshot{}, NoEdge, err
	}
	inCap := snap.SurgePpm > 0
	edge := NoEdge
	switch {
	case inCap && !t.inCap:
		edge = CapStart
	case !inCap && t.inCap:
		edge = CapEnd
	}
	t.inCap = inCap

	t.logger.Debug("fee state",
		zap.String("pool", t.id.Hex()),
		zap.Uint64("ts", now),
		zap.Uint32("base_fee_ppm", snap.BasePpm),
		zap.Uint32("surge_fee_ppm", snap.SurgePpm),
		zap.Uint32("total_fee_ppm", snap.TotalPpm),
	)
	if edge != NoEdge {
		t.logger.Info("cap episode",
			zap.String("pool", t.id.Hex()),
			zap.Stringer("edge", edge),
			zap.Uint64("ts", now),
			zap.Uint32("surge_fee_ppm", snap.SurgePpm),
		)
	}
	return snap, edge, nil
}
