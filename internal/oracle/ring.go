package oracle

import (
	"fmt"
	"sort"

	"spotHook/internal/model"
)

// Ring is a bounded, append-only sequence of observations. Capacity grows one
// slot per write until limit, after which the oldest entry is overwritten.
type Ring struct {
	obs   []model.OracleObservation
	index int
	limit int
}

// NewRing seeds a ring with its first observation.
func NewRing(limit uint16, first model.OracleObservation) *Ring {
	if limit == 0 {
		limit = 1
	}
	obs := make([]model.OracleObservation, 1, min(int(limit), 64))
	obs[0] = first
	return &Ring{obs: obs, limit: int(limit)}
}

// Len is the number of populated slots (the cardinality).
func (r *Ring) Len() int {
	return len(r.obs)
}

// Index is the slot holding the latest observation.
func (r *Ring) Index() int {
	return r.index
}

// Limit is the maximum cardinality.
func (r *Ring) Limit() int {
	return r.limit
}

// SetLimit raises the maximum cardinality. Lowering it below the current
// cardinality has no effect on retained history.
func (r *Ring) SetLimit(limit uint16) {
	if int(limit) > r.limit {
		r.limit = int(limit)
	}
}

func (r *Ring) Latest() model.OracleObservation {
	return r.obs[r.index]
}

func (r *Ring) Oldest() model.OracleObservation {
	return r.at(0)
}

// at returns the i-th observation in chronological order.
func (r *Ring) at(i int) model.OracleObservation {
	return r.obs[(r.index+1+i)%len(r.obs)]
}

// Write appends o. The slice only grows while the latest entry sits in the
// last slot, which keeps chronological order intact.
func (r *Ring) Write(o model.OracleObservation) error {
	if latest := r.Latest(); o.Timestamp <= latest.Timestamp {
		return fmt.Errorf("write at %d after %d: %w", o.Timestamp, latest.Timestamp, model.ErrStaleObservation)
	}
	if r.index == len(r.obs)-1 && len(r.obs) < r.limit {
		r.obs = append(r.obs, o)
		r.index = len(r.obs) - 1
		return nil
	}
	r.index = (r.index + 1) % len(r.obs)
	r.obs[r.index] = o
	return nil
}

// Snapshot returns the observations oldest first.
func (r *Ring) Snapshot() []model.OracleObservation {
	out := make([]model.OracleObservation, len(r.obs))
	for i := range out {
		out[i] = r.at(i)
	}
	return out
}

// TickCumulativeAt returns the tick cumulative at t. Between observations the
// value is interpolated; past the latest one it is extrapolated with lastTick.
func (r *Ring) TickCumulativeAt(t uint64, lastTick int32) (int64, error) {
	latest := r.Latest()
	if t >= latest.Timestamp {
		return latest.TickCumulative + int64(lastTick)*int64(t-latest.Timestamp), nil
	}

	oldest := r.Oldest()
	if t < oldest.Timestamp {
		return 0, fmt.Errorf("observe %d before oldest %d: %w", t, oldest.Timestamp, model.ErrInsufficientHistory)
	}

	n := len(r.obs)
	// first chronological position whose timestamp is > t; it exists because t < latest.
	next := sort.Search(n, func(i int) bool { return r.at(i).Timestamp > t })
	before := r.at(next - 1)
	if before.Timestamp == t {
		return before.TickCumulative, nil
	}
	after := r.at(next)
	span := int64(after.Timestamp - before.Timestamp)
	tick := (after.TickCumulative - before.TickCumulative) / span
	return before.TickCumulative + tick*int64(t-before.Timestamp), nil
}
