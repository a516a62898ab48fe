package fee

import (
	"fmt"

	"spotHook/internal/model"
	"spotHook/internal/policy"
)

// ApplyCapEvent restarts the surge window at now. Repeated events reset the
// window; they never add to the surge fee.
func ApplyCapEvent(s model.FeeState, now uint64, p policy.PoolPolicy) model.FeeState {
	surge := p.InitialSurgeFeePpm
	if headroom := policy.MaxTotalFeePpm - min(s.BaseFeePpm, policy.MaxTotalFeePpm); surge > headroom {
		surge = headroom
	}
	s.SurgeFeePpm = surge
	s.LastCapEventTime = now
	s.CapEventEndTime = now + p.SurgeDecayPeriod
	return s
}

// DecayedSurge is the surge fee at now, decaying linearly to zero at
// CapEventEndTime.
func DecayedSurge(s model.FeeState, now uint64) uint32 {
	if s.SurgeFeePpm == 0 || now >= s.CapEventEndTime {
		return 0
	}
	if now <= s.LastCapEventTime {
		return s.SurgeFeePpm
	}
	remaining := s.CapEventEndTime - now
	window := s.CapEventEndTime - s.LastCapEventTime
	return uint32(uint64(s.SurgeFeePpm) * remaining / window)
}

// Effective is min(MaxTotalFeePpm, base + decayed surge).
func Effective(s model.FeeState, now uint64) uint32 {
	total := uint64(s.BaseFeePpm) + uint64(DecayedSurge(s, now))
	if total > uint64(policy.MaxTotalFeePpm) {
		return policy.MaxTotalFeePpm
	}
	return uint32(total)
}

// TargetBaseFee maps the auto-tuned cap to a base fee within policy bounds.
// A pool that caps often has a wide cap, and so a high target.
func TargetBaseFee(maxTickMove uint32, p policy.PoolPolicy) uint32 {
	return clampFee(uint64(maxTickMove)*uint64(p.TickScalingFactor), p)
}

// StepBaseFee moves the base fee toward its target by at most BaseFeeStepPpm
// per elapsed update interval. Updates inside the interval are no-ops.
func StepBaseFee(s model.FeeState, now uint64, maxTickMove uint32, p policy.PoolPolicy) (model.FeeState, error) {
	if p.Frozen {
		return s, fmt.Errorf("base fee update: %w", model.ErrFrozenPolicy)
	}
	if now < s.LastBaseFeeUpdate || now-s.LastBaseFeeUpdate < p.BaseFeeUpdateInterval {
		return s, nil
	}

	intervals := min((now-s.LastBaseFeeUpdate)/p.BaseFeeUpdateInterval, uint64(policy.MaxTotalFeePpm))
	maxStep := intervals * uint64(p.BaseFeeStepPpm)
	current := uint64(clampFee(uint64(s.BaseFeePpm), p))
	target := uint64(TargetBaseFee(maxTickMove, p))

	switch {
	case target > current:
		current += min(target-current, maxStep)
	case target < current:
		current -= min(current-target, maxStep)
	}

	s.BaseFeePpm = uint32(current)
	s.LastBaseFeeUpdate = now
	return s, nil
}

func clampFee(v uint64, p policy.PoolPolicy) uint32 {
	if v < uint64(p.MinBaseFeePpm) {
		return p.MinBaseFeePpm
	}
	if v > uint64(p.MaxBaseFeePpm) {
		return p.MaxBaseFeePpm
	}
	return uint32(v)
}
