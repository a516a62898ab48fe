package policy

import (
	"fmt"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

const (
	// PpmScale is 100% in parts per million.
	PpmScale uint32 = 1_000_000
	// MaxTotalFeePpm bounds base plus surge fee for every pool.
	MaxTotalFeePpm uint32 = 100_000
	// MaxPeriod bounds every configurable duration, in seconds.
	MaxPeriod uint64 = 365 * 86_400
)

// PoolPolicy holds the governable parameters of one pool.
type PoolPolicy struct {
	LpFeeSharePpm     uint32 `mapstructure:"lp-fee-share-ppm"`
	PolSharePpm       uint32 `mapstructure:"pol-share-ppm"`
	MinPolMultiplier  uint32 `mapstructure:"min-pol-multiplier"`
	TickScalingFactor uint32 `mapstructure:"tick-scaling-factor"`

	DefaultMaxTickMove uint32 `mapstructure:"default-max-tick-move"`
	MinCap             uint32 `mapstructure:"min-cap"`
	MaxCap             uint32 `mapstructure:"max-cap"`
	StepPpm            uint32 `mapstructure:"step-ppm"`
	TargetCapsPerDay   uint32 `mapstructure:"target-caps-per-day"`
	CapFreqDecayWindow uint64 `mapstructure:"cap-freq-decay-window"`
	MaxCardinality     uint16 `mapstructure:"max-cardinality"`

	DefaultBaseFeePpm     uint32 `mapstructure:"default-base-fee-ppm"`
	MinBaseFeePpm         uint32 `mapstructure:"min-base-fee-ppm"`
	MaxBaseFeePpm         uint32 `mapstructure:"max-base-fee-ppm"`
	BaseFeeStepPpm        uint32 `mapstructure:"base-fee-step-ppm"`
	BaseFeeUpdateInterval uint64 `mapstructure:"base-fee-update-interval"`
	InitialSurgeFeePpm    uint32 `mapstructure:"initial-surge-fee-ppm"`
	SurgeDecayPeriod      uint64 `mapstructure:"surge-decay-period"`

	MinCollectionInterval    uint64 `mapstructure:"min-collection-interval"`
	PauseReinvestDuringSurge bool   `mapstructure:"pause-reinvest-during-surge"`
	MinLockedShares          uint64 `mapstructure:"min-locked-shares"`
	MinViableShares          uint64 `mapstructure:"min-viable-shares"`

	SupportedTickSpacings []int32 `mapstructure:"supported-tick-spacings"`
	Frozen                bool    `mapstructure:"frozen"`
}

// Default returns the protocol default policy.
func Default() PoolPolicy {
	return PoolPolicy{
		LpFeeSharePpm:     900_000,
		PolSharePpm:       100_000,
		MinPolMultiplier:  10,
		TickScalingFactor: 10,

		DefaultMaxTickMove: 50,
		MinCap:             1,
		MaxCap:             5000,
		StepPpm:            100_000,
		TargetCapsPerDay:   4,
		CapFreqDecayWindow: 86_400,
		MaxCardinality:     1024,

		DefaultBaseFeePpm:     3000,
		MinBaseFeePpm:         100,
		MaxBaseFeePpm:         50_000,
		BaseFeeStepPpm:        5000,
		BaseFeeUpdateInterval: 3600,
		InitialSurgeFeePpm:    10_000,
		SurgeDecayPeriod:      3600,

		MinCollectionInterval:    3600,
		PauseReinvestDuringSurge: true,
		MinLockedShares:          1000,
		MinViableShares:          1000,

		SupportedTickSpacings: []int32{10, 60, 200},
	}
}

// Clone returns a copy that shares no slices with p.
func (p PoolPolicy) Clone() PoolPolicy {
	out := p
	out.SupportedTickSpacings = append([]int32(nil), p.SupportedTickSpacings...)
	return out
}

// SupportsTickSpacing reports whether spacing is allowed for new pools.
func (p PoolPolicy) SupportsTickSpacing(spacing int32) bool {
	for _, s := range p.SupportedTickSpacings {
		if s == spacing {
			return true
		}
	}
	return false
}

// ClampCap bounds a tick move to [MinCap, MaxCap].
func (p PoolPolicy) ClampCap(v uint32) uint32 {
	if v < p.MinCap {
		return p.MinCap
	}
	if v > p.MaxCap {
		return p.MaxCap
	}
	return v
}

// Validate checks every bounded field.
func Validate(p PoolPolicy) error {
	if uint64(p.LpFeeSharePpm)+uint64(p.PolSharePpm) != uint64(PpmScale) {
		return model.NewRangeError("lp-fee-share-ppm+pol-share-ppm", uint64(p.LpFeeSharePpm)+uint64(p.PolSharePpm), PpmScale, PpmScale)
	}
	if p.MinCap == 0 || p.MinCap > p.MaxCap {
		return model.NewRangeError("min-cap", p.MinCap, 1, p.MaxCap)
	}
	if p.MaxCap > uint32(pricemath.MaxTick) {
		return model.NewRangeError("max-cap", p.MaxCap, p.MinCap, pricemath.MaxTick)
	}
	if p.DefaultMaxTickMove < p.MinCap || p.DefaultMaxTickMove > p.MaxCap {
		return model.NewRangeError("default-max-tick-move", p.DefaultMaxTickMove, p.MinCap, p.MaxCap)
	}
	if p.StepPpm == 0 || p.StepPpm > PpmScale {
		return model.NewRangeError("step-ppm", p.StepPpm, 1, PpmScale)
	}
	if p.CapFreqDecayWindow == 0 || p.CapFreqDecayWindow > MaxPeriod {
		return model.NewRangeError("cap-freq-decay-window", p.CapFreqDecayWindow, 1, MaxPeriod)
	}
	if p.MaxCardinality == 0 {
		return model.NewRangeError("max-cardinality", p.MaxCardinality, 1, ^uint16(0))
	}
	if p.MaxBaseFeePpm > MaxTotalFeePpm {
		return model.NewRangeError("max-base-fee-ppm", p.MaxBaseFeePpm, p.MinBaseFeePpm, MaxTotalFeePpm)
	}
	if p.MinBaseFeePpm > p.MaxBaseFeePpm {
		return model.NewRangeError("min-base-fee-ppm", p.MinBaseFeePpm, 0, p.MaxBaseFeePpm)
	}
	if p.DefaultBaseFeePpm < p.MinBaseFeePpm || p.DefaultBaseFeePpm > p.MaxBaseFeePpm {
		return model.NewRangeError("default-base-fee-ppm", p.DefaultBaseFeePpm, p.MinBaseFeePpm, p.MaxBaseFeePpm)
	}
	if p.BaseFeeStepPpm == 0 || p.BaseFeeStepPpm > MaxTotalFeePpm {
		return model.NewRangeError("base-fee-step-ppm", p.BaseFeeStepPpm, 1, MaxTotalFeePpm)
	}
	if p.BaseFeeUpdateInterval == 0 || p.BaseFeeUpdateInterval > MaxPeriod {
		return model.NewRangeError("base-fee-update-interval", p.BaseFeeUpdateInterval, 1, MaxPeriod)
	}
	if p.MinCollectionInterval > MaxPeriod {
		return model.NewRangeError("min-collection-interval", p.MinCollectionInterval, 0, MaxPeriod)
	}
	if p.InitialSurgeFeePpm > MaxTotalFeePpm {
		return model.NewRangeError("initial-surge-fee-ppm", p.InitialSurgeFeePpm, 0, MaxTotalFeePpm)
	}
	if p.SurgeDecayPeriod == 0 || p.SurgeDecayPeriod > MaxPeriod {
		return model.NewRangeError("surge-decay-period", p.SurgeDecayPeriod, 1, MaxPeriod)
	}
	if p.MinViableShares == 0 {
		return model.NewRangeError("min-viable-shares", p.MinViableShares, 1, "inf")
	}
	if len(p.SupportedTickSpacings) == 0 {
		return fmt.Errorf("supported-tick-spacings is empty: %w", model.ErrRange)
	}
	for _, spacing := range p.SupportedTickSpacings {
		if spacing <= 0 || spacing >= 1<<15 {
			return model.NewRangeError("supported-tick-spacings", spacing, 1, (1<<15)-1)
		}
	}
	return nil
}
