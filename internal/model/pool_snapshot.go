package model

// PoolSnapshot is a flattened view of one pool's state after an operation.
// Large integers are encoded as decimal strings.
type PoolSnapshot struct {
	RunID           string `json:"run_id,omitempty"`
	Seq             uint64 `json:"seq"`
	PoolID          string `json:"pool_id"`
	Timestamp       uint64 `json:"timestamp"`
	Tick            int32  `json:"tick"`
	MaxTickMove     uint32 `json:"max_tick_move"`
	CapEvent        bool   `json:"cap_event"`
	BaseFeePpm      uint32 `json:"base_fee_ppm"`
	SurgeFeePpm     uint32 `json:"surge_fee_ppm"`
	EffectiveFeePpm uint32 `json:"effective_fee_ppm"`
	EffectiveFeePct string `json:"effective_fee_pct"`
	TotalShares     string `json:"total_shares"`
	LockedShares    string `json:"locked_shares"`
	ProtocolShares  string `json:"protocol_shares"`
	Reserve0        string `json:"reserve0"`
	Reserve1        string `json:"reserve1"`
	Queued0         string `json:"queued0"`
	Queued1         string `json:"queued1"`
	Leftover0       string `json:"leftover0"`
	Leftover1       string `json:"leftover1"`
	Carry0          string `json:"lp_carry0"`
	Carry1          string `json:"lp_carry1"`

	// Set by shadow runs: whether this swap raised a CAP event, and the fee
	// income so far next to the static fee tier's.
	CapRaised      bool   `json:"cap_raised,omitempty"`
	BaselineFeePpm uint32 `json:"baseline_fee_ppm,omitempty"`
	DynamicFees0   string `json:"dynamic_fees0,omitempty"`
	DynamicFees1   string `json:"dynamic_fees1,omitempty"`
	BaselineFees0  string `json:"baseline_fees0,omitempty"`
	BaselineFees1  string `json:"baseline_fees1,omitempty"`
}
