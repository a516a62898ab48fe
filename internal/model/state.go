package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OracleObservation is one entry of the per-pool observation ring.
type OracleObservation struct {
	Timestamp      uint64
	TickCumulative int64
	// Q128.128 seconds per unit of in-range liquidity.
	SecondsPerLiquidityCumulative *uint256.Int
}

// OracleState is the capping engine's per-pool record.
type OracleState struct {
	LastTick           int32
	LastTimestamp      uint64
	CurrentMaxTickMove uint32
	ObservationIndex   uint16
	Cardinality        uint16
	// CapFreq is a decaying count of CAP events scaled by CapFreqScale.
	CapFreq        uint64
	LastFreqUpdate uint64
}

// CapFreqScale is the CapFreq increment for a single CAP event.
const CapFreqScale uint64 = 1_000_000

// CapDirection is the sign of a clamped tick move.
type CapDirection int8

const (
	CapDown CapDirection = -1
	CapUp   CapDirection = 1
)

func (d CapDirection) String() string {
	if d < 0 {
		return "down"
	}
	return "up"
}

// CapEvent is raised when an observed tick move exceeds the current cap.
type CapEvent struct {
	Pool        PoolID       `json:"pool"`
	Timestamp   uint64       `json:"timestamp"`
	RawTick     int32        `json:"raw_tick"`
	AppliedTick int32        `json:"applied_tick"`
	Magnitude   uint32       `json:"magnitude"`
	Direction   CapDirection `json:"direction"`
}

// FeeState is the dynamic fee engine's per-pool record.
type FeeState struct {
	BaseFeePpm uint32
	// SurgeFeePpm is the surge fee at LastCapEventTime, before decay.
	SurgeFeePpm       uint32
	CapEventEndTime   uint64
	LastCapEventTime  uint64
	LastBaseFeeUpdate uint64
}

// LedgerState is the share ledger's per-pool record.
type LedgerState struct {
	TotalShares  *uint256.Int
	Reserve0     *uint256.Int
	Reserve1     *uint256.Int
	LockedShares *uint256.Int
	Accounts     map[common.Address]*uint256.Int
}

// NewLedgerState returns an empty ledger record.
func NewLedgerState() *LedgerState {
	return &LedgerState{
		TotalShares:  new(uint256.Int),
		Reserve0:     new(uint256.Int),
		Reserve1:     new(uint256.Int),
		LockedShares: new(uint256.Int),
		Accounts:     make(map[common.Address]*uint256.Int),
	}
}

// Clone deep-copies the ledger record.
func (s *LedgerState) Clone() *LedgerState {
	out := &LedgerState{
		TotalShares:  new(uint256.Int).Set(s.TotalShares),
		Reserve0:     new(uint256.Int).Set(s.Reserve0),
		Reserve1:     new(uint256.Int).Set(s.Reserve1),
		LockedShares: new(uint256.Int).Set(s.LockedShares),
		Accounts:     make(map[common.Address]*uint256.Int, len(s.Accounts)),
	}
	for account, shares := range s.Accounts {
		out.Accounts[account] = new(uint256.Int).Set(shares)
	}
	return out
}

// PendingFees is the reinvestment queue of a pool.
type PendingFees struct {
	Queued0           *uint256.Int
	Queued1           *uint256.Int
	Leftover0         *uint256.Int
	Leftover1         *uint256.Int
	// Carry0/1 is the LP portion of processed fees that the position could
	// not hold at the price of the last cycle. It is donated first next time.
	Carry0            *uint256.Int
	Carry1            *uint256.Int
	LastProcessedTime uint64
}

// NewPendingFees returns an empty queue stamped with ts.
func NewPendingFees(ts uint64) PendingFees {
	return PendingFees{
		Queued0:           new(uint256.Int),
		Queued1:           new(uint256.Int),
		Leftover0:         new(uint256.Int),
		Leftover1:         new(uint256.Int),
		Carry0:            new(uint256.Int),
		Carry1:            new(uint256.Int),
		LastProcessedTime: ts,
	}
}

// Clone deep-copies the queue.
func (p PendingFees) Clone() PendingFees {
	return PendingFees{
		Queued0:           new(uint256.Int).Set(p.Queued0),
		Queued1:           new(uint256.Int).Set(p.Queued1),
		Leftover0:         new(uint256.Int).Set(p.Leftover0),
		Leftover1:         new(uint256.Int).Set(p.Leftover1),
		Carry0:            cloneOrZero(p.Carry0),
		Carry1:            cloneOrZero(p.Carry1),
		LastProcessedTime: p.LastProcessedTime,
	}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
