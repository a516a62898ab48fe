package spot

import (
	"github.com/shopspring/decimal"

	"spotHook/internal/model"
)

var ppmPerPercent = decimal.NewFromInt(10_000)

// FeePercent renders a ppm fee as a percentage, e.g. 3000 -> "0.3".
func FeePercent(ppm uint32) string {
	return decimal.NewFromInt(int64(ppm)).Div(ppmPerPercent).String()
}

// Snapshot flattens the current records of a pool.
func (c *Core) Snapshot(id model.PoolID, now uint64) (model.PoolSnapshot, error) {
	ostate, err := c.oracle.State(id)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	base, surge, err := c.fees.GetFeeState(id, now)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	effective, err := c.fees.GetEffectiveFeePpm(id, now)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	ls, err := c.ledger.State(id)
	if err != nil {
		return model.PoolSnapshot{}, err
	}
	pending, err := c.reinvest.State(id)
	if err != nil {
		return model.PoolSnapshot{}, err
	}

	protocolShares := "0"
	if shares, ok := ls.Accounts[c.protocol]; ok {
		protocolShares = shares.Dec()
	}
	return model.PoolSnapshot{
		PoolID:          id.Hex(),
		Timestamp:       now,
		Tick:            ostate.LastTick,
		MaxTickMove:     ostate.CurrentMaxTickMove,
		CapEvent:        surge > 0,
		BaseFeePpm:      base,
		SurgeFeePpm:     surge,
		EffectiveFeePpm: effective,
		EffectiveFeePct: FeePercent(effective),
		TotalShares:     ls.TotalShares.Dec(),
		LockedShares:    ls.LockedShares.Dec(),
		ProtocolShares:  protocolShares,
		Reserve0:        ls.Reserve0.Dec(),
		Reserve1:        ls.Reserve1.Dec(),
		Queued0:         pending.Queued0.Dec(),
		Queued1:         pending.Queued1.Dec(),
		Leftover0:       pending.Leftover0.Dec(),
		Leftover1:       pending.Leftover1.Dec(),
		Carry0:          pending.Carry0.Dec(),
		Carry1:          pending.Carry1.Dec(),
	}, nil
}
