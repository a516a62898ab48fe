package simulate

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"spotHook/internal/model"
)

var ppmDenominator = big.NewInt(1_000_000)

// Swap is one market trade fed into the shadow pool.
type Swap struct {
	Block     uint64
	LogIndex  uint64
	Timestamp uint64
	Tick      int32
	Amount0   *big.Int
	Amount1   *big.Int
}

// SwapFromRecord converts a typed-events JSONL record. Non-swap records
// return ok == false.
func SwapFromRecord(record model.TypedEventRecord) (Swap, bool, error) {
	data, ok, err := record.Swap()
	if err != nil || !ok {
		return Swap{}, ok, err
	}
	swap, err := SwapFromEvent(data, record.BlockNumber, record.LogIndex, record.Timestamp)
	return swap, true, err
}

// SwapFromEvent converts a decoded Swap payload.
func SwapFromEvent(data model.SwapEventData, block, logIndex, ts uint64) (Swap, error) {
	amount0, err := parseBigInt(data.Amount0)
	if err != nil {
		return Swap{}, err
	}
	amount1, err := parseBigInt(data.Amount1)
	if err != nil {
		return Swap{}, err
	}
	return Swap{
		Block:     block,
		LogIndex:  logIndex,
		Timestamp: ts,
		Tick:      data.Tick,
		Amount0:   amount0,
		Amount1:   amount1,
	}, nil
}

// Fees charges feePpm on the input side of the swap. Amounts are signed
// from the pool's view, so the input is the positive leg.
func (s Swap) Fees(feePpm uint32) (fee0, fee1 *uint256.Int, err error) {
	fee0, fee1 = new(uint256.Int), new(uint256.Int)
	switch {
	case s.Amount0 != nil && s.Amount1 != nil && s.Amount0.Sign() < 0 && s.Amount1.Sign() > 0:
		fee1, err = feeFromAmount(s.Amount1, feePpm)
	case s.Amount0 != nil && s.Amount1 != nil && s.Amount1.Sign() < 0 && s.Amount0.Sign() > 0:
		fee0, err = feeFromAmount(s.Amount0, feePpm)
	}
	return fee0, fee1, err
}

// KeyFromMeta builds the dynamic-fee pool key that shadows a V3 pool.
func KeyFromMeta(meta model.PoolMeta, hooks common.Address) (model.PoolKey, error) {
	if !common.IsHexAddress(meta.Token0) || !common.IsHexAddress(meta.Token1) {
		return model.PoolKey{}, fmt.Errorf("pool meta tokens %q/%q: %w", meta.Token0, meta.Token1, model.ErrRange)
	}
	c0, c1 := common.HexToAddress(meta.Token0), common.HexToAddress(meta.Token1)
	if bytes.Compare(c0.Bytes(), c1.Bytes()) > 0 {
		c0, c1 = c1, c0
	}
	key := model.PoolKey{
		Currency0:   c0,
		Currency1:   c1,
		Fee:         model.DynamicFeeFlag,
		TickSpacing: meta.TickSpacing,
		Hooks:       hooks,
	}
	if err := key.Validate(); err != nil {
		return model.PoolKey{}, err
	}
	return key, nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}

func feeFromAmount(amountIn *big.Int, feePpm uint32) (*uint256.Int, error) {
	if amountIn == nil {
		return new(uint256.Int), nil
	}
	fee := new(big.Int).Abs(amountIn)
	fee.Mul(fee, big.NewInt(int64(feePpm)))
	fee.Div(fee, ppmDenominator)
	out, overflow := uint256.FromBig(fee)
	if overflow {
		return nil, fmt.Errorf("fee %s: %w", fee.String(), model.ErrOverflow)
	}
	return out, nil
}
