package model

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolID identifies a pool. It is the keccak256 hash of the ABI-encoded PoolKey.
type PoolID = common.Hash

// DynamicFeeFlag in PoolKey.Fee marks a pool whose fee is set per swap.
const DynamicFeeFlag uint32 = 0x800000

// PoolKey is the immutable identity of a paired-asset pool.
type PoolKey struct {
	Currency0   common.Address `json:"currency0"`
	Currency1   common.Address `json:"currency1"`
	Fee         uint32         `json:"fee"`
	TickSpacing int32          `json:"tick_spacing"`
	Hooks       common.Address `json:"hooks"`
}

var (
	poolKeyArgs     abi.Arguments
	poolKeyArgsOnce sync.Once
	poolKeyArgsErr  error
)

func poolKeyArguments() (abi.Arguments, error) {
	poolKeyArgsOnce.Do(func() {
		addressType, err := abi.NewType("address", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		uint24Type, err := abi.NewType("uint24", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		int24Type, err := abi.NewType("int24", "", nil)
		if err != nil {
			poolKeyArgsErr = err
			return
		}
		poolKeyArgs = abi.Arguments{
			{Name: "currency0", Type: addressType},
			{Name: "currency1", Type: addressType},
			{Name: "fee", Type: uint24Type},
			{Name: "tickSpacing", Type: int24Type},
			{Name: "hooks", Type: addressType},
		}
	})
	return poolKeyArgs, poolKeyArgsErr
}

// Validate checks currency ordering and the raw numeric widths.
func (k PoolKey) Validate() error {
	if bytes.Compare(k.Currency0.Bytes(), k.Currency1.Bytes()) >= 0 {
		return fmt.Errorf("currencies not sorted: %s >= %s: %w", k.Currency0.Hex(), k.Currency1.Hex(), ErrRange)
	}
	if k.Fee >= 1<<24 {
		return NewRangeError("fee", k.Fee, 0, (1<<24)-1)
	}
	if k.TickSpacing <= 0 || k.TickSpacing >= 1<<15 {
		return NewRangeError("tick_spacing", k.TickSpacing, 1, (1<<15)-1)
	}
	return nil
}

// ID returns keccak256(abi.encode(key)).
func (k PoolKey) ID() (PoolID, error) {
	args, err := poolKeyArguments()
	if err != nil {
		return PoolID{}, fmt.Errorf("pool key abi: %w", err)
	}
	packed, err := args.Pack(
		k.Currency0,
		k.Currency1,
		new(big.Int).SetUint64(uint64(k.Fee)),
		big.NewInt(int64(k.TickSpacing)),
		k.Hooks,
	)
	if err != nil {
		return PoolID{}, fmt.Errorf("pack pool key: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}
