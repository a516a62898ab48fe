package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/model"
)

// Caller performs eth_call. chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolState is the price and in-range liquidity of a V3 pool.
type PoolState struct {
	SqrtPriceX96 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int
}

// FetchPoolMeta loads the immutable pool fields.
func FetchPoolMeta(ctx context.Context, caller Caller, pool common.Address) (model.PoolMeta, error) {
	if caller == nil {
		return model.PoolMeta{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolMeta{}, fmt.Errorf("parse pool abi: %w", err)
	}

	meta := model.PoolMeta{}
	for _, method := range []string{"token0", "token1"} {
		values, err := callPoolMethod(ctx, caller, pool, poolABI, method, nil)
		if err != nil {
			return model.PoolMeta{}, err
		}
		addr, err := asAddress(values[0])
		if err != nil {
			return model.PoolMeta{}, err
		}
		if method == "token0" {
			meta.Token0 = addr.Hex()
		} else {
			meta.Token1 = addr.Hex()
		}
	}

	values, err := callPoolMethod(ctx, caller, pool, poolABI, "fee", nil)
	if err != nil {
		return model.PoolMeta{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return model.PoolMeta{}, err
	}
	meta.Fee = uint32(fee.Uint64())

	values, err = callPoolMethod(ctx, caller, pool, poolABI, "tickSpacing", nil)
	if err != nil {
		return model.PoolMeta{}, err
	}
	spacing, err := asBigInt(values[0])
	if err != nil {
		return model.PoolMeta{}, err
	}
	if meta.TickSpacing, err = int24FromBig(spacing); err != nil {
		return model.PoolMeta{}, err
	}
	return meta, nil
}

// FetchPoolState loads slot0 and liquidity at a block height. A nil block
// reads the latest state.
func FetchPoolState(ctx context.Context, caller Caller, pool common.Address, block *big.Int, logger *zap.Logger) (PoolState, error) {
	if caller == nil {
		return PoolState{}, fmt.Errorf("chain client is nil")
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callPoolMethod(ctx, caller, pool, poolABI, "slot0", block)
	if err != nil {
		return PoolState{}, err
	}
	if len(values) < 2 {
		return PoolState{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrt, err := asUint256(values[0])
	if err != nil {
		return PoolState{}, err
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return PoolState{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return PoolState{}, err
	}

	state := PoolState{SqrtPriceX96: sqrt, Tick: tick, Liquidity: new(uint256.Int)}
	if values, err := callPoolMethod(ctx, caller, pool, poolABI, "liquidity", block); err == nil {
		if liq, err := asUint256(values[0]); err == nil {
			state.Liquidity = liq
		}
	} else if logger != nil {
		logger.Debug("liquidity call failed", zap.String("pool", pool.Hex()), zap.Error(err))
	}
	return state, nil
}

func callPoolMethod(ctx context.Context, caller Caller, pool common.Address, poolABI abi.ABI, method string, block *big.Int) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint256(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s", b.String())
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s overflows 256 bits", b.String())
	}
	return out, nil
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
