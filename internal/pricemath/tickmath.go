package pricemath

import (
	"fmt"

	"github.com/holiman/uint256"

	"spotHook/internal/model"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	Q96  = uint256.MustFromHex("0x1000000000000000000000000")
	Q128 = uint256.MustFromHex("0x100000000000000000000000000000000")

	MinSqrtRatio = uint256.NewInt(4295128739)
	MaxSqrtRatio = uint256.MustFromHex("0xfffd8963efd1fc6a506488495d951d5263988d26")

	maxUint128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")
	maxUint160 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffffffffffff")
	maxUint256 = new(uint256.Int).SetAllOne()
	oneShl32   = uint256.NewInt(1 << 32)

	// ratioOdd and ratioEven seed the product; sqrtRatioFactors[i] applies
	// when bit i+1 of |tick| is set.
	ratioOdd         = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	ratioEven        = uint256.MustFromHex("0x100000000000000000000000000000000")
	sqrtRatioFactors = [19]*uint256.Int{
		uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
		uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
		uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
		uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
		uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
		uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
		uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
		uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
		uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
		uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
		uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
		uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
		uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
		uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
		uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
		uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
		uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
		uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
		uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
	}
)

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, model.NewRangeError("tick", tick, MinTick, MaxTick)
	}

	absTick := uint64(tick)
	if tick < 0 {
		absTick = uint64(-int64(tick))
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(ratioOdd)
	} else {
		ratio.Set(ratioEven)
	}
	for i, factor := range sqrtRatioFactors {
		if absTick&(uint64(1)<<(i+1)) != 0 {
			ratio.Mul(ratio, factor)
			ratio.Rsh(ratio, 128)
		}
	}
	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	roundUp := !new(uint256.Int).Mod(ratio, oneShl32).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio.And(ratio, maxUint160), nil
}

// MinUsableTick is the lowest tick aligned to spacing.
func MinUsableTick(spacing int32) int32 {
	return (MinTick / spacing) * spacing
}

// MaxUsableTick is the highest tick aligned to spacing.
func MaxUsableTick(spacing int32) int32 {
	return (MaxTick / spacing) * spacing
}

// FullRange returns the sqrt prices bounding the full-range position for spacing.
func FullRange(spacing int32) (*uint256.Int, *uint256.Int, error) {
	if spacing <= 0 {
		return nil, nil, model.NewRangeError("tick_spacing", spacing, 1, MaxTick)
	}
	lower, err := SqrtRatioAtTick(MinUsableTick(spacing))
	if err != nil {
		return nil, nil, fmt.Errorf("lower bound: %w", err)
	}
	upper, err := SqrtRatioAtTick(MaxUsableTick(spacing))
	if err != nil {
		return nil, nil, fmt.Errorf("upper bound: %w", err)
	}
	return lower, upper, nil
}

// ClampTick bounds tick to the representable range.
func ClampTick(tick int64) int32 {
	if tick < int64(MinTick) {
		return MinTick
	}
	if tick > int64(MaxTick) {
		return MaxTick
	}
	return int32(tick)
}
