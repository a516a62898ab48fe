package pricemath

import (
	"fmt"

	"github.com/holiman/uint256"

	"spotHook/internal/model"
)

// Amount0Delta returns liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB) in Q96, rounded down.
func Amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.IsZero() {
		return nil, model.NewRangeError("sqrt_price", "0", MinSqrtRatio.Dec(), MaxSqrtRatio.Dec())
	}
	numerator1 := new(uint256.Int).Lsh(liquidity, 96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)
	scaled, err := MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, sqrtA), nil
}

// Amount1Delta returns liquidity * (sqrtB - sqrtA) / Q96, rounded down.
func Amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	return MulDiv(liquidity, new(uint256.Int).Sub(sqrtB, sqrtA), Q96)
}

// AmountsForLiquidity returns the token amounts represented by liquidity in
// [sqrtA, sqrtB] at the current price sqrtP.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	if liquidity.Gt(maxUint128) {
		return nil, nil, fmt.Errorf("liquidity exceeds uint128: %w", model.ErrOverflow)
	}
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	amount0 := new(uint256.Int)
	amount1 := new(uint256.Int)
	var err error
	switch {
	case !sqrtP.Gt(sqrtA):
		amount0, err = Amount0Delta(sqrtA, sqrtB, liquidity)
	case sqrtP.Lt(sqrtB):
		amount0, err = Amount0Delta(sqrtP, sqrtB, liquidity)
		if err == nil {
			amount1, err = Amount1Delta(sqrtA, sqrtP, liquidity)
		}
	default:
		amount1, err = Amount1Delta(sqrtA, sqrtB, liquidity)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	intermediate, err := MulDiv(sqrtA, sqrtB, Q96)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	return MulDiv(amount1, Q96, new(uint256.Int).Sub(sqrtB, sqrtA))
}

// LiquidityForAmounts returns the largest liquidity that amount0 and amount1
// can back in [sqrtA, sqrtB] at the current price sqrtP.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtA.Gt(sqrtB) {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtA.Eq(sqrtB) {
		return nil, model.NewRangeError("sqrt_range", sqrtA.Dec(), "lower < upper", sqrtB.Dec())
	}

	var (
		liquidity *uint256.Int
		err       error
	)
	switch {
	case !sqrtP.Gt(sqrtA):
		liquidity, err = liquidityForAmount0(sqrtA, sqrtB, amount0)
	case sqrtP.Lt(sqrtB):
		var liq0, liq1 *uint256.Int
		liq0, err = liquidityForAmount0(sqrtP, sqrtB, amount0)
		if err != nil {
			return nil, err
		}
		liq1, err = liquidityForAmount1(sqrtA, sqrtP, amount1)
		if err != nil {
			return nil, err
		}
		liquidity = Min(liq0, liq1)
	default:
		liquidity, err = liquidityForAmount1(sqrtA, sqrtB, amount1)
	}
	if err != nil {
		return nil, err
	}
	if liquidity.Gt(maxUint128) {
		return nil, fmt.Errorf("liquidity exceeds uint128: %w", model.ErrOverflow)
	}
	return liquidity, nil
}

// BackedAmounts returns the liquidity amount0 and amount1 can back and the
// token amounts that liquidity holds, rounded down. The returned amounts
// never exceed the inputs; the difference cannot be held by the position.
func BackedAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 *uint256.Int) (liquidity, used0, used1 *uint256.Int, err error) {
	liquidity, err = LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1)
	if err != nil {
		return nil, nil, nil, err
	}
	used0, used1, err = AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity)
	if err != nil {
		return nil, nil, nil, err
	}
	return liquidity, Min(used0, amount0), Min(used1, amount1), nil
}
