package pricemath

import (
	"fmt"

	"github.com/holiman/uint256"

	"spotHook/internal/model"
)

var errDivByZero = fmt.Errorf("division by zero: %w", model.ErrOverflow)

// MulDiv computes floor(x*y/d) with a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, errDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("muldiv %s*%s/%s: %w", x.Dec(), y.Dec(), d.Dec(), model.ErrOverflow)
	}
	return z, nil
}

// MulDivRoundingUp computes ceil(x*y/d).
func MulDivRoundingUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		if z.Eq(maxUint256) {
			return nil, fmt.Errorf("muldiv round up: %w", model.ErrOverflow)
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("add: %w", model.ErrOverflow)
	}
	return z, nil
}

// Sub returns x-y or ErrOverflow on underflow.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("sub %s-%s: %w", x.Dec(), y.Dec(), model.ErrOverflow)
	}
	return z, nil
}

// Sqrt returns floor(sqrt(x)).
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

// Min returns a copy of the smaller operand.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int).Set(x)
	}
	return new(uint256.Int).Set(y)
}

// PpmOf returns floor(amount*ppm/1e6).
func PpmOf(amount *uint256.Int, ppm uint32) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(uint64(ppm)), uint256.NewInt(1_000_000))
}

// MulDiv64 is MulDiv for uint64 operands. Results wider than 64 bits fail.
func MulDiv64(x, y, d uint64) (uint64, error) {
	z, err := MulDiv(uint256.NewInt(x), uint256.NewInt(y), uint256.NewInt(d))
	if err != nil {
		return 0, err
	}
	if !z.IsUint64() {
		return 0, fmt.Errorf("muldiv64: %w", model.ErrOverflow)
	}
	return z.Uint64(), nil
}
