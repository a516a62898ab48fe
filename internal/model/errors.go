package model

import (
	"errors"
	"fmt"
)

// Validation errors are caller-correctable.
var (
	ErrZeroAmount          = errors.New("zero amount")
	ErrDepositTooSmall     = errors.New("deposit too small")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrRange               = errors.New("value out of range")
	ErrSlippage            = errors.New("slippage limit exceeded")
	ErrStaleObservation    = errors.New("stale observation")
	ErrInsufficientHistory = errors.New("insufficient oracle history")
	ErrUnknownPool         = errors.New("unknown pool")
	ErrPoolExists          = errors.New("pool already initialized")
)

// Consistency errors mean the ledger and the host disagree.
var (
	ErrInconsistentState    = errors.New("inconsistent state")
	ErrFailedToReadPoolData = errors.New("failed to read pool data")
	ErrOverflow             = errors.New("arithmetic overflow")
)

// Timing errors are expected outcomes of rate-limited operations.
var (
	ErrTooSoon         = errors.New("too soon")
	ErrFrozenPolicy    = errors.New("policy frozen")
	ErrBelowThreshold  = errors.New("below reinvestment threshold")
	ErrSurgeActive     = errors.New("surge fee active")
	ErrNoPoolLiquidity = errors.New("pool has no liquidity")
)

var ErrReentrancyLocked = errors.New("reentrancy locked")

// RangeError reports a policy or input value outside its allowed bounds.
type RangeError struct {
	Field string
	Value string
	Min   string
	Max   string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s=%s out of range [%s, %s]", e.Field, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrRange
}

// NewRangeError builds a RangeError from any printable bounds.
func NewRangeError(field string, value, min, max interface{}) *RangeError {
	return &RangeError{
		Field: field,
		Value: fmt.Sprint(value),
		Min:   fmt.Sprint(min),
		Max:   fmt.Sprint(max),
	}
}

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConsistency
	KindTiming
	KindReentrancy
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConsistency:
		return "consistency"
	case KindTiming:
		return "timing"
	case KindReentrancy:
		return "reentrancy"
	default:
		return "unknown"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrZeroAmount, KindValidation},
	{ErrDepositTooSmall, KindValidation},
	{ErrInsufficientShares, KindValidation},
	{ErrRange, KindValidation},
	{ErrSlippage, KindValidation},
	{ErrStaleObservation, KindValidation},
	{ErrInsufficientHistory, KindValidation},
	{ErrUnknownPool, KindValidation},
	{ErrPoolExists, KindValidation},
	{ErrInconsistentState, KindConsistency},
	{ErrFailedToReadPoolData, KindConsistency},
	{ErrOverflow, KindConsistency},
	{ErrTooSoon, KindTiming},
	{ErrFrozenPolicy, KindTiming},
	{ErrBelowThreshold, KindTiming},
	{ErrSurgeActive, KindTiming},
	{ErrNoPoolLiquidity, KindTiming},
	{ErrReentrancyLocked, KindReentrancy},
}

// KindOf classifies err. Wrapped errors are unwrapped with errors.Is.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range errorKinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}
