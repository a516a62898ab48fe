package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"spotHook/internal/model"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
)

// Limits are the first-deposit share floors.
type Limits struct {
	MinLockedShares uint64
	MinViableShares uint64
}

// LimitsFromPolicy extracts the share floors of a pool policy.
func LimitsFromPolicy(p policy.PoolPolicy) Limits {
	return Limits{
		MinLockedShares: p.MinLockedShares,
		MinViableShares: p.MinViableShares,
	}
}

// QuoteDeposit converts desired amounts into shares against s.
func QuoteDeposit(s *model.LedgerState, amount0Desired, amount1Desired *uint256.Int, limits Limits) (DepositQuote, error) {
	if amount0Desired == nil {
		amount0Desired = new(uint256.Int)
	}
	if amount1Desired == nil {
		amount1Desired = new(uint256.Int)
	}

	if s.TotalShares.IsZero() {
		return quoteFirstDeposit(amount0Desired, amount1Desired, limits)
	}

	r0, r1, total := s.Reserve0, s.Reserve1, s.TotalShares
	switch {
	case r0.IsZero() && r1.IsZero():
		return DepositQuote{}, fmt.Errorf("%s shares with empty reserves: %w", total.Dec(), model.ErrInconsistentState)
	case r0.IsZero():
		return quoteOneSided(amount1Desired, r1, total, false)
	case r1.IsZero():
		return quoteOneSided(amount0Desired, r0, total, true)
	}

	if amount0Desired.IsZero() && amount1Desired.IsZero() {
		return DepositQuote{}, model.ErrZeroAmount
	}

	share0, err := pricemath.MulDiv(amount0Desired, total, r0)
	if err != nil {
		return DepositQuote{}, err
	}
	share1, err := pricemath.MulDiv(amount1Desired, total, r1)
	if err != nil {
		return DepositQuote{}, err
	}

	q := DepositQuote{Locked: new(uint256.Int)}
	if !share0.Gt(share1) {
		q.Shares = share0
		q.Amount0 = new(uint256.Int).Set(amount0Desired)
		derived, err := pricemath.MulDivRoundingUp(share0, r1, total)
		if err != nil {
			return DepositQuote{}, err
		}
		q.Amount1 = pricemath.Min(derived, amount1Desired)
	} else {
		q.Shares = share1
		q.Amount1 = new(uint256.Int).Set(amount1Desired)
		derived, err := pricemath.MulDivRoundingUp(share1, r0, total)
		if err != nil {
			return DepositQuote{}, err
		}
		q.Amount0 = pricemath.Min(derived, amount0Desired)
	}

	if q.Shares.IsZero() {
		return DepositQuote{}, model.ErrDepositTooSmall
	}
	return q, nil
}

// QuoteBacked quotes a deposit whose amounts the position can hold in full
// at pos's price. The position only keeps amounts at the pool ratio, so the
// quote is redone on the backed amounts whenever the first one is off-ratio.
// The depositor pays the backed amounts, which never price below the shares.
func QuoteBacked(s *model.LedgerState, amount0Desired, amount1Desired *uint256.Int, limits Limits, pos Position) (DepositQuote, error) {
	q, err := QuoteDeposit(s, amount0Desired, amount1Desired, limits)
	if err != nil {
		return DepositQuote{}, err
	}
	liquidity, used0, used1, err := pricemath.BackedAmounts(pos.SqrtPriceX96, pos.SqrtLowerX96, pos.SqrtUpperX96, q.Amount0, q.Amount1)
	if err != nil {
		return DepositQuote{}, err
	}
	if liquidity.IsZero() {
		return DepositQuote{}, fmt.Errorf("deposit backs no liquidity: %w", model.ErrDepositTooSmall)
	}
	if !used0.Eq(q.Amount0) || !used1.Eq(q.Amount1) {
		if q, err = QuoteDeposit(s, used0, used1, limits); err != nil {
			return DepositQuote{}, err
		}
	}
	q.Amount0, q.Amount1, q.Liquidity = used0, used1, liquidity
	return q, nil
}

func quoteFirstDeposit(amount0, amount1 *uint256.Int, limits Limits) (DepositQuote, error) {
	if amount0.IsZero() || amount1.IsZero() {
		return DepositQuote{}, model.ErrZeroAmount
	}
	product, overflow := new(uint256.Int).MulOverflow(amount0, amount1)
	if overflow {
		return DepositQuote{}, fmt.Errorf("first deposit product: %w", model.ErrOverflow)
	}
	minted := pricemath.Sqrt(product)
	if floor := uint256.NewInt(limits.MinViableShares); minted.Lt(floor) {
		minted = floor
	}

	// The lock never reaches the minted amount; if that leaves nothing to
	// lock, the deposit is refused instead of skipping the lock.
	locked := uint256.NewInt(limits.MinLockedShares)
	if limits.MinLockedShares > 0 {
		ceiling := new(uint256.Int).SubUint64(minted, 1)
		if minted.IsZero() {
			ceiling.Clear()
		}
		locked = pricemath.Min(locked, ceiling)
		if locked.IsZero() {
			return DepositQuote{}, model.ErrDepositTooSmall
		}
	}

	return DepositQuote{
		Shares:  new(uint256.Int).Sub(minted, locked),
		Locked:  locked,
		Amount0: new(uint256.Int).Set(amount0),
		Amount1: new(uint256.Int).Set(amount1),
	}, nil
}

func quoteOneSided(amount, reserve, total *uint256.Int, isToken0 bool) (DepositQuote, error) {
	if amount.IsZero() {
		return DepositQuote{}, model.ErrZeroAmount
	}
	shares, err := pricemath.MulDiv(amount, total, reserve)
	if err != nil {
		return DepositQuote{}, err
	}
	if shares.IsZero() {
		return DepositQuote{}, model.ErrDepositTooSmall
	}
	q := DepositQuote{
		Shares:  shares,
		Locked:  new(uint256.Int),
		Amount0: new(uint256.Int),
		Amount1: new(uint256.Int),
	}
	if isToken0 {
		q.Amount0.Set(amount)
	} else {
		q.Amount1.Set(amount)
	}
	return q, nil
}

// QuoteWithdraw converts burned shares into the proportional slice of the
// position's liquidity and prices it at the current sqrt price.
func QuoteWithdraw(s *model.LedgerState, account common.Address, sharesToBurn *uint256.Int, pos Position) (WithdrawQuote, error) {
	if sharesToBurn == nil || sharesToBurn.IsZero() {
		return WithdrawQuote{}, model.ErrZeroAmount
	}
	balance := s.Accounts[account]
	if balance == nil || balance.Lt(sharesToBurn) {
		have := "0"
		if balance != nil {
			have = balance.Dec()
		}
		return WithdrawQuote{}, fmt.Errorf("burn %s with balance %s: %w", sharesToBurn.Dec(), have, model.ErrInsufficientShares)
	}
	if s.TotalShares.IsZero() || sharesToBurn.Gt(s.TotalShares) {
		return WithdrawQuote{}, fmt.Errorf("burn %s of %s total: %w", sharesToBurn.Dec(), s.TotalShares.Dec(), model.ErrInconsistentState)
	}

	liquidity, err := pricemath.MulDiv(pos.Liquidity, sharesToBurn, s.TotalShares)
	if err != nil {
		return WithdrawQuote{}, err
	}
	amount0, amount1, err := pricemath.AmountsForLiquidity(pos.SqrtPriceX96, pos.SqrtLowerX96, pos.SqrtUpperX96, liquidity)
	if err != nil {
		return WithdrawQuote{}, err
	}
	if amount0.Gt(s.Reserve0) || amount1.Gt(s.Reserve1) {
		return WithdrawQuote{}, fmt.Errorf("withdraw %s/%s exceeds reserves %s/%s: %w",
			amount0.Dec(), amount1.Dec(), s.Reserve0.Dec(), s.Reserve1.Dec(), model.ErrInconsistentState)
	}

	return WithdrawQuote{
		Shares:    new(uint256.Int).Set(sharesToBurn),
		Liquidity: liquidity,
		Amount0:   amount0,
		Amount1:   amount1,
	}, nil
}
