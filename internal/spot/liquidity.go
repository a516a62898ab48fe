package spot

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/ledger"
	"spotHook/internal/metrics"
	"spotHook/internal/model"
)

type DepositResult struct {
	Shares    *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Liquidity *uint256.Int
	// Sweep is the fee processing cycle that ran before the deposit.
	Sweep ReinvestResult
}

type WithdrawResult struct {
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Liquidity *uint256.Int
	Sweep     ReinvestResult
}

// Deposit adds full-range liquidity for account and mints shares. Queued fees
// are processed first so the share price reflects them.
func (c *Core) Deposit(ctx context.Context, id model.PoolID, account common.Address, amount0Desired, amount1Desired, minShares *uint256.Int, now uint64) (DepositResult, error) {
	key, err := c.acquire(id)
	if err != nil {
		return DepositResult{}, err
	}
	defer c.unlock(id)
	p := c.policies.Get(id)

	sweep, err := c.processQueuedFees(ctx, id, key, now, p)
	if err != nil {
		return DepositResult{}, fmt.Errorf("sweep fees: %w", err)
	}

	hp, err := c.readPool(ctx, id)
	if err != nil {
		return DepositResult{}, err
	}
	if err := c.ledger.Reconcile(id, hp); err != nil {
		return DepositResult{}, err
	}
	lower, upper, err := fullRange(key)
	if err != nil {
		return DepositResult{}, err
	}
	q, err := c.ledger.CalculateBackedDeposit(id, amount0Desired, amount1Desired, ledger.LimitsFromPolicy(p), ledger.Position{
		SqrtPriceX96: hp.SqrtPriceX96,
		SqrtLowerX96: lower,
		SqrtUpperX96: upper,
		Liquidity:    hp.Liquidity,
	})
	if err != nil {
		return DepositResult{}, err
	}
	if minShares != nil && q.Shares.Lt(minShares) {
		return DepositResult{}, fmt.Errorf("minted %s below minimum %s: %w", q.Shares.Dec(), minShares.Dec(), model.ErrSlippage)
	}
	liquidity := q.Liquidity

	err = c.host.Settle(ctx, id, model.Settlement{
		Kind:      model.SettleDeposit,
		Account:   account,
		Amount0:   q.Amount0,
		Amount1:   q.Amount1,
		Liquidity: liquidity,
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("settle deposit: %w", err)
	}
	if err := c.ledger.ApplyDeposit(id, account, q); err != nil {
		c.logger.Error("deposit settled but ledger rejected it",
			zap.String("pool", id.Hex()),
			zap.String("account", account.Hex()),
			zap.Error(err),
		)
		return DepositResult{}, fmt.Errorf("apply deposit: %w: %v", model.ErrInconsistentState, err)
	}

	metrics.IncLiquidityOp(id, "deposit")
	c.logger.Info("deposit",
		zap.String("pool", id.Hex()),
		zap.String("account", account.Hex()),
		zap.String("shares", q.Shares.Dec()),
		zap.String("locked", q.Locked.Dec()),
		zap.String("amount0", q.Amount0.Dec()),
		zap.String("amount1", q.Amount1.Dec()),
	)
	return DepositResult{
		Shares:    q.Shares,
		Amount0:   q.Amount0,
		Amount1:   q.Amount1,
		Liquidity: liquidity,
		Sweep:     sweep,
	}, nil
}

// Withdraw burns sharesToBurn of account's shares and pays out the
// proportional slice of the position.
func (c *Core) Withdraw(ctx context.Context, id model.PoolID, account common.Address, sharesToBurn, minAmount0, minAmount1 *uint256.Int, now uint64) (WithdrawResult, error) {
	key, err := c.acquire(id)
	if err != nil {
		return WithdrawResult{}, err
	}
	defer c.unlock(id)
	p := c.policies.Get(id)

	sweep, err := c.processQueuedFees(ctx, id, key, now, p)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("sweep fees: %w", err)
	}

	hp, err := c.readPool(ctx, id)
	if err != nil {
		return WithdrawResult{}, err
	}
	if err := c.ledger.Reconcile(id, hp); err != nil {
		return WithdrawResult{}, err
	}
	lower, upper, err := fullRange(key)
	if err != nil {
		return WithdrawResult{}, err
	}
	q, err := c.ledger.CalculateWithdrawAmounts(id, account, sharesToBurn, ledger.Position{
		SqrtPriceX96: hp.SqrtPriceX96,
		SqrtLowerX96: lower,
		SqrtUpperX96: upper,
		Liquidity:    hp.Liquidity,
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	if (minAmount0 != nil && q.Amount0.Lt(minAmount0)) || (minAmount1 != nil && q.Amount1.Lt(minAmount1)) {
		return WithdrawResult{}, fmt.Errorf("withdraw %s/%s below minimum: %w", q.Amount0.Dec(), q.Amount1.Dec(), model.ErrSlippage)
	}

	err = c.host.Settle(ctx, id, model.Settlement{
		Kind:      model.SettleWithdraw,
		Account:   account,
		Amount0:   q.Amount0,
		Amount1:   q.Amount1,
		Liquidity: q.Liquidity,
	})
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("settle withdraw: %w", err)
	}
	if err := c.ledger.ApplyWithdraw(id, account, q); err != nil {
		c.logger.Error("withdraw settled but ledger rejected it",
			zap.String("pool", id.Hex()),
			zap.String("account", account.Hex()),
			zap.Error(err),
		)
		return WithdrawResult{}, fmt.Errorf("apply withdraw: %w: %v", model.ErrInconsistentState, err)
	}

	metrics.IncLiquidityOp(id, "withdraw")
	c.logger.Info("withdraw",
		zap.String("pool", id.Hex()),
		zap.String("account", account.Hex()),
		zap.String("shares", q.Shares.Dec()),
		zap.String("amount0", q.Amount0.Dec()),
		zap.String("amount1", q.Amount1.Dec()),
	)
	return WithdrawResult{
		Amount0:   q.Amount0,
		Amount1:   q.Amount1,
		Liquidity: q.Liquidity,
		Sweep:     sweep,
	}, nil
}
