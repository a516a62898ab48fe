package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// HostPool is the host ledger's view of a pool and of the full-range position
// owned by this system.
type HostPool struct {
	Tick         int32
	SqrtPriceX96 *uint256.Int
	Liquidity    *uint256.Int
	Reserve0     *uint256.Int
	Reserve1     *uint256.Int
	// Fees0/1 are collected trade fees held by the host outside the position.
	Fees0 *uint256.Int
	Fees1 *uint256.Int
}

// SettlementKind selects what a settlement leg does on the host.
type SettlementKind int

const (
	// SettleDeposit pulls tokens from Account and adds liquidity.
	SettleDeposit SettlementKind = iota + 1
	// SettleWithdraw removes liquidity and pays tokens to Account.
	SettleWithdraw
	// SettleReinvest moves collected fees into the position as new liquidity.
	SettleReinvest
	// SettleDonate moves collected fees into the position for existing shares.
	SettleDonate
)

func (k SettlementKind) String() string {
	switch k {
	case SettleDeposit:
		return "deposit"
	case SettleWithdraw:
		return "withdraw"
	case SettleReinvest:
		return "reinvest"
	case SettleDonate:
		return "donate"
	default:
		return "unknown"
	}
}

// Settlement is one leg of a token movement executed by the host.
type Settlement struct {
	Kind      SettlementKind
	Account   common.Address
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	Liquidity *uint256.Int
}
