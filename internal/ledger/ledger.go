package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

// Ledger tracks pool shares and the reserve-equivalents backing them. It is
// the only component that reconciles reserves against the host.
type Ledger struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[model.PoolID]*model.LedgerState
}

func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger: logger,
		pools:  make(map[model.PoolID]*model.LedgerState),
	}
}

// Position is the host's full-range position of a pool at the current price.
type Position struct {
	SqrtPriceX96 *uint256.Int
	SqrtLowerX96 *uint256.Int
	SqrtUpperX96 *uint256.Int
	Liquidity    *uint256.Int
}

// DepositQuote is the outcome of deposit math. Shares go to the depositor,
// Locked is added to the permanently locked balance.
type DepositQuote struct {
	Shares    *uint256.Int
	Locked    *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
	// Liquidity is set by QuoteBacked: the position liquidity Amount0/1 buy.
	Liquidity *uint256.Int
}

// Minted is Shares plus Locked.
func (q DepositQuote) Minted() *uint256.Int {
	return new(uint256.Int).Add(q.Shares, q.Locked)
}

// WithdrawQuote is the outcome of withdraw math.
type WithdrawQuote struct {
	Shares    *uint256.Int
	Liquidity *uint256.Int
	Amount0   *uint256.Int
	Amount1   *uint256.Int
}

// Initialize creates an empty ledger record for a pool.
func (l *Ledger) Initialize(id model.PoolID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pools[id]; ok {
		return fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrPoolExists)
	}
	l.pools[id] = model.NewLedgerState()
	return nil
}

// State returns a deep copy of the pool's ledger record.
func (l *Ledger) State(id model.PoolID) (*model.LedgerState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.pools[id]
	if !ok {
		return nil, fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return s.Clone(), nil
}

// SharesOf returns the share balance of account.
func (l *Ledger) SharesOf(id model.PoolID, account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.pools[id]
	if !ok {
		return nil, fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	if shares, ok := s.Accounts[account]; ok {
		return new(uint256.Int).Set(shares), nil
	}
	return new(uint256.Int), nil
}

// Reconcile replaces the stored reserves with the host-reported ones. It
// fails closed when shares and reserves contradict each other.
func (l *Ledger) Reconcile(id model.PoolID, host model.HostPool) error {
	if host.Reserve0 == nil || host.Reserve1 == nil {
		return fmt.Errorf("reconcile %s: missing reserves: %w", id.Hex(), model.ErrFailedToReadPoolData)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	if err := CheckReserves(s.TotalShares, host.Reserve0, host.Reserve1); err != nil {
		l.logger.Warn("ledger reconcile failed",
			zap.String("pool", id.Hex()),
			zap.String("total_shares", s.TotalShares.Dec()),
			zap.String("reserve0", host.Reserve0.Dec()),
			zap.String("reserve1", host.Reserve1.Dec()),
		)
		return fmt.Errorf("reconcile %s: %w", id.Hex(), err)
	}
	s.Reserve0 = new(uint256.Int).Set(host.Reserve0)
	s.Reserve1 = new(uint256.Int).Set(host.Reserve1)
	return nil
}

// CalculateDepositAmounts quotes a deposit against the stored reserves.
func (l *Ledger) CalculateDepositAmounts(id model.PoolID, amount0Desired, amount1Desired *uint256.Int, limits Limits) (DepositQuote, error) {
	s, err := l.State(id)
	if err != nil {
		return DepositQuote{}, err
	}
	return QuoteDeposit(s, amount0Desired, amount1Desired, limits)
}

// CalculateBackedDeposit is CalculateDepositAmounts limited to what the
// position can hold at pos's price.
func (l *Ledger) CalculateBackedDeposit(id model.PoolID, amount0Desired, amount1Desired *uint256.Int, limits Limits, pos Position) (DepositQuote, error) {
	s, err := l.State(id)
	if err != nil {
		return DepositQuote{}, err
	}
	return QuoteBacked(s, amount0Desired, amount1Desired, limits, pos)
}

// CalculateWithdrawAmounts quotes burning sharesToBurn of account's shares.
func (l *Ledger) CalculateWithdrawAmounts(id model.PoolID, account common.Address, sharesToBurn *uint256.Int, pos Position) (WithdrawQuote, error) {
	s, err := l.State(id)
	if err != nil {
		return WithdrawQuote{}, err
	}
	return QuoteWithdraw(s, account, sharesToBurn, pos)
}

// ApplyDeposit credits a quoted deposit to account.
func (l *Ledger) ApplyDeposit(id model.PoolID, account common.Address, q DepositQuote) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return applyDeposit(s, account, q)
}

func applyDeposit(s *model.LedgerState, account common.Address, q DepositQuote) error {
	total, err := pricemath.Add(s.TotalShares, q.Minted())
	if err != nil {
		return err
	}
	locked, err := pricemath.Add(s.LockedShares, q.Locked)
	if err != nil {
		return err
	}
	balance := s.Accounts[account]
	if balance == nil {
		balance = new(uint256.Int)
	}
	balance, err = pricemath.Add(balance, q.Shares)
	if err != nil {
		return err
	}
	reserve0, err := pricemath.Add(s.Reserve0, q.Amount0)
	if err != nil {
		return err
	}
	reserve1, err := pricemath.Add(s.Reserve1, q.Amount1)
	if err != nil {
		return err
	}

	s.TotalShares = total
	s.LockedShares = locked
	s.Reserve0 = reserve0
	s.Reserve1 = reserve1
	if !balance.IsZero() {
		s.Accounts[account] = balance
	}
	return nil
}

// ApplyReinvest credits donated amounts to the reserves of existing shares
// and then applies q to account, as one update.
func (l *Ledger) ApplyReinvest(id model.PoolID, account common.Address, donate0, donate1 *uint256.Int, q DepositQuote) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}

	staged := s.Clone()
	var err error
	if donate0 != nil {
		if staged.Reserve0, err = pricemath.Add(staged.Reserve0, donate0); err != nil {
			return err
		}
	}
	if donate1 != nil {
		if staged.Reserve1, err = pricemath.Add(staged.Reserve1, donate1); err != nil {
			return err
		}
	}
	if err := applyDeposit(staged, account, q); err != nil {
		return err
	}
	l.pools[id] = staged
	return nil
}

// ApplyWithdraw debits a quoted withdrawal from account.
func (l *Ledger) ApplyWithdraw(id model.PoolID, account common.Address, q WithdrawQuote) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pools[id]
	if !ok {
		return fmt.Errorf("ledger %s: %w", id.Hex(), model.ErrUnknownPool)
	}

	balance := s.Accounts[account]
	if balance == nil || balance.Lt(q.Shares) {
		return fmt.Errorf("withdraw %s: %w", account.Hex(), model.ErrInsufficientShares)
	}
	total, err := pricemath.Sub(s.TotalShares, q.Shares)
	if err != nil {
		return fmt.Errorf("withdraw total shares: %w", model.ErrInconsistentState)
	}
	reserve0, err := pricemath.Sub(s.Reserve0, q.Amount0)
	if err != nil {
		return fmt.Errorf("withdraw reserve0: %w", model.ErrInconsistentState)
	}
	reserve1, err := pricemath.Sub(s.Reserve1, q.Amount1)
	if err != nil {
		return fmt.Errorf("withdraw reserve1: %w", model.ErrInconsistentState)
	}

	s.TotalShares = total
	s.Reserve0 = reserve0
	s.Reserve1 = reserve1
	remaining := new(uint256.Int).Sub(balance, q.Shares)
	if remaining.IsZero() {
		delete(s.Accounts, account)
	} else {
		s.Accounts[account] = remaining
	}
	return nil
}

// CheckInvariant verifies totalShares == lockedShares + sum of balances.
func (l *Ledger) CheckInvariant(id model.PoolID) error {
	s, err := l.State(id)
	if err != nil {
		return err
	}
	return checkShareSum(s)
}

func checkShareSum(s *model.LedgerState) error {
	sum := new(uint256.Int).Set(s.LockedShares)
	for _, shares := range s.Accounts {
		var err error
		sum, err = pricemath.Add(sum, shares)
		if err != nil {
			return err
		}
	}
	if !sum.Eq(s.TotalShares) {
		return fmt.Errorf("total shares %s != locked plus accounts %s: %w", s.TotalShares.Dec(), sum.Dec(), model.ErrInconsistentState)
	}
	return nil
}

// CheckReserves enforces that reserves are empty exactly when there are no shares.
func CheckReserves(totalShares, reserve0, reserve1 *uint256.Int) error {
	bothZero := reserve0.IsZero() && reserve1.IsZero()
	if !totalShares.IsZero() && bothZero {
		return fmt.Errorf("%s shares with empty reserves: %w", totalShares.Dec(), model.ErrInconsistentState)
	}
	if totalShares.IsZero() && !bothZero {
		return fmt.Errorf("reserves %s/%s without shares: %w", reserve0.Dec(), reserve1.Dec(), model.ErrInconsistentState)
	}
	return nil
}
