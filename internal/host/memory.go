package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

// ErrInsufficientBalance is returned when a settlement leg spends more than
// the paying side holds.
var ErrInsufficientBalance = errors.New("insufficient host balance")

type wallet struct {
	amount0 *uint256.Int
	amount1 *uint256.Int
}

type pool struct {
	spacing   int32
	tick      int32
	sqrtPrice *uint256.Int
	liquidity *uint256.Int
	reserve0  *uint256.Int
	reserve1  *uint256.Int
	fees0     *uint256.Int
	fees1     *uint256.Int
	wallets   map[common.Address]wallet
}

func (p *pool) clone() *pool {
	out := &pool{
		spacing:   p.spacing,
		tick:      p.tick,
		sqrtPrice: new(uint256.Int).Set(p.sqrtPrice),
		liquidity: new(uint256.Int).Set(p.liquidity),
		reserve0:  new(uint256.Int).Set(p.reserve0),
		reserve1:  new(uint256.Int).Set(p.reserve1),
		fees0:     new(uint256.Int).Set(p.fees0),
		fees1:     new(uint256.Int).Set(p.fees1),
		wallets:   make(map[common.Address]wallet, len(p.wallets)),
	}
	for account, w := range p.wallets {
		out.wallets[account] = wallet{
			amount0: new(uint256.Int).Set(w.amount0),
			amount1: new(uint256.Int).Set(w.amount1),
		}
	}
	return out
}

// Memory is an in-process host ledger. It owns pool price, the full-range
// position and account balances, and settles legs atomically.
type Memory struct {
	logger *zap.Logger

	mu          sync.Mutex
	pools       map[model.PoolID]*pool
	failRead    error
	failSettle  error
	settlements int
}

func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		logger: logger,
		pools:  make(map[model.PoolID]*pool),
	}
}

// CreatePool registers a pool at tick with an empty position.
func (m *Memory) CreatePool(id model.PoolID, tick int32, spacing int32) error {
	sqrtPrice, err := pricemath.SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[id]; ok {
		return fmt.Errorf("host pool %s: %w", id.Hex(), model.ErrPoolExists)
	}
	m.pools[id] = &pool{
		spacing:   spacing,
		tick:      tick,
		sqrtPrice: sqrtPrice,
		liquidity: new(uint256.Int),
		reserve0:  new(uint256.Int),
		reserve1:  new(uint256.Int),
		fees0:     new(uint256.Int),
		fees1:     new(uint256.Int),
		wallets:   make(map[common.Address]wallet),
	}
	return nil
}

// Fund credits tokens to account.
func (m *Memory) Fund(id model.PoolID, account common.Address, amount0, amount1 *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	w := p.walletOf(account)
	if w.amount0, err = pricemath.Add(w.amount0, amount0); err != nil {
		return err
	}
	if w.amount1, err = pricemath.Add(w.amount1, amount1); err != nil {
		return err
	}
	p.wallets[account] = w
	return nil
}

// Balance returns the token balances of account.
func (m *Memory) Balance(id model.PoolID, account common.Address) (*uint256.Int, *uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pool(id)
	if err != nil {
		return nil, nil, err
	}
	w := p.walletOf(account)
	return new(uint256.Int).Set(w.amount0), new(uint256.Int).Set(w.amount1), nil
}

// ApplySwap moves the pool to tick, re-prices the position at the new price
// and collects the trade fees.
func (m *Memory) ApplySwap(id model.PoolID, tick int32, fee0, fee1 *uint256.Int) error {
	sqrtPrice, err := pricemath.SqrtRatioAtTick(tick)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pool(id)
	if err != nil {
		return err
	}
	next := p.clone()
	next.tick = tick
	next.sqrtPrice = sqrtPrice
	if !next.liquidity.IsZero() {
		lower, upper, err := pricemath.FullRange(next.spacing)
		if err != nil {
			return err
		}
		if next.reserve0, next.reserve1, err = pricemath.AmountsForLiquidity(sqrtPrice, lower, upper, next.liquidity); err != nil {
			return err
		}
	}
	if fee0 != nil {
		if next.fees0, err = pricemath.Add(next.fees0, fee0); err != nil {
			return err
		}
	}
	if fee1 != nil {
		if next.fees1, err = pricemath.Add(next.fees1, fee1); err != nil {
			return err
		}
	}
	m.pools[id] = next
	return nil
}

// Mark captures the current state of pool id. The returned restore puts it
// back, undoing every change made since.
func (m *Memory) Mark(id model.PoolID) (restore func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.pool(id)
	if err != nil {
		return nil, err
	}
	saved := p.clone()
	return func() {
		m.mu.Lock()
		m.pools[id] = saved
		m.mu.Unlock()
	}, nil
}

// FailNextRead makes the next ReadPool return err.
func (m *Memory) FailNextRead(err error) {
	m.mu.Lock()
	m.failRead = err
	m.mu.Unlock()
}

// FailNextSettle makes the next Settle return err without applying any leg.
func (m *Memory) FailNextSettle(err error) {
	m.mu.Lock()
	m.failSettle = err
	m.mu.Unlock()
}

// Settlements counts successful Settle calls.
func (m *Memory) Settlements() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settlements
}

func (m *Memory) ReadPool(ctx context.Context, id model.PoolID) (model.HostPool, error) {
	if err := ctx.Err(); err != nil {
		return model.HostPool{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failRead; err != nil {
		m.failRead = nil
		return model.HostPool{}, err
	}
	p, err := m.pool(id)
	if err != nil {
		return model.HostPool{}, err
	}
	return model.HostPool{
		Tick:         p.tick,
		SqrtPriceX96: new(uint256.Int).Set(p.sqrtPrice),
		Liquidity:    new(uint256.Int).Set(p.liquidity),
		Reserve0:     new(uint256.Int).Set(p.reserve0),
		Reserve1:     new(uint256.Int).Set(p.reserve1),
		Fees0:        new(uint256.Int).Set(p.fees0),
		Fees1:        new(uint256.Int).Set(p.fees1),
	}, nil
}

// Settle applies every leg or none of them.
func (m *Memory) Settle(ctx context.Context, id model.PoolID, legs ...model.Settlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSettle; err != nil {
		m.failSettle = nil
		return err
	}
	p, err := m.pool(id)
	if err != nil {
		return err
	}

	next := p.clone()
	for i, leg := range legs {
		if err := next.apply(leg); err != nil {
			return fmt.Errorf("settle leg %d (%s): %w", i, leg.Kind, err)
		}
	}
	m.pools[id] = next
	m.settlements++

	m.logger.Debug("host settled",
		zap.String("pool", id.Hex()),
		zap.Int("legs", len(legs)),
		zap.String("liquidity", next.liquidity.Dec()),
	)
	return nil
}

func (m *Memory) pool(id model.PoolID) (*pool, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, fmt.Errorf("host pool %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return p, nil
}

func (p *pool) walletOf(account common.Address) wallet {
	if w, ok := p.wallets[account]; ok {
		return w
	}
	return wallet{amount0: new(uint256.Int), amount1: new(uint256.Int)}
}

func (p *pool) apply(leg model.Settlement) error {
	amount0, amount1, liquidity := orZero(leg.Amount0), orZero(leg.Amount1), orZero(leg.Liquidity)
	var err error

	switch leg.Kind {
	case model.SettleDeposit:
		w := p.walletOf(leg.Account)
		if w.amount0.Lt(amount0) || w.amount1.Lt(amount1) {
			return fmt.Errorf("account %s: %w", leg.Account.Hex(), ErrInsufficientBalance)
		}
		w.amount0 = new(uint256.Int).Sub(w.amount0, amount0)
		w.amount1 = new(uint256.Int).Sub(w.amount1, amount1)
		p.wallets[leg.Account] = w
		return p.addToPosition(amount0, amount1, liquidity)

	case model.SettleWithdraw:
		if p.reserve0.Lt(amount0) || p.reserve1.Lt(amount1) || p.liquidity.Lt(liquidity) {
			return fmt.Errorf("position: %w", ErrInsufficientBalance)
		}
		p.reserve0 = new(uint256.Int).Sub(p.reserve0, amount0)
		p.reserve1 = new(uint256.Int).Sub(p.reserve1, amount1)
		p.liquidity = new(uint256.Int).Sub(p.liquidity, liquidity)
		w := p.walletOf(leg.Account)
		if w.amount0, err = pricemath.Add(w.amount0, amount0); err != nil {
			return err
		}
		if w.amount1, err = pricemath.Add(w.amount1, amount1); err != nil {
			return err
		}
		p.wallets[leg.Account] = w
		return nil

	case model.SettleDonate, model.SettleReinvest:
		if p.fees0.Lt(amount0) || p.fees1.Lt(amount1) {
			return fmt.Errorf("collected fees: %w", ErrInsufficientBalance)
		}
		p.fees0 = new(uint256.Int).Sub(p.fees0, amount0)
		p.fees1 = new(uint256.Int).Sub(p.fees1, amount1)
		return p.addToPosition(amount0, amount1, liquidity)

	default:
		return fmt.Errorf("settlement kind %d: %w", leg.Kind, model.ErrRange)
	}
}

func (p *pool) addToPosition(amount0, amount1, liquidity *uint256.Int) error {
	var err error
	if p.reserve0, err = pricemath.Add(p.reserve0, amount0); err != nil {
		return err
	}
	if p.reserve1, err = pricemath.Add(p.reserve1, amount1); err != nil {
		return err
	}
	p.liquidity, err = pricemath.Add(p.liquidity, liquidity)
	return err
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
