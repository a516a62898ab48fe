package spot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/fee"
	"spotHook/internal/ledger"
	"spotHook/internal/metrics"
	"spotHook/internal/model"
	"spotHook/internal/oracle"
	"spotHook/internal/policy"
	"spotHook/internal/pricemath"
	"spotHook/internal/reinvest"
)

// DefaultProtocolAccount receives the shares minted by fee reinvestment.
var DefaultProtocolAccount = common.HexToAddress("0x00000000000000000000000000000000000000ff")

// Host is the external ledger that owns pool price, the full-range position
// and token custody.
type Host interface {
	ReadPool(ctx context.Context, id model.PoolID) (model.HostPool, error)
	// Settle executes all legs or none of them.
	Settle(ctx context.Context, id model.PoolID, legs ...model.Settlement) error
}

type Config struct {
	ProtocolAccount common.Address
}

// Core runs every pool operation under a per-pool guard and commits engine
// state only after the host has settled.
type Core struct {
	logger   *zap.Logger
	host     Host
	policies *policy.Store
	protocol common.Address

	oracle   *oracle.Engine
	fees     *fee.Engine
	ledger   *ledger.Ledger
	reinvest *reinvest.Engine

	mu     sync.Mutex
	keys   map[model.PoolID]model.PoolKey
	locked map[model.PoolID]bool
}

func New(cfg Config, host Host, policies *policy.Store, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	protocol := cfg.ProtocolAccount
	if protocol == (common.Address{}) {
		protocol = DefaultProtocolAccount
	}
	return &Core{
		logger:   logger,
		host:     host,
		policies: policies,
		protocol: protocol,
		oracle:   oracle.NewEngine(logger.Named("oracle")),
		fees:     fee.NewEngine(logger.Named("fee")),
		ledger:   ledger.New(logger.Named("ledger")),
		reinvest: reinvest.NewEngine(logger.Named("reinvest")),
		keys:     make(map[model.PoolID]model.PoolKey),
		locked:   make(map[model.PoolID]bool),
	}
}

// ProtocolAccount returns the account that owns reinvested shares.
func (c *Core) ProtocolAccount() common.Address {
	return c.protocol
}

// InitializePool creates the per-pool records of every engine.
func (c *Core) InitializePool(ctx context.Context, key model.PoolKey, tick int32, ts uint64) (model.PoolID, error) {
	if err := key.Validate(); err != nil {
		return model.PoolID{}, err
	}
	id, err := key.ID()
	if err != nil {
		return model.PoolID{}, fmt.Errorf("pool id: %w", err)
	}
	p := c.policies.Get(id)
	if !p.SupportsTickSpacing(key.TickSpacing) {
		return model.PoolID{}, fmt.Errorf("tick spacing %d not in %v: %w", key.TickSpacing, p.SupportedTickSpacings, model.ErrRange)
	}

	c.mu.Lock()
	if _, ok := c.keys[id]; ok {
		c.mu.Unlock()
		return model.PoolID{}, fmt.Errorf("pool %s: %w", id.Hex(), model.ErrPoolExists)
	}
	if c.locked[id] {
		c.mu.Unlock()
		return model.PoolID{}, model.ErrReentrancyLocked
	}
	c.locked[id] = true
	c.mu.Unlock()
	defer c.unlock(id)

	if err := c.oracle.Initialize(id, tick, ts, p); err != nil {
		return model.PoolID{}, err
	}
	if err := c.fees.Initialize(id, ts, p); err != nil {
		return model.PoolID{}, err
	}
	if err := c.ledger.Initialize(id); err != nil {
		return model.PoolID{}, err
	}
	if err := c.reinvest.Initialize(id, ts); err != nil {
		return model.PoolID{}, err
	}

	c.mu.Lock()
	c.keys[id] = key
	c.mu.Unlock()

	metrics.SetMaxTickMove(id, p.ClampCap(p.DefaultMaxTickMove))
	c.logger.Info("pool initialized",
		zap.String("pool", id.Hex()),
		zap.String("currency0", key.Currency0.Hex()),
		zap.String("currency1", key.Currency1.Hex()),
		zap.Int32("tick_spacing", key.TickSpacing),
		zap.Int32("tick", tick),
	)
	return id, nil
}

// Key returns the pool key of an initialized pool.
func (c *Core) Key(id model.PoolID) (model.PoolKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[id]
	if !ok {
		return model.PoolKey{}, fmt.Errorf("pool %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return key, nil
}

// Policy returns the policy in force for id.
func (c *Core) Policy(id model.PoolID) policy.PoolPolicy {
	return c.policies.Get(id)
}

// GetEffectiveFeePpm returns the fee the next trade pays.
func (c *Core) GetEffectiveFeePpm(id model.PoolID, now uint64) (uint32, error) {
	return c.fees.GetEffectiveFeePpm(id, now)
}

// GetFeeState returns the base fee and the decayed surge fee at now.
func (c *Core) GetFeeState(id model.PoolID, now uint64) (uint32, uint32, error) {
	return c.fees.GetFeeState(id, now)
}

func (c *Core) OracleState(id model.PoolID) (model.OracleState, error) {
	return c.oracle.State(id)
}

// ObserveTickRange returns the time-weighted average tick over [from, to].
func (c *Core) ObserveTickRange(id model.PoolID, from, to uint64) (int32, error) {
	return c.oracle.ObserveTickRange(id, from, to)
}

func (c *Core) LedgerState(id model.PoolID) (*model.LedgerState, error) {
	return c.ledger.State(id)
}

func (c *Core) PendingFees(id model.PoolID) (model.PendingFees, error) {
	return c.reinvest.State(id)
}

// SharesOf returns the share balance of account in pool id.
func (c *Core) SharesOf(id model.PoolID, account common.Address) (*uint256.Int, error) {
	return c.ledger.SharesOf(id, account)
}

// acquire takes the pool guard. A held guard is rejected, never waited on.
func (c *Core) acquire(id model.PoolID) (model.PoolKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[id]
	if !ok {
		return model.PoolKey{}, fmt.Errorf("pool %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	if c.locked[id] {
		return model.PoolKey{}, fmt.Errorf("pool %s: %w", id.Hex(), model.ErrReentrancyLocked)
	}
	c.locked[id] = true
	return key, nil
}

func (c *Core) unlock(id model.PoolID) {
	c.mu.Lock()
	delete(c.locked, id)
	c.mu.Unlock()
}

// readPool fetches the host view of a pool. Every failure is reported as
// ErrFailedToReadPoolData so callers fail closed.
func (c *Core) readPool(ctx context.Context, id model.PoolID) (model.HostPool, error) {
	hp, err := c.host.ReadPool(ctx, id)
	if err == nil && (hp.SqrtPriceX96 == nil || hp.Liquidity == nil || hp.Reserve0 == nil || hp.Reserve1 == nil) {
		err = errors.New("incomplete pool data")
	}
	if err != nil {
		metrics.IncHostReadFailure()
		c.logger.Warn("host read failed", zap.String("pool", id.Hex()), zap.Error(err))
		if errors.Is(err, model.ErrFailedToReadPoolData) {
			return model.HostPool{}, err
		}
		return model.HostPool{}, fmt.Errorf("read pool %s: %w: %v", id.Hex(), model.ErrFailedToReadPoolData, err)
	}
	return hp, nil
}

func fullRange(key model.PoolKey) (lower, upper *uint256.Int, err error) {
	return pricemath.FullRange(key.TickSpacing)
}
