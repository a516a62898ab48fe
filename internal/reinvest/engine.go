package reinvest

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"spotHook/internal/model"
	"spotHook/internal/pricemath"
)

// Engine owns the pending-fee queue of every pool.
type Engine struct {
	logger *zap.Logger

	mu    sync.RWMutex
	pools map[model.PoolID]model.PendingFees
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		pools:  make(map[model.PoolID]model.PendingFees),
	}
}

// Initialize creates an empty queue whose first cycle opens at ts.
func (e *Engine) Initialize(id model.PoolID, ts uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pools[id]; ok {
		return fmt.Errorf("pending fees %s: %w", id.Hex(), model.ErrPoolExists)
	}
	e.pools[id] = model.NewPendingFees(ts)
	return nil
}

// State returns a copy of the queue.
func (e *Engine) State(id model.PoolID) (model.PendingFees, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[id]
	if !ok {
		return model.PendingFees{}, fmt.Errorf("pending fees %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	return p.Clone(), nil
}

// Accrue queues trade fees. Nothing changes when either sum overflows.
func (e *Engine) Accrue(id model.PoolID, fee0, fee1 *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[id]
	if !ok {
		return fmt.Errorf("pending fees %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	next, err := accrue(p, fee0, fee1)
	if err != nil {
		return fmt.Errorf("accrue fees %s: %w", id.Hex(), err)
	}
	e.pools[id] = next
	return nil
}

func accrue(p model.PendingFees, fee0, fee1 *uint256.Int) (model.PendingFees, error) {
	next := p.Clone()
	var err error
	if fee0 != nil {
		if next.Queued0, err = pricemath.Add(next.Queued0, fee0); err != nil {
			return p, err
		}
	}
	if fee1 != nil {
		if next.Queued1, err = pricemath.Add(next.Queued1, fee1); err != nil {
			return p, err
		}
	}
	return next, nil
}

// Commit stores the queue a plan leaves behind. Call it only after the
// plan's settlement went through on the host.
func (e *Engine) Commit(id model.PoolID, plan Plan) error {
	if plan.Pool != id {
		return fmt.Errorf("commit plan for %s into %s: %w", plan.Pool.Hex(), id.Hex(), model.ErrInconsistentState)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pools[id]; !ok {
		return fmt.Errorf("pending fees %s: %w", id.Hex(), model.ErrUnknownPool)
	}
	e.pools[id] = plan.Next.Clone()

	if plan.Skipped != nil {
		e.logger.Debug("reinvestment skipped",
			zap.String("pool", id.Hex()),
			zap.Error(plan.Skipped),
		)
		return nil
	}
	e.logger.Info("fees reinvested",
		zap.String("pool", id.Hex()),
		zap.String("pol_shares", plan.Deposit.Minted().Dec()),
		zap.String("amount0", plan.Deposit.Amount0.Dec()),
		zap.String("amount1", plan.Deposit.Amount1.Dec()),
		zap.String("leftover0", plan.Next.Leftover0.Dec()),
		zap.String("leftover1", plan.Next.Leftover1.Dec()),
		zap.String("carry0", plan.Next.Carry0.Dec()),
		zap.String("carry1", plan.Next.Carry1.Dec()),
	)
	return nil
}
