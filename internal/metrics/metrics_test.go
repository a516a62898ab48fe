package metrics

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"spotHook/internal/model"
)

func TestOutcomeLabels(t *testing.T) {
	require.Equal(t, "reinvested", Outcome(nil))
	require.Equal(t, "too_soon", Outcome(fmt.Errorf("next cycle at 10: %w", model.ErrTooSoon)))
	require.Equal(t, "surge_active", Outcome(model.ErrSurgeActive))
	require.Equal(t, "below_threshold", Outcome(model.ErrBelowThreshold))
	require.Equal(t, "no_liquidity", Outcome(model.ErrNoPoolLiquidity))
	require.Equal(t, "other", Outcome(model.ErrOverflow))
}

func TestCountersMove(t *testing.T) {
	pool := common.HexToHash("0x08")

	ObserveCapEvent(model.CapEvent{Pool: pool, Direction: model.CapUp})
	ObserveCapEvent(model.CapEvent{Pool: pool, Direction: model.CapUp})
	require.Equal(t, 2.0, testutil.ToFloat64(capEvents.WithLabelValues(pool.Hex(), "up")))

	SetFees(pool, 3000, 500, 3500)
	require.Equal(t, 3500.0, testutil.ToFloat64(feePpm.WithLabelValues(pool.Hex(), "effective")))

	ObserveReinvestment(pool, nil, 42)
	ObserveReinvestment(pool, model.ErrTooSoon, 0)
	require.Equal(t, 42.0, testutil.ToFloat64(polSharesMinted.WithLabelValues(pool.Hex())))
	require.Equal(t, 1.0, testutil.ToFloat64(reinvestments.WithLabelValues(pool.Hex(), "too_soon")))
}
