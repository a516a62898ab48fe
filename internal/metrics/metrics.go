// Package metrics exposes Prometheus series for the pool core:
//
//	spot_cap_events_total{pool,direction}    CAP events raised by the oracle
//	spot_max_tick_move{pool}                 current auto-tuned cap
//	spot_fee_ppm{pool,layer}                 base, surge and effective fee
//	spot_reinvestments_total{pool,outcome}   processing cycles by outcome
//	spot_pol_shares_minted_total{pool}       protocol shares minted
//	spot_liquidity_ops_total{pool,op}        deposits and withdrawals
//	spot_host_read_failures_total            failed host reads
//
// Series are registered in init and served at /metrics by the watch command.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"spotHook/internal/model"
)

var (
	capEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_cap_events_total",
			Help: "CAP events raised by the truncating oracle",
		},
		[]string{"pool", "direction"},
	)

	maxTickMove = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spot_max_tick_move",
			Help: "Current auto-tuned maximum tick move per observation",
		},
		[]string{"pool"},
	)

	feePpm = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spot_fee_ppm",
			Help: "Fee layers in parts per million (base|surge|effective)",
		},
		[]string{"pool", "layer"},
	)

	reinvestments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_reinvestments_total",
			Help: "Fee processing cycles by outcome",
		},
		[]string{"pool", "outcome"},
	)

	polSharesMinted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_pol_shares_minted_total",
			Help: "Protocol-owned shares minted by reinvestment",
		},
		[]string{"pool"},
	)

	liquidityOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_liquidity_ops_total",
			Help: "Successful deposits and withdrawals",
		},
		[]string{"pool", "op"},
	)

	hostReadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spot_host_read_failures_total",
			Help: "Host pool reads that failed",
		},
	)
)

func init() {
	prometheus.MustRegister(capEvents, maxTickMove, feePpm)
	prometheus.MustRegister(reinvestments, polSharesMinted, liquidityOps)
	prometheus.MustRegister(hostReadFailures)
}

func ObserveCapEvent(ev model.CapEvent) {
	capEvents.WithLabelValues(ev.Pool.Hex(), ev.Direction.String()).Inc()
}

func SetMaxTickMove(pool model.PoolID, v uint32) {
	maxTickMove.WithLabelValues(pool.Hex()).Set(float64(v))
}

// SetFees records the fee layers of a pool.
func SetFees(pool model.PoolID, base, surge, effective uint32) {
	id := pool.Hex()
	feePpm.WithLabelValues(id, "base").Set(float64(base))
	feePpm.WithLabelValues(id, "surge").Set(float64(surge))
	feePpm.WithLabelValues(id, "effective").Set(float64(effective))
}

// ObserveReinvestment counts a processing cycle. skipped is nil for a cycle
// that reinvested.
func ObserveReinvestment(pool model.PoolID, skipped error, minted float64) {
	reinvestments.WithLabelValues(pool.Hex(), Outcome(skipped)).Inc()
	if skipped == nil && minted > 0 {
		polSharesMinted.WithLabelValues(pool.Hex()).Add(minted)
	}
}

func IncLiquidityOp(pool model.PoolID, op string) {
	liquidityOps.WithLabelValues(pool.Hex(), op).Inc()
}

func IncHostReadFailure() { hostReadFailures.Inc() }

// Outcome maps a skipped reason to a stable label value.
func Outcome(skipped error) string {
	switch {
	case skipped == nil:
		return "reinvested"
	case errors.Is(skipped, model.ErrTooSoon):
		return "too_soon"
	case errors.Is(skipped, model.ErrSurgeActive):
		return "surge_active"
	case errors.Is(skipped, model.ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(skipped, model.ErrNoPoolLiquidity):
		return "no_liquidity"
	default:
		return "other"
	}
}
