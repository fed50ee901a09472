package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TreasuryMetrics captures the execution telemetry for the yield
// distribution engine.
type TreasuryMetrics struct {
	executions      *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
	yieldProcessed  prometheus.Counter
	governanceBurn  prometheus.Counter
	liquidityMinted prometheus.Counter
	duration        prometheus.Histogram
	pendingYield    prometheus.Gauge
}

var (
	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics
)

// Treasury returns the lazily-initialised metrics registry for the treasury
// engine.
func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			executions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "executions_total",
				Help:      "Count of yield execution passes segmented by outcome.",
			}, []string{"outcome"}),
			partialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "partial_failures_total",
				Help:      "Count of degraded routing sub-steps by destination and step.",
			}, []string{"destination", "step"}),
			yieldProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "yield_processed_tokens_total",
				Help:      "Cumulative yield processed, in whole tokens.",
			}),
			governanceBurn: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "governance_burned_tokens_total",
				Help:      "Cumulative governance tokens destroyed, in whole tokens.",
			}),
			liquidityMinted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "liquidity_created_units_total",
				Help:      "Cumulative liquidity units minted and staked.",
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution for full execution passes.",
				Buckets:   prometheus.DefBuckets,
			}),
			pendingYield: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "embervault",
				Subsystem: "treasury",
				Name:      "pending_yield_tokens",
				Help:      "Yield currently claimable at the staking venue, in whole tokens.",
			}),
		}
		prometheus.MustRegister(
			treasuryRegistry.executions,
			treasuryRegistry.partialFailures,
			treasuryRegistry.yieldProcessed,
			treasuryRegistry.governanceBurn,
			treasuryRegistry.liquidityMinted,
			treasuryRegistry.duration,
			treasuryRegistry.pendingYield,
		)
	})
	return treasuryRegistry
}

// ObserveExecution records one pass by outcome ("completed", "degraded",
// "rejected", or "error") and its wall-clock duration.
func (m *TreasuryMetrics) ObserveExecution(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
}

// RecordPartialFailure increments the degraded-step counter.
func (m *TreasuryMetrics) RecordPartialFailure(destination, step string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(destination, step).Inc()
}

// AddProcessed folds the per-pass achieved amounts into the cumulative
// counters. Amounts are base-unit big integers scaled by decimals.
func (m *TreasuryMetrics) AddProcessed(yield, burned, liquidity *big.Int, decimals int) {
	if m == nil {
		return
	}
	if v := TokensFromBaseUnits(yield, decimals); v > 0 {
		m.yieldProcessed.Add(v)
	}
	if v := TokensFromBaseUnits(burned, decimals); v > 0 {
		m.governanceBurn.Add(v)
	}
	if v := TokensFromBaseUnits(liquidity, decimals); v > 0 {
		m.liquidityMinted.Add(v)
	}
}

// SetPendingYield publishes the latest claimable amount.
func (m *TreasuryMetrics) SetPendingYield(pending *big.Int, decimals int) {
	if m == nil {
		return
	}
	m.pendingYield.Set(TokensFromBaseUnits(pending, decimals))
}

// TokensFromBaseUnits converts a base-unit amount to whole tokens for metric
// export. Precision loss is acceptable here; the ledger keeps exact values.
func TokensFromBaseUnits(v *big.Int, decimals int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f := new(big.Float).SetInt(v)
	if decimals > 0 {
		scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
		f.Quo(f, scale)
	}
	out, _ := f.Float64()
	return out
}
