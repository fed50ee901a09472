package treasury

import (
	"context"
	"fmt"
	"math/big"
)

// Strategy selects the yield routing algorithm. Exactly one is active at a
// time.
type Strategy uint8

const (
	// StrategyFixedSplit applies the configured split policy literally.
	StrategyFixedSplit Strategy = iota
	// StrategyMarketConditional overrides the nominal split based on the
	// protocol market cap relative to treasury book value.
	StrategyMarketConditional
	// StrategyAccumulate compounds the full harvest with no swaps, pending
	// the accumulation token integration.
	StrategyAccumulate
)

// Valid reports whether the value is a known strategy variant.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyFixedSplit, StrategyMarketConditional, StrategyAccumulate:
		return true
	default:
		return false
	}
}

// String returns the canonical name used in events and configuration.
func (s Strategy) String() string {
	switch s {
	case StrategyFixedSplit:
		return "fixed_split"
	case StrategyMarketConditional:
		return "market_conditional"
	case StrategyAccumulate:
		return "accumulate"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy resolves a strategy from its canonical name.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "fixed_split":
		return StrategyFixedSplit, nil
	case "market_conditional":
		return StrategyMarketConditional, nil
	case "accumulate":
		return StrategyAccumulate, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
}

// Market regimes resolved by the market-conditional strategy.
const (
	regimeCompound          = "above_threshold_compound"
	regimeDistribute        = "within_band_distribute"
	regimeBurn              = "below_treasury_burn"
	regimeOracleUnavailable = "oracle_unavailable"
)

func compoundAllPolicy() SplitPolicy { return SplitPolicy{ToCompound: BpsDenominator} }
func stakersAllPolicy() SplitPolicy  { return SplitPolicy{ToStakers: BpsDenominator} }
func burnAllPolicy() SplitPolicy     { return SplitPolicy{ToBurn: BpsDenominator} }

// resolvePolicy is the single dispatch point mapping the active strategy to
// the split actually applied for one pass. The returned regime string is
// empty for the fixed-split path and otherwise names the branch taken, for
// the audit event.
func resolvePolicy(ctx context.Context, strategy Strategy, nominal SplitPolicy, oracle MarketOracle, thresholdBps uint32) (SplitPolicy, string) {
	switch strategy {
	case StrategyAccumulate:
		return compoundAllPolicy(), ""
	case StrategyMarketConditional:
		return resolveMarketConditional(ctx, nominal, oracle, thresholdBps)
	default:
		return nominal, ""
	}
}

// resolveMarketConditional picks the regime from the market-cap to
// treasury-value comparison. Oracle absence or failure downgrades to the
// nominal split for the pass rather than guessing a regime.
func resolveMarketConditional(ctx context.Context, nominal SplitPolicy, oracle MarketOracle, thresholdBps uint32) (SplitPolicy, string) {
	if oracle == nil {
		return nominal, regimeOracleUnavailable
	}
	marketCap, err := oracle.MarketCap(ctx)
	if err != nil || marketCap == nil {
		return nominal, regimeOracleUnavailable
	}
	treasuryValue, err := oracle.TreasuryValue(ctx)
	if err != nil || treasuryValue == nil || treasuryValue.Sign() <= 0 {
		return nominal, regimeOracleUnavailable
	}
	threshold := new(big.Int).Mul(treasuryValue, new(big.Int).SetUint64(uint64(thresholdBps)))
	threshold.Quo(threshold, big.NewInt(BpsDenominator))
	switch {
	case marketCap.Cmp(threshold) > 0:
		return compoundAllPolicy(), regimeCompound
	case marketCap.Cmp(treasuryValue) >= 0:
		return stakersAllPolicy(), regimeDistribute
	default:
		return burnAllPolicy(), regimeBurn
	}
}
