package treasury

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

type mockOracle struct {
	marketCap     *big.Int
	treasuryValue *big.Int
	err           error
}

func (m *mockOracle) MarketCap(context.Context) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.marketCap, nil
}

func (m *mockOracle) TreasuryValue(context.Context) (*big.Int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.treasuryValue, nil
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []Strategy{StrategyFixedSplit, StrategyMarketConditional, StrategyAccumulate} {
		parsed, err := ParseStrategy(s.String())
		if err != nil || parsed != s {
			t.Fatalf("round trip %v: got (%v, %v)", s, parsed, err)
		}
	}
	if _, err := ParseStrategy("phase4"); !errors.Is(err, ErrInvalidStrategy) {
		t.Fatalf("expected ErrInvalidStrategy, got %v", err)
	}
	if Strategy(9).Valid() {
		t.Fatal("unknown variant must be invalid")
	}
}

func TestResolvePolicyFixedSplit(t *testing.T) {
	nominal := DefaultSplitPolicy()
	policy, regime := resolvePolicy(context.Background(), StrategyFixedSplit, nominal, nil, DefaultMCThresholdBps)
	if policy != nominal || regime != "" {
		t.Fatalf("fixed split must pass through, got %+v regime %q", policy, regime)
	}
}

func TestResolvePolicyAccumulate(t *testing.T) {
	policy, _ := resolvePolicy(context.Background(), StrategyAccumulate, DefaultSplitPolicy(), nil, DefaultMCThresholdBps)
	if policy.ToCompound != BpsDenominator {
		t.Fatalf("accumulate must compound everything, got %+v", policy)
	}
}

func TestResolvePolicyMarketRegimes(t *testing.T) {
	nominal := DefaultSplitPolicy()
	treasuryValue := big.NewInt(1_000_000)

	cases := []struct {
		name      string
		marketCap *big.Int
		regime    string
		check     func(SplitPolicy) bool
	}{
		{
			// Threshold at 130% of treasury value is 1,300,000.
			name:      "above threshold compounds",
			marketCap: big.NewInt(1_300_001),
			regime:    regimeCompound,
			check:     func(p SplitPolicy) bool { return p.ToCompound == BpsDenominator },
		},
		{
			name:      "within band distributes",
			marketCap: big.NewInt(1_100_000),
			regime:    regimeDistribute,
			check:     func(p SplitPolicy) bool { return p.ToStakers == BpsDenominator },
		},
		{
			name:      "below treasury value burns",
			marketCap: big.NewInt(900_000),
			regime:    regimeBurn,
			check:     func(p SplitPolicy) bool { return p.ToBurn == BpsDenominator },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			oracle := &mockOracle{marketCap: tc.marketCap, treasuryValue: treasuryValue}
			policy, regime := resolvePolicy(context.Background(), StrategyMarketConditional, nominal, oracle, DefaultMCThresholdBps)
			if regime != tc.regime {
				t.Fatalf("regime = %q, want %q", regime, tc.regime)
			}
			if !tc.check(policy) {
				t.Fatalf("unexpected policy %+v", policy)
			}
			if err := policy.Validate(); err != nil {
				t.Fatalf("regime policy invalid: %v", err)
			}
		})
	}
}

func TestResolvePolicyOracleFailureFallsBack(t *testing.T) {
	nominal := DefaultSplitPolicy()

	policy, regime := resolvePolicy(context.Background(), StrategyMarketConditional, nominal, nil, DefaultMCThresholdBps)
	if policy != nominal || regime != regimeOracleUnavailable {
		t.Fatalf("nil oracle: got %+v regime %q", policy, regime)
	}

	oracle := &mockOracle{err: errors.New("feed offline")}
	policy, regime = resolvePolicy(context.Background(), StrategyMarketConditional, nominal, oracle, DefaultMCThresholdBps)
	if policy != nominal || regime != regimeOracleUnavailable {
		t.Fatalf("failing oracle: got %+v regime %q", policy, regime)
	}

	oracle = &mockOracle{marketCap: big.NewInt(1), treasuryValue: big.NewInt(0)}
	policy, regime = resolvePolicy(context.Background(), StrategyMarketConditional, nominal, oracle, DefaultMCThresholdBps)
	if policy != nominal || regime != regimeOracleUnavailable {
		t.Fatalf("zero treasury value: got %+v regime %q", policy, regime)
	}
}
