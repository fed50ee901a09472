package treasury

import (
	"errors"
	"math/big"
	"testing"
)

func TestSplitPolicyValidate(t *testing.T) {
	if err := DefaultSplitPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	bad := SplitPolicy{ToStable: 2500, ToLiquidity: 2500, ToBurn: 5001}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidSplit) {
		t.Fatalf("expected ErrInvalidSplit, got %v", err)
	}
	if err := (SplitPolicy{}).Validate(); !errors.Is(err, ErrInvalidSplit) {
		t.Fatal("zero policy must be rejected")
	}
}

func TestSplitPolicyAmountsConserveTotal(t *testing.T) {
	cases := []struct {
		name   string
		policy SplitPolicy
		amount int64
	}{
		{"default", DefaultSplitPolicy(), 1000},
		{"thirds", SplitPolicy{ToStable: 3333, ToLiquidity: 3333, ToBurn: 3334}, 1000},
		{"small amount", DefaultSplitPolicy(), 7},
		{"one unit", SplitPolicy{ToStable: 9999, ToCompound: 1}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := big.NewInt(tc.amount)
			amounts := tc.policy.Amounts(amount)
			if got := amounts.Total(); got.Cmp(amount) != 0 {
				t.Fatalf("destinations sum to %s, want %s", got, amount)
			}
		})
	}
}

func TestSplitPolicyAmountsRemainderToCompound(t *testing.T) {
	// 333 of 1000 per leg leaves 1 unit of dust for the compound bucket.
	policy := SplitPolicy{ToStable: 3330, ToLiquidity: 3330, ToBurn: 3330, ToCompound: 10}
	amounts := policy.Amounts(big.NewInt(999))
	expectedCompound := new(big.Int).Sub(big.NewInt(999), big.NewInt(0).
		Add(amounts.Stable, new(big.Int).Add(amounts.Liquidity, amounts.Burn)))
	if amounts.Compound.Cmp(expectedCompound) != 0 {
		t.Fatalf("compound = %s, want %s", amounts.Compound, expectedCompound)
	}
}

func TestSplitPolicyAmountsZero(t *testing.T) {
	amounts := DefaultSplitPolicy().Amounts(nil)
	if got := amounts.Total(); got.Sign() != 0 {
		t.Fatalf("nil amount should split to zero, got %s", got)
	}
}

func TestDestinationString(t *testing.T) {
	names := map[Destination]string{
		DestinationStable:    "stable",
		DestinationLiquidity: "liquidity",
		DestinationBurn:      "burn",
		DestinationStakers:   "stakers",
		DestinationCompound:  "compound",
	}
	for dest, want := range names {
		if got := dest.String(); got != want {
			t.Fatalf("destination %d = %q, want %q", dest, got, want)
		}
	}
}
