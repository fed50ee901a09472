package treasury

import (
	"fmt"
	"math/big"
)

// BpsDenominator is the fixed basis-point denominator for split fractions and
// slippage bounds.
const BpsDenominator = 10_000

// Destination identifies one of the five yield routing buckets.
type Destination uint8

const (
	// DestinationStable converts yield into the stable token for the treasury.
	DestinationStable Destination = iota
	// DestinationLiquidity converts yield into a governance/stable pair and
	// stakes the resulting position.
	DestinationLiquidity
	// DestinationBurn converts yield into governance token and destroys it.
	DestinationBurn
	// DestinationStakers forwards yield token to the staker distributor.
	DestinationStakers
	// DestinationCompound retains yield in the treasury reserve.
	DestinationCompound
)

// String returns the canonical lowercase name used in events and metrics.
func (d Destination) String() string {
	switch d {
	case DestinationStable:
		return "stable"
	case DestinationLiquidity:
		return "liquidity"
	case DestinationBurn:
		return "burn"
	case DestinationStakers:
		return "stakers"
	case DestinationCompound:
		return "compound"
	default:
		return fmt.Sprintf("destination(%d)", uint8(d))
	}
}

// SplitPolicy describes how harvested yield is divided among destinations.
// All fields are basis points and must sum to exactly BpsDenominator.
type SplitPolicy struct {
	ToStable    uint32
	ToLiquidity uint32
	ToBurn      uint32
	ToStakers   uint32
	ToCompound  uint32
}

// DefaultSplitPolicy returns the genesis split: 25% stable, 25% liquidity,
// 50% burn.
func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{ToStable: 2500, ToLiquidity: 2500, ToBurn: 5000}
}

// Sum returns the total of the five fractions.
func (p SplitPolicy) Sum() uint64 {
	return uint64(p.ToStable) + uint64(p.ToLiquidity) + uint64(p.ToBurn) +
		uint64(p.ToStakers) + uint64(p.ToCompound)
}

// Validate ensures the fractions sum to exactly the basis-point denominator.
func (p SplitPolicy) Validate() error {
	if sum := p.Sum(); sum != BpsDenominator {
		return fmt.Errorf("%w: fractions sum to %d, want %d", ErrInvalidSplit, sum, BpsDenominator)
	}
	return nil
}

// DestinationAmounts carries the nominal per-destination breakdown of one
// processed amount. The five values always sum to the processed amount.
type DestinationAmounts struct {
	Stable    *big.Int
	Liquidity *big.Int
	Burn      *big.Int
	Stakers   *big.Int
	Compound  *big.Int
}

// Total returns the sum of all destination amounts.
func (a DestinationAmounts) Total() *big.Int {
	total := new(big.Int)
	for _, v := range []*big.Int{a.Stable, a.Liquidity, a.Burn, a.Stakers, a.Compound} {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// Amounts applies the policy fractions to the supplied amount using integer
// division. The rounding remainder accrues to the compound bucket so the
// destinations sum to the input exactly.
func (p SplitPolicy) Amounts(amount *big.Int) DestinationAmounts {
	if amount == nil || amount.Sign() <= 0 {
		zero := func() *big.Int { return big.NewInt(0) }
		return DestinationAmounts{Stable: zero(), Liquidity: zero(), Burn: zero(), Stakers: zero(), Compound: zero()}
	}
	portion := func(bps uint32) *big.Int {
		out := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(bps)))
		return out.Quo(out, big.NewInt(BpsDenominator))
	}
	amounts := DestinationAmounts{
		Stable:    portion(p.ToStable),
		Liquidity: portion(p.ToLiquidity),
		Burn:      portion(p.ToBurn),
		Stakers:   portion(p.ToStakers),
	}
	assigned := new(big.Int).Add(amounts.Stable, amounts.Liquidity)
	assigned.Add(assigned, amounts.Burn)
	assigned.Add(assigned, amounts.Stakers)
	compound := portion(p.ToCompound)
	remainder := new(big.Int).Sub(amount, assigned)
	remainder.Sub(remainder, compound)
	amounts.Compound = compound.Add(compound, remainder)
	return amounts
}
