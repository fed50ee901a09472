package treasury

import (
	"context"
	"math/big"
	"strings"
)

// RewardClaim reports a single token balance transferred by the staking venue
// during a claim.
type RewardClaim struct {
	Token  string
	Amount *big.Int
}

// StakingAdapter abstracts the external liquid-staking venue holding the
// protocol reserve. Claims transfer the yield token into the orchestrator's
// custody; a claim with nothing pending returns zero amounts and no error.
type StakingAdapter interface {
	// PendingYield reports the yield currently claimable, denominated in the
	// yield token.
	PendingYield(ctx context.Context) (*big.Int, error)
	// ClaimRewards transfers up to amount of claimable yield to the caller
	// and reports the per-token amounts actually moved. A nil or zero amount
	// claims everything pending; a claim with nothing pending reports zero
	// amounts without failing.
	ClaimRewards(ctx context.Context, amount *big.Int) ([]RewardClaim, error)
}

// SwapRequest describes a single token swap with slippage protection.
type SwapRequest struct {
	TokenIn      string
	TokenOut     string
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Recipient    [20]byte
}

// LiquidityRequest describes an add-liquidity operation for a token pair.
type LiquidityRequest struct {
	TokenA         string
	TokenB         string
	AmountADesired *big.Int
	AmountBDesired *big.Int
	MinA           *big.Int
	MinB           *big.Int
	Recipient      [20]byte
}

// LiquidityReceipt reports the amounts consumed by an add-liquidity call and
// the liquidity units minted.
type LiquidityReceipt struct {
	UsedA   *big.Int
	UsedB   *big.Int
	Minted  *big.Int
	LPToken string
}

// LiquidityAdapter abstracts the external swap and liquidity venue. Every
// value-moving call enforces its own minimum-output bound and fails rather
// than under-deliver silently.
type LiquidityAdapter interface {
	// ExpectedOutput quotes the output amount for a prospective swap.
	ExpectedOutput(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
	// Swap executes a swap, failing if the achieved output would fall below
	// the request's minimum.
	Swap(ctx context.Context, req SwapRequest) (*big.Int, error)
	// AddLiquidity supplies a token pair to the pool under per-leg minimums.
	AddLiquidity(ctx context.Context, req LiquidityRequest) (*LiquidityReceipt, error)
	// StakeLiquidity stakes minted liquidity units with the venue's gauge.
	StakeLiquidity(ctx context.Context, lpToken string, amount *big.Int) error
	// UnstakeLiquidity withdraws previously staked liquidity units.
	UnstakeLiquidity(ctx context.Context, lpToken string, amount *big.Int) error
}

// Custody abstracts the token balances held by the orchestrator between claim
// and routing. Token mint/burn/transfer primitives live behind it so the
// engine never touches token contracts directly.
type Custody interface {
	// Transfer moves an amount of the given token from the orchestrator's
	// custody to the recipient.
	Transfer(ctx context.Context, token string, amount *big.Int, recipient [20]byte) error
	// Burn irreversibly destroys an amount of the given token held in
	// custody.
	Burn(ctx context.Context, token string, amount *big.Int) error
	// Balance reports the custody balance for the given token.
	Balance(ctx context.Context, token string) (*big.Int, error)
}

// MarketOracle reports the protocol market capitalisation and treasury book
// value used by the market-conditional strategy. Implementations are expected
// to be manipulation resistant; the engine treats oracle failure as
// "no signal" and falls back to the nominal split.
type MarketOracle interface {
	MarketCap(ctx context.Context) (*big.Int, error)
	TreasuryValue(ctx context.Context) (*big.Int, error)
}

// TokenSet names the token symbols the routing engine moves between.
type TokenSet struct {
	// Yield is the liquid-staking receipt token harvested from the venue.
	Yield string
	// Governance is the protocol's own token, the burn target.
	Governance string
	// Stable is the stablecoin leg of the protocol-owned liquidity pair.
	Stable string
	// LP is the liquidity token minted for the governance/stable pair.
	LP string
}

// Normalize upper-cases and trims all symbols.
func (t TokenSet) Normalize() TokenSet {
	return TokenSet{
		Yield:      normalizeSymbol(t.Yield),
		Governance: normalizeSymbol(t.Governance),
		Stable:     normalizeSymbol(t.Stable),
		LP:         normalizeSymbol(t.LP),
	}
}

// Validate ensures every symbol is set and the swap legs are distinct.
func (t TokenSet) Validate() error {
	n := t.Normalize()
	if n.Yield == "" || n.Governance == "" || n.Stable == "" || n.LP == "" {
		return ErrNotConfigured
	}
	if n.Yield == n.Governance || n.Yield == n.Stable || n.Governance == n.Stable {
		return ErrNotConfigured
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
