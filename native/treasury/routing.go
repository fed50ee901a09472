package treasury

import (
	"context"
	"math/big"

	"embervault/core/types"
)

// Step names within a routing attempt, recorded on partial failures.
const (
	StepQuote          = "quote"
	StepSwap           = "swap"
	StepAddLiquidity   = "add_liquidity"
	StepStakeLiquidity = "stake_liquidity"
	StepTransfer       = "transfer"
	StepBurn           = "burn"
)

// PartialFailure records a routing sub-step that did not achieve its nominal
// target. It is diagnostic data, never an error: the pass carries on.
type PartialFailure struct {
	Destination Destination
	Step        string
	Nominal     *big.Int
	Reason      string
}

// RouteOutcome summarises one routing pass: the nominal breakdown, the
// amounts actually achieved per destination, and every partial failure.
type RouteOutcome struct {
	Nominal         DestinationAmounts
	StableOut       *big.Int
	Burned          *big.Int
	LiquidityMinted *big.Int
	StakersOut      *big.Int
	Compounded      *big.Int
	Partials        []PartialFailure
}

func newRouteOutcome(nominal DestinationAmounts) *RouteOutcome {
	return &RouteOutcome{
		Nominal:         nominal,
		StableOut:       big.NewInt(0),
		Burned:          big.NewInt(0),
		LiquidityMinted: big.NewInt(0),
		StakersOut:      big.NewInt(0),
		Compounded:      big.NewInt(0),
	}
}

// Degraded reports whether any destination fell short of its nominal target.
func (o *RouteOutcome) Degraded() bool {
	return o != nil && len(o.Partials) > 0
}

// RoutingEngine drives the swap/liquidity adapter through the per-destination
// operations for one pass. Every destination attempt is independent: a failed
// quote, swap, or liquidity call is folded into the outcome and never aborts
// the remaining destinations.
type RoutingEngine struct {
	adapter     LiquidityAdapter
	custody     Custody
	tokens      TokenSet
	self        [20]byte
	treasury    [20]byte
	distributor [20]byte
	emit        func(*types.Event)
}

// NewRoutingEngine wires a routing engine. The emit callback may be nil.
func NewRoutingEngine(adapter LiquidityAdapter, custody Custody, tokens TokenSet, self, treasury, distributor [20]byte, emit func(*types.Event)) (*RoutingEngine, error) {
	if adapter == nil || custody == nil {
		return nil, ErrNotConfigured
	}
	if err := tokens.Validate(); err != nil {
		return nil, err
	}
	if self == ([20]byte{}) || treasury == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if emit == nil {
		emit = func(*types.Event) {}
	}
	return &RoutingEngine{
		adapter:     adapter,
		custody:     custody,
		tokens:      tokens.Normalize(),
		self:        self,
		treasury:    treasury,
		distributor: distributor,
		emit:        emit,
	}, nil
}

// Route computes the nominal split for the amount and attempts every non-zero
// destination under the supplied slippage bound.
func (r *RoutingEngine) Route(ctx context.Context, amount *big.Int, policy SplitPolicy, slippageBps uint32) *RouteOutcome {
	out := newRouteOutcome(policy.Amounts(amount))
	if amount == nil || amount.Sign() <= 0 {
		return out
	}
	r.routeStable(ctx, out, slippageBps)
	r.routeLiquidity(ctx, out, slippageBps)
	r.routeBurn(ctx, out, slippageBps)
	r.routeStakers(ctx, out)
	r.routeCompound(ctx, out)
	return out
}

func (r *RoutingEngine) fail(out *RouteOutcome, dest Destination, step string, nominal *big.Int, err error) {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	failure := PartialFailure{
		Destination: dest,
		Step:        step,
		Nominal:     cloneBigInt(nominal),
		Reason:      reason,
	}
	out.Partials = append(out.Partials, failure)
	r.emit(NewPartialFailureEvent(failure))
}

// swapLeg quotes, bounds, and executes one swap out of the yield token. The
// boolean result reports whether the achieved amount is usable.
func (r *RoutingEngine) swapLeg(ctx context.Context, out *RouteOutcome, dest Destination, tokenOut string, amountIn *big.Int, recipient [20]byte, slippageBps uint32) (*big.Int, bool) {
	expected, err := r.adapter.ExpectedOutput(ctx, r.tokens.Yield, tokenOut, amountIn)
	if err != nil {
		r.fail(out, dest, StepQuote, amountIn, err)
		return nil, false
	}
	minOut := slippageMinOut(expected, slippageBps)
	achieved, err := r.adapter.Swap(ctx, SwapRequest{
		TokenIn:      r.tokens.Yield,
		TokenOut:     tokenOut,
		AmountIn:     cloneBigInt(amountIn),
		MinAmountOut: minOut,
		Recipient:    recipient,
	})
	if err != nil {
		r.fail(out, dest, StepSwap, amountIn, err)
		return nil, false
	}
	if achieved == nil || achieved.Sign() <= 0 {
		r.fail(out, dest, StepSwap, amountIn, ErrInvalidAmount)
		return nil, false
	}
	return achieved, true
}

func (r *RoutingEngine) routeStable(ctx context.Context, out *RouteOutcome, slippageBps uint32) {
	nominal := out.Nominal.Stable
	if nominal == nil || nominal.Sign() <= 0 {
		return
	}
	achieved, ok := r.swapLeg(ctx, out, DestinationStable, r.tokens.Stable, nominal, r.treasury, slippageBps)
	if !ok {
		return
	}
	out.StableOut = achieved
}

// routeLiquidity splits the leg in half, acquires the governance and stable
// sides, then adds and stakes the position. A failure after a successful swap
// leaves the swapped tokens in custody and is recorded, never reverted.
func (r *RoutingEngine) routeLiquidity(ctx context.Context, out *RouteOutcome, slippageBps uint32) {
	nominal := out.Nominal.Liquidity
	if nominal == nil || nominal.Sign() <= 0 {
		return
	}
	govIn := new(big.Int).Quo(nominal, big.NewInt(2))
	stableIn := new(big.Int).Sub(nominal, govIn)

	govOut, govOK := r.swapLeg(ctx, out, DestinationLiquidity, r.tokens.Governance, govIn, r.self, slippageBps)
	stableOut, stableOK := r.swapLeg(ctx, out, DestinationLiquidity, r.tokens.Stable, stableIn, r.self, slippageBps)
	if !govOK || !stableOK {
		return
	}

	receipt, err := r.adapter.AddLiquidity(ctx, LiquidityRequest{
		TokenA:         r.tokens.Governance,
		TokenB:         r.tokens.Stable,
		AmountADesired: cloneBigInt(govOut),
		AmountBDesired: cloneBigInt(stableOut),
		MinA:           slippageMinOut(govOut, slippageBps),
		MinB:           slippageMinOut(stableOut, slippageBps),
		Recipient:      r.self,
	})
	if err != nil {
		r.fail(out, DestinationLiquidity, StepAddLiquidity, nominal, err)
		return
	}
	if receipt == nil || receipt.Minted == nil || receipt.Minted.Sign() <= 0 {
		r.fail(out, DestinationLiquidity, StepAddLiquidity, nominal, ErrInvalidAmount)
		return
	}
	out.LiquidityMinted = cloneBigInt(receipt.Minted)

	lpToken := receipt.LPToken
	if lpToken == "" {
		lpToken = r.tokens.LP
	}
	if err := r.adapter.StakeLiquidity(ctx, lpToken, receipt.Minted); err != nil {
		// Position exists but is unstaked; the minted units stay in custody.
		r.fail(out, DestinationLiquidity, StepStakeLiquidity, receipt.Minted, err)
	}
}

func (r *RoutingEngine) routeBurn(ctx context.Context, out *RouteOutcome, slippageBps uint32) {
	nominal := out.Nominal.Burn
	if nominal == nil || nominal.Sign() <= 0 {
		return
	}
	govOut, ok := r.swapLeg(ctx, out, DestinationBurn, r.tokens.Governance, nominal, r.self, slippageBps)
	if !ok {
		return
	}
	if err := r.custody.Burn(ctx, r.tokens.Governance, govOut); err != nil {
		// The acquired governance tokens remain in custody for a later burn.
		r.fail(out, DestinationBurn, StepBurn, govOut, err)
		return
	}
	out.Burned = govOut
}

func (r *RoutingEngine) routeStakers(ctx context.Context, out *RouteOutcome) {
	nominal := out.Nominal.Stakers
	if nominal == nil || nominal.Sign() <= 0 {
		return
	}
	if r.distributor == ([20]byte{}) {
		r.fail(out, DestinationStakers, StepTransfer, nominal, ErrZeroAddress)
		return
	}
	if err := r.custody.Transfer(ctx, r.tokens.Yield, nominal, r.distributor); err != nil {
		r.fail(out, DestinationStakers, StepTransfer, nominal, err)
		return
	}
	out.StakersOut = cloneBigInt(nominal)
}

func (r *RoutingEngine) routeCompound(ctx context.Context, out *RouteOutcome) {
	nominal := out.Nominal.Compound
	if nominal == nil || nominal.Sign() <= 0 {
		return
	}
	if err := r.custody.Transfer(ctx, r.tokens.Yield, nominal, r.treasury); err != nil {
		r.fail(out, DestinationCompound, StepTransfer, nominal, err)
		return
	}
	out.Compounded = cloneBigInt(nominal)
}

func slippageMinOut(expected *big.Int, slippageBps uint32) *big.Int {
	if expected == nil || expected.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(expected, big.NewInt(BpsDenominator-int64(slippageBps)))
	return out.Quo(out, big.NewInt(BpsDenominator))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
