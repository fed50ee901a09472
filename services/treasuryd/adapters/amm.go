package adapters

import (
	"context"
	"math/big"
	"time"

	"embervault/native/treasury"
)

// RouterClient drives the AMM router's swap and liquidity API over HTTP.
type RouterClient struct {
	http httpClient
}

// NewRouterClient builds a liquidity adapter for the given endpoint.
func NewRouterClient(client HTTPDoer, endpoint string, timeout time.Duration) *RouterClient {
	return &RouterClient{http: newHTTPClient(client, endpoint, timeout)}
}

var _ treasury.LiquidityAdapter = (*RouterClient)(nil)

type quoteRequest struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	AmountIn string `json:"amount_in"`
}

type quoteResponse struct {
	AmountOut string `json:"amount_out"`
}

type swapRequest struct {
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Recipient    string `json:"recipient"`
}

type swapResponse struct {
	AmountOut string `json:"amount_out"`
}

type addLiquidityRequest struct {
	TokenA         string `json:"token_a"`
	TokenB         string `json:"token_b"`
	AmountADesired string `json:"amount_a_desired"`
	AmountBDesired string `json:"amount_b_desired"`
	MinA           string `json:"min_a"`
	MinB           string `json:"min_b"`
	Recipient      string `json:"recipient"`
}

type addLiquidityResponse struct {
	UsedA   string `json:"used_a"`
	UsedB   string `json:"used_b"`
	Minted  string `json:"minted"`
	LPToken string `json:"lp_token"`
}

type gaugeRequest struct {
	LPToken string `json:"lp_token"`
	Amount  string `json:"amount"`
}

// ExpectedOutput quotes a prospective swap without moving value.
func (r *RouterClient) ExpectedOutput(ctx context.Context, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	req := quoteRequest{TokenIn: tokenIn, TokenOut: tokenOut, AmountIn: formatAmount(amountIn)}
	var resp quoteResponse
	if err := r.http.post(ctx, "/v1/quote", req, &resp); err != nil {
		return nil, err
	}
	return parseAmount("quote", resp.AmountOut)
}

// Swap executes a swap under the request's minimum-output bound.
func (r *RouterClient) Swap(ctx context.Context, req treasury.SwapRequest) (*big.Int, error) {
	wire := swapRequest{
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     formatAmount(req.AmountIn),
		MinAmountOut: formatAmount(req.MinAmountOut),
		Recipient:    formatAddress(req.Recipient),
	}
	var resp swapResponse
	if err := r.http.post(ctx, "/v1/swap", wire, &resp); err != nil {
		return nil, err
	}
	return parseAmount("swap output", resp.AmountOut)
}

// AddLiquidity supplies a token pair to the pool under per-leg minimums.
func (r *RouterClient) AddLiquidity(ctx context.Context, req treasury.LiquidityRequest) (*treasury.LiquidityReceipt, error) {
	wire := addLiquidityRequest{
		TokenA:         req.TokenA,
		TokenB:         req.TokenB,
		AmountADesired: formatAmount(req.AmountADesired),
		AmountBDesired: formatAmount(req.AmountBDesired),
		MinA:           formatAmount(req.MinA),
		MinB:           formatAmount(req.MinB),
		Recipient:      formatAddress(req.Recipient),
	}
	var resp addLiquidityResponse
	if err := r.http.post(ctx, "/v1/liquidity/add", wire, &resp); err != nil {
		return nil, err
	}
	usedA, err := parseAmount("used_a", resp.UsedA)
	if err != nil {
		return nil, err
	}
	usedB, err := parseAmount("used_b", resp.UsedB)
	if err != nil {
		return nil, err
	}
	minted, err := parseAmount("minted", resp.Minted)
	if err != nil {
		return nil, err
	}
	return &treasury.LiquidityReceipt{UsedA: usedA, UsedB: usedB, Minted: minted, LPToken: resp.LPToken}, nil
}

// StakeLiquidity stakes minted liquidity units with the venue's gauge.
func (r *RouterClient) StakeLiquidity(ctx context.Context, lpToken string, amount *big.Int) error {
	return r.http.post(ctx, "/v1/liquidity/stake", gaugeRequest{LPToken: lpToken, Amount: formatAmount(amount)}, nil)
}

// UnstakeLiquidity withdraws previously staked liquidity units.
func (r *RouterClient) UnstakeLiquidity(ctx context.Context, lpToken string, amount *big.Int) error {
	return r.http.post(ctx, "/v1/liquidity/unstake", gaugeRequest{LPToken: lpToken, Amount: formatAmount(amount)}, nil)
}
