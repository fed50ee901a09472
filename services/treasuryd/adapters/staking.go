package adapters

import (
	"context"
	"math/big"
	"time"

	"embervault/native/treasury"
)

// StakingClient drives the liquid-staking venue's claim API over HTTP.
type StakingClient struct {
	http httpClient
}

// NewStakingClient builds a staking adapter for the given endpoint. A nil
// client falls back to a default http.Client with the supplied timeout.
func NewStakingClient(client HTTPDoer, endpoint string, timeout time.Duration) *StakingClient {
	return &StakingClient{http: newHTTPClient(client, endpoint, timeout)}
}

var _ treasury.StakingAdapter = (*StakingClient)(nil)

type pendingYieldResponse struct {
	Amount string `json:"amount"`
	Token  string `json:"token"`
}

type claimRequest struct {
	Amount string `json:"amount,omitempty"`
}

type claimResponse struct {
	Claims []struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	} `json:"claims"`
}

// PendingYield reports the claimable yield-token balance at the venue.
func (s *StakingClient) PendingYield(ctx context.Context) (*big.Int, error) {
	var resp pendingYieldResponse
	if err := s.http.get(ctx, "/v1/rewards/pending", &resp); err != nil {
		return nil, err
	}
	return parseAmount("pending yield", resp.Amount)
}

// ClaimRewards asks the venue to transfer up to amount of claimable yield to
// custody. A nil amount claims everything pending.
func (s *StakingClient) ClaimRewards(ctx context.Context, amount *big.Int) ([]treasury.RewardClaim, error) {
	req := claimRequest{}
	if amount != nil && amount.Sign() > 0 {
		req.Amount = amount.String()
	}
	var resp claimResponse
	if err := s.http.post(ctx, "/v1/rewards/claim", req, &resp); err != nil {
		return nil, err
	}
	claims := make([]treasury.RewardClaim, 0, len(resp.Claims))
	for _, claim := range resp.Claims {
		parsed, err := parseAmount("claim", claim.Amount)
		if err != nil {
			return nil, err
		}
		claims = append(claims, treasury.RewardClaim{Token: claim.Token, Amount: parsed})
	}
	return claims, nil
}
