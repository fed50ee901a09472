package adapters

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"embervault/native/treasury"
)

// CustodyClient drives the custody service holding the orchestrator's token
// balances between claim and routing.
type CustodyClient struct {
	http httpClient
}

// NewCustodyClient builds a custody adapter for the given endpoint.
func NewCustodyClient(client HTTPDoer, endpoint string, timeout time.Duration) *CustodyClient {
	return &CustodyClient{http: newHTTPClient(client, endpoint, timeout)}
}

var _ treasury.Custody = (*CustodyClient)(nil)

type transferRequest struct {
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type burnRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type balanceResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Transfer moves custody funds to the recipient.
func (c *CustodyClient) Transfer(ctx context.Context, token string, amount *big.Int, recipient [20]byte) error {
	req := transferRequest{Token: token, Amount: formatAmount(amount), Recipient: formatAddress(recipient)}
	return c.http.post(ctx, "/v1/transfer", req, nil)
}

// Burn destroys custody funds irreversibly.
func (c *CustodyClient) Burn(ctx context.Context, token string, amount *big.Int) error {
	return c.http.post(ctx, "/v1/burn", burnRequest{Token: token, Amount: formatAmount(amount)}, nil)
}

// Balance reports the custody balance for a token.
func (c *CustodyClient) Balance(ctx context.Context, token string) (*big.Int, error) {
	var resp balanceResponse
	path := fmt.Sprintf("/v1/balance?token=%s", url.QueryEscape(token))
	if err := c.http.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return parseAmount("balance", resp.Amount)
}
