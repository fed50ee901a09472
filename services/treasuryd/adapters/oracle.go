package adapters

import (
	"context"
	"math/big"
	"time"

	"embervault/native/treasury"
)

// OracleClient reads market capitalisation and treasury book value from the
// pricing service backing the market-conditional strategy.
type OracleClient struct {
	http httpClient
}

// NewOracleClient builds a market oracle for the given endpoint.
func NewOracleClient(client HTTPDoer, endpoint string, timeout time.Duration) *OracleClient {
	return &OracleClient{http: newHTTPClient(client, endpoint, timeout)}
}

var _ treasury.MarketOracle = (*OracleClient)(nil)

type marketResponse struct {
	MarketCap     string `json:"market_cap"`
	TreasuryValue string `json:"treasury_value"`
}

// MarketCap reports the fully-diluted market capitalisation in stable units.
func (o *OracleClient) MarketCap(ctx context.Context) (*big.Int, error) {
	var resp marketResponse
	if err := o.http.get(ctx, "/v1/market", &resp); err != nil {
		return nil, err
	}
	return parseAmount("market cap", resp.MarketCap)
}

// TreasuryValue reports the treasury book value in stable units.
func (o *OracleClient) TreasuryValue(ctx context.Context) (*big.Int, error) {
	var resp marketResponse
	if err := o.http.get(ctx, "/v1/market", &resp); err != nil {
		return nil, err
	}
	return parseAmount("treasury value", resp.TreasuryValue)
}
