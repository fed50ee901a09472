package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"embervault/native/treasury"
	"embervault/services/treasuryd/storage"
)

var testController = [20]byte{0x01}

type fakeEngine struct {
	pending    *big.Int
	pendingErr error
	canExecute bool
	reason     treasury.Reason
	result     *treasury.ExecutionResult
	execErr    error

	split    treasury.SplitPolicy
	strategy treasury.Strategy
	guard    treasury.GuardParams
	stats    *treasury.LedgerSnapshot

	setSplitCaller [20]byte
	setSplitErr    error
	paused         bool
}

func (f *fakeEngine) ExecuteYield(ctx context.Context) (*treasury.ExecutionResult, error) {
	return f.result, f.execErr
}

func (f *fakeEngine) PendingYield(ctx context.Context) (*big.Int, error) {
	return f.pending, f.pendingErr
}

func (f *fakeEngine) CanExecuteYield(ctx context.Context) (bool, *big.Int, treasury.Reason, error) {
	return f.canExecute, f.pending, f.reason, nil
}

func (f *fakeEngine) SplitPercentages() treasury.SplitPolicy { return f.split }
func (f *fakeEngine) ActiveStrategy() treasury.Strategy      { return f.strategy }
func (f *fakeEngine) Guard() treasury.GuardParams            { return f.guard }
func (f *fakeEngine) Statistics() *treasury.LedgerSnapshot {
	if f.stats != nil {
		return f.stats
	}
	return &treasury.LedgerSnapshot{
		TotalYieldProcessed:   big.NewInt(0),
		TotalGovernanceBurned: big.NewInt(0),
		TotalLiquidityCreated: big.NewInt(0),
	}
}

func (f *fakeEngine) SetSplit(caller [20]byte, policy treasury.SplitPolicy) error {
	f.setSplitCaller = caller
	if f.setSplitErr != nil {
		return f.setSplitErr
	}
	f.split = policy
	return nil
}

func (f *fakeEngine) SetStrategy(caller [20]byte, strategy treasury.Strategy) error {
	f.strategy = strategy
	return nil
}

func (f *fakeEngine) SetSlippageTolerance(caller [20]byte, bps uint32) error {
	f.guard.SlippageToleranceBps = bps
	return nil
}

func (f *fakeEngine) SetMinYieldAmount(caller [20]byte, amount *big.Int) error {
	f.guard.MinYieldAmount = amount
	return nil
}

func (f *fakeEngine) SetMaxExecutionAmount(caller [20]byte, amount *big.Int) error {
	f.guard.MaxExecutionAmount = amount
	return nil
}

func (f *fakeEngine) SetMinExecutionInterval(caller [20]byte, interval time.Duration) error {
	f.guard.MinExecutionInterval = interval
	return nil
}

func (f *fakeEngine) Pause(caller [20]byte) error {
	f.paused = true
	return nil
}

func (f *fakeEngine) Unpause(caller [20]byte) error {
	f.paused = false
	return nil
}

func (f *fakeEngine) SetEmergencyMode(caller [20]byte, enabled bool) error {
	f.guard.EmergencyMode = enabled
	return nil
}

type fakeHistory struct {
	records  []storage.ExecutionRecord
	recorded []*treasury.ExecutionResult
}

func (f *fakeHistory) RecentExecutions(ctx context.Context, limit int) ([]storage.ExecutionRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeHistory) RecordExecution(ctx context.Context, result *treasury.ExecutionResult) (string, error) {
	f.recorded = append(f.recorded, result)
	return "exec-1", nil
}

func newTestServer(t *testing.T, engine *fakeEngine, history *fakeHistory) *httptest.Server {
	t.Helper()
	auth, err := NewAuthenticator("secret-token")
	require.NoError(t, err)
	cfg := Config{
		ListenAddress: ":0",
		Controller:    testController,
		RateLimit:     RateLimit{RequestsPerMinute: 6000, Burst: 100},
	}
	srv, err := New(cfg, engine, history, auth, slog.Default())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func adminPost(t *testing.T, ts *httptest.Server, path, token string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, json.NewEncoder(&body).Encode(payload))
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, &body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{pending: big.NewInt(0)}, &fakeHistory{})
	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestPendingEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{pending: big.NewInt(12345)}, &fakeHistory{})
	resp, err := ts.Client().Get(ts.URL + "/v1/treasury/pending")
	require.NoError(t, err)
	require.Equal(t, "12345", decodeBody(t, resp)["pending"])
}

func TestCanExecuteReportsReason(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(10), canExecute: false, reason: treasury.ReasonBelowMinimumYield}
	ts := newTestServer(t, engine, &fakeHistory{})
	resp, err := ts.Client().Get(ts.URL + "/v1/treasury/can-execute")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	require.Equal(t, false, body["can_execute"])
	require.Equal(t, "below_minimum_yield", body["reason"])
}

func TestAdminEndpointsRequireBearer(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{pending: big.NewInt(0)}, &fakeHistory{})

	resp := adminPost(t, ts, "/v1/treasury/pause", "", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = adminPost(t, ts, "/v1/treasury/pause", "wrong-token", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = adminPost(t, ts, "/v1/treasury/pause", "secret-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, decodeBody(t, resp)["paused"])
}

func TestExecuteRecordsHistory(t *testing.T) {
	engine := &fakeEngine{
		pending: big.NewInt(1000),
		result: &treasury.ExecutionResult{
			TotalYield:       big.NewInt(1000),
			AmountToStable:   big.NewInt(250),
			AmountBurned:     big.NewInt(500),
			LiquidityCreated: big.NewInt(120),
			AmountToStakers:  big.NewInt(0),
			AmountCompounded: big.NewInt(0),
			Strategy:         treasury.StrategyFixedSplit,
			ExecutedAt:       time.Now(),
		},
	}
	history := &fakeHistory{}
	ts := newTestServer(t, engine, history)

	resp := adminPost(t, ts, "/v1/treasury/execute", "secret-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	require.Equal(t, "1000", body["total_yield"])
	require.Equal(t, "fixed_split", body["strategy"])
	require.Equal(t, false, body["degraded"])
	require.Len(t, history.recorded, 1)
}

func TestExecuteMapsGuardRefusals(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(0), execErr: treasury.ErrIntervalNotElapsed}
	ts := newTestServer(t, engine, &fakeHistory{})
	resp := adminPost(t, ts, "/v1/treasury/execute", "secret-token", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSetSplitUsesControllerPrincipal(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(0)}
	ts := newTestServer(t, engine, &fakeHistory{})

	resp := adminPost(t, ts, "/v1/treasury/split", "secret-token", map[string]uint32{
		"stable_bps":    3000,
		"liquidity_bps": 2000,
		"burn_bps":      5000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, testController, engine.setSplitCaller)
	require.Equal(t, uint32(3000), engine.split.ToStable)
}

func TestSetSplitRejectionMapsToBadRequest(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(0), setSplitErr: treasury.ErrInvalidSplit}
	ts := newTestServer(t, engine, &fakeHistory{})
	resp := adminPost(t, ts, "/v1/treasury/split", "secret-token", map[string]uint32{"stable_bps": 9999})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSetStrategyEndpoint(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(0)}
	ts := newTestServer(t, engine, &fakeHistory{})

	resp := adminPost(t, ts, "/v1/treasury/strategy", "secret-token", map[string]string{"strategy": "accumulate"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "accumulate", decodeBody(t, resp)["strategy"])
	require.Equal(t, treasury.StrategyAccumulate, engine.strategy)

	resp = adminPost(t, ts, "/v1/treasury/strategy", "secret-token", map[string]string{"strategy": "moon"})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGuardUpdateAppliesAllFields(t *testing.T) {
	engine := &fakeEngine{pending: big.NewInt(0)}
	ts := newTestServer(t, engine, &fakeHistory{})

	resp := adminPost(t, ts, "/v1/treasury/guard", "secret-token", map[string]any{
		"min_yield_amount":       "100",
		"max_execution_amount":   "10000",
		"min_execution_interval": "30m",
		"slippage_tolerance_bps": 75,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Zero(t, engine.guard.MinYieldAmount.Cmp(big.NewInt(100)))
	require.Zero(t, engine.guard.MaxExecutionAmount.Cmp(big.NewInt(10000)))
	require.Equal(t, 30*time.Minute, engine.guard.MinExecutionInterval)
	require.Equal(t, uint32(75), engine.guard.SlippageToleranceBps)
}

func TestExecutionsEndpoint(t *testing.T) {
	history := &fakeHistory{records: []storage.ExecutionRecord{
		{ID: "a", TotalYield: "1000", Strategy: "fixed_split", ExecutedAt: time.Now()},
		{ID: "b", TotalYield: "900", Strategy: "fixed_split", ExecutedAt: time.Now().Add(-time.Hour)},
	}}
	ts := newTestServer(t, &fakeEngine{pending: big.NewInt(0)}, history)

	resp, err := ts.Client().Get(ts.URL + "/v1/treasury/executions?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	require.Equal(t, "a", body[0]["id"])

	resp, err = ts.Client().Get(ts.URL + "/v1/treasury/executions?limit=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParseBearerToken(t *testing.T) {
	require.Equal(t, "abc", parseBearerToken("Bearer abc"))
	require.Equal(t, "abc", parseBearerToken("bearer abc"))
	require.Equal(t, "", parseBearerToken("Basic abc"))
	require.Equal(t, "", parseBearerToken(""))
}
