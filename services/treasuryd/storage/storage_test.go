package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"embervault/native/treasury"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "treasuryd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrPathRequired)
}

func TestKVRoundTrip(t *testing.T) {
	store := openTestStorage(t)

	type payload struct {
		Total  *big.Int
		Height uint64
	}
	key := []byte("treasury/ledger")

	var missing payload
	found, err := store.KVGet(key, &missing)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.KVPut(key, payload{Total: big.NewInt(1300), Height: 7}))

	var loaded payload
	found, err = store.KVGet(key, &loaded)
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, loaded.Total.Cmp(big.NewInt(1300)))
	require.Equal(t, uint64(7), loaded.Height)

	require.NoError(t, store.KVPut(key, payload{Total: big.NewInt(2000), Height: 9}))
	found, err = store.KVGet(key, &loaded)
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, loaded.Total.Cmp(big.NewInt(2000)))
}

func TestLedgerPersistsThroughStorage(t *testing.T) {
	store := openTestStorage(t)

	ledger, err := treasury.NewLedger(store)
	require.NoError(t, err)
	executedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err = ledger.Apply(big.NewInt(1000), big.NewInt(500), big.NewInt(135), executedAt, 42)
	require.NoError(t, err)

	reloaded, err := treasury.NewLedger(store)
	require.NoError(t, err)
	snapshot := reloaded.Snapshot()
	require.Zero(t, snapshot.TotalYieldProcessed.Cmp(big.NewInt(1000)))
	require.Zero(t, snapshot.TotalGovernanceBurned.Cmp(big.NewInt(500)))
	require.Zero(t, snapshot.TotalLiquidityCreated.Cmp(big.NewInt(135)))
	require.Equal(t, executedAt, snapshot.LastExecutionTime)
	require.Equal(t, uint64(42), snapshot.LastExecutionHeight)
}

func TestExecutionHistoryOrdering(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		result := &treasury.ExecutionResult{
			TotalYield:       big.NewInt(int64(1000 + i)),
			AmountToStable:   big.NewInt(250),
			AmountBurned:     big.NewInt(500),
			LiquidityCreated: big.NewInt(120),
			AmountToStakers:  big.NewInt(0),
			AmountCompounded: big.NewInt(0),
			Strategy:         treasury.StrategyFixedSplit,
			Regime:           "",
			ExecutedAt:       base.Add(time.Duration(i) * time.Hour),
			Height:           uint64(100 + i),
		}
		id, err := store.RecordExecution(ctx, result)
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	records, err := store.RecentExecutions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "1002", records[0].TotalYield)
	require.Equal(t, "1001", records[1].TotalYield)
	require.Equal(t, uint64(102), records[0].Height)
	require.False(t, records[0].Emergency)
}

func TestRecordExecutionCapturesDegradedPass(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	result := &treasury.ExecutionResult{
		TotalYield: big.NewInt(1000),
		Strategy:   treasury.StrategyMarketConditional,
		Regime:     "within_band_distribute",
		ExecutedAt: time.Now(),
		Partials: []treasury.PartialFailure{
			{Destination: treasury.DestinationStable, Step: treasury.StepSwap, Nominal: big.NewInt(250), Reason: "router down"},
		},
	}
	_, err := store.RecordExecution(ctx, result)
	require.NoError(t, err)

	records, err := store.RecentExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, records[0].PartialFailures)
	require.Equal(t, "market_conditional", records[0].Strategy)
	require.Equal(t, "within_band_distribute", records[0].Regime)
	require.Equal(t, "0", records[0].AmountToStable)
}
