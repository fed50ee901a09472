package keeper

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"embervault/native/treasury"
)

type fakeEngine struct {
	ready      bool
	pending    *big.Int
	reason     treasury.Reason
	readyErr   error
	result     *treasury.ExecutionResult
	execErr    error
	execCalls  int
	readyCalls int
}

func (f *fakeEngine) CanExecuteYield(ctx context.Context) (bool, *big.Int, treasury.Reason, error) {
	f.readyCalls++
	return f.ready, f.pending, f.reason, f.readyErr
}

func (f *fakeEngine) ExecuteYield(ctx context.Context) (*treasury.ExecutionResult, error) {
	f.execCalls++
	return f.result, f.execErr
}

type fakeRecorder struct {
	recorded []*treasury.ExecutionResult
	err      error
}

func (f *fakeRecorder) RecordExecution(ctx context.Context, result *treasury.ExecutionResult) (string, error) {
	f.recorded = append(f.recorded, result)
	return "exec-1", f.err
}

func testResult() *treasury.ExecutionResult {
	return &treasury.ExecutionResult{
		TotalYield:       big.NewInt(1000),
		AmountToStable:   big.NewInt(250),
		AmountBurned:     big.NewInt(500),
		LiquidityCreated: big.NewInt(120),
		AmountToStakers:  big.NewInt(0),
		AmountCompounded: big.NewInt(0),
		Strategy:         treasury.StrategyFixedSplit,
		ExecutedAt:       time.Now(),
	}
}

func newTestKeeper(engine Engine, recorder Recorder) *Keeper {
	return New(engine, time.Minute, 18, slog.Default(), WithRecorder(recorder))
}

func TestTickSkipsWhenGuardDenies(t *testing.T) {
	engine := &fakeEngine{ready: false, pending: big.NewInt(50), reason: treasury.ReasonBelowMinimumYield}
	recorder := &fakeRecorder{}
	k := newTestKeeper(engine, recorder)

	k.Tick(context.Background())

	require.Equal(t, 1, engine.readyCalls)
	require.Zero(t, engine.execCalls)
	require.Empty(t, recorder.recorded)
}

func TestTickExecutesAndRecords(t *testing.T) {
	engine := &fakeEngine{ready: true, pending: big.NewInt(1000), result: testResult()}
	recorder := &fakeRecorder{}
	k := newTestKeeper(engine, recorder)

	k.Tick(context.Background())

	require.Equal(t, 1, engine.execCalls)
	require.Len(t, recorder.recorded, 1)
	require.Zero(t, recorder.recorded[0].TotalYield.Cmp(big.NewInt(1000)))
}

func TestTickRecordsDespitePersistError(t *testing.T) {
	engine := &fakeEngine{
		ready:   true,
		pending: big.NewInt(1000),
		result:  testResult(),
		execErr: treasury.ErrInvalidAmount,
	}
	recorder := &fakeRecorder{}
	k := newTestKeeper(engine, recorder)

	k.Tick(context.Background())

	require.Len(t, recorder.recorded, 1)
}

func TestTickDoesNotRecordHardFailure(t *testing.T) {
	engine := &fakeEngine{ready: true, pending: big.NewInt(1000), execErr: treasury.ErrReentrantExecution}
	recorder := &fakeRecorder{}
	k := newTestKeeper(engine, recorder)

	k.Tick(context.Background())

	require.Equal(t, 1, engine.execCalls)
	require.Empty(t, recorder.recorded)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	engine := &fakeEngine{ready: false, reason: treasury.ReasonNoPendingYield}
	k := New(engine, 10*time.Millisecond, 18, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := k.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, engine.readyCalls, 1)
}
