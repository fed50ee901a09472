package keeper

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"embervault/native/treasury"
	"embervault/observability"
)

// Engine is the subset of the treasury engine the keeper drives.
type Engine interface {
	CanExecuteYield(ctx context.Context) (bool, *big.Int, treasury.Reason, error)
	ExecuteYield(ctx context.Context) (*treasury.ExecutionResult, error)
}

// Recorder persists completed passes.
type Recorder interface {
	RecordExecution(ctx context.Context, result *treasury.ExecutionResult) (string, error)
}

// Keeper polls the engine and triggers a pass whenever the guard allows one.
// Skips are routine: most ticks find nothing claimable or land inside the
// execution interval.
type Keeper struct {
	engine   Engine
	recorder Recorder
	metrics  *observability.TreasuryMetrics
	logger   *slog.Logger
	interval time.Duration
	decimals int
}

// Option configures optional keeper collaborators.
type Option func(*Keeper)

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics *observability.TreasuryMetrics) Option {
	return func(k *Keeper) { k.metrics = metrics }
}

// WithRecorder attaches an execution history sink.
func WithRecorder(recorder Recorder) Option {
	return func(k *Keeper) { k.recorder = recorder }
}

// New constructs a keeper polling at the given interval.
func New(engine Engine, interval time.Duration, decimals int, logger *slog.Logger, opts ...Option) *Keeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	k := &Keeper{engine: engine, logger: logger, interval: interval, decimals: decimals}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Run polls until the context is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick performs one poll-and-maybe-execute cycle.
func (k *Keeper) Tick(ctx context.Context) {
	ok, pending, reason, err := k.engine.CanExecuteYield(ctx)
	if err != nil {
		k.logger.Error("keeper: readiness check failed", "error", err)
		return
	}
	if k.metrics != nil && pending != nil {
		k.metrics.SetPendingYield(pending, k.decimals)
	}
	if !ok {
		k.logger.Debug("keeper: pass skipped", "reason", string(reason))
		return
	}
	k.execute(ctx)
}

func (k *Keeper) execute(ctx context.Context) {
	started := time.Now()
	result, err := k.engine.ExecuteYield(ctx)
	elapsed := time.Since(started)
	if err != nil && result == nil {
		if isRoutineSkip(err) {
			k.logger.Debug("keeper: pass skipped", "error", err)
			return
		}
		if k.metrics != nil {
			k.metrics.ObserveExecution("failed", elapsed)
		}
		k.logger.Error("keeper: pass failed", "error", err)
		return
	}
	outcome := "completed"
	switch {
	case result.Emergency:
		outcome = "emergency"
	case result.Degraded():
		outcome = "degraded"
	}
	if k.metrics != nil {
		k.metrics.ObserveExecution(outcome, elapsed)
		for _, partial := range result.Partials {
			k.metrics.RecordPartialFailure(partial.Destination.String(), partial.Step)
		}
		k.metrics.AddProcessed(result.TotalYield, result.AmountBurned, result.LiquidityCreated, k.decimals)
	}
	k.logger.Info("keeper: pass executed",
		"outcome", outcome,
		"total_yield", result.TotalYield.String(),
		"to_stable", result.AmountToStable.String(),
		"burned", result.AmountBurned.String(),
		"liquidity", result.LiquidityCreated.String(),
		"strategy", result.Strategy.String(),
		"regime", result.Regime,
		"partial_failures", len(result.Partials),
		"duration", elapsed.String(),
	)
	if err != nil {
		// Ledger persistence failed after the pass settled. The totals
		// survive in memory; surface the fault loudly.
		k.logger.Error("keeper: ledger persistence failed", "error", err)
	}
	if k.recorder != nil {
		if _, recErr := k.recorder.RecordExecution(ctx, result); recErr != nil {
			k.logger.Error("keeper: record execution failed", "error", recErr)
		}
	}
}

func isRoutineSkip(err error) bool {
	return errors.Is(err, treasury.ErrNoPendingYield) ||
		errors.Is(err, treasury.ErrBelowMinimumYield) ||
		errors.Is(err, treasury.ErrIntervalNotElapsed) ||
		errors.Is(err, treasury.ErrPaused) ||
		errors.Is(err, treasury.ErrReentrantExecution)
}
