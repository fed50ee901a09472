package treasury

import (
	"fmt"
	"math/big"
	"time"
)

// MaxSlippageToleranceBps caps the configurable slippage bound at 10%.
const MaxSlippageToleranceBps = 1_000

// Reason explains why the execution guard refused a pass. The empty reason
// means execution is permitted.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonPaused             Reason = "paused"
	ReasonNoPendingYield     Reason = "no_pending_yield"
	ReasonBelowMinimumYield  Reason = "below_minimum_yield"
	ReasonIntervalNotElapsed Reason = "interval_not_elapsed"
)

// Err maps the guard reason to its sentinel error, or nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonPaused:
		return ErrPaused
	case ReasonNoPendingYield:
		return ErrNoPendingYield
	case ReasonBelowMinimumYield:
		return ErrBelowMinimumYield
	case ReasonIntervalNotElapsed:
		return ErrIntervalNotElapsed
	default:
		return fmt.Errorf("treasury: execution refused: %s", string(r))
	}
}

// GuardParams bound when and how much yield one execution pass may process.
type GuardParams struct {
	// MinYieldAmount is the floor below which a pass is refused outright.
	MinYieldAmount *big.Int
	// MaxExecutionAmount caps the amount processed per pass. Surplus is not
	// refused; it stays pending for a later pass.
	MaxExecutionAmount *big.Int
	// MinExecutionInterval is the minimum spacing between passes.
	MinExecutionInterval time.Duration
	// SlippageToleranceBps bounds acceptable swap slippage, capped at
	// MaxSlippageToleranceBps.
	SlippageToleranceBps uint32
	// Paused blocks execution entirely.
	Paused bool
	// EmergencyMode bypasses all swap and liquidity routing, forwarding
	// claimed yield straight to the treasury reserve.
	EmergencyMode bool
}

// DefaultGuardParams returns conservative genesis parameters: execution
// enabled, no floor, no cap, hourly spacing, 0.5% slippage.
func DefaultGuardParams() GuardParams {
	return GuardParams{
		MinYieldAmount:       big.NewInt(0),
		MaxExecutionAmount:   big.NewInt(0),
		MinExecutionInterval: time.Hour,
		SlippageToleranceBps: 50,
	}
}

// Validate ensures the parameters fall within acceptable bounds.
func (g GuardParams) Validate() error {
	if g.SlippageToleranceBps > MaxSlippageToleranceBps {
		return fmt.Errorf("%w: %d bps exceeds cap %d", ErrSlippageOutOfRange, g.SlippageToleranceBps, MaxSlippageToleranceBps)
	}
	if g.MinYieldAmount != nil && g.MinYieldAmount.Sign() < 0 {
		return fmt.Errorf("%w: minimum yield cannot be negative", ErrInvalidAmount)
	}
	if g.MaxExecutionAmount != nil && g.MaxExecutionAmount.Sign() < 0 {
		return fmt.Errorf("%w: execution cap cannot be negative", ErrInvalidAmount)
	}
	if g.MinExecutionInterval < 0 {
		return fmt.Errorf("treasury: execution interval cannot be negative")
	}
	return nil
}

// CanExecute reports whether a pass may run given the pending amount, the
// current time, and the time of the last completed pass. It is pure and free
// of side effects so keepers can call it for planning.
func (g GuardParams) CanExecute(pending *big.Int, now, lastExecution time.Time) (bool, Reason) {
	if g.Paused {
		return false, ReasonPaused
	}
	if pending == nil || pending.Sign() <= 0 {
		return false, ReasonNoPendingYield
	}
	if g.MinYieldAmount != nil && g.MinYieldAmount.Sign() > 0 && pending.Cmp(g.MinYieldAmount) < 0 {
		return false, ReasonBelowMinimumYield
	}
	if g.MinExecutionInterval > 0 && !lastExecution.IsZero() && now.Sub(lastExecution) < g.MinExecutionInterval {
		return false, ReasonIntervalNotElapsed
	}
	return true, ReasonNone
}

// CapAmount bounds the pending amount by the per-pass execution cap. A zero
// or nil cap means uncapped.
func (g GuardParams) CapAmount(pending *big.Int) *big.Int {
	if pending == nil {
		return big.NewInt(0)
	}
	amount := new(big.Int).Set(pending)
	if g.MaxExecutionAmount != nil && g.MaxExecutionAmount.Sign() > 0 && amount.Cmp(g.MaxExecutionAmount) > 0 {
		amount.Set(g.MaxExecutionAmount)
	}
	return amount
}

// MinOut applies the slippage tolerance to an expected swap output.
func (g GuardParams) MinOut(expected *big.Int) *big.Int {
	return slippageMinOut(expected, g.SlippageToleranceBps)
}

// Clone deep-copies the parameters so callers cannot mutate shared big.Int
// pointers.
func (g GuardParams) Clone() GuardParams {
	clone := g
	if g.MinYieldAmount != nil {
		clone.MinYieldAmount = new(big.Int).Set(g.MinYieldAmount)
	}
	if g.MaxExecutionAmount != nil {
		clone.MaxExecutionAmount = new(big.Int).Set(g.MaxExecutionAmount)
	}
	return clone
}
