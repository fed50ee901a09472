package treasury

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func testGuard() GuardParams {
	return GuardParams{
		MinYieldAmount:       big.NewInt(100),
		MaxExecutionAmount:   big.NewInt(10_000),
		MinExecutionInterval: time.Hour,
		SlippageToleranceBps: 50,
	}
}

func TestGuardCanExecute(t *testing.T) {
	guard := testGuard()
	now := time.Unix(1_700_000_000, 0)

	if ok, reason := guard.CanExecute(big.NewInt(500), now, time.Time{}); !ok || reason != ReasonNone {
		t.Fatalf("expected allowed, got reason %q", reason)
	}

	if ok, reason := guard.CanExecute(big.NewInt(0), now, time.Time{}); ok || reason != ReasonNoPendingYield {
		t.Fatalf("zero pending: got (%v, %q)", ok, reason)
	}
	if ok, reason := guard.CanExecute(big.NewInt(50), now, time.Time{}); ok || reason != ReasonBelowMinimumYield {
		t.Fatalf("below min: got (%v, %q)", ok, reason)
	}
	if ok, reason := guard.CanExecute(big.NewInt(500), now, now.Add(-30*time.Minute)); ok || reason != ReasonIntervalNotElapsed {
		t.Fatalf("too soon: got (%v, %q)", ok, reason)
	}
	if ok, _ := guard.CanExecute(big.NewInt(500), now, now.Add(-2*time.Hour)); !ok {
		t.Fatal("interval elapsed: expected allowed")
	}

	guard.Paused = true
	if ok, reason := guard.CanExecute(big.NewInt(500), now, time.Time{}); ok || reason != ReasonPaused {
		t.Fatalf("paused: got (%v, %q)", ok, reason)
	}
}

func TestGuardReasonErrors(t *testing.T) {
	if err := ReasonNone.Err(); err != nil {
		t.Fatalf("ReasonNone should map to nil, got %v", err)
	}
	pairs := map[Reason]error{
		ReasonPaused:             ErrPaused,
		ReasonNoPendingYield:     ErrNoPendingYield,
		ReasonBelowMinimumYield:  ErrBelowMinimumYield,
		ReasonIntervalNotElapsed: ErrIntervalNotElapsed,
	}
	for reason, want := range pairs {
		if err := reason.Err(); !errors.Is(err, want) {
			t.Fatalf("reason %q mapped to %v, want %v", reason, err, want)
		}
	}
}

func TestGuardCapAmount(t *testing.T) {
	guard := testGuard()
	if got := guard.CapAmount(big.NewInt(50_000)); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("capped = %s, want 10000", got)
	}
	if got := guard.CapAmount(big.NewInt(500)); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("uncapped = %s, want 500", got)
	}
	guard.MaxExecutionAmount = big.NewInt(0)
	if got := guard.CapAmount(big.NewInt(50_000)); got.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("zero cap must disable capping, got %s", got)
	}
}

func TestGuardMinOut(t *testing.T) {
	guard := testGuard()
	// 50 bps off 10,000 leaves 9,950.
	if got := guard.MinOut(big.NewInt(10_000)); got.Cmp(big.NewInt(9_950)) != 0 {
		t.Fatalf("min out = %s, want 9950", got)
	}
	if got := guard.MinOut(nil); got.Sign() != 0 {
		t.Fatalf("nil expected should yield zero, got %s", got)
	}
}

func TestGuardValidate(t *testing.T) {
	guard := testGuard()
	if err := guard.Validate(); err != nil {
		t.Fatalf("valid guard rejected: %v", err)
	}
	guard.SlippageToleranceBps = MaxSlippageToleranceBps + 1
	if err := guard.Validate(); !errors.Is(err, ErrSlippageOutOfRange) {
		t.Fatalf("expected ErrSlippageOutOfRange, got %v", err)
	}
	guard = testGuard()
	guard.MinYieldAmount = big.NewInt(-1)
	if err := guard.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGuardCloneIsDeep(t *testing.T) {
	guard := testGuard()
	clone := guard.Clone()
	clone.MinYieldAmount.SetInt64(999)
	if guard.MinYieldAmount.Cmp(big.NewInt(100)) != 0 {
		t.Fatal("clone shares MinYieldAmount pointer")
	}
}
