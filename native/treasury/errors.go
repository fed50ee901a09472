package treasury

import "errors"

var (
	// ErrPaused indicates the engine pause toggle blocked an execution pass.
	ErrPaused = errors.New("treasury: paused")
	// ErrNoPendingYield indicates the staking venue reported nothing to claim.
	ErrNoPendingYield = errors.New("treasury: no pending yield")
	// ErrBelowMinimumYield indicates the pending amount did not reach the
	// configured execution floor.
	ErrBelowMinimumYield = errors.New("treasury: below minimum yield")
	// ErrIntervalNotElapsed indicates the rate limit between passes has not
	// yet expired.
	ErrIntervalNotElapsed = errors.New("treasury: execution interval not elapsed")
	// ErrReentrantExecution indicates a pass attempted to start while another
	// pass was in flight.
	ErrReentrantExecution = errors.New("treasury: reentrant execution")
	// ErrInvalidSplit indicates a split update whose fractions do not sum to
	// exactly the basis-point denominator.
	ErrInvalidSplit = errors.New("treasury: invalid split configuration")
	// ErrSlippageOutOfRange indicates a slippage tolerance above the hard cap.
	ErrSlippageOutOfRange = errors.New("treasury: slippage tolerance out of range")
	// ErrInvalidStrategy indicates an unknown strategy variant.
	ErrInvalidStrategy = errors.New("treasury: invalid strategy")
	// ErrUnauthorized indicates the caller is not the configured controller.
	ErrUnauthorized = errors.New("treasury: unauthorized")
	// ErrZeroAddress indicates a required address argument was unset.
	ErrZeroAddress = errors.New("treasury: zero address")
	// ErrInvalidAmount indicates a non-positive amount argument.
	ErrInvalidAmount = errors.New("treasury: invalid amount")
	// ErrNotConfigured indicates the engine was used before mandatory
	// collaborators were wired.
	ErrNotConfigured = errors.New("treasury: engine not configured")
)
