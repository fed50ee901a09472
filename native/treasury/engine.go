package treasury

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"embervault/core/events"
	"embervault/core/types"
)

// DefaultMCThresholdBps is the genesis market-cap threshold multiplier for
// the market-conditional strategy (130% of treasury book value).
const DefaultMCThresholdBps = 13_000

// ExecutionResult is the breakdown of one pass: the amounts actually
// achieved per destination. It is always produced, even when sub-steps
// degraded to zero.
type ExecutionResult struct {
	TotalYield       *big.Int
	AmountToStable   *big.Int
	AmountBurned     *big.Int
	LiquidityCreated *big.Int
	AmountToStakers  *big.Int
	AmountCompounded *big.Int
	Strategy         Strategy
	Regime           string
	Emergency        bool
	Partials         []PartialFailure
	ExecutedAt       time.Time
	Height           uint64
}

// Degraded reports whether any destination fell short of nominal.
func (r *ExecutionResult) Degraded() bool {
	return r != nil && len(r.Partials) > 0
}

// EngineConfig names the principals and tokens the engine operates with.
type EngineConfig struct {
	// Controller is the sole principal allowed to mutate configuration.
	Controller [20]byte
	// Orchestrator is the engine's own custody address, the recipient of
	// intermediate swap legs.
	Orchestrator [20]byte
	// Treasury receives compounded yield, stable conversions, and the
	// emergency-mode bypass.
	Treasury [20]byte
	// StakerDistributor receives the staker distribution leg. May be unset
	// when the split never routes to stakers.
	StakerDistributor [20]byte
	// Tokens names the symbols moved by the routing engine.
	Tokens TokenSet
}

// Engine is the yield distribution orchestrator. One ExecuteYield pass
// claims pending yield from the staking venue, routes it per the active
// strategy, and settles the accounting ledger. Configuration mutations are
// controller-gated; execution is open to any keeper and protected by the
// execution guard.
type Engine struct {
	mu       sync.Mutex
	inFlight bool

	controller  [20]byte
	self        [20]byte
	treasury    [20]byte
	distributor [20]byte
	tokens      TokenSet

	staking StakingAdapter
	custody Custody
	routing *RoutingEngine
	oracle  MarketOracle

	policy         SplitPolicy
	strategy       Strategy
	guard          GuardParams
	mcThresholdBps uint32

	ledger  *Ledger
	emitter events.Emitter
	nowFn   func() time.Time
	height  func() uint64
}

// NewEngine wires an orchestrator over its collaborators. The store may be
// nil for an in-memory ledger.
func NewEngine(cfg EngineConfig, staking StakingAdapter, liquidity LiquidityAdapter, custody Custody, store Storage) (*Engine, error) {
	if staking == nil || liquidity == nil || custody == nil {
		return nil, ErrNotConfigured
	}
	if cfg.Controller == ([20]byte{}) || cfg.Orchestrator == ([20]byte{}) || cfg.Treasury == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	tokens := cfg.Tokens.Normalize()
	if err := tokens.Validate(); err != nil {
		return nil, err
	}
	ledger, err := NewLedger(store)
	if err != nil {
		return nil, err
	}
	engine := &Engine{
		controller:     cfg.Controller,
		self:           cfg.Orchestrator,
		treasury:       cfg.Treasury,
		distributor:    cfg.StakerDistributor,
		tokens:         tokens,
		staking:        staking,
		custody:        custody,
		policy:         DefaultSplitPolicy(),
		strategy:       StrategyFixedSplit,
		guard:          DefaultGuardParams(),
		mcThresholdBps: DefaultMCThresholdBps,
		ledger:         ledger,
		emitter:        events.NoopEmitter{},
		nowFn:          time.Now,
		height:         func() uint64 { return 0 },
	}
	routing, err := NewRoutingEngine(liquidity, custody, tokens, cfg.Orchestrator, cfg.Treasury, cfg.StakerDistributor, engine.emitEvent)
	if err != nil {
		return nil, err
	}
	engine.routing = routing
	return engine, nil
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the engine clock, primarily for deterministic testing.
func (e *Engine) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nowFn = now
}

// SetHeightFunc configures the block-height source recorded on each pass.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if height == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.height = height
}

// SetMarketOracle wires the oracle consulted by the market-conditional
// strategy. A nil oracle downgrades that strategy to the nominal split.
func (e *Engine) SetMarketOracle(oracle MarketOracle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oracle = oracle
}

func (e *Engine) emitEvent(evt *types.Event) {
	if e == nil || evt == nil {
		return
	}
	e.mu.Lock()
	emitter := e.emitter
	e.mu.Unlock()
	if emitter == nil {
		return
	}
	emitter.Emit(treasuryEvent{evt: evt})
}

func (e *Engine) now() time.Time {
	e.mu.Lock()
	nowFn := e.nowFn
	e.mu.Unlock()
	if nowFn == nil {
		return time.Now()
	}
	return nowFn()
}

func (e *Engine) authorize(caller [20]byte) error {
	if caller == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.mu.Lock()
	controller := e.controller
	e.mu.Unlock()
	if caller != controller {
		return ErrUnauthorized
	}
	return nil
}

// ExecuteYield runs one full pass: guard evaluation, claim, routing, and
// ledger settlement. After the claim the pass is committed; routing failures
// degrade to partial results and the ledger always settles.
func (e *Engine) ExecuteYield(ctx context.Context) (*ExecutionResult, error) {
	if e == nil || e.staking == nil {
		return nil, ErrNotConfigured
	}
	e.mu.Lock()
	if e.inFlight {
		e.mu.Unlock()
		return nil, ErrReentrantExecution
	}
	e.inFlight = true
	guard := e.guard.Clone()
	policy := e.policy
	strategy := e.strategy
	threshold := e.mcThresholdBps
	oracle := e.oracle
	heightFn := e.height
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight = false
		e.mu.Unlock()
	}()

	now := e.now()
	pending, err := e.staking.PendingYield(ctx)
	if err != nil {
		return nil, fmt.Errorf("treasury: pending yield: %w", err)
	}
	if ok, reason := guard.CanExecute(pending, now, e.ledger.LastExecution()); !ok {
		return nil, reason.Err()
	}
	amount := guard.CapAmount(pending)

	claims, err := e.staking.ClaimRewards(ctx, amount)
	if err != nil {
		// Nothing has moved yet; aborting here leaves no state to settle.
		return nil, fmt.Errorf("treasury: claim rewards: %w", err)
	}
	claimed := claimedYield(claims, e.tokens.Yield)
	if claimed.Sign() == 0 {
		return nil, ErrNoPendingYield
	}
	if claimed.Cmp(amount) < 0 {
		// The venue under-delivered; never route more than was received.
		amount = claimed
	}

	result := &ExecutionResult{
		TotalYield:       cloneBigInt(amount),
		AmountToStable:   big.NewInt(0),
		AmountBurned:     big.NewInt(0),
		LiquidityCreated: big.NewInt(0),
		AmountToStakers:  big.NewInt(0),
		AmountCompounded: big.NewInt(0),
		Strategy:         strategy,
		ExecutedAt:       now,
		Height:           heightFn(),
	}

	if guard.EmergencyMode {
		e.executeEmergency(ctx, result, amount)
	} else {
		applied, regime := resolvePolicy(ctx, strategy, policy, oracle, threshold)
		result.Regime = regime
		outcome := e.routing.Route(ctx, amount, applied, guard.SlippageToleranceBps)
		result.AmountToStable = outcome.StableOut
		result.AmountBurned = outcome.Burned
		result.LiquidityCreated = outcome.LiquidityMinted
		result.AmountToStakers = outcome.StakersOut
		result.AmountCompounded = outcome.Compounded
		result.Partials = outcome.Partials
	}

	// The ledger settles unconditionally once a claim happened, so custody
	// and accounting can never desynchronise.
	_, persistErr := e.ledger.Apply(amount, result.AmountBurned, result.LiquidityCreated, now, result.Height)
	e.emitEvent(NewExecutedEvent(result))
	if persistErr != nil {
		return result, persistErr
	}
	return result, nil
}

// executeEmergency forwards the entire claim straight to the treasury,
// bypassing the swap/liquidity adapter, and records it as compounded.
func (e *Engine) executeEmergency(ctx context.Context, result *ExecutionResult, amount *big.Int) {
	result.Emergency = true
	if err := e.custody.Transfer(ctx, e.tokens.Yield, amount, e.treasury); err != nil {
		failure := PartialFailure{
			Destination: DestinationCompound,
			Step:        StepTransfer,
			Nominal:     cloneBigInt(amount),
			Reason:      err.Error(),
		}
		result.Partials = append(result.Partials, failure)
		e.emitEvent(NewPartialFailureEvent(failure))
		return
	}
	result.AmountCompounded = cloneBigInt(amount)
}

func claimedYield(claims []RewardClaim, yieldToken string) *big.Int {
	total := big.NewInt(0)
	for _, claim := range claims {
		if normalizeSymbol(claim.Token) != yieldToken {
			continue
		}
		if claim.Amount != nil && claim.Amount.Sign() > 0 {
			total.Add(total, claim.Amount)
		}
	}
	return total
}

// PendingYield reports the currently claimable amount from the staking venue.
func (e *Engine) PendingYield(ctx context.Context) (*big.Int, error) {
	if e == nil || e.staking == nil {
		return nil, ErrNotConfigured
	}
	pending, err := e.staking.PendingYield(ctx)
	if err != nil {
		return nil, fmt.Errorf("treasury: pending yield: %w", err)
	}
	return cloneBigInt(pending), nil
}

// CanExecuteYield evaluates the guard against live pending yield without any
// side effects. Keepers use it to plan execution.
func (e *Engine) CanExecuteYield(ctx context.Context) (bool, *big.Int, Reason, error) {
	if e == nil || e.staking == nil {
		return false, nil, ReasonNone, ErrNotConfigured
	}
	pending, err := e.staking.PendingYield(ctx)
	if err != nil {
		return false, nil, ReasonNone, fmt.Errorf("treasury: pending yield: %w", err)
	}
	e.mu.Lock()
	guard := e.guard.Clone()
	e.mu.Unlock()
	allowed, reason := guard.CanExecute(pending, e.now(), e.ledger.LastExecution())
	return allowed, cloneBigInt(pending), reason, nil
}

// SplitPercentages returns the configured split policy.
func (e *Engine) SplitPercentages() SplitPolicy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// ActiveStrategy returns the strategy applied to the next pass.
func (e *Engine) ActiveStrategy() Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy
}

// Guard returns a copy of the current guard parameters.
func (e *Engine) Guard() GuardParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard.Clone()
}

// Statistics returns the cumulative accounting totals.
func (e *Engine) Statistics() *LedgerSnapshot {
	return e.ledger.Snapshot()
}

// SetSplit atomically replaces all five split fractions. The update is
// rejected wholesale when the fractions do not sum to the denominator.
func (e *Engine) SetSplit(caller [20]byte, policy SplitPolicy) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = policy
	e.mu.Unlock()
	e.emitEvent(NewSplitUpdatedEvent(policy))
	return nil
}

// SetStrategy switches the active routing strategy. A pass already in flight
// is unaffected; the change applies from the next pass.
func (e *Engine) SetStrategy(caller [20]byte, strategy Strategy) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if !strategy.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStrategy, uint8(strategy))
	}
	e.mu.Lock()
	e.strategy = strategy
	e.mu.Unlock()
	e.emitEvent(NewStrategyUpdatedEvent(strategy))
	return nil
}

// SetSlippageTolerance updates the swap slippage bound, capped at 10%.
func (e *Engine) SetSlippageTolerance(caller [20]byte, bps uint32) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if bps > MaxSlippageToleranceBps {
		return fmt.Errorf("%w: %d bps exceeds cap %d", ErrSlippageOutOfRange, bps, MaxSlippageToleranceBps)
	}
	e.mu.Lock()
	e.guard.SlippageToleranceBps = bps
	e.mu.Unlock()
	e.emitEvent(NewGuardUpdatedEvent("slippageToleranceBps", strconv.FormatUint(uint64(bps), 10)))
	return nil
}

// SetMinYieldAmount updates the per-pass execution floor.
func (e *Engine) SetMinYieldAmount(caller [20]byte, amount *big.Int) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: minimum yield cannot be negative", ErrInvalidAmount)
	}
	e.mu.Lock()
	e.guard.MinYieldAmount = new(big.Int).Set(amount)
	e.mu.Unlock()
	e.emitEvent(NewGuardUpdatedEvent("minYieldAmount", amount.String()))
	return nil
}

// SetMaxExecutionAmount updates the per-pass cap. Zero disables the cap.
func (e *Engine) SetMaxExecutionAmount(caller [20]byte, amount *big.Int) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: execution cap cannot be negative", ErrInvalidAmount)
	}
	e.mu.Lock()
	e.guard.MaxExecutionAmount = new(big.Int).Set(amount)
	e.mu.Unlock()
	e.emitEvent(NewGuardUpdatedEvent("maxExecutionAmount", amount.String()))
	return nil
}

// SetMinExecutionInterval updates the spacing between passes.
func (e *Engine) SetMinExecutionInterval(caller [20]byte, interval time.Duration) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if interval < 0 {
		return fmt.Errorf("treasury: execution interval cannot be negative")
	}
	e.mu.Lock()
	e.guard.MinExecutionInterval = interval
	e.mu.Unlock()
	e.emitEvent(NewGuardUpdatedEvent("minExecutionInterval", interval.String()))
	return nil
}

// SetMCThresholdMultiplier updates the market-conditional threshold.
func (e *Engine) SetMCThresholdMultiplier(caller [20]byte, bps uint32) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if bps < BpsDenominator {
		return fmt.Errorf("treasury: threshold multiplier must be at least %d bps", BpsDenominator)
	}
	e.mu.Lock()
	e.mcThresholdBps = bps
	e.mu.Unlock()
	e.emitEvent(NewGuardUpdatedEvent("mcThresholdMultiplierBps", strconv.FormatUint(uint64(bps), 10)))
	return nil
}

// Pause blocks execution until Unpause.
func (e *Engine) Pause(caller [20]byte) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.guard.Paused = true
	e.mu.Unlock()
	e.emitEvent(NewPauseEvent(true, e.now()))
	return nil
}

// Unpause re-enables execution.
func (e *Engine) Unpause(caller [20]byte) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.guard.Paused = false
	e.mu.Unlock()
	e.emitEvent(NewPauseEvent(false, e.now()))
	return nil
}

// SetEmergencyMode toggles the swap-bypass path for suspected adapter
// compromise.
func (e *Engine) SetEmergencyMode(caller [20]byte, enabled bool) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	e.mu.Lock()
	e.guard.EmergencyMode = enabled
	e.mu.Unlock()
	e.emitEvent(NewEmergencyModeEvent(enabled))
	return nil
}

// SetController hands the controller role to a new principal.
func (e *Engine) SetController(caller, controller [20]byte) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if controller == ([20]byte{}) {
		return ErrZeroAddress
	}
	e.mu.Lock()
	e.controller = controller
	e.mu.Unlock()
	e.emitEvent(NewControllerUpdatedEvent(controller))
	return nil
}

// EmergencyWithdraw recovers a stuck custody balance to the recipient. It is
// deliberately usable while paused.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller [20]byte, token string, amount *big.Int, recipient [20]byte) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if recipient == ([20]byte{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidAmount)
	}
	symbol := normalizeSymbol(token)
	if symbol == "" {
		return fmt.Errorf("treasury: token symbol required")
	}
	if err := e.custody.Transfer(ctx, symbol, amount, recipient); err != nil {
		return fmt.Errorf("treasury: emergency withdraw: %w", err)
	}
	e.emitEvent(NewEmergencyWithdrawnEvent(symbol, amount, recipient))
	return nil
}
