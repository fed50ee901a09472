package treasury

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"embervault/core/types"
)

const (
	// EventTypeExecuted is emitted once per completed pass, nominal or
	// degraded.
	EventTypeExecuted = "treasury.executed"
	// EventTypePartialFailure is emitted for every routing sub-step that
	// fell short of its nominal target.
	EventTypePartialFailure = "treasury.partial_failure"
	// EventTypeSplitUpdated is emitted when the split policy changes.
	EventTypeSplitUpdated = "treasury.split.updated"
	// EventTypeStrategyUpdated is emitted when the active strategy changes.
	EventTypeStrategyUpdated = "treasury.strategy.updated"
	// EventTypeGuardUpdated is emitted when a guard parameter changes.
	EventTypeGuardUpdated = "treasury.guard.updated"
	// EventTypePaused and EventTypeUnpaused track the pause toggle.
	EventTypePaused   = "treasury.paused"
	EventTypeUnpaused = "treasury.unpaused"
	// EventTypeEmergencyMode tracks the swap-bypass toggle.
	EventTypeEmergencyMode = "treasury.emergency_mode"
	// EventTypeEmergencyWithdrawn records a manual balance recovery.
	EventTypeEmergencyWithdrawn = "treasury.emergency.withdrawn"
	// EventTypeControllerUpdated records a controller handover.
	EventTypeControllerUpdated = "treasury.controller.updated"
)

type treasuryEvent struct {
	evt *types.Event
}

func (e treasuryEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e treasuryEvent) Event() *types.Event { return e.evt }

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func addressAttr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

// NewExecutedEvent builds the canonical payload summarising one pass.
func NewExecutedEvent(res *ExecutionResult) *types.Event {
	if res == nil {
		return &types.Event{Type: EventTypeExecuted, Attributes: map[string]string{}}
	}
	attrs := map[string]string{
		"totalYield":       amountAttr(res.TotalYield),
		"toStable":         amountAttr(res.AmountToStable),
		"burned":           amountAttr(res.AmountBurned),
		"liquidityCreated": amountAttr(res.LiquidityCreated),
		"toStakers":        amountAttr(res.AmountToStakers),
		"compounded":       amountAttr(res.AmountCompounded),
		"strategy":         res.Strategy.String(),
		"partialFailures":  strconv.Itoa(len(res.Partials)),
		"emergency":        strconv.FormatBool(res.Emergency),
		"height":           strconv.FormatUint(res.Height, 10),
		"executedAt":       strconv.FormatInt(res.ExecutedAt.Unix(), 10),
	}
	if res.Regime != "" {
		attrs["regime"] = res.Regime
	}
	return &types.Event{Type: EventTypeExecuted, Attributes: attrs}
}

// NewPartialFailureEvent builds the diagnostic payload for a degraded
// routing sub-step.
func NewPartialFailureEvent(failure PartialFailure) *types.Event {
	return &types.Event{
		Type: EventTypePartialFailure,
		Attributes: map[string]string{
			"destination": failure.Destination.String(),
			"step":        failure.Step,
			"nominal":     amountAttr(failure.Nominal),
			"reason":      failure.Reason,
		},
	}
}

// NewSplitUpdatedEvent carries the full replacement split.
func NewSplitUpdatedEvent(policy SplitPolicy) *types.Event {
	return &types.Event{
		Type: EventTypeSplitUpdated,
		Attributes: map[string]string{
			"toStable":    strconv.FormatUint(uint64(policy.ToStable), 10),
			"toLiquidity": strconv.FormatUint(uint64(policy.ToLiquidity), 10),
			"toBurn":      strconv.FormatUint(uint64(policy.ToBurn), 10),
			"toStakers":   strconv.FormatUint(uint64(policy.ToStakers), 10),
			"toCompound":  strconv.FormatUint(uint64(policy.ToCompound), 10),
		},
	}
}

// NewStrategyUpdatedEvent records a strategy switch.
func NewStrategyUpdatedEvent(strategy Strategy) *types.Event {
	return &types.Event{
		Type:       EventTypeStrategyUpdated,
		Attributes: map[string]string{"strategy": strategy.String()},
	}
}

// NewGuardUpdatedEvent records a single guard parameter change.
func NewGuardUpdatedEvent(param, value string) *types.Event {
	return &types.Event{
		Type:       EventTypeGuardUpdated,
		Attributes: map[string]string{"param": param, "value": value},
	}
}

// NewPauseEvent records a pause or unpause at the given time.
func NewPauseEvent(paused bool, at time.Time) *types.Event {
	eventType := EventTypeUnpaused
	if paused {
		eventType = EventTypePaused
	}
	return &types.Event{
		Type:       eventType,
		Attributes: map[string]string{"at": strconv.FormatInt(at.Unix(), 10)},
	}
}

// NewEmergencyModeEvent records the swap-bypass toggle.
func NewEmergencyModeEvent(enabled bool) *types.Event {
	return &types.Event{
		Type:       EventTypeEmergencyMode,
		Attributes: map[string]string{"enabled": strconv.FormatBool(enabled)},
	}
}

// NewEmergencyWithdrawnEvent records a manual recovery transfer.
func NewEmergencyWithdrawnEvent(token string, amount *big.Int, recipient [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeEmergencyWithdrawn,
		Attributes: map[string]string{
			"token":     token,
			"amount":    amountAttr(amount),
			"recipient": addressAttr(recipient),
		},
	}
}

// NewControllerUpdatedEvent records a controller handover.
func NewControllerUpdatedEvent(controller [20]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeControllerUpdated,
		Attributes: map[string]string{"controller": addressAttr(controller)},
	}
}
