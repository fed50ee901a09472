package events

import "embervault/core/types"

// Event represents a structured state change emitted by the treasury engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (logs, history stores,
// indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for components that expose events optionally.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload is implemented by events that can render themselves as a canonical
// attribute-map payload.
type Payload interface {
	Event() *types.Event
}

// Collector accumulates emitted events in order. Tests use it to assert on
// emission sequences.
type Collector struct {
	events []Event
}

// Emit implements the Emitter interface.
func (c *Collector) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.events = append(c.events, evt)
}

// Events returns the collected events in emission order.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset drops all collected events.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.events = c.events[:0]
}
