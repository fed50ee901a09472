package types

// Event represents a typed event emitted by the treasury engine during a
// state transition. Attributes are stringly typed so events can be logged,
// persisted, and audited without schema coupling.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute and whether it was present.
func (e *Event) Attribute(key string) (string, bool) {
	if e == nil || e.Attributes == nil {
		return "", false
	}
	value, ok := e.Attributes[key]
	return value, ok
}
