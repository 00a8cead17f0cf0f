// Package protocol defines the events exchanged between a display device, a
// trigger device and the relay that pairs them. Events are best-effort
// control and telemetry signals, not RPC: nothing is acknowledged or retried.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names on the wire.
const (
	ReadyForStimulus = "ready-for-stimulus"
	StimulusNow      = "stimulus-now"
	ReactionResult   = "reaction-result"
	EarlyClick       = "early-click"
)

// Role identifies which side of a pairing a peer plays.
type Role string

const (
	RoleDisplay Role = "display"
	RoleTrigger Role = "trigger"
)

var ErrUnknownEvent = errors.New("unknown event")

// origins maps each event to the only role allowed to send it.
var origins = map[string]Role{
	ReadyForStimulus: RoleDisplay,
	StimulusNow:      RoleTrigger,
	ReactionResult:   RoleDisplay,
	EarlyClick:       RoleDisplay,
}

// Event is the envelope written to the channel as a single JSON text frame.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ReactionResultPayload is the data carried by a reaction-result event.
type ReactionResultPayload struct {
	ReactionTimeMs int64 `json:"reactionTimeMs"`
}

// ParseRole validates a role string taken from a query parameter or flag.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleDisplay, RoleTrigger:
		return Role(s), true
	}
	return "", false
}

// Counterpart returns the role on the other end of a pairing.
func (r Role) Counterpart() Role {
	if r == RoleDisplay {
		return RoleTrigger
	}
	return RoleDisplay
}

// Origin returns the role allowed to emit the named event.
func Origin(name string) (Role, error) {
	role, ok := origins[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
	return role, nil
}

// New builds a payload-less event.
func New(name string) Event {
	return Event{Name: name}
}

// NewReactionResult builds a reaction-result event.
func NewReactionResult(ms int64) Event {
	data, _ := json.Marshal(ReactionResultPayload{ReactionTimeMs: ms})
	return Event{Name: ReactionResult, Data: data}
}

// ReactionTime decodes the payload of a reaction-result event.
func (e Event) ReactionTime() (int64, error) {
	if e.Name != ReactionResult {
		return 0, fmt.Errorf("event %q carries no reaction time", e.Name)
	}
	var p ReactionResultPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return 0, fmt.Errorf("decoding reaction result: %w", err)
	}
	if p.ReactionTimeMs < 0 {
		return 0, fmt.Errorf("negative reaction time %d", p.ReactionTimeMs)
	}
	return p.ReactionTimeMs, nil
}

// Encode serializes the envelope.
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a frame and rejects event names outside the contract.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if _, ok := origins[e.Name]; !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Name)
	}
	return e, nil
}
