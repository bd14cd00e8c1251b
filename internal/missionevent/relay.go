package missionevent

import (
	"encoding/json"
	"sync/atomic"
)

// Event is a mission-narration message (waypoint reached, servo fired, ...).
// Optional fields are nil when the rover omits them or sends null.
type Event struct {
	Timestamp   string   `json:"timestamp"`
	Message     string   `json:"message"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	WaypointID  *int     `json:"waypointId,omitempty"`
	Status      *string  `json:"status,omitempty"`
	ServoAction *string  `json:"servoAction,omitempty"`

	// Raw is the payload exactly as received
	Raw json.RawMessage `json:"-"`
}

// Parse decodes a mission event payload. Payloads that do not decode into
// an object still yield an Event carrying Raw, so nothing is dropped.
func Parse(raw json.RawMessage) (Event, error) {
	var e Event
	err := json.Unmarshal(raw, &e)
	e.Raw = append(json.RawMessage(nil), raw...)
	return e, err
}

// Handler consumes mission events
type Handler func(e Event)

// Relay is a single-slot event relay: registering a handler replaces the
// previous one, and events arriving without a handler are discarded.
type Relay struct {
	handler atomic.Pointer[Handler]
}

// Subscribe installs fn as the only handler. A nil fn clears the slot.
func (r *Relay) Subscribe(fn Handler) {
	if fn == nil {
		r.handler.Store(nil)
		return
	}
	r.handler.Store(&fn)
}

// Deliver hands e to the current handler synchronously and reports whether
// a handler was present.
func (r *Relay) Deliver(e Event) bool {
	h := r.handler.Load()
	if h == nil {
		return false
	}
	(*h)(e)
	return true
}
