package realtime

import (
	"encoding/json"
	"fmt"
)

const (
	EventNewOrder     = "NEW_ORDER"
	EventOrderUpdated = "ORDER_UPDATED"
)

// Event is the {type, data} frame the order channels push.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEvent converts a message delivered to a Handler into an Event.
func DecodeEvent(msg any) (Event, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Event{}, fmt.Errorf("encode realtime message: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode realtime event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("realtime message has no type")
	}
	return ev, nil
}
