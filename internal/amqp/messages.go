package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/events"
)

// StoreEventMessage is the wire form of a store event. The routing key
// of the published message is the event kind.
type StoreEventMessage struct {
	Store     string    `json:"store"`
	Kind      string    `json:"kind"`
	Operation string    `json:"operation,omitempty"`
	RecordID  int64     `json:"record_id,omitempty"`
	Count     int       `json:"count"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStoreEventMessage(e events.Event) *StoreEventMessage {
	msg := &StoreEventMessage{
		Store:     e.Store,
		Kind:      string(e.Kind),
		Operation: e.Op,
		RecordID:  e.RecordID,
		Count:     e.Count,
		Timestamp: e.At,
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *StoreEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func StoreEventMessageFromJSON(data []byte) (*StoreEventMessage, error) {
	var msg StoreEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
