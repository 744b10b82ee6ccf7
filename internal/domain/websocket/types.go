// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeSessionEnded EventType = "session_ended"
	EventTypeError        EventType = "error"
)

type WSMessage struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SessionEndedData is pushed to a device whose session just went terminal.
type SessionEndedData struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
