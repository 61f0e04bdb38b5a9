package amqp

import (
	"encoding/json"
	"time"

	"billtracker/internal/changefeed"
)

// ChangeMessage announces a table write to every other process sharing the store.
// Receivers only reload; the message carries no row data.
type ChangeMessage struct {
	Table     string    `json:"table"`
	Op        string    `json:"op"`
	UserID    string    `json:"user_id,omitempty"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func NewChangeMessage(c changefeed.Change, origin string) *ChangeMessage {
	return &ChangeMessage{
		Table:     c.Table,
		Op:        c.Op,
		UserID:    c.UserID,
		Origin:    origin,
		Timestamp: time.Now(),
	}
}

func (m *ChangeMessage) Change() changefeed.Change {
	return changefeed.Change{Table: m.Table, Op: m.Op, UserID: m.UserID}
}

func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AlertMessage is a desktop notification handed to an alert agent.
type AlertMessage struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       string    `json:"tag"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
