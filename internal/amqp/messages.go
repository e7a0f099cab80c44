package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"spendboard/internal/core"
)

// MonthRefreshMessage asks the worker to mirror one month from the
// transactions API. It carries only the month; the worker pages the API itself.
type MonthRefreshMessage struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMonthRefreshMessage creates a refresh request for m
func NewMonthRefreshMessage(m core.Month) *MonthRefreshMessage {
	return &MonthRefreshMessage{
		Year:      m.Year,
		Month:     int(m.Month),
		Timestamp: time.Now(),
	}
}

// CoreMonth validates and converts the message target.
func (m *MonthRefreshMessage) CoreMonth() (core.Month, error) {
	return core.NewMonth(m.Year, m.Month)
}

// ToJSON converts the message to JSON bytes
func (m *MonthRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthRefreshMessageFromJSON decodes and validates a message body.
func MonthRefreshMessageFromJSON(data []byte) (*MonthRefreshMessage, error) {
	var msg MonthRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := msg.CoreMonth(); err != nil {
		return nil, fmt.Errorf("month %d-%d: %w", msg.Year, msg.Month, err)
	}
	return &msg, nil
}
