package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeSessionStarted      = "SESSION_STARTED"
	EventTypeSessionEnded        = "SESSION_ENDED"
	EventTypeConfigurationAdded  = "CONFIGURATION_ADDED"
	EventTypeReservationRejected = "RESERVATION_REJECTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and the current time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// Type returns the event type
func (e BaseEvent) Type() string {
	return e.EventType
}

// SessionStartedEvent published when a shopper session is created
type SessionStartedEvent struct {
	BaseEvent
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
}

// SessionEndedEvent published when a shopper session is closed
type SessionEndedEvent struct {
	BaseEvent
	SessionID  string `json:"session_id"`
	CustomerID string `json:"customer_id"`
}

// ConfigurationAddedEvent published after a configuration is attached to a session order
type ConfigurationAddedEvent struct {
	BaseEvent
	OrderID         int64     `json:"order_id"`
	SessionID       string    `json:"session_id"`
	ConfigurationID int64     `json:"configuration_id"`
	CategoryID      int64     `json:"category_id"`
	Price           float64   `json:"price"`
	Breakdown       Breakdown `json:"breakdown"`
}

// ReservationRejectedEvent published when a session could not reserve stock
type ReservationRejectedEvent struct {
	BaseEvent
	SessionID  string      `json:"session_id"`
	Shortfalls []Shortfall `json:"shortfalls"`
}

// Shortfall describes an option whose available quantity is below the request
type Shortfall struct {
	OptionID  int64 `json:"option_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}
