package domain

import "time"

const EventTypeOrderCompleted = "order_completed"

// RevenueEvent is published once per order that reaches the completed state.
type RevenueEvent struct {
	OrderID   string    `json:"order_id"`
	Amount    float64   `json:"amount"`
	UserName  string    `json:"user_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
}
