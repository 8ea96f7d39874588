package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderCompletion is the result of moving an order into the completed state.
// Only what the revenue pipeline needs is kept.
type OrderCompletion struct {
	OrderID     string      `json:"order_id"`
	Amount      float64     `json:"amount"`
	UserName    string      `json:"user_name,omitempty"`
	Status      OrderStatus `json:"status"`
	CompletedAt time.Time   `json:"completed_at"`
	Notified    bool        `json:"notified"` // revenue event handed to the bus
}
