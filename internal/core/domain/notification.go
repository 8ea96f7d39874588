package domain

import "time"

const (
	NotificationTypeNewOrder = "new_order"

	PriorityHigh = "high"
)

type Notification struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	SourceOrderID string    `json:"source_order_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
	Read          bool      `json:"read"`
	Priority      string    `json:"priority"`
}
