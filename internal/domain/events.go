package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventOrderCreated    EventType = "OrderCreated"
	EventStatusChanged   EventType = "StatusChanged"
	EventOrderCancelled  EventType = "OrderCancelled"
	EventReturnRequested EventType = "ReturnRequested"
	EventRefundScheduled EventType = "RefundScheduled"
)

type OrderEvent struct {
	Type       EventType    `json:"type"`
	OrderID    string       `json:"orderId"`
	TrackingID string       `json:"trackingId"`
	OldStatus  *OrderStatus `json:"oldStatus,omitempty"`
	NewStatus  OrderStatus  `json:"newStatus"`
	Contact    Contact      `json:"contact"`
	Amount     Money        `json:"amount"`
	Summary    string       `json:"summary"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Notifier receives fire-and-forget order events.
type Notifier interface {
	Notify(ctx context.Context, event OrderEvent) error
}

type LoyaltyAccrual struct {
	OrderID    string    `json:"orderId"`
	TrackingID string    `json:"trackingId"`
	Contact    Contact   `json:"contact"`
	Amount     Money     `json:"amount"`
	Points     int64     `json:"points"`
	AccruedAt  time.Time `json:"accruedAt"`
}

type LoyaltyService interface {
	Accrue(ctx context.Context, accrual LoyaltyAccrual) error
}

// ReceiptArchiver stores a rendered receipt for a newly created order.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, order *Order) (string, error)
}
