package domain

import (
	"context"
	"time"
)

type ReturnRequest struct {
	ID          string       `json:"id"`
	OrderID     string       `json:"orderId"`
	Reason      ReturnReason `json:"reason"`
	ReasonText  string       `json:"reasonText,omitempty"`
	Description string       `json:"description"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Status      ReturnStatus `json:"status"`
}

type ReturnRepository interface {
	// CreateReturn fails with ErrReturnAlreadyRequested when the order already
	// has a submitted return.
	CreateReturn(ctx context.Context, req *ReturnRequest) error
	GetReturnsByOrder(ctx context.Context, orderID string) ([]ReturnRequest, error)
}
