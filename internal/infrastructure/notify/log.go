package notify

import (
	"context"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
)

// LogNotifier writes events to the service log. Used when no brokers are configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, event domain.OrderEvent) error {
	logger.WithContext(ctx).Info().
		Str("event", string(event.Type)).
		Str("order_id", event.OrderID).
		Str("tracking_id", event.TrackingID).
		Str("new_status", string(event.NewStatus)).
		Msg(event.Summary)
	return nil
}

type LogLoyalty struct{}

func (LogLoyalty) Accrue(ctx context.Context, accrual domain.LoyaltyAccrual) error {
	logger.WithContext(ctx).Info().
		Str("order_id", accrual.OrderID).
		Int64("points", accrual.Points).
		Msg("loyalty points accrued")
	return nil
}
