package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/metrics"
)

const dispatchTimeout = 10 * time.Second

// Dispatcher runs the best-effort side effects of order changes in the
// background: event notifications, loyalty accrual and receipt archiving.
// Failures are logged and counted; they never reach the caller.
type Dispatcher struct {
	notifier domain.Notifier
	loyalty  domain.LoyaltyService
	receipts domain.ReceiptArchiver
	wg       sync.WaitGroup
}

// NewDispatcher wires the collaborators. Any of them may be nil.
func NewDispatcher(notifier domain.Notifier, loyalty domain.LoyaltyService, receipts domain.ReceiptArchiver) *Dispatcher {
	return &Dispatcher{notifier: notifier, loyalty: loyalty, receipts: receipts}
}

// Wait blocks until all in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) Publish(ctx context.Context, event domain.OrderEvent) {
	if d.notifier == nil {
		return
	}
	d.goDetached(ctx, func(ctx context.Context) {
		if err := d.notifier.Notify(ctx, event); err != nil {
			metrics.NotificationFailed(string(event.Type))
			logger.WithContext(ctx).Error().Err(err).
				Str("event", string(event.Type)).
				Str("order_id", event.OrderID).
				Msg("order event dispatch failed")
		}
	})
}

// AccrueLoyalty credits one point per 100 minor units spent on goods.
func (d *Dispatcher) AccrueLoyalty(ctx context.Context, order *domain.Order, at time.Time) {
	if d.loyalty == nil {
		return
	}
	accrual := domain.LoyaltyAccrual{
		OrderID:    order.ID,
		TrackingID: order.TrackingID,
		Contact:    order.Contact,
		Amount:     order.Pricing.Subtotal - order.Pricing.Discount,
		Points:     LoyaltyPoints(order.Pricing),
		AccruedAt:  at,
	}
	if accrual.Points <= 0 {
		return
	}
	d.goDetached(ctx, func(ctx context.Context) {
		if err := d.loyalty.Accrue(ctx, accrual); err != nil {
			metrics.NotificationFailed("LoyaltyAccrual")
			logger.WithContext(ctx).Error().Err(err).
				Str("order_id", order.ID).
				Int64("points", accrual.Points).
				Msg("loyalty accrual failed")
		}
	})
}

func (d *Dispatcher) ArchiveReceipt(ctx context.Context, order *domain.Order) {
	if d.receipts == nil {
		return
	}
	d.goDetached(ctx, func(ctx context.Context) {
		location, err := d.receipts.ArchiveReceipt(ctx, order)
		if err != nil {
			metrics.NotificationFailed("ReceiptArchive")
			logger.WithContext(ctx).Warn().Err(err).Str("order_id", order.ID).Msg("receipt archive failed")
			return
		}
		logger.WithContext(ctx).Debug().Str("order_id", order.ID).Str("location", location).Msg("receipt archived")
	})
}

// goDetached runs fn outside the request lifecycle; the request may be long
// gone by the time fn executes.
func (d *Dispatcher) goDetached(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.WithContext(ctx).Error().Interface("panic", r).Msg("dispatch panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func LoyaltyPoints(p domain.PriceBreakdown) int64 {
	spent := p.Subtotal - p.Discount
	if spent <= 0 {
		return 0
	}
	return int64(spent / 100)
}

// NewOrderEvent builds an event for order with a rendered summary line.
func NewOrderEvent(typ domain.EventType, order *domain.Order, old *domain.OrderStatus, at time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		Type:       typ,
		OrderID:    order.ID,
		TrackingID: order.TrackingID,
		OldStatus:  old,
		NewStatus:  order.Status,
		Contact:    order.Contact,
		Amount:     order.Pricing.GrandTotal,
		Summary:    RenderSummary(typ, order, old),
		OccurredAt: at,
	}
}

var methodLabels = map[domain.PaymentMethod]string{
	domain.PaymentMethodCOD:   "cash on delivery",
	domain.PaymentMethodBKash: "bKash",
	domain.PaymentMethodNagad: "Nagad",
}

func RenderSummary(typ domain.EventType, order *domain.Order, old *domain.OrderStatus) string {
	switch typ {
	case domain.EventOrderCreated:
		return fmt.Sprintf("Order %s placed: %d item(s), total %s, payment by %s.",
			order.TrackingID, order.ItemCount(), order.Pricing.GrandTotal.Major(), methodLabels[order.PaymentMethod])
	case domain.EventStatusChanged:
		if old != nil {
			return fmt.Sprintf("Order %s is now %s (was %s).", order.TrackingID, order.Status, *old)
		}
		return fmt.Sprintf("Order %s is now %s.", order.TrackingID, order.Status)
	case domain.EventOrderCancelled:
		reason := "no reason given"
		if order.CancellationReason != nil && *order.CancellationReason != "" {
			reason = *order.CancellationReason
		}
		return fmt.Sprintf("Order %s was cancelled: %s.", order.TrackingID, reason)
	case domain.EventReturnRequested:
		return fmt.Sprintf("A return was requested for order %s.", order.TrackingID)
	case domain.EventRefundScheduled:
		return fmt.Sprintf("A refund of %s is scheduled for order %s.", order.Pricing.GrandTotal.Major(), order.TrackingID)
	}
	return fmt.Sprintf("Order %s: %s.", order.TrackingID, typ)
}
