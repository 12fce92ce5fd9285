package usecase

import (
	"context"
	"errors"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/metrics"
	"storefront-core/pkg/utils"
)

// allowedTransitions is the only place that decides which status may follow
// which. Delivered and Cancelled have no outgoing edges.
var allowedTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
}

func CanTransition(from, to domain.OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from `from` in one step.
func NextStatuses(from domain.OrderStatus) []domain.OrderStatus {
	next := allowedTransitions[from]
	out := make([]domain.OrderStatus, len(next))
	copy(out, next)
	return out
}

type TransitionMeta struct {
	Reason  *string
	ActorID *string // admin user id, nil for customer and system actions
}

type OrderStateMachine struct {
	orders      domain.OrderRepository
	coupons     domain.CouponRepository
	catalog     domain.CatalogService
	txManager   domain.TransactionManager
	dispatcher  *Dispatcher
	now         func() time.Time
	retryDelays []time.Duration
}

func NewOrderStateMachine(orders domain.OrderRepository, coupons domain.CouponRepository, catalog domain.CatalogService, txManager domain.TransactionManager, dispatcher *Dispatcher, now func() time.Time) *OrderStateMachine {
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, nil, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &OrderStateMachine{
		orders:      orders,
		coupons:     coupons,
		catalog:     catalog,
		txManager:   txManager,
		dispatcher:  dispatcher,
		now:         now,
		retryDelays: persistenceRetryDelays,
	}
}

// Initialize persists a settled draft as a new pending order. The order row,
// the coupon redemption, the stock decrement and the first history row are
// written in one transaction. When an order with the draft's idempotency key
// already exists it is returned with created=false and nothing else happens.
func (m *OrderStateMachine) Initialize(ctx context.Context, draft *domain.Order, allowOversell bool) (*domain.Order, bool, error) {
	log := logger.WithContext(ctx)

	var (
		stored  *domain.Order
		created bool
		// IDs written by earlier attempts. A commit whose result was lost
		// shows up on the retry as an existing order with one of these IDs.
		attempted = map[string]bool{}
	)
	err := withPersistenceRetry(ctx, m.retryDelays, "create order", func() error {
		now := m.now()
		order := *draft
		order.ID = utils.GenerateUUID()
		attempted[order.ID] = true
		order.TrackingID = utils.NewTrackingID()
		order.Status = domain.OrderStatusPending
		order.CreatedAt = now
		order.UpdatedAt = now
		order.DeliveredAt = nil

		return m.txManager.Do(ctx, func(txCtx context.Context) error {
			var err error
			stored, created, err = m.orders.Create(txCtx, &order)
			if err != nil || !created {
				return err
			}

			if order.CouponID != nil {
				if err := m.coupons.Redeem(txCtx, *order.CouponID); err != nil {
					return err
				}
			}

			for _, line := range order.Lines {
				if allowOversell {
					m.warnOnShortfall(txCtx, line, order.ID)
				}
				if err := m.catalog.AdjustStock(txCtx, line.ProductID, -line.Quantity, "order_placed", order.ID, allowOversell); err != nil {
					return err
				}
			}

			reason := "order placed"
			return m.orders.AppendHistory(txCtx, &domain.OrderHistory{
				ID:        utils.GenerateUUID(),
				OrderID:   order.ID,
				NewStatus: domain.OrderStatusPending,
				Reason:    &reason,
				CreatedAt: now,
			})
		})
	})
	if err != nil {
		return nil, false, err
	}

	if !created && attempted[stored.ID] {
		log.Warn().Str("order_id", stored.ID).Msg("order was committed by an earlier attempt")
		created = true
	}
	if !created {
		log.Info().Str("order_id", stored.ID).Str("idempotency_key", draft.IdempotencyKey).Msg("order already exists for idempotency key")
		return stored, false, nil
	}

	metrics.OrderCreated(string(stored.PaymentMethod))
	log.Info().
		Str("order_id", stored.ID).
		Str("tracking_id", stored.TrackingID).
		Str("method", string(stored.PaymentMethod)).
		Int64("grand_total", int64(stored.Pricing.GrandTotal)).
		Msg("order created")

	m.dispatcher.Publish(ctx, NewOrderEvent(domain.EventOrderCreated, stored, nil, stored.CreatedAt))
	m.dispatcher.ArchiveReceipt(ctx, stored)
	return stored, true, nil
}

func (m *OrderStateMachine) warnOnShortfall(ctx context.Context, line domain.CartLine, orderID string) {
	p, err := m.catalog.GetProduct(ctx, line.ProductID)
	if err != nil || p.Stock >= line.Quantity {
		return
	}
	logger.WithContext(ctx).Warn().
		Str("order_id", orderID).
		Str("product_id", line.ProductID).
		Int("stock", p.Stock).
		Int("quantity", line.Quantity).
		Msg("paid order oversells stock")
}

// Transition moves an order to status `to` when the transition table allows
// it. The status write is guarded on the status read in the same transaction,
// so of two racing transitions at most one succeeds.
func (m *OrderStateMachine) Transition(ctx context.Context, orderID string, to domain.OrderStatus, meta TransitionMeta) (*domain.Order, error) {
	if !to.Valid() {
		return nil, domain.ErrInvalidStatus.WithMessage("unknown order status %q", to)
	}

	var (
		before  *domain.Order
		updated *domain.Order
		retried bool
	)
	err := withPersistenceRetry(ctx, m.retryDelays, "update order status", func() error {
		defer func() { retried = true }()
		now := m.now()

		return m.txManager.Do(ctx, func(txCtx context.Context) error {
			current, err := m.orders.GetByID(txCtx, orderID)
			if err != nil {
				return err
			}
			// An earlier attempt may have committed before its error surfaced.
			if retried && before != nil && current.Status == to && before.Status != to {
				updated = current
				return nil
			}
			before = current

			if !CanTransition(current.Status, to) {
				return domain.ErrIllegalTransition.
					WithMessage("cannot move order from %s to %s", current.Status, to).
					WithStatus(current.Status)
			}

			update := domain.StatusUpdate{
				OrderID: orderID,
				From:    current.Status,
				To:      to,
				At:      now,
			}
			switch to {
			case domain.OrderStatusDelivered:
				update.MarkDelivered = true
				if current.PaymentMethod == domain.PaymentMethodCOD {
					paid := domain.PaymentStatusPaid
					update.PaymentStatus = &paid
				}
			case domain.OrderStatusCancelled:
				update.CancellationReason = meta.Reason
			}

			updated, err = m.orders.UpdateStatus(txCtx, update)
			if err != nil {
				return err
			}

			if to == domain.OrderStatusCancelled {
				for _, line := range current.Lines {
					if err := m.catalog.AdjustStock(txCtx, line.ProductID, line.Quantity, "order_cancelled", orderID, true); err != nil {
						return err
					}
				}
			}

			prev := current.Status
			return m.orders.AppendHistory(txCtx, &domain.OrderHistory{
				ID:             utils.GenerateUUID(),
				OrderID:        orderID,
				PreviousStatus: &prev,
				NewStatus:      to,
				Reason:         meta.Reason,
				CreatedBy:      meta.ActorID,
				CreatedAt:      now,
			})
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			logger.WithContext(ctx).Warn().Str("order_id", orderID).Str("to", string(to)).Msg("concurrent status update lost the race")
		}
		return nil, err
	}

	m.afterTransition(ctx, before, updated)
	return updated, nil
}

func (m *OrderStateMachine) afterTransition(ctx context.Context, before, after *domain.Order) {
	from := before.Status
	at := after.UpdatedAt

	metrics.Transition(string(from), string(after.Status))
	logger.WithContext(ctx).Info().
		Str("order_id", after.ID).
		Str("from", string(from)).
		Str("to", string(after.Status)).
		Msg("order status changed")

	m.dispatcher.Publish(ctx, NewOrderEvent(domain.EventStatusChanged, after, &from, at))

	switch after.Status {
	case domain.OrderStatusCancelled:
		m.dispatcher.Publish(ctx, NewOrderEvent(domain.EventOrderCancelled, after, &from, at))
		if before.PaymentStatus == domain.PaymentStatusPaid {
			m.dispatcher.Publish(ctx, NewOrderEvent(domain.EventRefundScheduled, after, &from, at))
		}
	case domain.OrderStatusDelivered:
		m.dispatcher.AccrueLoyalty(ctx, after, at)
	}
}
