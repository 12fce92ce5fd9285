package usecase

import (
	"context"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/utils"
)

// AftersalesUsecase handles customer cancellations and return requests.
type AftersalesUsecase struct {
	orders     *OrderUsecase
	returns    domain.ReturnRepository
	machine    *OrderStateMachine
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewAftersalesUsecase(orders *OrderUsecase, returns domain.ReturnRepository, machine *OrderStateMachine, dispatcher *Dispatcher, now func() time.Time) *AftersalesUsecase {
	if dispatcher == nil {
		dispatcher = NewDispatcher(nil, nil, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &AftersalesUsecase{
		orders:     orders,
		returns:    returns,
		machine:    machine,
		dispatcher: dispatcher,
		now:        now,
	}
}

func cancellable(s domain.OrderStatus) bool {
	return s == domain.OrderStatusPending || s == domain.OrderStatusProcessing
}

// Cancel cancels an order on the customer's behalf while it is pending or
// processing. Stock is released by the state machine.
func (u *AftersalesUsecase) Cancel(ctx context.Context, id string, proof OwnerProof, reason string) (*domain.Order, error) {
	order, err := u.orders.resolveOwned(ctx, id, proof)
	if err != nil {
		return nil, err
	}
	if !cancellable(order.Status) {
		return nil, domain.ErrCancellationNotAllowed.WithStatus(order.Status)
	}

	meta := TransitionMeta{}
	if r := strings.TrimSpace(reason); r != "" {
		meta.Reason = &r
	}
	updated, err := u.machine.Transition(ctx, order.ID, domain.OrderStatusCancelled, meta)
	if err != nil {
		// Another writer moved the order first; report it the way the caller asked.
		if domain.KindOf(err) == domain.KindRule {
			current := domain.StatusOf(err)
			if current == "" {
				current = order.Status
			}
			return nil, domain.ErrCancellationNotAllowed.WithStatus(current)
		}
		return nil, err
	}
	return updated, nil
}

type ReturnReq struct {
	Reason      domain.ReturnReason `json:"reason"`
	ReasonText  string              `json:"reasonText,omitempty"`
	Description string              `json:"description"`
}

// RequestReturn files a return for a delivered order inside the return
// window. The order's own status does not change.
func (u *AftersalesUsecase) RequestReturn(ctx context.Context, id string, proof OwnerProof, req ReturnReq) (*domain.ReturnRequest, error) {
	if !req.Reason.Valid() {
		return nil, domain.ErrInvalidReturnRequest.WithMessage("unknown return reason %q", req.Reason)
	}
	text := strings.TrimSpace(req.ReasonText)
	if req.Reason == domain.ReturnReasonOther && text == "" {
		return nil, domain.ErrInvalidReturnRequest.WithMessage("please describe the reason for the return")
	}

	order, err := u.orders.resolveOwned(ctx, id, proof)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusDelivered || order.DeliveredAt == nil {
		return nil, domain.ErrOrderNotDelivered.WithStatus(order.Status)
	}

	now := u.now()
	if now.Sub(*order.DeliveredAt) > domain.ReturnWindow {
		return nil, domain.ErrReturnWindowExpired.
			WithMessage("return window closed on %s", order.DeliveredAt.Add(domain.ReturnWindow).Format(time.RFC3339)).
			WithStatus(order.Status)
	}

	ret := &domain.ReturnRequest{
		ID:          utils.GenerateUUID(),
		OrderID:     order.ID,
		Reason:      req.Reason,
		ReasonText:  text,
		Description: strings.TrimSpace(req.Description),
		SubmittedAt: now,
		Status:      domain.ReturnStatusSubmitted,
	}
	if err := u.returns.CreateReturn(ctx, ret); err != nil {
		if domain.KindOf(err) == domain.KindRule {
			return nil, domain.ErrReturnAlreadyRequested.WithStatus(order.Status)
		}
		return nil, err
	}

	logger.WithContext(ctx).Info().Str("order_id", order.ID).Str("reason", string(req.Reason)).Msg("return requested")
	u.dispatcher.Publish(ctx, NewOrderEvent(domain.EventReturnRequested, order, nil, now))
	return ret, nil
}

// ListReturns is the admin view of an order's return requests.
func (u *AftersalesUsecase) ListReturns(ctx context.Context, id string) ([]domain.ReturnRequest, error) {
	order, err := u.orders.Track(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.returns.GetReturnsByOrder(ctx, order.ID)
}
