package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/utils"
)

type OrderUsecase struct {
	orderRepo domain.OrderRepository
	machine   *OrderStateMachine
	now       func() time.Time
}

func NewOrderUsecase(repo domain.OrderRepository, machine *OrderStateMachine, now func() time.Time) *OrderUsecase {
	if now == nil {
		now = time.Now
	}
	return &OrderUsecase{
		orderRepo: repo,
		machine:   machine,
		now:       now,
	}
}

// OwnerProof is what a customer presents to act on an order: the contact
// email or phone used at checkout, or an authenticated user id.
type OwnerProof struct {
	Email  string
	Phone  string
	UserID string
}

func (p OwnerProof) owns(o *domain.Order) bool {
	if p.UserID != "" && o.Contact.UserID != nil && *o.Contact.UserID == p.UserID {
		return true
	}
	return o.Contact.Matches(p.Email, p.Phone)
}

// --- Public ---

// Track finds an order by tracking ID or order ID. Either identifier satisfies
// the lookup; they are looked up separately, never derived from each other.
func (u *OrderUsecase) Track(ctx context.Context, id string) (*domain.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrOrderNotFound
	}

	if utils.IsTrackingID(id) {
		order, err := u.orderRepo.GetByTrackingID(ctx, id)
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return order, err
		}
	}
	return u.orderRepo.GetByID(ctx, id)
}

// FindByIdentity lists the orders placed with an email or phone, newest first.
func (u *OrderUsecase) FindByIdentity(ctx context.Context, email, phone string) ([]domain.Order, error) {
	if strings.TrimSpace(email) == "" && strings.TrimSpace(phone) == "" {
		return nil, domain.ErrInvalidContact
	}
	return u.orderRepo.FindByIdentity(ctx, email, phone)
}

// resolveOwned loads an order the caller can prove they own. Orders the proof
// does not match are reported as not found.
func (u *OrderUsecase) resolveOwned(ctx context.Context, id string, proof OwnerProof) (*domain.Order, error) {
	order, err := u.Track(ctx, id)
	if err != nil {
		return nil, err
	}
	if !proof.owns(order) {
		logger.WithContext(ctx).Warn().Str("order_id", order.ID).Msg("order ownership check failed")
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// UpdateAddress replaces the shipping address while the order is still pending.
func (u *OrderUsecase) UpdateAddress(ctx context.Context, id string, proof OwnerProof, address domain.Address) (*domain.Order, error) {
	if err := address.Validate(); err != nil {
		return nil, err
	}
	order, err := u.resolveOwned(ctx, id, proof)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.ErrOrderNotModifiable.WithStatus(order.Status)
	}

	var updated *domain.Order
	err = withPersistenceRetry(ctx, u.machine.retryDelays, "update address", func() error {
		var err error
		updated, err = u.orderRepo.UpdateAddress(ctx, order.ID, address, u.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.WithContext(ctx).Info().Str("order_id", order.ID).Msg("shipping address updated")
	return updated, nil
}

// --- Admin ---

func (u *OrderUsecase) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrInvalidStatus.WithMessage("unknown order status %q", filter.Status)
	}
	return u.orderRepo.List(ctx, filter)
}

func (u *OrderUsecase) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return u.Track(ctx, id)
}

func (u *OrderUsecase) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, reason *string, actorID *string) (*domain.Order, error) {
	order, err := u.Track(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.machine.Transition(ctx, order.ID, status, TransitionMeta{Reason: reason, ActorID: actorID})
}

func (u *OrderUsecase) GetOrderHistory(ctx context.Context, id string) ([]domain.OrderHistory, error) {
	order, err := u.Track(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.orderRepo.GetHistory(ctx, order.ID)
}
