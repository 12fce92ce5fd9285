package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"
)

type orderRepository struct {
	s *Store
}

func NewOrderRepository(s *Store) domain.OrderRepository {
	return &orderRepository{s: s}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Lines = append([]domain.CartLine(nil), o.Lines...)
	if o.CouponID != nil {
		id := *o.CouponID
		c.CouponID = &id
	}
	c.CouponCode = cloneString(o.CouponCode)
	c.PaymentReference = cloneString(o.PaymentReference)
	c.CancellationReason = cloneString(o.CancellationReason)
	c.Contact.UserID = cloneString(o.Contact.UserID)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	var (
		stored  *domain.Order
		created bool
	)
	err := r.s.exec(ctx, func(tx *txState) error {
		if err := r.s.injectedFailure(); err != nil {
			return err
		}

		if id, ok := r.s.byIdempotency[order.IdempotencyKey]; ok {
			stored = cloneOrder(r.s.orders[id])
			return nil
		}
		if order.PaymentReference != nil {
			if id, ok := r.s.byReference[*order.PaymentReference]; ok {
				stored = cloneOrder(r.s.orders[id])
				return nil
			}
		}
		if _, ok := r.s.orders[order.ID]; ok {
			return domain.ErrPersistence.WithMessage("order id %s already exists", order.ID)
		}
		if _, ok := r.s.byTracking[order.TrackingID]; ok {
			return domain.ErrPersistence.WithMessage("tracking id %s already exists", order.TrackingID)
		}

		c := cloneOrder(order)
		r.s.orders[c.ID] = c
		r.s.byIdempotency[c.IdempotencyKey] = c.ID
		r.s.byTracking[c.TrackingID] = c.ID
		if c.PaymentReference != nil {
			r.s.byReference[*c.PaymentReference] = c.ID
		}
		tx.onRollback(func() {
			delete(r.s.orders, c.ID)
			delete(r.s.byIdempotency, c.IdempotencyKey)
			delete(r.s.byTracking, c.TrackingID)
			if c.PaymentReference != nil {
				delete(r.s.byReference, *c.PaymentReference)
			}
		})

		stored = cloneOrder(c)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *orderRepository) getBy(ctx context.Context, find func() (string, bool)) (*domain.Order, error) {
	var out *domain.Order
	err := r.s.exec(ctx, func(tx *txState) error {
		id, ok := find()
		if !ok {
			return domain.ErrOrderNotFound
		}
		o, ok := r.s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getBy(ctx, func() (string, bool) { return id, true })
}

func (r *orderRepository) GetByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	return r.getBy(ctx, func() (string, bool) {
		id, ok := r.s.byTracking[utils.NormalizeTrackingID(trackingID)]
		return id, ok
	})
}

func (r *orderRepository) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.getBy(ctx, func() (string, bool) {
		id, ok := r.s.byReference[reference]
		return id, ok
	})
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.getBy(ctx, func() (string, bool) {
		id, ok := r.s.byIdempotency[key]
		return id, ok
	})
}

func (r *orderRepository) FindByIdentity(ctx context.Context, email, phone string) ([]domain.Order, error) {
	if domain.NormalizeEmail(email) == "" && domain.NormalizePhone(phone) == "" {
		return nil, domain.ErrInvalidContact
	}

	var out []domain.Order
	err := r.s.exec(ctx, func(tx *txState) error {
		for _, o := range r.s.orders {
			if o.Contact.Matches(email, phone) {
				out = append(out, *cloneOrder(o))
			}
		}
		return nil
	})
	sortNewestFirst(out)
	return out, err
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	var matched []domain.Order
	err := r.s.exec(ctx, func(tx *txState) error {
		search := strings.ToLower(strings.TrimSpace(filter.Search))
		for _, o := range r.s.orders {
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
				continue
			}
			if filter.PaymentMethod != "" && o.PaymentMethod != filter.PaymentMethod {
				continue
			}
			if search != "" && !matchesSearch(o, search) {
				continue
			}
			matched = append(matched, *cloneOrder(o))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sortNewestFirst(matched)
	total := int64(len(matched))

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []domain.Order{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func matchesSearch(o *domain.Order, q string) bool {
	fields := []string{o.ID, o.TrackingID, o.Contact.Name, o.Contact.Email, o.Contact.Phone}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func sortNewestFirst(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func (r *orderRepository) UpdateStatus(ctx context.Context, u domain.StatusUpdate) (*domain.Order, error) {
	var out *domain.Order
	err := r.s.exec(ctx, func(tx *txState) error {
		if err := r.s.injectedFailure(); err != nil {
			return err
		}

		o, ok := r.s.orders[u.OrderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if o.Status != u.From {
			return domain.ErrStatusConflict.WithStatus(o.Status)
		}

		prev := cloneOrder(o)
		o.Status = u.To
		o.UpdatedAt = u.At
		if u.MarkDelivered && o.DeliveredAt == nil {
			at := u.At
			o.DeliveredAt = &at
		}
		if u.PaymentStatus != nil {
			o.PaymentStatus = *u.PaymentStatus
		}
		if u.CancellationReason != nil {
			o.CancellationReason = cloneString(u.CancellationReason)
		}
		tx.onRollback(func() { r.s.orders[u.OrderID] = prev })

		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r *orderRepository) UpdateAddress(ctx context.Context, id string, address domain.Address, at time.Time) (*domain.Order, error) {
	var out *domain.Order
	err := r.s.exec(ctx, func(tx *txState) error {
		o, ok := r.s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if o.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotModifiable.WithStatus(o.Status)
		}

		prev := cloneOrder(o)
		o.ShippingAddress = address
		o.UpdatedAt = at
		tx.onRollback(func() { r.s.orders[id] = prev })

		out = cloneOrder(o)
		return nil
	})
	return out, err
}

func (r *orderRepository) AppendHistory(ctx context.Context, h *domain.OrderHistory) error {
	return r.s.exec(ctx, func(tx *txState) error {
		if _, ok := r.s.orders[h.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		if h.ID == "" {
			h.ID = utils.GenerateUUID()
		}
		if h.CreatedAt.IsZero() {
			h.CreatedAt = time.Now()
		}
		r.s.history[h.OrderID] = append(r.s.history[h.OrderID], *h)
		tx.onRollback(func() {
			entries := r.s.history[h.OrderID]
			r.s.history[h.OrderID] = entries[:len(entries)-1]
		})
		return nil
	})
}

func (r *orderRepository) GetHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	var out []domain.OrderHistory
	err := r.s.exec(ctx, func(tx *txState) error {
		out = append(out, r.s.history[orderID]...)
		return nil
	})
	return out, err
}
