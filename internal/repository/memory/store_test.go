package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-core/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id, key string) *domain.Order {
	now := time.Now()
	return &domain.Order{
		ID:             id,
		TrackingID:     "RF-" + id,
		Lines:          []domain.CartLine{{ProductID: "p1", UnitPrice: 500, Quantity: 2}},
		PaymentMethod:  domain.PaymentMethodCOD,
		PaymentStatus:  domain.PaymentStatusPending,
		Status:         domain.OrderStatusPending,
		IdempotencyKey: key,
		Contact:        domain.Contact{Name: "Rahim", Email: "rahim@example.com", Phone: "01711000000"},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCreate_IsIdempotent(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()

	first, created, err := repo.Create(ctx, newOrder("o1", "cod:tok"))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := repo.Create(ctx, newOrder("o2", "cod:tok"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, err = repo.GetByID(ctx, "o2")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCreate_DuplicatePaymentReference(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()
	ref := "TRX1"

	a := newOrder("o1", "bkash:TRX1")
	a.PaymentReference = &ref
	_, _, err := repo.Create(ctx, a)
	require.NoError(t, err)

	b := newOrder("o2", "bkash:other")
	b.PaymentReference = &ref
	stored, created, err := repo.Create(ctx, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "o1", stored.ID)
}

func TestTransaction_RollsBackEveryWrite(t *testing.T) {
	s := NewStore()
	orders := NewOrderRepository(s)
	coupons := NewCouponRepository(s)
	catalog := NewCatalogService(s)
	ctx := context.Background()

	s.PutProduct(domain.CatalogProduct{ID: "p1", Name: "Panjabi", Price: 500, Stock: 5, IsActive: true})
	coupon := &domain.Coupon{Code: "eid10", Kind: domain.CouponKindPercentage, Value: 10, MaxRedemptions: 1, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, coupons.CreateCoupon(ctx, coupon))

	boom := errors.New("boom")
	err := s.Do(ctx, func(ctx context.Context) error {
		if _, _, err := orders.Create(ctx, newOrder("o1", "cod:a")); err != nil {
			return err
		}
		if err := coupons.Redeem(ctx, coupon.ID); err != nil {
			return err
		}
		if err := catalog.AdjustStock(ctx, "p1", -2, "order_placed", "o1", false); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = orders.GetByID(ctx, "o1")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	c, err := coupons.GetCouponByCode(ctx, "EID10")
	require.NoError(t, err)
	assert.Equal(t, 0, c.RedemptionsUsed)

	p, err := catalog.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Empty(t, s.InventoryLogs("p1"))
}

func TestRedeem_ConcurrentNeverExceedsCap(t *testing.T) {
	s := NewStore()
	coupons := NewCouponRepository(s)
	ctx := context.Background()

	coupon := &domain.Coupon{Code: "LIMITED", Kind: domain.CouponKindFlat, Value: 50, MaxRedemptions: 5, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, coupons.CreateCoupon(ctx, coupon))

	var ok, exhausted int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := coupons.Redeem(ctx, coupon.ID)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.Is(err, domain.ErrCouponExhausted):
				atomic.AddInt64(&exhausted, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), ok)
	assert.Equal(t, int64(45), exhausted)

	stored, err := coupons.GetCouponByID(ctx, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.RedemptionsUsed)
}

func TestUpdateStatus_GuardsExpectedStatus(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()
	_, _, err := repo.Create(ctx, newOrder("o1", "cod:a"))
	require.NoError(t, err)

	at := time.Now()
	updated, err := repo.UpdateStatus(ctx, domain.StatusUpdate{OrderID: "o1", From: domain.OrderStatusPending, To: domain.OrderStatusProcessing, At: at})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, updated.Status)

	_, err = repo.UpdateStatus(ctx, domain.StatusUpdate{OrderID: "o1", From: domain.OrderStatusPending, To: domain.OrderStatusCancelled, At: at})
	require.ErrorIs(t, err, domain.ErrStatusConflict)
	assert.Equal(t, domain.OrderStatusProcessing, domain.StatusOf(err))
}

func TestUpdateStatus_DeliveredAtSetOnce(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()
	o := newOrder("o1", "cod:a")
	o.Status = domain.OrderStatusShipped
	_, _, err := repo.Create(ctx, o)
	require.NoError(t, err)

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	updated, err := repo.UpdateStatus(ctx, domain.StatusUpdate{OrderID: "o1", From: domain.OrderStatusShipped, To: domain.OrderStatusDelivered, At: first, MarkDelivered: true})
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveredAt)

	// A second write of the same status cannot move the timestamp.
	updated, err = repo.UpdateStatus(ctx, domain.StatusUpdate{OrderID: "o1", From: domain.OrderStatusDelivered, To: domain.OrderStatusDelivered, At: first.Add(time.Hour), MarkDelivered: true})
	require.NoError(t, err)
	assert.True(t, first.Equal(*updated.DeliveredAt))
}

func TestUpdateAddress_OnlyWhilePending(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()
	o := newOrder("o1", "cod:a")
	_, _, err := repo.Create(ctx, o)
	require.NoError(t, err)

	addr := domain.Address{RecipientName: "Karim", AddressLine: "House 1", City: "Dhaka"}
	updated, err := repo.UpdateAddress(ctx, "o1", addr, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Karim", updated.ShippingAddress.RecipientName)

	_, err = repo.UpdateStatus(ctx, domain.StatusUpdate{OrderID: "o1", From: domain.OrderStatusPending, To: domain.OrderStatusProcessing, At: time.Now()})
	require.NoError(t, err)

	_, err = repo.UpdateAddress(ctx, "o1", addr, time.Now())
	require.ErrorIs(t, err, domain.ErrOrderNotModifiable)
	assert.Equal(t, domain.OrderStatusProcessing, domain.StatusOf(err))
}

func TestFindByIdentity(t *testing.T) {
	repo := NewOrderRepository(NewStore())
	ctx := context.Background()

	older := newOrder("o1", "cod:a")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := newOrder("o2", "cod:b")
	other := newOrder("o3", "cod:c")
	other.Contact = domain.Contact{Name: "X", Email: "x@example.com"}
	for _, o := range []*domain.Order{older, newer, other} {
		_, _, err := repo.Create(ctx, o)
		require.NoError(t, err)
	}

	byEmail, err := repo.FindByIdentity(ctx, "RAHIM@example.com", "")
	require.NoError(t, err)
	require.Len(t, byEmail, 2)
	assert.Equal(t, "o2", byEmail[0].ID)

	byPhone, err := repo.FindByIdentity(ctx, "", "+880 1711-000000")
	require.NoError(t, err)
	assert.Len(t, byPhone, 0, "country code makes it a different number")

	byPhone, err = repo.FindByIdentity(ctx, "", "01711-000000")
	require.NoError(t, err)
	assert.Len(t, byPhone, 2)

	_, err = repo.FindByIdentity(ctx, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidContact)
}

func TestReturns_OneOpenRequestPerOrder(t *testing.T) {
	s := NewStore()
	orders := NewOrderRepository(s)
	returns := NewReturnRepository(s)
	ctx := context.Background()
	_, _, err := orders.Create(ctx, newOrder("o1", "cod:a"))
	require.NoError(t, err)

	require.NoError(t, returns.CreateReturn(ctx, &domain.ReturnRequest{OrderID: "o1", Reason: domain.ReturnReasonDamaged, Status: domain.ReturnStatusSubmitted}))
	err = returns.CreateReturn(ctx, &domain.ReturnRequest{OrderID: "o1", Reason: domain.ReturnReasonDamaged, Status: domain.ReturnStatusSubmitted})
	assert.ErrorIs(t, err, domain.ErrReturnAlreadyRequested)

	list, err := returns.GetReturnsByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCoupons_CodeIsUniqueCaseInsensitive(t *testing.T) {
	coupons := NewCouponRepository(NewStore())
	ctx := context.Background()

	require.NoError(t, coupons.CreateCoupon(ctx, &domain.Coupon{ID: uuid.New(), Code: "Save50", MaxRedemptions: 1}))
	err := coupons.CreateCoupon(ctx, &domain.Coupon{ID: uuid.New(), Code: "SAVE50", MaxRedemptions: 1})
	assert.ErrorIs(t, err, domain.ErrCouponCodeTaken)
}

func TestFailWrites(t *testing.T) {
	s := NewStore()
	repo := NewOrderRepository(s)
	s.FailWrites(1)

	_, _, err := repo.Create(context.Background(), newOrder("o1", "cod:a"))
	require.Error(t, err)
	assert.Equal(t, domain.KindPersistence, domain.KindOf(err))

	_, created, err := repo.Create(context.Background(), newOrder("o1", "cod:a"))
	require.NoError(t, err)
	assert.True(t, created)
}
