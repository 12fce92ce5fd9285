package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"storefront-core/internal/domain"
	memcache "storefront-core/internal/infrastructure/cache"
	"storefront-core/internal/infrastructure/intent"
	"storefront-core/internal/infrastructure/payment"
	"storefront-core/internal/repository/memory"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const testShipping domain.Money = 100

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e domain.OrderEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Types(orderID string) []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.EventType
	for _, e := range n.events {
		if e.OrderID == orderID {
			out = append(out, e.Type)
		}
	}
	return out
}

type recordingLoyalty struct {
	mu       sync.Mutex
	accruals []domain.LoyaltyAccrual
}

func (l *recordingLoyalty) Accrue(_ context.Context, a domain.LoyaltyAccrual) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accruals = append(l.accruals, a)
	return nil
}

// fakeGateway is an online method whose callbacks are plain JSON, trusted
// when they carry the signature header "valid".
type fakeGateway struct {
	method domain.PaymentMethod
}

type fakeCallback struct {
	Token   string                 `json:"token"`
	Ref     string                 `json:"ref"`
	Amount  domain.Money           `json:"amount"`
	Outcome domain.CallbackOutcome `json:"outcome"`
	Reason  string                 `json:"reason"`
}

func (g *fakeGateway) Method() domain.PaymentMethod { return g.method }

func (g *fakeGateway) Initiate(_ context.Context, req domain.SettlementRequest) (*domain.Initiation, error) {
	return &domain.Initiation{
		Token:       req.Token,
		RedirectURL: "https://gateway.example/pay/" + req.Token,
		GatewayRef:  "GW-" + req.Token,
	}, nil
}

func (g *fakeGateway) ParseCallback(body []byte, header http.Header) (*domain.GatewayCallback, error) {
	if header.Get("X-Test-Signature") != "valid" {
		return nil, domain.ErrUntrustedCallback
	}
	var cb fakeCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, domain.ErrUntrustedCallback
	}
	return &domain.GatewayCallback{
		Token:         cb.Token,
		Reference:     cb.Ref,
		Amount:        cb.Amount,
		Outcome:       cb.Outcome,
		FailureReason: cb.Reason,
	}, nil
}

type harness struct {
	t          *testing.T
	clock      *fakeClock
	store      *memory.Store
	orders     domain.OrderRepository
	coupons    domain.CouponRepository
	catalog    domain.CatalogService
	intents    domain.IntentStore
	notifier   *recordingNotifier
	loyalty    *recordingLoyalty
	dispatcher *Dispatcher
	machine    *OrderStateMachine
	couponUC   *CouponUsecase
	checkout   *CheckoutUsecase
	orderUC    *OrderUsecase
	aftersales *AftersalesUsecase
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		store:    memory.NewStore(),
		notifier: &recordingNotifier{},
		loyalty:  &recordingLoyalty{},
	}
	h.orders = memory.NewOrderRepository(h.store)
	h.coupons = memory.NewCouponRepository(h.store)
	h.catalog = memory.NewCatalogService(h.store)
	h.intents = intent.NewCacheStore(memcache.NewMemoryCache(time.Hour, time.Hour), time.Hour)
	h.dispatcher = NewDispatcher(h.notifier, h.loyalty, nil)

	h.machine = NewOrderStateMachine(h.orders, h.coupons, h.catalog, h.store, h.dispatcher, h.clock.Now)
	h.machine.retryDelays = []time.Duration{0, 0}
	h.couponUC = NewCouponUsecase(h.coupons, h.clock.Now)
	h.checkout = NewCheckoutUsecase(
		h.catalog, h.couponUC, h.intents, h.orders, h.machine,
		[]domain.SettlementMethod{
			payment.NewCOD(h.clock.Now),
			&fakeGateway{method: domain.PaymentMethodBKash},
			&fakeGateway{method: domain.PaymentMethodNagad},
		},
		testShipping, "https://shop.example", h.clock.Now,
	)
	h.orderUC = NewOrderUsecase(h.orders, h.machine, h.clock.Now)
	h.aftersales = NewAftersalesUsecase(h.orderUC, memory.NewReturnRepository(h.store), h.machine, h.dispatcher, h.clock.Now)

	h.store.PutProduct(domain.CatalogProduct{ID: "p1", Name: "Panjabi", Price: 500, Stock: 10, IsActive: true})
	h.store.PutProduct(domain.CatalogProduct{ID: "p2", Name: "Saree", Price: 333, Stock: 10, IsActive: true})
	return h
}

func (h *harness) addCoupon(code string, kind domain.CouponKind, value int64, minOrder domain.Money, maxRedemptions int) *domain.Coupon {
	h.t.Helper()
	c := &domain.Coupon{
		Code:           code,
		Kind:           kind,
		Value:          value,
		MinOrderAmount: minOrder,
		MaxRedemptions: maxRedemptions,
		ExpiresAt:      h.clock.Now().Add(30 * 24 * time.Hour),
		IsActive:       true,
	}
	require.NoError(h.t, h.coupons.CreateCoupon(context.Background(), c))
	return c
}

var testContact = domain.Contact{Name: "Rahim", Email: "rahim@example.com", Phone: "01711000000"}

var testAddress = domain.Address{RecipientName: "Rahim", Phone: "01711000000", AddressLine: "House 12, Road 5", Area: "Dhanmondi", City: "Dhaka"}

func cart() []domain.CartLine {
	return []domain.CartLine{{ProductID: "p1", Quantity: 2}}
}

func (h *harness) placeCOD(key string, coupon string) *domain.Order {
	h.t.Helper()
	res, err := h.checkout.Checkout(context.Background(), CheckoutReq{
		Lines:          cart(),
		CouponCode:     coupon,
		Contact:        testContact,
		Address:        testAddress,
		PaymentMethod:  domain.PaymentMethodCOD,
		IdempotencyKey: key,
	})
	require.NoError(h.t, err)
	require.NotNil(h.t, res.Order)
	return res.Order
}

func (h *harness) startOnline(method domain.PaymentMethod, key string) *CheckoutResult {
	h.t.Helper()
	res, err := h.checkout.Checkout(context.Background(), CheckoutReq{
		Lines:          cart(),
		Contact:        testContact,
		Address:        testAddress,
		PaymentMethod:  method,
		IdempotencyKey: key,
	})
	require.NoError(h.t, err)
	require.Equal(h.t, domain.IntentPending, res.Status)
	return res
}

func (h *harness) webhook(method domain.PaymentMethod, cb fakeCallback) (*domain.Order, error) {
	body, err := json.Marshal(cb)
	require.NoError(h.t, err)
	header := http.Header{}
	header.Set("X-Test-Signature", "valid")
	return h.checkout.HandleCallback(context.Background(), method, body, header)
}

func (h *harness) advance(orderID string, to ...domain.OrderStatus) *domain.Order {
	h.t.Helper()
	var o *domain.Order
	for _, s := range to {
		var err error
		o, err = h.machine.Transition(context.Background(), orderID, s, TransitionMeta{})
		require.NoError(h.t, err, "transition to %s", s)
	}
	return o
}

func (h *harness) stock(productID string) int {
	h.t.Helper()
	p, err := h.catalog.GetProduct(context.Background(), productID)
	require.NoError(h.t, err)
	return p.Stock
}

func (h *harness) orderCount() int64 {
	h.t.Helper()
	_, total, err := h.orders.List(context.Background(), domain.OrderFilter{Page: 1, Limit: 100})
	require.NoError(h.t, err)
	return total
}

var errNotifyDown = errors.New("notification backend down")
