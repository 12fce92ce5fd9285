package v1

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-core/internal/domain"
	memcache "storefront-core/internal/infrastructure/cache"
	"storefront-core/internal/infrastructure/intent"
	"storefront-core/internal/infrastructure/payment"
	"storefront-core/internal/repository/memory"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGateway trusts callbacks carrying X-Test-Signature: valid.
type testGateway struct{}

func (testGateway) Method() domain.PaymentMethod { return domain.PaymentMethodBKash }

func (testGateway) Initiate(_ context.Context, req domain.SettlementRequest) (*domain.Initiation, error) {
	return &domain.Initiation{Token: req.Token, RedirectURL: "https://gateway.example/pay/" + req.Token}, nil
}

func (testGateway) ParseCallback(body []byte, header http.Header) (*domain.GatewayCallback, error) {
	if header.Get("X-Test-Signature") != "valid" {
		return nil, domain.ErrUntrustedCallback
	}
	var cb struct {
		Token   string                 `json:"token"`
		Ref     string                 `json:"ref"`
		Amount  domain.Money           `json:"amount"`
		Outcome domain.CallbackOutcome `json:"outcome"`
		Reason  string                 `json:"reason"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, domain.ErrUntrustedCallback
	}
	return &domain.GatewayCallback{Token: cb.Token, Reference: cb.Ref, Amount: cb.Amount, Outcome: cb.Outcome, FailureReason: cb.Reason}, nil
}

type server struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Store
}

func newServer(t *testing.T) *server {
	t.Helper()
	utils.SetSecret("test-secret")

	now := func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	store := memory.NewStore()
	store.PutProduct(domain.CatalogProduct{ID: "p1", Name: "Panjabi", Price: 500, Stock: 10, IsActive: true})

	orders := memory.NewOrderRepository(store)
	coupons := memory.NewCouponRepository(store)
	catalog := memory.NewCatalogService(store)
	memCache := memcache.NewMemoryCache(time.Hour, time.Hour)
	intents := intent.NewCacheStore(memCache, time.Hour)

	dispatcher := usecase.NewDispatcher(nil, nil, nil)
	machine := usecase.NewOrderStateMachine(orders, coupons, catalog, store, dispatcher, now)
	couponUC := usecase.NewCouponUsecase(coupons, now)
	checkoutUC := usecase.NewCheckoutUsecase(catalog, couponUC, intents, orders, machine,
		[]domain.SettlementMethod{payment.NewCOD(now), testGateway{}}, 100, "https://shop.example", now)
	orderUC := usecase.NewOrderUsecase(orders, machine, now)
	aftersalesUC := usecase.NewAftersalesUsecase(orderUC, memory.NewReturnRepository(store), machine, dispatcher, now)

	mux := http.NewServeMux()
	RegisterRoutes(mux, Handlers{
		Checkout:    NewCheckoutHandler(checkoutUC),
		Order:       NewOrderHandler(orderUC, aftersalesUC),
		AdminOrder:  NewAdminOrderHandler(orderUC, aftersalesUC),
		AdminCoupon: NewAdminCouponHandler(couponUC),
		Config:      NewConfigHandler(memCache, checkoutUC, 100, time.Hour),
	})
	return &server{t: t, handler: mux, store: store}
}

func (s *server) do(method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(s.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) token(userID, email, role string) string {
	s.t.Helper()
	tok, err := utils.GenerateJWT(userID, email, role, time.Hour)
	require.NoError(s.t, err)
	return "Bearer " + tok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var checkoutBody = map[string]interface{}{
	"lines":         []map[string]interface{}{{"productId": "p1", "quantity": 2}},
	"contact":       map[string]string{"name": "Rahim", "email": "rahim@example.com", "phone": "01711000000"},
	"paymentMethod": "cod",
	"shippingAddress": map[string]string{
		"recipientName": "Rahim", "phone": "01711000000", "addressLine": "House 12, Road 5", "area": "Dhanmondi", "city": "Dhaka",
	},
}

func (s *server) placeCOD(key string) domain.Order {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody, "Idempotency-Key", key)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[usecase.CheckoutResult](s.t, rec)
	require.NotNil(s.t, res.Order)
	return *res.Order
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{domain.ErrCouponExpired, http.StatusUnprocessableEntity},
		{domain.ErrPaymentFailed, http.StatusPaymentRequired},
		{domain.ErrGatewayUnavailable.WithMessage("bkash timed out"), http.StatusBadGateway},
		{domain.ErrIllegalTransition.WithStatus(domain.OrderStatusShipped), http.StatusConflict},
		{domain.ErrSettlementMismatch, http.StatusConflict},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrUntrustedCallback, http.StatusUnauthorized},
		{domain.ErrPersistence, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCheckout_CODIsIdempotentAndTrackable(t *testing.T) {
	s := newServer(t)

	first := s.placeCOD("key-1")
	assert.Equal(t, domain.OrderStatusPending, first.Status)
	assert.Equal(t, domain.Money(1100), first.Pricing.GrandTotal)

	again := s.placeCOD("key-1")
	assert.Equal(t, first.ID, again.ID)

	rec := s.do(http.MethodGet, "/api/v1/orders/track/"+first.TrackingID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.ID, decode[domain.Order](t, rec).ID)

	rec = s.do(http.MethodGet, "/api/v1/orders/track/RF-0000000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "order_not_found", decode[utils.ErrorBody](t, rec).Code)
}

func TestCheckout_Rejections(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_idempotency_key", decode[utils.ErrorBody](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/checkout", `{"lines": [], "surprise": true}`, "Idempotency-Key", "k")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[utils.ErrorBody](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/checkout/quote", map[string]interface{}{
		"lines": []map[string]interface{}{{"productId": "p1", "quantity": 11}},
	})
	require.Equal(t, http.StatusOK, rec.Code, "quotes do not check stock")

	big := map[string]interface{}{}
	for k, v := range checkoutBody {
		big[k] = v
	}
	big["lines"] = []map[string]interface{}{{"productId": "p1", "quantity": 11}}
	rec = s.do(http.MethodPost, "/api/v1/checkout", big, "Idempotency-Key", "k-big")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "out_of_stock", decode[utils.ErrorBody](t, rec).Code)
}

func TestCheckout_SignedInOrderIsAttributed(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/v1/checkout", checkoutBody,
		"Idempotency-Key", "key-u", "Authorization", s.token("user-7", "rahim@example.com", "customer"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[usecase.CheckoutResult](t, rec).Order
	require.NotNil(t, order.Contact.UserID)
	assert.Equal(t, "user-7", *order.Contact.UserID)
}

func TestWebhook_OnlineFlow(t *testing.T) {
	s := newServer(t)

	body := map[string]interface{}{}
	for k, v := range checkoutBody {
		body[k] = v
	}
	body["paymentMethod"] = "bkash"
	rec := s.do(http.MethodPost, "/api/v1/checkout", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	started := decode[usecase.CheckoutResult](t, rec)
	require.NotEmpty(t, started.Token)
	assert.Equal(t, domain.IntentPending, started.Status)

	callback := map[string]interface{}{"token": started.Token, "ref": "TRX-1", "amount": 1100, "outcome": "succeeded"}

	rec = s.do(http.MethodPost, "/api/v1/payments/bkash/webhook", callback)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unsigned callbacks are discarded")

	rec = s.do(http.MethodPost, "/api/v1/payments/BKASH/webhook", callback, "X-Test-Signature", "valid")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[map[string]string](t, rec)
	assert.NotEmpty(t, settled["trackingId"])

	rec = s.do(http.MethodPost, "/api/v1/payments/bkash/webhook", callback, "X-Test-Signature", "valid")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, settled["orderId"], decode[map[string]string](t, rec)["orderId"])

	rec = s.do(http.MethodGet, "/api/v1/checkout/"+started.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[usecase.CheckoutResult](t, rec)
	assert.Equal(t, domain.IntentSettled, status.Status)
	require.NotNil(t, status.Order)
	assert.Equal(t, domain.PaymentStatusPaid, status.Order.PaymentStatus)

	rec = s.do(http.MethodPost, "/api/v1/payments/nagad/webhook", callback, "X-Test-Signature", "valid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/checkout/unknown-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (s *server) startBKash(key string) string {
	s.t.Helper()
	body := map[string]interface{}{}
	for k, v := range checkoutBody {
		body[k] = v
	}
	body["paymentMethod"] = "bkash"
	body["idempotencyKey"] = key
	rec := s.do(http.MethodPost, "/api/v1/checkout", body)
	require.Equal(s.t, http.StatusAccepted, rec.Code, rec.Body.String())
	return decode[usecase.CheckoutResult](s.t, rec).Token
}

func TestWebhook_ClosedSessionsAreAcknowledged(t *testing.T) {
	s := newServer(t)
	const path = "/api/v1/payments/bkash/webhook"

	declined := s.startBKash("wh-failed")
	rec := s.do(http.MethodPost, path, map[string]interface{}{"token": declined, "amount": 1100, "outcome": "failed", "reason": "insufficient balance"}, "X-Test-Signature", "valid")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "payment_failed", body["code"])
	assert.Contains(t, body["reason"], "insufficient balance")

	cancelled := s.startBKash("wh-cancelled")
	rec = s.do(http.MethodPost, path, map[string]interface{}{"token": cancelled, "amount": 1100, "outcome": "cancelled"}, "X-Test-Signature", "valid")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "abandoned", decode[map[string]string](t, rec)["status"])

	// A success arriving after the customer cancelled is acknowledged but ignored.
	rec = s.do(http.MethodPost, path, map[string]interface{}{"token": cancelled, "ref": "TRX-LATE", "amount": 1100, "outcome": "succeeded"}, "X-Test-Signature", "valid")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode[map[string]string](t, rec)
	assert.Equal(t, "abandoned", body["status"])
	assert.Empty(t, body["orderId"])

	rec = s.do(http.MethodGet, "/api/v1/checkout/"+cancelled, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[usecase.CheckoutResult](t, rec)
	assert.Equal(t, domain.IntentAbandoned, status.Status)
	assert.Nil(t, status.Order)

	// Unverified callbacks are still refused.
	rec = s.do(http.MethodPost, path, map[string]interface{}{"token": declined, "outcome": "failed"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCancel_OwnershipAndRules(t *testing.T) {
	s := newServer(t)
	order := s.placeCOD("key-c")
	path := "/api/v1/orders/" + order.TrackingID + "/cancel"

	rec := s.do(http.MethodPost, path, map[string]string{"email": "someone@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, path, map[string]string{"phone": "01711-000000", "reason": "changed my mind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusCancelled, decode[domain.Order](t, rec).Status)

	rec = s.do(http.MethodPost, path, map[string]string{"email": "rahim@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[utils.ErrorBody](t, rec)
	assert.Equal(t, "cancellation_not_allowed", body.Code)
	assert.Equal(t, "cancelled", body.CurrentStatus)
}

func TestFindByIdentity_UsesTokenEmail(t *testing.T) {
	s := newServer(t)
	s.placeCOD("key-f")

	rec := s.do(http.MethodGet, "/api/v1/orders", nil, "Authorization", s.token("user-1", "RAHIM@example.com", "customer"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["total"])

	rec = s.do(http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOrders_AuthAndTransitions(t *testing.T) {
	s := newServer(t)
	order := s.placeCOD("key-a")
	admin := s.token("admin-1", "ops@example.com", "admin")
	statusPath := "/api/v1/admin/orders/" + order.ID + "/status"

	rec := s.do(http.MethodGet, "/api/v1/admin/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders", nil, "Authorization", s.token("user-1", "rahim@example.com", "customer"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders?status=pending", nil, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["total"])

	rec = s.do(http.MethodPatch, statusPath, map[string]string{"status": "delivered"}, "Authorization", admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pending", decode[utils.ErrorBody](t, rec).CurrentStatus)

	rec = s.do(http.MethodPatch, statusPath, map[string]string{"status": "processing", "note": "packed"}, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.OrderStatusProcessing, decode[domain.Order](t, rec).Status)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders/"+order.ID+"/history", nil, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]domain.OrderHistory](t, rec)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].CreatedBy)
	assert.Equal(t, "admin-1", *history[1].CreatedBy)
	require.NotNil(t, history[1].Reason)
	assert.Equal(t, "packed", *history[1].Reason)

	rec = s.do(http.MethodGet, "/api/v1/admin/orders/"+order.ID+"/returns", nil, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.ReturnRequest](t, rec))
}

func TestAdminCoupons_CRUD(t *testing.T) {
	s := newServer(t)
	admin := s.token("admin-1", "ops@example.com", "admin")

	rec := s.do(http.MethodPost, "/api/v1/admin/coupons", map[string]interface{}{
		"code": "eid25", "kind": "percentage", "value": 25, "maxRedemptions": 10,
		"expiresAt": "2026-12-31T23:59:59Z", "isActive": true,
	}, "Authorization", admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	coupon := decode[domain.Coupon](t, rec)
	assert.Equal(t, "EID25", coupon.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/coupons", nil, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["total"])

	rec = s.do(http.MethodPost, "/api/v1/checkout/quote", map[string]interface{}{
		"lines":      []map[string]interface{}{{"productId": "p1", "quantity": 2}},
		"couponCode": "eid25",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[usecase.Quote](t, rec)
	assert.Equal(t, domain.Money(250), quote.Pricing.Discount)

	rec = s.do(http.MethodDelete, "/api/v1/admin/coupons/"+coupon.ID.String(), nil, "Authorization", admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/coupons/"+coupon.ID.String(), nil, "Authorization", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "coupon_not_found", decode[utils.ErrorBody](t, rec).Code)

	rec = s.do(http.MethodPost, "/api/v1/checkout/quote", map[string]interface{}{
		"lines":      []map[string]interface{}{{"productId": "p1", "quantity": 2}},
		"couponCode": "eid25",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[usecase.Quote](t, rec).CouponMessage)
}

func TestConfigEnums_Cached(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/api/v1/config/enums", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	enums := decode[map[string]interface{}](t, rec)
	assert.ElementsMatch(t, []interface{}{"cod", "bkash"}, enums["paymentMethods"])
	assert.EqualValues(t, 7, enums["returnWindowDays"])

	rec = s.do(http.MethodGet, "/api/v1/config/enums", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums, decode[map[string]interface{}](t, rec))
}
