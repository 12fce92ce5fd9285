package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/metrics"
	"storefront-core/pkg/utils"
)

type CheckoutUsecase struct {
	catalog         domain.CatalogService
	coupons         *CouponUsecase
	intents         domain.IntentStore
	orders          domain.OrderRepository
	machine         *OrderStateMachine
	methods         map[domain.PaymentMethod]domain.SettlementMethod
	shipping        domain.Money
	callbackBaseURL string
	now             func() time.Time
}

func NewCheckoutUsecase(
	catalog domain.CatalogService,
	coupons *CouponUsecase,
	intents domain.IntentStore,
	orders domain.OrderRepository,
	machine *OrderStateMachine,
	methods []domain.SettlementMethod,
	shipping domain.Money,
	callbackBaseURL string,
	now func() time.Time,
) *CheckoutUsecase {
	if now == nil {
		now = time.Now
	}
	byMethod := make(map[domain.PaymentMethod]domain.SettlementMethod, len(methods))
	for _, m := range methods {
		byMethod[m.Method()] = m
	}
	return &CheckoutUsecase{
		catalog:         catalog,
		coupons:         coupons,
		intents:         intents,
		orders:          orders,
		machine:         machine,
		methods:         byMethod,
		shipping:        shipping,
		callbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
		now:             now,
	}
}

// Methods lists the configured payment methods.
func (u *CheckoutUsecase) Methods() []domain.PaymentMethod {
	out := make([]domain.PaymentMethod, 0, len(u.methods))
	for _, m := range domain.PaymentMethods {
		if _, ok := u.methods[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// --- Quote ---

type QuoteReq struct {
	Lines      []domain.CartLine `json:"lines"`
	CouponCode string            `json:"couponCode,omitempty"`
}

type Quote struct {
	Lines         []domain.CartLine     `json:"lines"`
	Pricing       domain.PriceBreakdown `json:"pricing"`
	CouponCode    string                `json:"couponCode,omitempty"`
	CouponMessage string                `json:"couponMessage,omitempty"`
}

// Quote prices a cart at catalog prices. A coupon that does not apply is
// reported in CouponMessage and the quote is priced without it.
func (u *CheckoutUsecase) Quote(ctx context.Context, req QuoteReq) (*Quote, error) {
	lines, _, err := u.reprice(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	q := &Quote{Lines: lines}
	var coupon *domain.Coupon
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		c, _, err := u.coupons.Validate(ctx, code, subtotalOf(lines))
		switch {
		case err == nil:
			coupon = c
			q.CouponCode = c.Code
		case domain.KindOf(err) == domain.KindCoupon:
			q.CouponMessage = err.Error()
		default:
			return nil, err
		}
	}

	q.Pricing, err = ComputePrice(lines, coupon, u.shipping)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// --- Checkout ---

type CheckoutReq struct {
	Lines          []domain.CartLine    `json:"lines"`
	CouponCode     string               `json:"couponCode,omitempty"`
	Contact        domain.Contact       `json:"contact"`
	Address        domain.Address       `json:"shippingAddress"`
	PaymentMethod  domain.PaymentMethod `json:"paymentMethod"`
	IdempotencyKey string               `json:"idempotencyKey"`
	ExpectedTotal  *domain.Money        `json:"expectedTotal,omitempty"`
}

type CheckoutResult struct {
	Status        domain.IntentState     `json:"status"`
	Token         string                 `json:"token,omitempty"`
	RedirectURL   string                 `json:"redirectUrl,omitempty"`
	Pricing       *domain.PriceBreakdown `json:"pricing,omitempty"`
	Order         *domain.Order          `json:"order,omitempty"`
	FailureReason string                 `json:"failureReason,omitempty"`
}

// Checkout starts settlement. Cash on delivery settles on the spot and the
// order is created before returning. Online methods store a payment intent and
// return a redirect; the order is created only when the gateway calls back.
func (u *CheckoutUsecase) Checkout(ctx context.Context, req CheckoutReq) (*CheckoutResult, error) {
	log := logger.WithContext(ctx)

	method, ok := u.methods[req.PaymentMethod]
	if !ok {
		return nil, domain.ErrInvalidPaymentMethod.WithMessage("payment method %q is not supported", req.PaymentMethod)
	}
	if err := req.Contact.Validate(); err != nil {
		return nil, err
	}
	if err := req.Address.Validate(); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" && !req.PaymentMethod.IsOnline() {
		return nil, domain.ErrInvalidIdempotencyKey
	}

	// Replays of an earlier submission get the earlier outcome.
	if done, err := u.replay(ctx, req.PaymentMethod, key); err != nil || done != nil {
		return done, err
	}

	lines, stock, err := u.reprice(ctx, req.Lines)
	if err != nil {
		return nil, err
	}

	var coupon *domain.Coupon
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, _, err = u.coupons.Validate(ctx, code, subtotalOf(lines))
		if err != nil {
			return nil, err
		}
	}

	pricing, err := ComputePrice(lines, coupon, u.shipping)
	if err != nil {
		return nil, err
	}
	if req.ExpectedTotal != nil && *req.ExpectedTotal != pricing.GrandTotal {
		return nil, domain.ErrSettlementMismatch.WithMessage(
			"quoted total %s does not match current total %s", req.ExpectedTotal.Major(), pricing.GrandTotal.Major())
	}
	for _, line := range lines {
		if stock[line.ProductID] < line.Quantity {
			return nil, domain.ErrOutOfStock.WithMessage("only %d of %s left", max(stock[line.ProductID], 0), line.Name)
		}
	}

	token := key
	if token == "" {
		token = utils.GenerateUUID()
	}
	initiation, err := method.Initiate(ctx, domain.SettlementRequest{
		Token:       token,
		Amount:      pricing.GrandTotal,
		Contact:     req.Contact,
		CallbackURL: u.callbackURL(req.PaymentMethod),
	})
	if err != nil {
		log.Error().Err(err).Str("method", string(req.PaymentMethod)).Msg("payment initiation failed")
		if domain.KindOf(err) == "" {
			err = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	if initiation.Result != nil {
		return u.settleNow(ctx, req, key, lines, coupon, pricing, initiation.Result)
	}

	intent := &domain.PaymentIntent{
		Token:      token,
		Method:     req.PaymentMethod,
		Lines:      lines,
		Pricing:    pricing,
		Contact:    req.Contact,
		Address:    req.Address,
		GatewayRef: initiation.GatewayRef,
		State:      domain.IntentPending,
		CreatedAt:  u.now(),
	}
	if coupon != nil {
		intent.CouponCode = coupon.Code
	}
	if err := u.intents.Save(ctx, intent); err != nil {
		return nil, fmt.Errorf("%w: save payment intent: %v", domain.ErrPersistence, err)
	}

	log.Info().Str("token", token).Str("method", string(req.PaymentMethod)).Int64("amount", int64(pricing.GrandTotal)).Msg("payment initiated")
	return &CheckoutResult{
		Status:      domain.IntentPending,
		Token:       token,
		RedirectURL: initiation.RedirectURL,
		Pricing:     &pricing,
	}, nil
}

// replay returns the stored outcome of an earlier checkout with the same key,
// or nil when there is none.
func (u *CheckoutUsecase) replay(ctx context.Context, method domain.PaymentMethod, key string) (*CheckoutResult, error) {
	if key == "" {
		return nil, nil
	}
	if !method.IsOnline() {
		order, err := u.orders.GetByIdempotencyKey(ctx, domain.IdempotencyKeyFor(method, key))
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Status: domain.IntentSettled, Order: order, Pricing: &order.Pricing}, nil
	}

	intent, err := u.intents.Get(ctx, key)
	if errors.Is(err, domain.ErrIntentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if intent.Method != method {
		return nil, domain.ErrInvalidIdempotencyKey.WithMessage("idempotency key was already used with %s", intent.Method)
	}
	return u.resultFromIntent(ctx, intent)
}

func (u *CheckoutUsecase) settleNow(ctx context.Context, req CheckoutReq, key string, lines []domain.CartLine, coupon *domain.Coupon, pricing domain.PriceBreakdown, res *domain.SettlementResult) (*CheckoutResult, error) {
	if !res.Succeeded {
		metrics.Settlement(string(req.PaymentMethod), "failed")
		reason := "payment was declined"
		if res.FailureReason != nil {
			reason = *res.FailureReason
		}
		return nil, domain.ErrPaymentFailed.WithMessage("%s", reason)
	}

	draft := &domain.Order{
		Lines:            lines,
		Pricing:          pricing,
		Contact:          req.Contact,
		ShippingAddress:  req.Address,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: res.Reference,
		PaymentStatus:    domain.PaymentStatusPending,
		IdempotencyKey:   domain.IdempotencyKeyFor(req.PaymentMethod, key),
	}
	if coupon != nil {
		id, code := coupon.ID, coupon.Code
		draft.CouponID = &id
		draft.CouponCode = &code
	}

	order, created, err := u.machine.Initialize(ctx, draft, false)
	if err != nil {
		return nil, err
	}
	if created {
		metrics.Settlement(string(req.PaymentMethod), "succeeded")
	}
	return &CheckoutResult{Status: domain.IntentSettled, Order: order, Pricing: &order.Pricing}, nil
}

// --- Settlement ---

// HandleCallback verifies a raw gateway webhook and settles it.
func (u *CheckoutUsecase) HandleCallback(ctx context.Context, method domain.PaymentMethod, body []byte, header http.Header) (*domain.Order, error) {
	m, ok := u.methods[method]
	if !ok {
		return nil, domain.ErrInvalidPaymentMethod.WithMessage("payment method %q is not supported", method)
	}
	verifier, ok := m.(domain.CallbackVerifier)
	if !ok {
		return nil, domain.ErrInvalidPaymentMethod.WithMessage("payment method %q does not accept callbacks", method)
	}

	cb, err := verifier.ParseCallback(body, header)
	if err != nil {
		metrics.Settlement(string(method), "untrusted")
		logger.WithContext(ctx).Warn().Err(err).Str("method", string(method)).Msg("discarding unverified payment callback")
		return nil, err
	}
	return u.Settle(ctx, method, *cb)
}

// Settle applies a verified gateway callback. It is idempotent on the gateway
// reference: a redelivered callback returns the order the first delivery
// created. Failed and abandoned sessions are final; later callbacks only
// return the recorded outcome.
func (u *CheckoutUsecase) Settle(ctx context.Context, method domain.PaymentMethod, cb domain.GatewayCallback) (*domain.Order, error) {
	log := logger.WithContext(ctx).With().
		Str("method", string(method)).
		Str("token", cb.Token).
		Str("reference", cb.Reference).
		Logger()

	unlock, err := u.intents.Lock(ctx, cb.Token)
	if err != nil {
		log.Warn().Err(err).Msg("payment session is locked by another callback")
		return nil, err
	}
	defer unlock()

	if cb.Reference != "" {
		existing, err := u.orders.GetByPaymentReference(ctx, cb.Reference)
		if err == nil {
			metrics.Settlement(string(method), "duplicate")
			log.Info().Str("order_id", existing.ID).Msg("callback already settled")
			return existing, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, err
		}
	}

	intent, err := u.intents.Get(ctx, cb.Token)
	if err != nil {
		return nil, err
	}
	if intent.Method != method {
		return nil, domain.ErrUntrustedCallback.WithMessage("callback for %s does not match a %s payment session", method, intent.Method)
	}
	if intent.State == domain.IntentSettled && intent.OrderID != "" {
		log.Warn().Str("order_id", intent.OrderID).Msg("second settlement for an already settled session; manual refund required")
		return u.orders.GetByID(ctx, intent.OrderID)
	}
	if intent.Closed() {
		metrics.Settlement(string(method), "closed")
		log.Info().Str("state", string(intent.State)).Msg("callback for a closed payment session")
		return nil, closedIntentError(intent)
	}

	switch cb.Outcome {
	case domain.CallbackFailed:
		reason := cb.Result().FailureReason
		u.closeIntent(ctx, intent, domain.IntentFailed, *reason)
		metrics.Settlement(string(method), "failed")
		log.Info().Str("reason", *reason).Msg("payment failed")
		return nil, domain.ErrPaymentFailed.WithMessage("%s", *reason)
	case domain.CallbackCancelled:
		u.closeIntent(ctx, intent, domain.IntentAbandoned, "cancelled by customer")
		metrics.Settlement(string(method), "abandoned")
		log.Info().Msg("payment abandoned by customer")
		return nil, domain.ErrPaymentAbandoned
	case domain.CallbackSucceeded:
	default:
		return nil, domain.ErrUntrustedCallback.WithMessage("unknown callback outcome %q", cb.Outcome)
	}

	if cb.Reference == "" {
		return nil, domain.ErrUntrustedCallback.WithMessage("successful callback carries no transaction reference")
	}

	lines, _, err := u.reprice(ctx, intent.Lines)
	if err != nil {
		return nil, u.rejectSettlement(ctx, intent, method, err)
	}
	var coupon *domain.Coupon
	if intent.CouponCode != "" {
		coupon, _, err = u.coupons.Validate(ctx, intent.CouponCode, subtotalOf(lines))
		if err != nil {
			return nil, u.rejectSettlement(ctx, intent, method, err)
		}
	}
	pricing, err := ComputePrice(lines, coupon, u.shipping)
	if err != nil {
		return nil, u.rejectSettlement(ctx, intent, method, err)
	}
	if pricing.GrandTotal != intent.Pricing.GrandTotal || cb.Amount != intent.Pricing.GrandTotal {
		return nil, u.rejectSettlement(ctx, intent, method, domain.ErrSettlementMismatch.WithMessage(
			"gateway settled %s, session expected %s, recomputed total is %s",
			cb.Amount.Major(), intent.Pricing.GrandTotal.Major(), pricing.GrandTotal.Major()))
	}

	ref := cb.Reference
	draft := &domain.Order{
		Lines:            lines,
		Pricing:          pricing,
		Contact:          intent.Contact,
		ShippingAddress:  intent.Address,
		PaymentMethod:    method,
		PaymentReference: &ref,
		PaymentStatus:    domain.PaymentStatusPaid,
		IdempotencyKey:   domain.IdempotencyKeyFor(method, ref),
	}
	if coupon != nil {
		id, code := coupon.ID, coupon.Code
		draft.CouponID = &id
		draft.CouponCode = &code
	}

	// The money is already captured, so a stock shortfall is logged, not refused.
	order, created, err := u.machine.Initialize(ctx, draft, true)
	if err != nil {
		if domain.KindOf(err) == domain.KindPersistence {
			return nil, err
		}
		return nil, u.rejectSettlement(ctx, intent, method, err)
	}

	intent.State = domain.IntentSettled
	intent.OrderID = order.ID
	intent.FailureReason = ""
	if err := u.intents.Save(ctx, intent); err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to mark payment intent settled")
	}

	if created {
		metrics.Settlement(string(method), "succeeded")
	} else {
		metrics.Settlement(string(method), "duplicate")
	}
	return order, nil
}

// rejectSettlement closes the intent when a captured payment cannot become an
// order. The customer has paid, so the failure is surfaced as a mismatch.
func (u *CheckoutUsecase) rejectSettlement(ctx context.Context, intent *domain.PaymentIntent, method domain.PaymentMethod, cause error) error {
	metrics.Settlement(string(method), "mismatch")
	logger.WithContext(ctx).Error().Err(cause).
		Str("token", intent.Token).
		Str("method", string(method)).
		Msg("settled payment without order; manual refund required")
	intent.Rejected = true
	u.closeIntent(ctx, intent, domain.IntentFailed, cause.Error())

	if errors.Is(cause, domain.ErrSettlementMismatch) {
		return cause
	}
	return domain.ErrSettlementMismatch.WithMessage("payment cannot be applied: %v", cause)
}

// closedIntentError replays the outcome that closed the intent.
func closedIntentError(intent *domain.PaymentIntent) error {
	switch {
	case intent.State == domain.IntentAbandoned:
		return domain.ErrPaymentAbandoned
	case intent.Rejected:
		return domain.ErrSettlementMismatch.WithMessage("%s", intent.FailureReason)
	default:
		return domain.ErrPaymentFailed.WithMessage("%s", intent.FailureReason)
	}
}

func (u *CheckoutUsecase) closeIntent(ctx context.Context, intent *domain.PaymentIntent, state domain.IntentState, reason string) {
	if intent.State != domain.IntentPending {
		return
	}
	intent.State = state
	intent.FailureReason = reason
	if err := u.intents.Save(ctx, intent); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Str("token", intent.Token).Msg("failed to close payment intent")
	}
}

// PaymentStatus is polled by clients waiting for a gateway callback.
func (u *CheckoutUsecase) PaymentStatus(ctx context.Context, token string) (*CheckoutResult, error) {
	intent, err := u.intents.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return u.resultFromIntent(ctx, intent)
}

func (u *CheckoutUsecase) resultFromIntent(ctx context.Context, intent *domain.PaymentIntent) (*CheckoutResult, error) {
	res := &CheckoutResult{
		Status:        intent.State,
		Token:         intent.Token,
		Pricing:       &intent.Pricing,
		FailureReason: intent.FailureReason,
	}
	if intent.State == domain.IntentSettled && intent.OrderID != "" {
		order, err := u.orders.GetByID(ctx, intent.OrderID)
		if err != nil {
			return nil, err
		}
		res.Order = order
	}
	return res, nil
}

// --- Helpers ---

// reprice replaces client prices with catalog prices and merges repeated
// products into one line. It also reports stock per product.
func (u *CheckoutUsecase) reprice(ctx context.Context, in []domain.CartLine) ([]domain.CartLine, map[string]int, error) {
	if len(in) == 0 {
		return nil, nil, domain.ErrEmptyCart
	}

	index := make(map[string]int, len(in))
	lines := make([]domain.CartLine, 0, len(in))
	stock := make(map[string]int, len(in))
	for _, l := range in {
		id := strings.TrimSpace(l.ProductID)
		if id == "" || l.Quantity <= 0 {
			return nil, nil, domain.ErrInvalidLine.WithMessage("line for product %q needs a positive quantity", l.ProductID)
		}
		if i, ok := index[id]; ok {
			lines[i].Quantity += l.Quantity
			continue
		}

		p, err := u.catalog.GetProduct(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if !p.IsActive {
			return nil, nil, domain.ErrProductNotFound.WithMessage("product %s is no longer available", p.Name)
		}
		index[id] = len(lines)
		stock[id] = p.Stock
		lines = append(lines, domain.CartLine{
			ProductID: id,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  l.Quantity,
		})
	}
	return lines, stock, nil
}

func subtotalOf(lines []domain.CartLine) domain.Money {
	var total domain.Money
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

func (u *CheckoutUsecase) callbackURL(method domain.PaymentMethod) string {
	return fmt.Sprintf("%s/api/v1/payments/%s/webhook", u.callbackBaseURL, method)
}
