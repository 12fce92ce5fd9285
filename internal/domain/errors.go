package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups errors by how callers are expected to react to them.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindCoupon      ErrorKind = "coupon"
	KindPayment     ErrorKind = "payment"
	KindRule        ErrorKind = "rule"
	KindNotFound    ErrorKind = "not_found"
	KindUntrusted   ErrorKind = "untrusted"
	KindMismatch    ErrorKind = "settlement_mismatch"
	KindPersistence ErrorKind = "persistence"
)

// Error is the domain error type. Two errors match under errors.Is when their
// codes are equal, so sentinels can be copied with extra detail attached.
type Error struct {
	Kind          ErrorKind
	Code          string
	Message       string
	CurrentStatus OrderStatus
}

func (e *Error) Error() string {
	if e.CurrentStatus != "" {
		return fmt.Sprintf("%s (current status: %s)", e.Message, e.CurrentStatus)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithStatus returns a copy of err that carries the order's current status.
func (e *Error) WithStatus(status OrderStatus) *Error {
	c := *e
	c.CurrentStatus = status
	return &c
}

// WithMessage returns a copy of err with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// KindOf extracts the kind of a domain error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// StatusOf extracts the current order status attached to a domain error.
func StatusOf(err error) OrderStatus {
	var de *Error
	if errors.As(err, &de) {
		return de.CurrentStatus
	}
	return ""
}

// Validation
var (
	ErrEmptyCart             = &Error{Kind: KindValidation, Code: "empty_cart", Message: "cart is empty"}
	ErrInvalidLine           = &Error{Kind: KindValidation, Code: "invalid_line", Message: "cart line is invalid"}
	ErrInvalidContact        = &Error{Kind: KindValidation, Code: "invalid_contact", Message: "an email or phone number is required"}
	ErrInvalidAddress        = &Error{Kind: KindValidation, Code: "invalid_address", Message: "shipping address is incomplete"}
	ErrInvalidPaymentMethod  = &Error{Kind: KindValidation, Code: "invalid_payment_method", Message: "payment method is not supported"}
	ErrInvalidIdempotencyKey = &Error{Kind: KindValidation, Code: "invalid_idempotency_key", Message: "an idempotency key is required"}
	ErrInvalidReturnRequest  = &Error{Kind: KindValidation, Code: "invalid_return_request", Message: "return request is invalid"}
	ErrInvalidCoupon         = &Error{Kind: KindValidation, Code: "invalid_coupon", Message: "coupon definition is invalid"}
	ErrInvalidStatus         = &Error{Kind: KindValidation, Code: "invalid_status", Message: "order status is not recognised"}
)

// Coupon
var (
	ErrCouponNotFound      = &Error{Kind: KindCoupon, Code: "coupon_not_found", Message: "coupon not found"}
	ErrCouponExpired       = &Error{Kind: KindCoupon, Code: "coupon_expired", Message: "coupon has expired"}
	ErrCouponExhausted     = &Error{Kind: KindCoupon, Code: "coupon_exhausted", Message: "coupon has no redemptions left"}
	ErrCouponMinimumNotMet = &Error{Kind: KindCoupon, Code: "coupon_minimum_not_met", Message: "order amount is below the coupon minimum"}
	ErrCouponCodeTaken     = &Error{Kind: KindValidation, Code: "coupon_code_taken", Message: "coupon code already exists"}
)

// Payment
var (
	ErrPaymentFailed      = &Error{Kind: KindPayment, Code: "payment_failed", Message: "payment failed"}
	ErrPaymentAbandoned   = &Error{Kind: KindPayment, Code: "payment_abandoned", Message: "payment was cancelled by the customer"}
	ErrGatewayUnavailable = &Error{Kind: KindPayment, Code: "gateway_unavailable", Message: "payment gateway is unavailable"}
	ErrIntentNotFound     = &Error{Kind: KindNotFound, Code: "intent_not_found", Message: "payment session not found"}
	ErrUntrustedCallback  = &Error{Kind: KindUntrusted, Code: "untrusted_callback", Message: "callback signature could not be verified"}
	ErrSettlementMismatch = &Error{Kind: KindMismatch, Code: "settlement_mismatch", Message: "settled amount does not match the order total"}
)

// Catalog
var (
	ErrProductNotFound = &Error{Kind: KindValidation, Code: "product_not_found", Message: "product not found"}
	ErrOutOfStock      = &Error{Kind: KindRule, Code: "out_of_stock", Message: "insufficient stock"}
)

// Order rules
var (
	ErrOrderNotFound          = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}
	ErrOrderNotModifiable     = &Error{Kind: KindRule, Code: "order_not_modifiable", Message: "order can no longer be modified"}
	ErrIllegalTransition      = &Error{Kind: KindRule, Code: "illegal_transition", Message: "status transition is not allowed"}
	ErrStatusConflict         = &Error{Kind: KindRule, Code: "status_conflict", Message: "order status changed concurrently"}
	ErrCancellationNotAllowed = &Error{Kind: KindRule, Code: "cancellation_not_allowed", Message: "order can no longer be cancelled"}
	ErrOrderNotDelivered      = &Error{Kind: KindRule, Code: "order_not_delivered", Message: "only delivered orders can be returned"}
	ErrReturnWindowExpired    = &Error{Kind: KindRule, Code: "return_window_expired", Message: "return window has expired"}
	ErrReturnAlreadyRequested = &Error{Kind: KindRule, Code: "return_already_requested", Message: "a return has already been requested for this order"}
)

// Persistence
var (
	ErrPersistence    = &Error{Kind: KindPersistence, Code: "persistence", Message: "order store is unavailable"}
	ErrSettlementBusy = &Error{Kind: KindPersistence, Code: "settlement_busy", Message: "payment session is being settled"}
)
