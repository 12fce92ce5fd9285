package domain

import "time"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus tracks whether funds for an order are secured.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// PaymentMethod identifies a settlement path.
type PaymentMethod string

const (
	PaymentMethodCOD   PaymentMethod = "cod"
	PaymentMethodBKash PaymentMethod = "bkash" // primary online gateway
	PaymentMethodNagad PaymentMethod = "nagad" // secondary online gateway
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodBKash, PaymentMethodNagad:
		return true
	}
	return false
}

// IsOnline reports whether the method completes through a gateway callback.
func (m PaymentMethod) IsOnline() bool {
	return m == PaymentMethodBKash || m == PaymentMethodNagad
}

// ReturnStatus is the review state of a return request.
type ReturnStatus string

const (
	ReturnStatusSubmitted ReturnStatus = "submitted"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

// ReturnReason is the customer's stated reason for a return.
type ReturnReason string

const (
	ReturnReasonDamaged        ReturnReason = "damaged"
	ReturnReasonWrongItem      ReturnReason = "wrong_item"
	ReturnReasonNotAsDescribed ReturnReason = "not_as_described"
	ReturnReasonSizeIssue      ReturnReason = "size_issue"
	ReturnReasonOther          ReturnReason = "other"
)

func (r ReturnReason) Valid() bool {
	switch r {
	case ReturnReasonDamaged, ReturnReasonWrongItem, ReturnReasonNotAsDescribed, ReturnReasonSizeIssue, ReturnReasonOther:
		return true
	}
	return false
}

// ReturnWindow is how long after delivery a return may be requested (inclusive).
const ReturnWindow = 7 * 24 * time.Hour

// List Exports for API
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var PaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusPaid,
}

var PaymentMethods = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodBKash,
	PaymentMethodNagad,
}

var ReturnReasons = []ReturnReason{
	ReturnReasonDamaged,
	ReturnReasonWrongItem,
	ReturnReasonNotAsDescribed,
	ReturnReasonSizeIssue,
	ReturnReasonOther,
}
