package domain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Money is an amount in minor currency units.
type Money int64

// Major formats m in major units with exactly two decimals, e.g. 1100 -> "11.00".
func (m Money) Major() string {
	sign := ""
	if m < 0 {
		sign, m = "-", -m
	}
	return fmt.Sprintf("%s%d.%02d", sign, m/100, m%100)
}

// ParseMajor parses a major-unit decimal string such as "11.5" or "11.50"
// into minor units without going through floating point.
func ParseMajor(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return Money(w*100 + f), nil
}

type OrderFilter struct {
	Page          int
	Limit         int
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Search        string
}

// --- Cart Entities ---

// CartLine is one priced line of a client cart. The unit price is always the
// catalog price at the time the line was priced, never a client-supplied one.
type CartLine struct {
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
	UnitPrice Money  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (l CartLine) Total() Money {
	return l.UnitPrice * Money(l.Quantity)
}

type PriceBreakdown struct {
	Subtotal       Money `json:"subtotal"`
	ShippingCharge Money `json:"shippingCharge"`
	Discount       Money `json:"discount"`
	GrandTotal     Money `json:"grandTotal"`
}

// --- Customer ---

type Contact struct {
	Name   string  `json:"name"`
	Email  string  `json:"email,omitempty"`
	Phone  string  `json:"phone,omitempty"`
	UserID *string `json:"userId,omitempty"` // nil for guest checkouts
}

func (c Contact) Validate() error {
	email := NormalizeEmail(c.Email)
	phone := NormalizePhone(c.Phone)
	if email == "" && phone == "" {
		return ErrInvalidContact
	}
	if email != "" && (!strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@")) {
		return ErrInvalidContact.WithMessage("email address %q is malformed", c.Email)
	}
	if c.Phone != "" && len(phone) < 6 {
		return ErrInvalidContact.WithMessage("phone number %q is malformed", c.Phone)
	}
	return nil
}

// Matches reports whether either identifier belongs to this contact.
func (c Contact) Matches(email, phone string) bool {
	if e := NormalizeEmail(email); e != "" && e == NormalizeEmail(c.Email) {
		return true
	}
	if p := NormalizePhone(phone); p != "" && p == NormalizePhone(c.Phone) {
		return true
	}
	return false
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps digits only so "+880 1711-000000" and "8801711000000" compare equal.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type Address struct {
	RecipientName string `json:"recipientName"`
	Phone         string `json:"phone"`
	AddressLine   string `json:"addressLine"` // House/Road/Block/Flat
	Area          string `json:"area"`
	City          string `json:"city"`
	PostalCode    string `json:"postalCode"`
	Landmark      string `json:"landmark,omitempty"`
}

func (a Address) Validate() error {
	switch {
	case strings.TrimSpace(a.RecipientName) == "":
		return ErrInvalidAddress.WithMessage("recipient name is required")
	case strings.TrimSpace(a.AddressLine) == "":
		return ErrInvalidAddress.WithMessage("address line is required")
	case strings.TrimSpace(a.City) == "":
		return ErrInvalidAddress.WithMessage("city is required")
	}
	return nil
}

// --- Order Entities ---

type Order struct {
	ID                 string         `json:"id"`
	TrackingID         string         `json:"trackingId"`
	Lines              []CartLine     `json:"lines"`
	Pricing            PriceBreakdown `json:"pricing"`
	CouponID           *uuid.UUID     `json:"-"`
	CouponCode         *string        `json:"couponCode,omitempty"`
	Contact            Contact        `json:"contact"`
	ShippingAddress    Address        `json:"shippingAddress"`
	PaymentMethod      PaymentMethod  `json:"paymentMethod"`
	PaymentReference   *string        `json:"paymentReference,omitempty"`
	PaymentStatus      PaymentStatus  `json:"paymentStatus"`
	Status             OrderStatus    `json:"status"`
	IdempotencyKey     string         `json:"-"`
	CancellationReason *string        `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	DeliveredAt        *time.Time     `json:"deliveredAt,omitempty"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// ItemCount is the total number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

type OrderHistory struct {
	ID             string       `json:"id"`
	OrderID        string       `json:"orderId"`
	PreviousStatus *OrderStatus `json:"previousStatus"`
	NewStatus      OrderStatus  `json:"newStatus"`
	Reason         *string      `json:"reason"`
	CreatedBy      *string      `json:"createdBy"` // UserID, nil for customer or system actions
	CreatedAt      time.Time    `json:"createdAt"`
}

// StatusUpdate is an optimistic read-modify-write of an order's status. It
// applies only while the stored status still equals From.
type StatusUpdate struct {
	OrderID            string
	From               OrderStatus
	To                 OrderStatus
	At                 time.Time
	MarkDelivered      bool
	PaymentStatus      *PaymentStatus
	CancellationReason *string
}

// IdempotencyKeyFor builds the natural idempotency key of an order.
// Online orders are keyed by gateway reference, COD orders by the client token.
func IdempotencyKeyFor(method PaymentMethod, token string) string {
	return string(method) + ":" + token
}

// --- Interfaces ---

type OrderRepository interface {
	// Create inserts the order unless one with the same idempotency key exists,
	// in which case the stored order is returned with created=false.
	Create(ctx context.Context, order *Order) (stored *Order, created bool, err error)
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*Order, error)
	GetByPaymentReference(ctx context.Context, reference string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	FindByIdentity(ctx context.Context, email, phone string) ([]Order, error)
	List(ctx context.Context, filter OrderFilter) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, update StatusUpdate) (*Order, error)
	UpdateAddress(ctx context.Context, id string, address Address, at time.Time) (*Order, error)

	// History
	AppendHistory(ctx context.Context, history *OrderHistory) error
	GetHistory(ctx context.Context, orderID string) ([]OrderHistory, error)
}

type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
