package domain

import (
	"context"
	"net/http"
	"time"
)

// SettlementResult is the uniform outcome every settlement method reports.
type SettlementResult struct {
	Succeeded     bool    `json:"succeeded"`
	Reference     *string `json:"reference,omitempty"`
	FailureReason *string `json:"failureReason,omitempty"`
}

type SettlementRequest struct {
	Token       string // merchant-side invoice number, also the intent key
	Amount      Money
	Contact     Contact
	CallbackURL string
}

// Initiation is what a settlement method returns when checkout starts. Methods
// that settle synchronously fill Result; online gateways return a redirect and
// complete later through their callback.
type Initiation struct {
	Token       string            `json:"token"`
	RedirectURL string            `json:"redirectUrl,omitempty"`
	GatewayRef  string            `json:"-"`
	Result      *SettlementResult `json:"result,omitempty"`
}

type SettlementMethod interface {
	Method() PaymentMethod
	Initiate(ctx context.Context, req SettlementRequest) (*Initiation, error)
}

// CallbackOutcome is the status a gateway reports when a flow completes.
type CallbackOutcome string

const (
	CallbackSucceeded CallbackOutcome = "succeeded"
	CallbackFailed    CallbackOutcome = "failed"
	CallbackCancelled CallbackOutcome = "cancelled" // customer dismissed the flow
)

// GatewayCallback is a verified webhook payload normalised across gateways.
type GatewayCallback struct {
	Token         string
	Reference     string // gateway transaction id, the natural idempotency key
	Amount        Money
	Outcome       CallbackOutcome
	FailureReason string
}

func (c GatewayCallback) Result() SettlementResult {
	res := SettlementResult{Succeeded: c.Outcome == CallbackSucceeded}
	if c.Reference != "" {
		ref := c.Reference
		res.Reference = &ref
	}
	if !res.Succeeded {
		reason := c.FailureReason
		if reason == "" {
			reason = string(c.Outcome)
		}
		res.FailureReason = &reason
	}
	return res
}

// CallbackVerifier is implemented by methods that complete asynchronously.
// Payloads that fail verification yield ErrUntrustedCallback.
type CallbackVerifier interface {
	ParseCallback(body []byte, header http.Header) (*GatewayCallback, error)
}

// --- Payment intents ---

type IntentState string

const (
	IntentPending   IntentState = "pending"
	IntentSettled   IntentState = "settled"
	IntentFailed    IntentState = "failed"
	IntentAbandoned IntentState = "abandoned"
)

// PaymentIntent holds a priced checkout between initiation and the gateway
// callback. It is not an order and is never visible as one.
type PaymentIntent struct {
	Token         string         `json:"token"`
	Method        PaymentMethod  `json:"method"`
	Lines         []CartLine     `json:"lines"`
	CouponCode    string         `json:"couponCode,omitempty"`
	Pricing       PriceBreakdown `json:"pricing"`
	Contact       Contact        `json:"contact"`
	Address       Address        `json:"address"`
	GatewayRef    string         `json:"gatewayRef,omitempty"`
	State         IntentState    `json:"state"`
	OrderID       string         `json:"orderId,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
	// Rejected marks a captured payment that could not become an order.
	Rejected      bool           `json:"rejected,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Closed reports whether the intent reached a terminal state without an order.
func (p *PaymentIntent) Closed() bool {
	return p.State == IntentFailed || p.State == IntentAbandoned
}

type IntentStore interface {
	Save(ctx context.Context, intent *PaymentIntent) error
	Get(ctx context.Context, token string) (*PaymentIntent, error) // ErrIntentNotFound when absent
	// Lock serializes settlement of one token. It fails with ErrSettlementBusy
	// when the lock is held past the store's wait.
	Lock(ctx context.Context, token string) (unlock func(), err error)
}
