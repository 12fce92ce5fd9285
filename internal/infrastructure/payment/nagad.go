package payment

import (
	"context"
	"net/http"
	"strings"

	"storefront-core/internal/domain"

	"github.com/goccy/go-json"
)

const nagadSignatureHeader = "X-Nagad-Signature"

// Nagad is the secondary online gateway. Amounts are two-decimal major-unit
// strings and the webhook signature covers a canonical field string rather
// than the body.
type Nagad struct {
	client *gatewayClient
}

func NewNagad(cfg GatewayConfig) *Nagad {
	return &Nagad{client: newGatewayClient("nagad", cfg)}
}

func (n *Nagad) Method() domain.PaymentMethod {
	return domain.PaymentMethodNagad
}

type nagadInitRequest struct {
	OrderID     string `json:"orderId"`
	Amount      string `json:"amount"`
	CallbackURL string `json:"callbackUrl"`
	Msisdn      string `json:"customerMsisdn,omitempty"`
}

type nagadInitResponse struct {
	PaymentReferenceID string `json:"paymentReferenceId"`
	RedirectURL        string `json:"callBackUrl"`
}

func (n *Nagad) Initiate(ctx context.Context, req domain.SettlementRequest) (*domain.Initiation, error) {
	var resp nagadInitResponse
	err := n.client.postJSON(ctx, "/api/dfs/check-out/initialize", nagadInitRequest{
		OrderID:     req.Token,
		Amount:      req.Amount.Major(),
		CallbackURL: req.CallbackURL,
		Msisdn:      domain.NormalizePhone(req.Contact.Phone),
	}, &resp, nil)
	if err != nil {
		return nil, err
	}
	if resp.PaymentReferenceID == "" || resp.RedirectURL == "" {
		return nil, domain.ErrGatewayUnavailable.WithMessage("nagad returned no payment session")
	}
	return &domain.Initiation{
		Token:       req.Token,
		RedirectURL: resp.RedirectURL,
		GatewayRef:  resp.PaymentReferenceID,
	}, nil
}

type nagadCallback struct {
	OrderID string `json:"order_id"`
	Amount  string `json:"amount"`
	Status  string `json:"status"`
	TrxID   string `json:"trx_id"`
	Message string `json:"message"`
}

// canonical is the signed form: order_id|amount|status|trx_id.
func (c nagadCallback) canonical() []byte {
	return []byte(strings.Join([]string{c.OrderID, c.Amount, c.Status, c.TrxID}, "|"))
}

// SignNagadCallback signs a callback the way the gateway does.
func SignNagadCallback(secret, orderID, amount, status, trxID string) string {
	return SignBase64(secret, nagadCallback{OrderID: orderID, Amount: amount, Status: status, TrxID: trxID}.canonical())
}

func (n *Nagad) ParseCallback(body []byte, header http.Header) (*domain.GatewayCallback, error) {
	var cb nagadCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, domain.ErrUntrustedCallback.WithMessage("nagad callback is not valid JSON")
	}
	if !verifyBase64(n.client.secret, cb.canonical(), header.Get(nagadSignatureHeader)) {
		return nil, domain.ErrUntrustedCallback
	}
	if cb.OrderID == "" {
		return nil, domain.ErrUntrustedCallback.WithMessage("nagad callback has no order id")
	}

	amount, err := domain.ParseMajor(cb.Amount)
	if err != nil {
		return nil, domain.ErrUntrustedCallback.WithMessage("nagad callback amount %q is malformed", cb.Amount)
	}

	out := &domain.GatewayCallback{
		Token:         cb.OrderID,
		Reference:     cb.TrxID,
		Amount:        amount,
		FailureReason: cb.Message,
	}
	switch strings.ToLower(cb.Status) {
	case "success":
		out.Outcome = domain.CallbackSucceeded
	case "failed":
		out.Outcome = domain.CallbackFailed
	case "aborted", "cancelled":
		out.Outcome = domain.CallbackCancelled
	default:
		return nil, domain.ErrUntrustedCallback.WithMessage("unknown nagad status %q", cb.Status)
	}
	return out, nil
}
