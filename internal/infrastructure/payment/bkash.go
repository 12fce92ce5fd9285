package payment

import (
	"context"
	"net/http"
	"strings"

	"storefront-core/internal/domain"

	"github.com/goccy/go-json"
)

const bkashSignatureHeader = "X-Signature"

// BKash is the primary online gateway. Amounts travel in minor units and
// webhooks are signed with a hex HMAC over the raw body.
type BKash struct {
	client *gatewayClient
}

func NewBKash(cfg GatewayConfig) *BKash {
	return &BKash{client: newGatewayClient("bkash", cfg)}
}

func (b *BKash) Method() domain.PaymentMethod {
	return domain.PaymentMethodBKash
}

type bkashCreateRequest struct {
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	Amount                int64  `json:"amount"`
	Currency              string `json:"currency"`
	CallbackURL           string `json:"callbackURL"`
	PayerReference        string `json:"payerReference,omitempty"`
}

type bkashCreateResponse struct {
	PaymentID string `json:"paymentID"`
	BkashURL  string `json:"bkashURL"`
}

func (b *BKash) Initiate(ctx context.Context, req domain.SettlementRequest) (*domain.Initiation, error) {
	var resp bkashCreateResponse
	err := b.client.postJSON(ctx, "/checkout/payment/create", bkashCreateRequest{
		MerchantInvoiceNumber: req.Token,
		Amount:                int64(req.Amount),
		Currency:              "BDT",
		CallbackURL:           req.CallbackURL,
		PayerReference:        domain.NormalizePhone(req.Contact.Phone),
	}, &resp, b.sign)
	if err != nil {
		return nil, err
	}
	if resp.PaymentID == "" || resp.BkashURL == "" {
		return nil, domain.ErrGatewayUnavailable.WithMessage("bkash returned no payment session")
	}
	return &domain.Initiation{
		Token:       req.Token,
		RedirectURL: resp.BkashURL,
		GatewayRef:  resp.PaymentID,
	}, nil
}

func (b *BKash) sign(payload []byte) (string, string) {
	return bkashSignatureHeader, SignHex(b.client.secret, payload)
}

type bkashCallback struct {
	PaymentID             string `json:"paymentID"`
	MerchantInvoiceNumber string `json:"merchantInvoiceNumber"`
	TrxID                 string `json:"trxID"`
	Amount                int64  `json:"amount"`
	TransactionStatus     string `json:"transactionStatus"`
	StatusMessage         string `json:"statusMessage"`
}

func (b *BKash) ParseCallback(body []byte, header http.Header) (*domain.GatewayCallback, error) {
	if !verifyHex(b.client.secret, body, header.Get(bkashSignatureHeader)) {
		return nil, domain.ErrUntrustedCallback
	}

	var cb bkashCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, domain.ErrUntrustedCallback.WithMessage("bkash callback is not valid JSON")
	}
	if cb.MerchantInvoiceNumber == "" {
		return nil, domain.ErrUntrustedCallback.WithMessage("bkash callback has no invoice number")
	}

	out := &domain.GatewayCallback{
		Token:         cb.MerchantInvoiceNumber,
		Reference:     cb.TrxID,
		Amount:        domain.Money(cb.Amount),
		FailureReason: cb.StatusMessage,
	}
	switch strings.ToLower(cb.TransactionStatus) {
	case "completed":
		out.Outcome = domain.CallbackSucceeded
	case "failed":
		out.Outcome = domain.CallbackFailed
	case "cancelled":
		out.Outcome = domain.CallbackCancelled
	default:
		return nil, domain.ErrUntrustedCallback.WithMessage("unknown bkash transaction status %q", cb.TransactionStatus)
	}
	return out, nil
}
