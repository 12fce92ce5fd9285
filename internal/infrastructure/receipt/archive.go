package receipt

import (
	"context"
	"fmt"
	"time"

	"storefront-core/internal/domain"

	"github.com/goccy/go-json"
)

// Uploader is satisfied by *storage.R2Storage.
type Uploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Receipt is the archived customer-facing view of a new order.
type Receipt struct {
	OrderID       string                `json:"orderId"`
	TrackingID    string                `json:"trackingId"`
	PlacedAt      time.Time             `json:"placedAt"`
	Customer      string                `json:"customer"`
	Lines         []Line                `json:"lines"`
	Pricing       domain.PriceBreakdown `json:"pricing"`
	Total         string                `json:"total"`
	PaymentMethod domain.PaymentMethod  `json:"paymentMethod"`
	PaymentStatus domain.PaymentStatus  `json:"paymentStatus"`
	CouponCode    string                `json:"couponCode,omitempty"`
	ShipTo        domain.Address        `json:"shipTo"`
}

type Line struct {
	ProductID string       `json:"productId"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	UnitPrice domain.Money `json:"unitPrice"`
	LineTotal domain.Money `json:"lineTotal"`
}

type Archiver struct {
	uploader Uploader
}

func NewArchiver(uploader Uploader) *Archiver {
	return &Archiver{uploader: uploader}
}

func Render(order *domain.Order) Receipt {
	r := Receipt{
		OrderID:       order.ID,
		TrackingID:    order.TrackingID,
		PlacedAt:      order.CreatedAt,
		Customer:      order.Contact.Name,
		Pricing:       order.Pricing,
		Total:         order.Pricing.GrandTotal.Major(),
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		ShipTo:        order.ShippingAddress,
	}
	if order.CouponCode != nil {
		r.CouponCode = *order.CouponCode
	}
	for _, l := range order.Lines {
		r.Lines = append(r.Lines, Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.Total(),
		})
	}
	return r
}

// ArchiveReceipt uploads the order's receipt to receipts/<trackingId>.json and
// returns where it was stored.
func (a *Archiver) ArchiveReceipt(ctx context.Context, order *domain.Order) (string, error) {
	data, err := json.Marshal(Render(order))
	if err != nil {
		return "", fmt.Errorf("failed to render receipt for %s: %w", order.TrackingID, err)
	}
	return a.uploader.PutObject(ctx, "receipts/"+order.TrackingID+".json", data, "application/json")
}
