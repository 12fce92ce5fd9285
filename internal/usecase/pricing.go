package usecase

import (
	"storefront-core/internal/domain"
)

// ComputePrice prices a cart. It is pure and is run again at settlement time
// so that no client-submitted total is ever trusted.
func ComputePrice(lines []domain.CartLine, coupon *domain.Coupon, shipping domain.Money) (domain.PriceBreakdown, error) {
	if len(lines) == 0 {
		return domain.PriceBreakdown{}, domain.ErrEmptyCart
	}
	if shipping < 0 {
		return domain.PriceBreakdown{}, domain.ErrInvalidLine.WithMessage("shipping charge cannot be negative")
	}

	var subtotal domain.Money
	for _, l := range lines {
		if l.Quantity <= 0 {
			return domain.PriceBreakdown{}, domain.ErrInvalidLine.WithMessage("quantity for %s must be positive", l.ProductID)
		}
		if l.UnitPrice < 0 {
			return domain.PriceBreakdown{}, domain.ErrInvalidLine.WithMessage("unit price for %s cannot be negative", l.ProductID)
		}
		subtotal += l.Total()
	}

	discount := DiscountFor(coupon, subtotal)

	return domain.PriceBreakdown{
		Subtotal:       subtotal,
		ShippingCharge: shipping,
		Discount:       discount,
		GrandTotal:     subtotal + shipping - discount,
	}, nil
}

// DiscountFor returns the coupon's discount on subtotal, capped at subtotal.
// Percentages use integer floor division.
func DiscountFor(coupon *domain.Coupon, subtotal domain.Money) domain.Money {
	if coupon == nil || subtotal <= 0 {
		return 0
	}

	var discount domain.Money
	switch coupon.Kind {
	case domain.CouponKindPercentage:
		discount = subtotal * domain.Money(coupon.Value) / 100
	case domain.CouponKindFlat:
		discount = domain.Money(coupon.Value)
	}

	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		return subtotal
	}
	return discount
}
