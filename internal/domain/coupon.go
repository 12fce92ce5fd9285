package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CouponKind string

const (
	CouponKindPercentage CouponKind = "percentage"
	CouponKindFlat       CouponKind = "flat"
)

type Coupon struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	Kind            CouponKind `json:"kind"`
	Value           int64      `json:"value"` // percent for percentage coupons, minor units for flat
	MinOrderAmount  Money      `json:"minOrderAmount"`
	MaxRedemptions  int        `json:"maxRedemptions"`
	RedemptionsUsed int        `json:"redemptionsUsed"`
	StartsAt        *time.Time `json:"startsAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// NormalizeCouponCode is the canonical form codes are stored and looked up in.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type CouponRepository interface {
	CreateCoupon(ctx context.Context, coupon *Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*Coupon, error)
	GetCouponByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int) ([]Coupon, error)
	CountCoupons(ctx context.Context) (int64, error)
	UpdateCoupon(ctx context.Context, coupon *Coupon) error
	DeleteCoupon(ctx context.Context, id uuid.UUID) error

	// Redeem increments the usage counter only while it is below the cap.
	// It returns ErrCouponExhausted when the cap has been reached.
	Redeem(ctx context.Context, id uuid.UUID) error
}
