package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-core/internal/domain"

	"github.com/google/uuid"
)

// CouponUsecase validates coupons for checkout and serves admin coupon CRUD.
type CouponUsecase struct {
	couponRepo domain.CouponRepository
	now        func() time.Time
}

func NewCouponUsecase(couponRepo domain.CouponRepository, now func() time.Time) *CouponUsecase {
	if now == nil {
		now = time.Now
	}
	return &CouponUsecase{
		couponRepo: couponRepo,
		now:        now,
	}
}

// Validate checks code against its stored rules and returns the coupon with
// the discount it would grant on subtotal. It never consumes a redemption;
// that happens inside the order-creation transaction.
func (uc *CouponUsecase) Validate(ctx context.Context, code string, subtotal domain.Money) (*domain.Coupon, domain.Money, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, 0, domain.ErrCouponNotFound
	}

	coupon, err := uc.couponRepo.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}

	now := uc.now()
	if !coupon.IsActive || (coupon.StartsAt != nil && now.Before(*coupon.StartsAt)) {
		return nil, 0, domain.ErrCouponNotFound
	}
	if now.After(coupon.ExpiresAt) {
		return nil, 0, domain.ErrCouponExpired
	}
	if coupon.RedemptionsUsed >= coupon.MaxRedemptions {
		return nil, 0, domain.ErrCouponExhausted
	}
	if subtotal < coupon.MinOrderAmount {
		return nil, 0, domain.ErrCouponMinimumNotMet.WithMessage("order subtotal must be at least %s", coupon.MinOrderAmount.Major())
	}

	return coupon, DiscountFor(coupon, subtotal), nil
}

// --- Admin ---

// CouponInput is the admin payload for creating or replacing a coupon.
type CouponInput struct {
	Code           string            `json:"code"`
	Kind           domain.CouponKind `json:"kind"`
	Value          int64             `json:"value"`
	MinOrderAmount domain.Money      `json:"minOrderAmount"`
	MaxRedemptions int               `json:"maxRedemptions"`
	StartsAt       string            `json:"startsAt"`  // ISO8601, optional
	ExpiresAt      string            `json:"expiresAt"` // ISO8601
	IsActive       bool              `json:"isActive"`
}

func (in CouponInput) toCoupon() (*domain.Coupon, error) {
	code := domain.NormalizeCouponCode(in.Code)
	if code == "" {
		return nil, domain.ErrInvalidCoupon.WithMessage("coupon code is required")
	}
	if in.Kind != domain.CouponKindPercentage && in.Kind != domain.CouponKindFlat {
		return nil, domain.ErrInvalidCoupon.WithMessage("coupon kind must be 'percentage' or 'flat'")
	}
	if in.Value <= 0 {
		return nil, domain.ErrInvalidCoupon.WithMessage("coupon value must be greater than 0")
	}
	if in.Kind == domain.CouponKindPercentage && in.Value > 100 {
		return nil, domain.ErrInvalidCoupon.WithMessage("percentage discount cannot exceed 100%%")
	}
	if in.MinOrderAmount < 0 {
		return nil, domain.ErrInvalidCoupon.WithMessage("minimum order amount cannot be negative")
	}
	if in.MaxRedemptions <= 0 {
		return nil, domain.ErrInvalidCoupon.WithMessage("max redemptions must be greater than 0")
	}

	coupon := &domain.Coupon{
		Code:           code,
		Kind:           in.Kind,
		Value:          in.Value,
		MinOrderAmount: in.MinOrderAmount,
		MaxRedemptions: in.MaxRedemptions,
		IsActive:       in.IsActive,
	}

	if in.ExpiresAt == "" {
		return nil, domain.ErrInvalidCoupon.WithMessage("expiry date is required")
	}
	expires, err := parseISO8601(in.ExpiresAt)
	if err != nil {
		return nil, domain.ErrInvalidCoupon.WithMessage("expiry date %q is not a valid date", in.ExpiresAt)
	}
	coupon.ExpiresAt = expires

	if in.StartsAt != "" {
		starts, err := parseISO8601(in.StartsAt)
		if err != nil {
			return nil, domain.ErrInvalidCoupon.WithMessage("start date %q is not a valid date", in.StartsAt)
		}
		if !starts.Before(expires) {
			return nil, domain.ErrInvalidCoupon.WithMessage("start date must be before expiry date")
		}
		coupon.StartsAt = &starts
	}

	return coupon, nil
}

func (uc *CouponUsecase) CreateCoupon(ctx context.Context, in CouponInput) (*domain.Coupon, error) {
	coupon, err := in.toCoupon()
	if err != nil {
		return nil, err
	}

	if _, err := uc.couponRepo.GetCouponByCode(ctx, coupon.Code); err == nil {
		return nil, domain.ErrCouponCodeTaken.WithMessage("coupon code '%s' already exists", coupon.Code)
	} else if !errors.Is(err, domain.ErrCouponNotFound) {
		return nil, err
	}

	coupon.ID = uuid.New()
	coupon.CreatedAt = uc.now()
	if err := uc.couponRepo.CreateCoupon(ctx, coupon); err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}
	return coupon, nil
}

// ListCoupons returns a page of coupons and the total count.
func (uc *CouponUsecase) ListCoupons(ctx context.Context, limit, offset int) ([]domain.Coupon, int64, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	coupons, err := uc.couponRepo.ListCoupons(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list coupons: %w", err)
	}

	total, err := uc.couponRepo.CountCoupons(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count coupons: %w", err)
	}

	return coupons, total, nil
}

func (uc *CouponUsecase) GetCoupon(ctx context.Context, id string) (*domain.Coupon, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrCouponNotFound
	}
	return uc.couponRepo.GetCouponByID(ctx, uid)
}

// UpdateCoupon replaces a coupon's rules. The redemption counter is kept.
func (uc *CouponUsecase) UpdateCoupon(ctx context.Context, id string, in CouponInput) (*domain.Coupon, error) {
	existing, err := uc.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}

	coupon, err := in.toCoupon()
	if err != nil {
		return nil, err
	}

	if coupon.Code != existing.Code {
		if _, err := uc.couponRepo.GetCouponByCode(ctx, coupon.Code); err == nil {
			return nil, domain.ErrCouponCodeTaken.WithMessage("coupon code '%s' already exists", coupon.Code)
		} else if !errors.Is(err, domain.ErrCouponNotFound) {
			return nil, err
		}
	}

	coupon.ID = existing.ID
	coupon.RedemptionsUsed = existing.RedemptionsUsed
	coupon.CreatedAt = existing.CreatedAt
	if err := uc.couponRepo.UpdateCoupon(ctx, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (uc *CouponUsecase) DeleteCoupon(ctx context.Context, id string) error {
	coupon, err := uc.GetCoupon(ctx, id)
	if err != nil {
		return err
	}
	return uc.couponRepo.DeleteCoupon(ctx, coupon.ID)
}

// parseISO8601 parses an ISO8601 date string.
func parseISO8601(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format")
}
