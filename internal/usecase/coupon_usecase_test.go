package usecase

import (
	"context"
	"testing"
	"time"

	"storefront-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Rules(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	h.addCoupon("SAVE10", domain.CouponKindPercentage, 10, 500, 5)

	expired := h.addCoupon("OLD", domain.CouponKindFlat, 50, 0, 5)
	expired.ExpiresAt = now.Add(-time.Second)
	require.NoError(t, h.coupons.UpdateCoupon(context.Background(), expired))

	edge := h.addCoupon("EDGE", domain.CouponKindFlat, 50, 0, 5)
	edge.ExpiresAt = now
	require.NoError(t, h.coupons.UpdateCoupon(context.Background(), edge))

	used := h.addCoupon("USED", domain.CouponKindFlat, 50, 0, 1)
	require.NoError(t, h.coupons.Redeem(context.Background(), used.ID))

	off := h.addCoupon("OFF", domain.CouponKindFlat, 50, 0, 5)
	off.IsActive = false
	require.NoError(t, h.coupons.UpdateCoupon(context.Background(), off))

	later := h.addCoupon("LATER", domain.CouponKindFlat, 50, 0, 5)
	starts := now.Add(time.Hour)
	later.StartsAt = &starts
	require.NoError(t, h.coupons.UpdateCoupon(context.Background(), later))

	tests := []struct {
		name     string
		code     string
		subtotal domain.Money
		discount domain.Money
		wantErr  error
	}{
		{name: "valid", code: "SAVE10", subtotal: 1000, discount: 100},
		{name: "case and whitespace insensitive", code: "  save10 ", subtotal: 1000, discount: 100},
		{name: "minimum is inclusive", code: "SAVE10", subtotal: 500, discount: 50},
		{name: "below minimum", code: "SAVE10", subtotal: 499, wantErr: domain.ErrCouponMinimumNotMet},
		{name: "expired", code: "OLD", subtotal: 1000, wantErr: domain.ErrCouponExpired},
		{name: "valid at the expiry instant", code: "EDGE", subtotal: 1000, discount: 50},
		{name: "exhausted", code: "USED", subtotal: 1000, wantErr: domain.ErrCouponExhausted},
		{name: "inactive", code: "OFF", subtotal: 1000, wantErr: domain.ErrCouponNotFound},
		{name: "not started", code: "LATER", subtotal: 1000, wantErr: domain.ErrCouponNotFound},
		{name: "unknown", code: "NOPE", subtotal: 1000, wantErr: domain.ErrCouponNotFound},
		{name: "empty", code: "", subtotal: 1000, wantErr: domain.ErrCouponNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupon, discount, err := h.couponUC.Validate(context.Background(), tt.code, tt.subtotal)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, domain.KindCoupon, domain.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, coupon)
			assert.Equal(t, tt.discount, discount)
		})
	}
}

func TestValidate_MinimumMessageUsesMajorUnits(t *testing.T) {
	h := newHarness(t)
	h.addCoupon("BIG", domain.CouponKindFlat, 100, 150000, 5)

	_, _, err := h.couponUC.Validate(context.Background(), "BIG", 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1500.00")
}

func TestCouponCRUD(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := CouponInput{
		Code:           " eid25 ",
		Kind:           domain.CouponKindPercentage,
		Value:          25,
		MinOrderAmount: 1000,
		MaxRedemptions: 100,
		ExpiresAt:      "2026-06-30",
		IsActive:       true,
	}
	created, err := h.couponUC.CreateCoupon(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "EID25", created.Code)

	_, err = h.couponUC.CreateCoupon(ctx, in)
	assert.ErrorIs(t, err, domain.ErrCouponCodeTaken)

	in.Value = 30
	updated, err := h.couponUC.UpdateCoupon(ctx, created.ID.String(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(30), updated.Value)

	list, total, err := h.couponUC.ListCoupons(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	require.NoError(t, h.couponUC.DeleteCoupon(ctx, created.ID.String()))
	_, err = h.couponUC.GetCoupon(ctx, created.ID.String())
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)

	_, err = h.couponUC.GetCoupon(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestCouponInput_Validation(t *testing.T) {
	valid := CouponInput{Code: "X", Kind: domain.CouponKindFlat, Value: 10, MaxRedemptions: 1, ExpiresAt: "2026-06-30"}

	tests := []struct {
		name   string
		mutate func(in *CouponInput)
	}{
		{"no code", func(in *CouponInput) { in.Code = " " }},
		{"unknown kind", func(in *CouponInput) { in.Kind = "bogo" }},
		{"zero value", func(in *CouponInput) { in.Value = 0 }},
		{"percent above 100", func(in *CouponInput) { in.Kind = domain.CouponKindPercentage; in.Value = 101 }},
		{"negative minimum", func(in *CouponInput) { in.MinOrderAmount = -1 }},
		{"no cap", func(in *CouponInput) { in.MaxRedemptions = 0 }},
		{"no expiry", func(in *CouponInput) { in.ExpiresAt = "" }},
		{"bad expiry", func(in *CouponInput) { in.ExpiresAt = "next week" }},
		{"starts after expiry", func(in *CouponInput) { in.StartsAt = "2026-07-01" }},
	}

	_, err := valid.toCoupon()
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := in.toCoupon()
			assert.ErrorIs(t, err, domain.ErrInvalidCoupon)
		})
	}
}
