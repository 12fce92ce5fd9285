package memory

import (
	"context"
	"sort"

	"storefront-core/internal/domain"

	"github.com/google/uuid"
)

type couponRepository struct {
	s *Store
}

func NewCouponRepository(s *Store) domain.CouponRepository {
	return &couponRepository{s: s}
}

func cloneCoupon(c *domain.Coupon) *domain.Coupon {
	out := *c
	if c.StartsAt != nil {
		t := *c.StartsAt
		out.StartsAt = &t
	}
	return &out
}

func (r *couponRepository) codeTaken(code string, except uuid.UUID) bool {
	for id, c := range r.s.coupons {
		if id != except && c.Code == code {
			return true
		}
	}
	return false
}

func (r *couponRepository) CreateCoupon(ctx context.Context, coupon *domain.Coupon) error {
	return r.s.exec(ctx, func(tx *txState) error {
		coupon.Code = domain.NormalizeCouponCode(coupon.Code)
		if r.codeTaken(coupon.Code, uuid.Nil) {
			return domain.ErrCouponCodeTaken
		}
		if coupon.ID == uuid.Nil {
			coupon.ID = uuid.New()
		}
		r.s.coupons[coupon.ID] = cloneCoupon(coupon)
		tx.onRollback(func() { delete(r.s.coupons, coupon.ID) })
		return nil
	})
}

func (r *couponRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	var out *domain.Coupon
	err := r.s.exec(ctx, func(tx *txState) error {
		for _, c := range r.s.coupons {
			if c.Code == code {
				out = cloneCoupon(c)
				return nil
			}
		}
		return domain.ErrCouponNotFound
	})
	return out, err
}

func (r *couponRepository) GetCouponByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	var out *domain.Coupon
	err := r.s.exec(ctx, func(tx *txState) error {
		c, ok := r.s.coupons[id]
		if !ok {
			return domain.ErrCouponNotFound
		}
		out = cloneCoupon(c)
		return nil
	})
	return out, err
}

func (r *couponRepository) ListCoupons(ctx context.Context, limit, offset int) ([]domain.Coupon, error) {
	var all []domain.Coupon
	err := r.s.exec(ctx, func(tx *txState) error {
		for _, c := range r.s.coupons {
			all = append(all, *cloneCoupon(c))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []domain.Coupon{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *couponRepository) CountCoupons(ctx context.Context) (int64, error) {
	var n int64
	err := r.s.exec(ctx, func(tx *txState) error {
		n = int64(len(r.s.coupons))
		return nil
	})
	return n, err
}

func (r *couponRepository) UpdateCoupon(ctx context.Context, coupon *domain.Coupon) error {
	return r.s.exec(ctx, func(tx *txState) error {
		prev, ok := r.s.coupons[coupon.ID]
		if !ok {
			return domain.ErrCouponNotFound
		}
		coupon.Code = domain.NormalizeCouponCode(coupon.Code)
		if r.codeTaken(coupon.Code, coupon.ID) {
			return domain.ErrCouponCodeTaken
		}
		next := cloneCoupon(coupon)
		next.RedemptionsUsed = prev.RedemptionsUsed
		r.s.coupons[coupon.ID] = next
		tx.onRollback(func() { r.s.coupons[coupon.ID] = prev })
		return nil
	})
}

func (r *couponRepository) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(tx *txState) error {
		prev, ok := r.s.coupons[id]
		if !ok {
			return domain.ErrCouponNotFound
		}
		delete(r.s.coupons, id)
		tx.onRollback(func() { r.s.coupons[id] = prev })
		return nil
	})
}

func (r *couponRepository) Redeem(ctx context.Context, id uuid.UUID) error {
	return r.s.exec(ctx, func(tx *txState) error {
		c, ok := r.s.coupons[id]
		if !ok {
			return domain.ErrCouponNotFound
		}
		if c.RedemptionsUsed >= c.MaxRedemptions {
			return domain.ErrCouponExhausted
		}
		c.RedemptionsUsed++
		tx.onRollback(func() { c.RedemptionsUsed-- })
		return nil
	})
}
