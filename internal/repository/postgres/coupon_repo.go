package postgres

import (
	"context"
	"errors"
	"time"

	"storefront-core/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type couponRepository struct {
	db *pgxpool.Pool
}

func NewCouponRepository(db *pgxpool.Pool) domain.CouponRepository {
	return &couponRepository{db: db}
}

const couponColumns = `id, code, kind, value, min_order_amount, max_redemptions, redemptions_used,
	starts_at, expires_at, is_active, created_at`

func scanCoupon(row pgx.Row) (*domain.Coupon, error) {
	var c domain.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Kind, &c.Value, &c.MinOrderAmount, &c.MaxRedemptions, &c.RedemptionsUsed,
		&c.StartsAt, &c.ExpiresAt, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *couponRepository) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	c.Code = domain.NormalizeCouponCode(c.Code)
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Code, c.Kind, c.Value, c.MinOrderAmount, c.MaxRedemptions, c.RedemptionsUsed,
		c.StartsAt, c.ExpiresAt, c.IsActive, c.CreatedAt,
	)
	if isUniqueViolation(err, "coupons_code_key") {
		return domain.ErrCouponCodeTaken.WithMessage("coupon code '%s' already exists", c.Code)
	}
	return classify("create coupon", err)
}

func (r *couponRepository) getOne(ctx context.Context, where string, arg any) (*domain.Coupon, error) {
	c, err := scanCoupon(conn(ctx, r.db).QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, classify("get coupon", err)
	}
	return c, nil
}

func (r *couponRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	return r.getOne(ctx, "code = $1", domain.NormalizeCouponCode(code))
}

func (r *couponRepository) GetCouponByID(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *couponRepository) ListCoupons(ctx context.Context, limit, offset int) ([]domain.Coupon, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, classify("list coupons", err)
	}
	defer rows.Close()

	out := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, classify("scan coupon", err)
		}
		out = append(out, *c)
	}
	return out, classify("list coupons", rows.Err())
}

func (r *couponRepository) CountCoupons(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&n)
	return n, classify("count coupons", err)
}

// UpdateCoupon replaces a coupon's rules. redemptions_used is never written here.
func (r *couponRepository) UpdateCoupon(ctx context.Context, c *domain.Coupon) error {
	c.Code = domain.NormalizeCouponCode(c.Code)
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE coupons SET code = $2, kind = $3, value = $4, min_order_amount = $5,
			max_redemptions = $6, starts_at = $7, expires_at = $8, is_active = $9
		WHERE id = $1`,
		c.ID, c.Code, c.Kind, c.Value, c.MinOrderAmount, c.MaxRedemptions, c.StartsAt, c.ExpiresAt, c.IsActive,
	)
	if isUniqueViolation(err, "coupons_code_key") {
		return domain.ErrCouponCodeTaken.WithMessage("coupon code '%s' already exists", c.Code)
	}
	if err != nil {
		return classify("update coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}

func (r *couponRepository) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return classify("delete coupon", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCouponNotFound
	}
	return nil
}

// Redeem is a guarded increment, so concurrent redemptions can never push
// the counter past the cap.
func (r *couponRepository) Redeem(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE coupons SET redemptions_used = redemptions_used + 1
		WHERE id = $1 AND redemptions_used < max_redemptions`, id)
	if err != nil {
		return classify("redeem coupon", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetCouponByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrCouponExhausted
}
