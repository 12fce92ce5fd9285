package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type orderRepository struct {
	db *pgxpool.Pool
}

func NewOrderRepository(db *pgxpool.Pool) domain.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, tracking_id, lines, subtotal, shipping_charge, discount, grand_total,
	coupon_id, coupon_code, contact, shipping_address, payment_method, payment_reference,
	payment_status, status, idempotency_key, cancellation_reason, created_at, delivered_at, updated_at`

// --- Mappers ---

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                       domain.Order
		id                      uuid.UUID
		lines, contact, address []byte
	)
	err := row.Scan(
		&id, &o.TrackingID, &lines,
		&o.Pricing.Subtotal, &o.Pricing.ShippingCharge, &o.Pricing.Discount, &o.Pricing.GrandTotal,
		&o.CouponID, &o.CouponCode, &contact, &address,
		&o.PaymentMethod, &o.PaymentReference, &o.PaymentStatus, &o.Status,
		&o.IdempotencyKey, &o.CancellationReason,
		&o.CreatedAt, &o.DeliveredAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.ID = id.String()

	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return nil, fmt.Errorf("decode order lines: %w", err)
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return nil, fmt.Errorf("decode order contact: %w", err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// parseOrderID maps identifiers that cannot be order IDs straight to not found.
func parseOrderID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, domain.ErrOrderNotFound
	}
	return uid, nil
}

// --- Writes ---

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) (*domain.Order, bool, error) {
	id, err := uuid.Parse(order.ID)
	if err != nil {
		return nil, false, fmt.Errorf("order id %q is not a uuid: %w", order.ID, err)
	}
	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return nil, false, fmt.Errorf("encode order lines: %w", err)
	}
	contact, err := json.Marshal(order.Contact)
	if err != nil {
		return nil, false, fmt.Errorf("encode order contact: %w", err)
	}
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, false, fmt.Errorf("encode shipping address: %w", err)
	}

	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `
		INSERT INTO orders (`+orderColumns+`, contact_email, contact_phone, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT DO NOTHING
		RETURNING `+orderColumns,
		id, order.TrackingID, lines,
		order.Pricing.Subtotal, order.Pricing.ShippingCharge, order.Pricing.Discount, order.Pricing.GrandTotal,
		order.CouponID, order.CouponCode, contact, address,
		order.PaymentMethod, order.PaymentReference, order.PaymentStatus, order.Status,
		order.IdempotencyKey, order.CancellationReason,
		order.CreatedAt, order.DeliveredAt, order.UpdatedAt,
		domain.NormalizeEmail(order.Contact.Email), domain.NormalizePhone(order.Contact.Phone), order.Contact.UserID,
	)
	stored, err := scanOrder(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, classify("create order", err)
	}

	// A unique key already exists. Resolve which one.
	if existing, err := r.GetByIdempotencyKey(ctx, order.IdempotencyKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, false, err
	}
	if order.PaymentReference != nil {
		if existing, err := r.GetByPaymentReference(ctx, *order.PaymentReference); err == nil {
			return existing, false, nil
		} else if !errors.Is(err, domain.ErrOrderNotFound) {
			return nil, false, err
		}
	}
	// Only the tracking ID or order ID collided; a retry draws fresh ones.
	return nil, false, domain.ErrPersistence.WithMessage("order identifiers collided for %s", order.TrackingID)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, u domain.StatusUpdate) (*domain.Order, error) {
	id, err := parseOrderID(u.OrderID)
	if err != nil {
		return nil, err
	}

	var payment *string
	if u.PaymentStatus != nil {
		s := string(*u.PaymentStatus)
		payment = &s
	}

	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `
		UPDATE orders SET
			status = $3,
			updated_at = $4,
			delivered_at = CASE WHEN $5 THEN COALESCE(delivered_at, $4) ELSE delivered_at END,
			payment_status = COALESCE($6, payment_status),
			cancellation_reason = COALESCE($7, cancellation_reason)
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns,
		id, u.From, u.To, u.At, u.MarkDelivered, payment, u.CancellationReason,
	)
	updated, err := scanOrder(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update order status", err)
	}

	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, domain.ErrStatusConflict.WithStatus(current)
}

func (r *orderRepository) UpdateAddress(ctx context.Context, orderID string, address domain.Address, at time.Time) (*domain.Order, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(address)
	if err != nil {
		return nil, fmt.Errorf("encode shipping address: %w", err)
	}

	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `
		UPDATE orders SET shipping_address = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+orderColumns,
		id, encoded, at,
	)
	updated, err := scanOrder(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, classify("update shipping address", err)
	}

	current, err := r.currentStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, domain.ErrOrderNotModifiable.WithStatus(current)
}

func (r *orderRepository) currentStatus(ctx context.Context, id uuid.UUID) (domain.OrderStatus, error) {
	var status domain.OrderStatus
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrOrderNotFound
	}
	if err != nil {
		return "", classify("read order status", err)
	}
	return status, nil
}

// --- Reads ---

func (r *orderRepository) getOne(ctx context.Context, op, where string, arg any) (*domain.Order, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return o, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	uid, err := parseOrderID(id)
	if err != nil {
		return nil, err
	}
	return r.getOne(ctx, "get order", "id = $1", uid)
}

func (r *orderRepository) GetByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	return r.getOne(ctx, "get order by tracking id", "tracking_id = $1", utils.NormalizeTrackingID(trackingID))
}

func (r *orderRepository) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	return r.getOne(ctx, "get order by payment reference", "payment_reference = $1", reference)
}

func (r *orderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	return r.getOne(ctx, "get order by idempotency key", "idempotency_key = $1", key)
}

func (r *orderRepository) FindByIdentity(ctx context.Context, email, phone string) ([]domain.Order, error) {
	email, phone = domain.NormalizeEmail(email), domain.NormalizePhone(phone)
	if email == "" && phone == "" {
		return nil, domain.ErrInvalidContact
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 <> '' AND contact_email = $1) OR ($2 <> '' AND contact_phone = $2)
		ORDER BY created_at DESC`,
		email, phone,
	)
	if err != nil {
		return nil, classify("find orders by identity", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, classify("find orders by identity", err)
	}
	return orders, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add("payment_status = $%d", filter.PaymentStatus)
	}
	if filter.PaymentMethod != "" {
		add("payment_method = $%d", filter.PaymentMethod)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add("(tracking_id ILIKE $%[1]d OR contact_email ILIKE $%[1]d OR contact_phone ILIKE $%[1]d OR contact->>'name' ILIKE $%[1]d)", "%"+s+"%")
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	q := conn(ctx, r.db)
	var total int64
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, classify("count orders", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)
	rows, err := q.Query(ctx,
		fmt.Sprintf(`SELECT `+orderColumns+` FROM orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, classify("list orders", err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, 0, classify("list orders", err)
	}
	return orders, total, nil
}

// --- History ---

func (r *orderRepository) AppendHistory(ctx context.Context, h *domain.OrderHistory) error {
	orderID, err := parseOrderID(h.OrderID)
	if err != nil {
		return err
	}
	if h.ID == "" {
		h.ID = utils.GenerateUUID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	_, err = conn(ctx, r.db).Exec(ctx, `
		INSERT INTO order_history (id, order_id, previous_status, new_status, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.ID, orderID, h.PreviousStatus, h.NewStatus, h.Reason, h.CreatedBy, h.CreatedAt,
	)
	return classify("append order history", err)
}

func (r *orderRepository) GetHistory(ctx context.Context, orderID string) ([]domain.OrderHistory, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return []domain.OrderHistory{}, nil
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, order_id, previous_status, new_status, reason, created_by, created_at
		FROM order_history WHERE order_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, classify("get order history", err)
	}
	defer rows.Close()

	out := []domain.OrderHistory{}
	for rows.Next() {
		var (
			h        domain.OrderHistory
			hid, oid uuid.UUID
		)
		if err := rows.Scan(&hid, &oid, &h.PreviousStatus, &h.NewStatus, &h.Reason, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, classify("scan order history", err)
		}
		h.ID, h.OrderID = hid.String(), oid.String()
		out = append(out, h)
	}
	return out, classify("get order history", rows.Err())
}
