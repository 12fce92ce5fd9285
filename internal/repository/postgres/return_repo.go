package postgres

import (
	"context"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type returnRepository struct {
	db *pgxpool.Pool
}

func NewReturnRepository(db *pgxpool.Pool) domain.ReturnRepository {
	return &returnRepository{db: db}
}

func (r *returnRepository) CreateReturn(ctx context.Context, req *domain.ReturnRequest) error {
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = utils.GenerateUUID()
	}

	_, err = conn(ctx, r.db).Exec(ctx, `
		INSERT INTO return_requests (id, order_id, reason, reason_text, description, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, orderID, req.Reason, req.ReasonText, req.Description, req.Status, req.SubmittedAt,
	)
	if isUniqueViolation(err, "return_requests_open_idx") {
		return domain.ErrReturnAlreadyRequested
	}
	return classify("create return request", err)
}

func (r *returnRepository) GetReturnsByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return []domain.ReturnRequest{}, nil
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, order_id, reason, reason_text, description, status, submitted_at
		FROM return_requests WHERE order_id = $1 ORDER BY submitted_at`, id)
	if err != nil {
		return nil, classify("list return requests", err)
	}
	defer rows.Close()

	out := []domain.ReturnRequest{}
	for rows.Next() {
		var (
			ret      domain.ReturnRequest
			rid, oid uuid.UUID
		)
		if err := rows.Scan(&rid, &oid, &ret.Reason, &ret.ReasonText, &ret.Description, &ret.Status, &ret.SubmittedAt); err != nil {
			return nil, classify("scan return request", err)
		}
		ret.ID, ret.OrderID = rid.String(), oid.String()
		out = append(out, ret)
	}
	return out, classify("list return requests", rows.Err())
}
