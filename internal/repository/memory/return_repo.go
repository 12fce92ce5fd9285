package memory

import (
	"context"

	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"
)

type returnRepository struct {
	s *Store
}

func NewReturnRepository(s *Store) domain.ReturnRepository {
	return &returnRepository{s: s}
}

func (r *returnRepository) CreateReturn(ctx context.Context, req *domain.ReturnRequest) error {
	return r.s.exec(ctx, func(tx *txState) error {
		if _, ok := r.s.orders[req.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		for _, existing := range r.s.returns[req.OrderID] {
			if existing.Status == domain.ReturnStatusSubmitted {
				return domain.ErrReturnAlreadyRequested
			}
		}
		if req.ID == "" {
			req.ID = utils.GenerateUUID()
		}
		r.s.returns[req.OrderID] = append(r.s.returns[req.OrderID], *req)
		tx.onRollback(func() {
			entries := r.s.returns[req.OrderID]
			r.s.returns[req.OrderID] = entries[:len(entries)-1]
		})
		return nil
	})
}

func (r *returnRepository) GetReturnsByOrder(ctx context.Context, orderID string) ([]domain.ReturnRequest, error) {
	var out []domain.ReturnRequest
	err := r.s.exec(ctx, func(tx *txState) error {
		out = append(out, r.s.returns[orderID]...)
		return nil
	})
	return out, err
}
