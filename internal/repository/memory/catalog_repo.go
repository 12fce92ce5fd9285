package memory

import (
	"context"

	"storefront-core/internal/domain"
)

type catalogService struct {
	s *Store
}

func NewCatalogService(s *Store) domain.CatalogService {
	return &catalogService{s: s}
}

func (c *catalogService) GetProduct(ctx context.Context, id string) (*domain.CatalogProduct, error) {
	var out *domain.CatalogProduct
	err := c.s.exec(ctx, func(tx *txState) error {
		p, ok := c.s.products[id]
		if !ok {
			return domain.ErrProductNotFound.WithMessage("product %s not found", id)
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (c *catalogService) AdjustStock(ctx context.Context, productID string, delta int, reason, referenceID string, allowOversell bool) error {
	return c.s.exec(ctx, func(tx *txState) error {
		p, ok := c.s.products[productID]
		if !ok {
			return domain.ErrProductNotFound.WithMessage("product %s not found", productID)
		}
		if delta < 0 && p.Stock+delta < 0 && !allowOversell {
			return domain.ErrOutOfStock.WithMessage("insufficient stock for %s: %d available", p.Name, p.Stock)
		}

		p.Stock += delta
		c.s.stockLog = append(c.s.stockLog, InventoryLog{
			ProductID:   productID,
			Delta:       delta,
			Reason:      reason,
			ReferenceID: referenceID,
		})
		tx.onRollback(func() {
			p.Stock -= delta
			c.s.stockLog = c.s.stockLog[:len(c.s.stockLog)-1]
		})
		return nil
	})
}
