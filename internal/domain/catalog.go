package domain

import "context"

// CatalogProduct is the pricing and stock view of a product the settlement
// core needs. Everything else about products lives in the catalog service.
type CatalogProduct struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Stock    int    `json:"stock"`
	IsActive bool   `json:"isActive"`
}

type CatalogService interface {
	GetProduct(ctx context.Context, id string) (*CatalogProduct, error) // ErrProductNotFound when absent
	// AdjustStock applies delta to the product's stock. Negative deltas fail
	// with ErrOutOfStock when stock would drop below zero unless allowOversell.
	AdjustStock(ctx context.Context, productID string, delta int, reason, referenceID string, allowOversell bool) error
}
