package postgres

import (
	"context"
	"errors"

	"storefront-core/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// catalogService reads the products table the catalog service replicates
// into this database. Only price, stock and availability are used here.
type catalogService struct {
	db *pgxpool.Pool
}

func NewCatalogService(db *pgxpool.Pool) domain.CatalogService {
	return &catalogService{db: db}
}

func (c *catalogService) GetProduct(ctx context.Context, id string) (*domain.CatalogProduct, error) {
	var p domain.CatalogProduct
	err := conn(ctx, c.db).QueryRow(ctx,
		`SELECT id, name, price, stock, is_active FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound.WithMessage("product %s not found", id)
	}
	if err != nil {
		return nil, classify("get product", err)
	}
	return &p, nil
}

// AdjustStock applies delta in one guarded statement and logs the movement.
func (c *catalogService) AdjustStock(ctx context.Context, productID string, delta int, reason, referenceID string, allowOversell bool) error {
	q := conn(ctx, c.db)

	var name string
	err := q.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND ($2 >= 0 OR $3 OR stock + $2 >= 0)
		RETURNING name`,
		productID, delta, allowOversell,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		p, getErr := c.GetProduct(ctx, productID)
		if getErr != nil {
			return getErr
		}
		return domain.ErrOutOfStock.WithMessage("insufficient stock for %s: %d available", p.Name, p.Stock)
	}
	if err != nil {
		return classify("adjust stock", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO inventory_logs (product_id, change_amount, reason, reference_id)
		VALUES ($1, $2, $3, $4)`,
		productID, delta, reason, referenceID,
	)
	return classify("log inventory change", err)
}

// SeedProducts inserts or refreshes replicated product rows.
func SeedProducts(ctx context.Context, db *pgxpool.Pool, products []domain.CatalogProduct) error {
	for _, p := range products {
		if err := upsertProduct(ctx, db, p); err != nil {
			return err
		}
	}
	return nil
}

func upsertProduct(ctx context.Context, db *pgxpool.Pool, p domain.CatalogProduct) error {
	_, err := conn(ctx, db).Exec(ctx, `
		INSERT INTO products (id, name, price, stock, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, is_active = EXCLUDED.is_active, updated_at = now()`,
		p.ID, p.Name, p.Price, p.Stock, p.IsActive,
	)
	return classify("upsert product", err)
}
