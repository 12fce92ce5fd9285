// Package memory is an in-process implementation of the storefront
// repositories. Transactions are serialised behind one lock and rolled back
// through an undo journal, which gives the same atomicity guarantees callers
// get from Postgres.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"storefront-core/internal/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	orders        map[string]*domain.Order
	byIdempotency map[string]string
	byReference   map[string]string
	byTracking    map[string]string
	history       map[string][]domain.OrderHistory

	coupons  map[uuid.UUID]*domain.Coupon
	products map[string]*domain.CatalogProduct
	stockLog []InventoryLog
	returns  map[string][]domain.ReturnRequest

	failWrites int
}

// InventoryLog records one stock movement.
type InventoryLog struct {
	ProductID   string
	Delta       int
	Reason      string
	ReferenceID string
}

func NewStore() *Store {
	return &Store{
		orders:        make(map[string]*domain.Order),
		byIdempotency: make(map[string]string),
		byReference:   make(map[string]string),
		byTracking:    make(map[string]string),
		history:       make(map[string][]domain.OrderHistory),
		coupons:       make(map[uuid.UUID]*domain.Coupon),
		products:      make(map[string]*domain.CatalogProduct),
		returns:       make(map[string][]domain.ReturnRequest),
	}
}

// FailWrites makes the next n order writes fail with a persistence error.
func (s *Store) FailWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = n
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p domain.CatalogProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// ReadProductSeed decodes a JSON array of catalog products.
func ReadProductSeed(path string) ([]domain.CatalogProduct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read product seed: %w", err)
	}
	var products []domain.CatalogProduct
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode product seed: %w", err)
	}
	return products, nil
}

// LoadProducts seeds the catalog from a JSON array of products.
func (s *Store) LoadProducts(path string) (int, error) {
	products, err := ReadProductSeed(path)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		s.PutProduct(p)
	}
	return len(products), nil
}

func (s *Store) InventoryLogs(productID string) []InventoryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InventoryLog
	for _, l := range s.stockLog {
		if l.ProductID == productID {
			out = append(out, l)
		}
	}
	return out
}

// --- Transactions ---

type txKey struct{}

type txState struct {
	store *Store
	undo  []func()
	done  bool
}

func (tx *txState) onRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *txState) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (s *Store) txFrom(ctx context.Context) (*txState, bool) {
	tx, ok := ctx.Value(txKey{}).(*txState)
	if !ok || tx.store != s || tx.done {
		return nil, false
	}
	return tx, true
}

// Do runs fn atomically. A nested call joins the outer transaction.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := s.txFrom(ctx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txState{store: s}
	err := fn(context.WithValue(ctx, txKey{}, tx))
	if err != nil {
		tx.rollback()
	}
	tx.done = true
	return err
}

// exec runs a single repository operation, inside the caller's transaction
// when there is one.
func (s *Store) exec(ctx context.Context, fn func(tx *txState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx, ok := s.txFrom(ctx); ok {
		return fn(tx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txState{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	tx.done = true
	return nil
}

func (s *Store) injectedFailure() error {
	if s.failWrites > 0 {
		s.failWrites--
		return fmt.Errorf("%w: injected write failure", domain.ErrPersistence)
	}
	return nil
}
