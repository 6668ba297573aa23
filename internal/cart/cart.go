// Package cart owns the persisted shopping cart: an ordered list of line
// items keyed by normalized product id, stored as one JSON value in local
// storage and rewritten synchronously after every mutation.
package cart

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bsms/storefront/internal/catalog"
	"github.com/bsms/storefront/internal/storage"
)

// StorageKey is the local-storage key the whole cart is persisted under.
const StorageKey = "bsms_cart"

// Line is one product entry in the cart. Price is a snapshot taken at
// add-time; later catalog price changes do not affect it.
type Line struct {
	ProductID catalog.ID      `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Total returns price multiplied by quantity for this line.
func (l *Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Persister is the slice of local storage the cart needs.
type Persister interface {
	Get(key string, v any) error
	Set(key string, v any) error
	Delete(key string) error
}

// Store is the cart store. At most one line exists per normalized product
// id; removal, not zero quantity, represents deletion.
type Store struct {
	mu     sync.Mutex
	local  Persister
	logger *slog.Logger
	lines  []Line
}

// NewStore creates a cart store, loading any previously persisted cart.
// A missing value yields an empty cart.
func NewStore(local Persister, logger *slog.Logger) (*Store, error) {
	s := &Store{
		local:  local,
		logger: logger.With("component", "cart"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the persisted cart, picking up changes made by another
// process since the last read.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lines []Line
	err := s.local.Get(StorageKey, &lines)
	if err != nil && !errors.Is(err, storage.ErrNoValue) {
		return fmt.Errorf("failed to load cart: %w", err)
	}
	s.lines = lines
	return nil
}

// Add puts qty units of the product into the cart. Out-of-stock products
// are ignored. An existing line for the same product has its quantity
// incremented; otherwise a new line is appended with a price snapshot.
func (s *Store) Add(product *catalog.Product, qty int) error {
	if !product.InStock() {
		s.logger.Debug("Ignoring add of out-of-stock product", "productId", product.ID)
		return nil
	}
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.copyLines()
	if i := indexOf(lines, product.ID); i >= 0 {
		lines[i].Quantity += qty
	} else {
		lines = append(lines, Line{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Image:     product.Image(),
			Quantity:  qty,
		})
	}
	return s.commit(lines)
}

// UpdateQuantity sets the quantity of an existing line, clamped to a
// minimum of 1. Unknown ids are a no-op.
func (s *Store) UpdateQuantity(id catalog.ID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.lines, id)
	if i < 0 {
		return nil
	}
	lines := s.copyLines()
	lines[i].Quantity = max(1, qty)
	return s.commit(lines)
}

// Remove deletes the line with the given id. Removing an absent id is a
// no-op, so the operation is idempotent.
func (s *Store) Remove(id catalog.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.lines, id)
	if i < 0 {
		return nil
	}
	lines := s.copyLines()
	lines = append(lines[:i], lines[i+1:]...)
	return s.commit(lines)
}

// Clear empties the cart and removes the storage key.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.local.Delete(StorageKey); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	s.lines = nil
	return nil
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLines()
}

// Empty reports whether the cart has no lines.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// Count returns the total item count, the sum of line quantities.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.lines {
		count += s.lines[i].Quantity
	}
	return count
}

// Total returns the exact sum of price*quantity across all lines.
// Rounding to two places happens at presentation time only.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for i := range s.lines {
		total = total.Add(s.lines[i].Total())
	}
	return total
}

// commit persists the new cart before making it visible, so a failed write
// leaves the in-memory cart unchanged.
func (s *Store) commit(lines []Line) error {
	if err := s.local.Set(StorageKey, lines); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	s.lines = lines
	return nil
}

func (s *Store) copyLines() []Line {
	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	return lines
}

func indexOf(lines []Line, id catalog.ID) int {
	for i := range lines {
		if lines[i].ProductID == id {
			return i
		}
	}
	return -1
}
