package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrLoad signals that fetching the product list failed. The store is left
// empty; retry is user-triggered, never automatic.
var ErrLoad = errors.New("failed to load product catalog")

// Loader fetches the full product list from the backend.
type Loader interface {
	FetchProducts(ctx context.Context) ([]Product, error)
}

// Store holds the full catalog and the filtered view derived from it.
// Concurrent loads follow last-resolved-wins: whichever fetch returns last
// replaces the lists, regardless of issue order.
type Store struct {
	mu     sync.RWMutex
	loader Loader
	logger *slog.Logger

	all      []Product
	filtered []Product
	state    FilterState
}

// NewStore creates an empty catalog store backed by the given loader.
func NewStore(loader Loader, logger *slog.Logger) *Store {
	return &Store{
		loader: loader,
		logger: logger.With("component", "catalog"),
		state:  NewFilterState(),
	}
}

// Load fetches the full product list and replaces both the catalog and the
// filtered view with the result, returning the product count. On failure
// both lists are emptied and ErrLoad is returned.
func (s *Store) Load(ctx context.Context) (int, error) {
	products, err := s.loader.FetchProducts(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.all = nil
		s.filtered = nil
		s.logger.ErrorContext(ctx, "Failed to fetch products", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	s.all = products
	s.filtered = products
	s.logger.InfoContext(ctx, "Catalog loaded", "count", len(products))
	return len(products), nil
}

// All returns a copy of the full catalog in backend order.
func (s *Store) All() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyProducts(s.all)
}

// Filtered returns a copy of the current filtered view.
func (s *Store) Filtered() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyProducts(s.filtered)
}

// FilterState returns the current category/search selection.
func (s *Store) FilterState() FilterState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetCategory updates the category selection and recomputes the filtered
// view, returning its size.
func (s *Store) SetCategory(category string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Category = category
	return s.refilter()
}

// SetSearchTerm updates the search term and recomputes the filtered view,
// returning its size.
func (s *Store) SetSearchTerm(term string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.SearchTerm = term
	return s.refilter()
}

// ResetFilters clears both filters so the view shows the full catalog.
func (s *Store) ResetFilters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = NewFilterState()
	return s.refilter()
}

// FindByID looks a product up by normalized id in the full catalog.
func (s *Store) FindByID(id ID) (*Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.all {
		if s.all[i].ID == id {
			p := s.all[i]
			return &p, true
		}
	}
	return nil, false
}

func (s *Store) refilter() int {
	s.filtered = Filter(s.all, s.state)
	return len(s.filtered)
}

func copyProducts(products []Product) []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}
