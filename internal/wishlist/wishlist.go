// Package wishlist owns the persisted wishlist: a membership set of
// normalized product ids. Toggles are local and synchronous; the backend
// copy is updated as a best effort that never rolls back the local state.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bsms/storefront/internal/auth"
	"github.com/bsms/storefront/internal/catalog"
	"github.com/bsms/storefront/internal/storage"
)

// StorageKey is the local-storage key the wishlist is persisted under.
const StorageKey = "bsms_wishlist"

// Persister is the slice of local storage the wishlist needs.
type Persister interface {
	Get(key string, v any) error
	Set(key string, v any) error
}

// Syncer mirrors membership changes to the backend.
type Syncer interface {
	AddWishlist(ctx context.Context, uid string, productID catalog.ID) error
	RemoveWishlist(ctx context.Context, uid string, productID catalog.ID) error
}

// SessionReader exposes the current signed-in user.
type SessionReader interface {
	Current() *auth.User
}

// Store is the wishlist store.
type Store struct {
	mu      sync.Mutex
	local   Persister
	session SessionReader
	syncer  Syncer
	logger  *slog.Logger

	ids []catalog.ID
}

// NewStore creates a wishlist store, loading any previously persisted set.
func NewStore(local Persister, session SessionReader, syncer Syncer, logger *slog.Logger) (*Store, error) {
	s := &Store{
		local:   local,
		session: session,
		syncer:  syncer,
		logger:  logger.With("component", "wishlist"),
	}

	var ids []catalog.ID
	err := local.Get(StorageKey, &ids)
	if err != nil && !errors.Is(err, storage.ErrNoValue) {
		return nil, fmt.Errorf("failed to load wishlist: %w", err)
	}
	s.ids = ids
	return s, nil
}

// Toggle flips membership for the given id, persists immediately and
// reports whether the product is now wishlisted. If a user is signed in
// the new membership state is synced to the backend asynchronously; sync
// failure is logged and the local toggle stands.
func (s *Store) Toggle(ctx context.Context, id catalog.ID) (bool, error) {
	s.mu.Lock()

	added := true
	ids := make([]catalog.ID, 0, len(s.ids)+1)
	for _, existing := range s.ids {
		if existing == id {
			added = false
			continue
		}
		ids = append(ids, existing)
	}
	if added {
		ids = append(ids, id)
	}

	if err := s.local.Set(StorageKey, ids); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("failed to persist wishlist: %w", err)
	}
	s.ids = ids
	s.mu.Unlock()

	if user := s.session.Current(); user != nil && s.syncer != nil {
		// Detached from the caller's lifetime; the sync outlives the
		// request that triggered the toggle.
		go s.sync(context.WithoutCancel(ctx), user.UID, id, added)
	}
	return added, nil
}

// Contains reports whether the product is wishlisted.
func (s *Store) Contains(id catalog.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// Items returns the wishlisted ids.
func (s *Store) Items() []catalog.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]catalog.ID, len(s.ids))
	copy(ids, s.ids)
	return ids
}

func (s *Store) sync(ctx context.Context, uid string, id catalog.ID, added bool) {
	var err error
	if added {
		err = s.syncer.AddWishlist(ctx, uid, id)
	} else {
		err = s.syncer.RemoveWishlist(ctx, uid, id)
	}
	if err != nil {
		s.logger.Warn("Wishlist sync failed", "uid", uid, "productId", id, "added", added, "error", err)
	}
}
