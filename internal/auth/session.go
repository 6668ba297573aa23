package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrProvider signals a failed sign-in or sign-out. The session keeps its
// previous state; callers surface a transient notice and move on.
var ErrProvider = errors.New("identity provider operation failed")

// ErrNoUser signals a token request with nobody signed in. Callers either
// proceed unauthenticated or reject the dependent action.
var ErrNoUser = errors.New("no user is signed in")

// Provider is the capability set consumed from the external identity
// provider: interactive sign-in, sign-out, identity-change events and
// on-demand bearer tokens.
type Provider interface {
	// SignIn and SignOut publish the resulting identity change to
	// subscribers before returning; they do not notify twice.
	SignIn(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error

	// Token returns a bearer token for the current identity. force
	// requests a refreshed token rather than a cached one.
	Token(ctx context.Context, force bool) (string, error)

	// Subscribe registers a callback invoked on every identity change,
	// with nil on sign-out. It returns an unsubscribe function.
	Subscribe(fn func(*User)) func()
}

// ProfileSyncer pushes the signed-in identity's profile to the backend.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, user *User) error
}

// Session owns the current-user state. It is the single update path for
// identity: only provider events mutate it, and every other component
// reads through it.
type Session struct {
	mu       sync.RWMutex
	provider Provider
	logger   *slog.Logger

	current       *User
	listeners     map[int]func(*User)
	nextListener  int
	profileSyncer ProfileSyncer
	unsubscribe   func()
}

// NewSession creates a session subscribed to the provider's identity
// events for the process lifetime.
func NewSession(provider Provider, logger *slog.Logger) *Session {
	s := &Session{
		provider:  provider,
		logger:    logger.With("component", "auth"),
		listeners: make(map[int]func(*User)),
	}
	s.unsubscribe = provider.Subscribe(s.setCurrent)
	return s
}

// SetProfileSyncer wires the best-effort profile sync performed after a
// successful sign-in. Wired after construction because the backend client
// in turn reads tokens through this session.
func (s *Session) SetProfileSyncer(syncer ProfileSyncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileSyncer = syncer
}

// Current returns the signed-in user, or nil.
func (s *Session) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// SignedIn reports whether a user is currently signed in.
func (s *Session) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// SignIn runs the provider's interactive sign-in. On failure the session
// state is unchanged and ErrProvider is returned. On success the profile
// is synced to the backend as a non-blocking best effort; sync failure
// never fails the sign-in.
func (s *Session) SignIn(ctx context.Context) (*User, error) {
	user, err := s.provider.SignIn(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Sign-in failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	// Session state was already updated through the provider
	// subscription; setting it again would publish the event twice.

	s.mu.RLock()
	syncer := s.profileSyncer
	s.mu.RUnlock()
	if syncer != nil {
		go func(u User) {
			if err := syncer.SyncProfile(context.Background(), &u); err != nil {
				s.logger.Warn("Profile sync failed", "uid", u.UID, "error", err)
			}
		}(*user)
	}

	s.logger.InfoContext(ctx, "User signed in", "uid", user.UID)
	return s.Current(), nil
}

// SignOut runs the provider's sign-out. On failure the session state is
// unchanged and ErrProvider is returned.
func (s *Session) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.WarnContext(ctx, "Sign-out failed", "error", err)
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	s.logger.InfoContext(ctx, "User signed out")
	return nil
}

// Token returns a bearer token for the current user, refreshed when force
// is set. Returns ErrNoUser when nobody is signed in.
func (s *Session) Token(ctx context.Context, force bool) (string, error) {
	if !s.SignedIn() {
		return "", ErrNoUser
	}
	token, err := s.provider.Token(ctx, force)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	return token, nil
}

// Subscribe registers a listener invoked on every identity change, with
// nil on sign-out. It returns an unsubscribe function.
func (s *Session) Subscribe(fn func(*User)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close detaches the session from the provider's event stream.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) setCurrent(user *User) {
	s.mu.Lock()
	s.current = user
	listeners := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
}
