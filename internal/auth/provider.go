package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

// StaticTokenProvider is a Provider backed by a pre-issued ID token
// (service accounts, local development, tests). Identity fields are read
// from the token's claims; signature verification is the backend's job,
// the client only needs the claims to populate the session.
type StaticTokenProvider struct {
	mu        sync.Mutex
	token     string
	user      *User
	listeners []func(*User)
}

// NewStaticTokenProvider creates a provider that signs in as the identity
// described by the given token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// SignIn parses the configured token and publishes the resulting identity.
func (p *StaticTokenProvider) SignIn(_ context.Context) (*User, error) {
	user, err := userFromToken(p.token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.user = user
	listeners := append([]func(*User){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(user)
	}
	u := *user
	return &u, nil
}

// SignOut clears the identity and notifies subscribers.
func (p *StaticTokenProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.user = nil
	listeners := append([]func(*User){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

// Token returns the configured bearer token. The static token is already
// as fresh as it gets, so force is a no-op here.
func (p *StaticTokenProvider) Token(_ context.Context, _ bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return "", ErrNoUser
	}
	return p.token, nil
}

// Subscribe registers an identity-change listener.
func (p *StaticTokenProvider) Subscribe(fn func(*User)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	i := len(p.listeners) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listeners[i] = func(*User) {}
	}
}

// userFromToken extracts the identity fields from the token claims.
func userFromToken(raw string) (*User, error) {
	tok, err := jwt.ParseInsecure([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity token: %w", err)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return nil, fmt.Errorf("identity token has no subject claim")
	}

	user := &User{UID: sub}
	// Optional profile claims.
	_ = tok.Get("email", &user.Email)
	_ = tok.Get("name", &user.DisplayName)
	_ = tok.Get("picture", &user.PhotoURL)
	return user, nil
}
