package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable Provider implementation.
type fakeProvider struct {
	user       *User
	signInErr  error
	signOutErr error
	token      string
	tokenErr   error
	forced     bool
	listeners  []func(*User)
}

func (f *fakeProvider) SignIn(_ context.Context) (*User, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	for _, fn := range f.listeners {
		fn(f.user)
	}
	return f.user, nil
}

func (f *fakeProvider) SignOut(_ context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	for _, fn := range f.listeners {
		fn(nil)
	}
	return nil
}

func (f *fakeProvider) Token(_ context.Context, force bool) (string, error) {
	f.forced = force
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}

func (f *fakeProvider) Subscribe(fn func(*User)) func() {
	f.listeners = append(f.listeners, fn)
	return func() {}
}

// recordingSyncer captures profile sync calls.
type recordingSyncer struct {
	err    error
	synced chan *User
}

func (r *recordingSyncer) SyncProfile(_ context.Context, user *User) error {
	r.synced <- user
	return r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rider() *User {
	return &User{UID: "uid-1", Email: "rider@example.com", DisplayName: "Road Rider", PhotoURL: "https://img/p.jpg"}
}

func TestSession_SignIn(t *testing.T) {
	provider := &fakeProvider{user: rider(), token: "tok"}
	s := NewSession(provider, discardLogger())
	defer s.Close()

	user, err := s.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uid-1", user.UID)
	assert.True(t, s.SignedIn())
	assert.Equal(t, "uid-1", s.Current().UID)
}

func TestSession_SignInFailureKeepsState(t *testing.T) {
	provider := &fakeProvider{signInErr: errors.New("popup cancelled")}
	s := NewSession(provider, discardLogger())
	defer s.Close()

	_, err := s.SignIn(context.Background())
	require.ErrorIs(t, err, ErrProvider)
	assert.False(t, s.SignedIn())
	assert.Nil(t, s.Current())
}

func TestSession_SignOutFailureKeepsState(t *testing.T) {
	provider := &fakeProvider{user: rider()}
	s := NewSession(provider, discardLogger())
	defer s.Close()
	_, err := s.SignIn(context.Background())
	require.NoError(t, err)

	provider.signOutErr = errors.New("network error")
	require.ErrorIs(t, s.SignOut(context.Background()), ErrProvider)
	assert.True(t, s.SignedIn())

	provider.signOutErr = nil
	require.NoError(t, s.SignOut(context.Background()))
	assert.False(t, s.SignedIn())
}

func TestSession_TokenRequiresUser(t *testing.T) {
	provider := &fakeProvider{user: rider(), token: "bearer-token"}
	s := NewSession(provider, discardLogger())
	defer s.Close()

	_, err := s.Token(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoUser)

	_, err = s.SignIn(context.Background())
	require.NoError(t, err)
	token, err := s.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "bearer-token", token)
	assert.True(t, provider.forced)
}

func TestSession_PublishesIdentityChanges(t *testing.T) {
	provider := &fakeProvider{user: rider()}
	s := NewSession(provider, discardLogger())
	defer s.Close()

	var events []*User
	unsubscribe := s.Subscribe(func(u *User) { events = append(events, u) })

	_, err := s.SignIn(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1, "sign-in must publish exactly one event")
	assert.Equal(t, "uid-1", events[0].UID)

	require.NoError(t, s.SignOut(context.Background()))
	require.Len(t, events, 2, "sign-out must publish exactly one event")
	assert.Nil(t, events[1])

	unsubscribe()
	before := len(events)
	_, err = s.SignIn(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, before)
}

func TestSession_ProfileSyncIsBestEffort(t *testing.T) {
	provider := &fakeProvider{user: rider()}
	s := NewSession(provider, discardLogger())
	defer s.Close()

	syncer := &recordingSyncer{err: errors.New("backend down"), synced: make(chan *User, 1)}
	s.SetProfileSyncer(syncer)

	user, err := s.SignIn(context.Background())
	require.NoError(t, err, "sync failure must not fail sign-in")
	assert.Equal(t, "uid-1", user.UID)

	select {
	case synced := <-syncer.synced:
		assert.Equal(t, "uid-1", synced.UID)
	case <-time.After(time.Second):
		t.Fatal("profile sync was never attempted")
	}
}

func TestUser_ShortName(t *testing.T) {
	assert.Equal(t, "Road", rider().ShortName())
	assert.Equal(t, "rider", (&User{Email: "rider@example.com"}).ShortName())
	assert.Equal(t, "", (&User{}).ShortName())
}
