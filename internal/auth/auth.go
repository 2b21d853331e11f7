// Package auth authenticates requests to a user identity plus role set,
// and owns the session lifecycle. The password verifier is an opaque
// blob whose layout never leaves this package.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/satchelwiki/satchel/internal/model"
)

// SessionCookie is the cookie carrying the session id. The
// X-Session-ID header is accepted as an alternative for non-browser
// clients.
const (
	SessionCookie   = "satchel_session"
	SessionHeader   = "X-Session-ID"
	DefaultLifetime = 24 * time.Hour
)

// IdentityStore is the slice of the store auth needs.
type IdentityStore interface {
	GetUserByName(ctx context.Context, username string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	PutSession(ctx context.Context, sess model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Auth issues and resolves sessions.
type Auth struct {
	store    IdentityStore
	lifetime time.Duration

	// newID and now are injection points for deterministic tests.
	newID func() string
	now   func() time.Time
}

// Option configures an Auth.
type Option func(*Auth)

// WithLifetime overrides the session lifetime.
func WithLifetime(d time.Duration) Option {
	return func(a *Auth) { a.lifetime = d }
}

// WithIDGenerator overrides session id generation, primarily for tests.
func WithIDGenerator(fn func() string) Option {
	return func(a *Auth) {
		if fn != nil {
			a.newID = fn
		}
	}
}

// WithNowFunc injects a custom clock, primarily for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(a *Auth) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Auth over the given identity store.
func New(store IdentityStore, opts ...Option) *Auth {
	a := &Auth{
		store:    store,
		lifetime: DefaultLifetime,
		newID:    func() string { return uuid.Must(uuid.NewV7()).String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login verifies a password and creates a session. Returns
// model.PermissionError on a bad username or password - the two cases
// are indistinguishable to the caller.
func (a *Auth) Login(ctx context.Context, username, password string) (*model.Session, error) {
	user, err := a.store.GetUserByName(ctx, username)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, model.NewPermissionError("", "", "", "invalid credentials")
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if !VerifyPassword(user.Verifier, password) {
		return nil, model.NewPermissionError("", "", "", "invalid credentials")
	}

	sess := model.Session{
		ID:     a.newID(),
		UserID: user.ID,
		Expiry: a.now().Add(a.lifetime),
	}
	if err := a.store.PutSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &sess, nil
}

// Logout destroys a session. Idempotent.
func (a *Auth) Logout(ctx context.Context, sessionID string) error {
	if err := a.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Identify resolves a request to a requester, or nil for anonymous.
// Expired sessions are treated as anonymous and deleted opportunistically.
func (a *Auth) Identify(r *http.Request) (*model.Requester, error) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			sessionID = c.Value
		}
	}
	if sessionID == "" {
		return nil, nil
	}

	ctx := r.Context()
	sess, err := a.store.GetSession(ctx, sessionID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("identify: %w", err)
	}
	if !sess.Expiry.After(a.now()) {
		_ = a.store.DeleteSession(ctx, sessionID)
		return nil, nil
	}

	user, err := a.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("identify: %w", err)
	}

	roles, err := a.store.RoleIDsForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}

	return &model.Requester{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		RoleIDs:  roles,
	}, nil
}

// PurgeExpired deletes every expired session. Called on an interval by
// the serve loop.
func (a *Auth) PurgeExpired(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredSessions(ctx, a.now())
}
