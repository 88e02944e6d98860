package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thoughtful/api/internal/store"
)

const (
	CookieName   = "thoughtful_session"
	APIKeyHeader = "api-authentication"
)

var (
	ErrNoCookie       = errors.New("no cookie provided")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
	ErrUserNotFound   = errors.New("user not found")
)

type UserLookup interface {
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByAPIKeyHash(ctx context.Context, keyHash string) (store.User, error)
}

type SessionLookup interface {
	GetSession(ctx context.Context, token string) (store.Session, error)
}

// Credentials are the raw values a request presented. Empty means absent.
type Credentials struct {
	SessionToken string
	APIKey       string
}

type Identity struct {
	UserID       string
	User         store.User
	SessionToken string
	ViaAPIKey    bool
}

type Authenticator struct {
	users    UserLookup
	sessions SessionLookup
	now      func() time.Time
	onKeyErr func(error)
}

func NewAuthenticator(users UserLookup, sessions SessionLookup) *Authenticator {
	return &Authenticator{
		users:    users,
		sessions: sessions,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for session expiry.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// OnAPIKeyError registers a hook for API-key lookup failures, which otherwise
// fall through to the cookie path silently.
func (a *Authenticator) OnAPIKeyError(fn func(error)) *Authenticator {
	a.onKeyErr = fn
	return a
}

// Authenticate resolves the caller. A matching API key wins outright; any
// other API-key outcome falls through to the session cookie.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	if creds.APIKey != "" {
		user, err := a.users.GetUserByAPIKeyHash(ctx, HashToken(creds.APIKey))
		switch {
		case err == nil:
			return Identity{UserID: user.ID, User: user, ViaAPIKey: true}, nil
		case !errors.Is(err, store.ErrNotFound) && a.onKeyErr != nil:
			a.onKeyErr(err)
		}
	}

	if creds.SessionToken == "" {
		return Identity{}, ErrNoCookie
	}
	session, err := a.sessions.GetSession(ctx, creds.SessionToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrInvalidSession
		}
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}
	if session.Expired(a.now()) {
		return Identity{}, ErrSessionExpired
	}

	user, err := a.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	return Identity{UserID: user.ID, User: user, SessionToken: creds.SessionToken}, nil
}

// IsAuthError reports whether err is one of the credential failures above.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoCookie) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrUserNotFound)
}
