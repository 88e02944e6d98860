package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/authpw"
	"thoughtful/api/internal/config"
	"thoughtful/api/internal/export"
	"thoughtful/api/internal/search"
	"thoughtful/api/internal/store"
	"thoughtful/api/internal/util"
)

const (
	defaultSessionTTL = 90 * 24 * time.Hour
	maxMutateAttempts = 3
)

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByAPIKeyHash(ctx context.Context, keyHash string) (store.User, error)
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	SaveUserCollections(ctx context.Context, user store.User) error
	DeleteUser(ctx context.Context, userID string) error

	InsertIdea(ctx context.Context, idea store.Idea) error
	GetIdea(ctx context.Context, userID, ideaID string) (store.Idea, error)
	UpdateIdea(ctx context.Context, userID, ideaID string, patch store.IdeaPatch, updatedAt time.Time) error
	DeleteIdea(ctx context.Context, userID, ideaID string) (int64, error)
	ListIdeas(ctx context.Context, userID string, filter store.IdeaFilter) ([]store.Idea, error)
	SearchIdeas(ctx context.Context, userID, query string) ([]store.Idea, error)
	CountIdeasWithStatus(ctx context.Context, userID, statusID string) (int, error)
	ReassignIdeaStatus(ctx context.Context, userID, fromStatus, toStatus string) (int64, error)
	DeleteUserIdeas(ctx context.Context, userID string) error
}

// SessionStore is implemented by store.PostgresStore and session.RedisStore.
type SessionStore interface {
	CreateSession(ctx context.Context, session store.Session) error
	GetSession(ctx context.Context, token string) (store.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  SessionStore
	authn     *auth.Authenticator
	passwords *authpw.Service
	search    *search.Service
	exporter  *export.Service
	archive   *export.Archive
	now       func() time.Time
}

// New wires the services over Postgres. sessions may be nil, in which case
// sessions are kept in Postgres too. searchSvc and archive are optional.
func New(cfg config.Config, dataStore *store.PostgresStore, sessions SessionStore, searchSvc *search.Service, archive *export.Archive) *Service {
	if sessions == nil {
		sessions = dataStore
	}
	return newService(cfg, dataStore, sessions, searchSvc, archive)
}

func newService(cfg config.Config, dataStore dataStore, sessions SessionStore, searchSvc *search.Service, archive *export.Archive) *Service {
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore, cfg.BcryptCost),
		search:    searchSvc,
		exporter:  export.NewService(dataStore),
		archive:   archive,
		now:       time.Now,
	}
	s.authn = auth.NewAuthenticator(dataStore, sessions).
		WithClock(func() time.Time { return s.now() }).
		OnAPIKeyError(func(err error) {
			log.Printf("auth: api key lookup failed, falling back to session: %v", err)
		})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate resolves the caller from the presented cookie and API key.
func (s *Service) Authenticate(ctx context.Context, creds auth.Credentials) (auth.Identity, error) {
	return s.authn.Authenticate(ctx, creds)
}

func (s *Service) sessionTTL() time.Duration {
	if s.cfg.SessionTTL > 0 {
		return s.cfg.SessionTTL
	}
	return defaultSessionTTL
}

// IssuedSession is what the HTTP layer needs to set the session cookie.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

func (s *Service) issueSession(ctx context.Context, userID string) (IssuedSession, error) {
	token, err := auth.NewToken()
	if err != nil {
		return IssuedSession{}, err
	}
	now := s.now().UTC()
	session := store.Session{
		ID:        util.NewID(),
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL()),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return IssuedSession{}, err
	}
	return IssuedSession{Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// mutateUser applies fn to a fresh copy of the user and stores the embedded
// collections with a version check, re-reading on concurrent writes. fn
// reports whether it changed anything.
func (s *Service) mutateUser(ctx context.Context, userID string, fn func(*store.User) (bool, error)) (store.User, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		user, err := s.store.GetUserByID(ctx, userID)
		if err != nil {
			return store.User{}, err
		}
		changed, err := fn(&user)
		if err != nil {
			return store.User{}, err
		}
		if !changed {
			return user, nil
		}
		err = s.store.SaveUserCollections(ctx, user)
		if err == nil {
			user.Version++
			return user, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return store.User{}, err
		}
	}
	return store.User{}, domainError(http.StatusConflict, codeConflict, "Account was modified concurrently, please retry", nil)
}
