package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"thoughtful/api/internal/auth"
	"thoughtful/api/internal/authpw"
	"thoughtful/api/internal/export"
	"thoughtful/api/internal/store"
	"thoughtful/api/internal/util"
)

const maxAPIKeys = 4

type CredentialsInput struct {
	Username string `json:"username" validate:"min=3,max=20"`
	Password string `json:"password" validate:"min=6,max=200"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"min=6,max=200"`
}

type DeleteAccountInput struct {
	Password string `json:"password" validate:"required"`
}

type CreateAPIKeyInput struct {
	Description string `json:"description" validate:"min=1,max=200"`
}

// APIKeyView is an API key as listed to its owner.
type APIKeyView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreatedAPIKey carries the raw token, which is never shown again.
type CreatedAPIKey struct {
	APIKeyView
	Token string `json:"token"`
}

// UserProfile is the account as returned by fetch.
type UserProfile struct {
	ID                string                   `json:"id"`
	Username          string                   `json:"username"`
	CreatedAt         time.Time                `json:"createdAt"`
	StatusDefinitions []store.StatusDefinition `json:"statusDefinitions"`
	APIKeys           []APIKeyView             `json:"apiKeys"`
}

func (s *Service) Register(ctx context.Context, input CredentialsInput) (IssuedSession, error) {
	if err := validateInput(input); err != nil {
		return IssuedSession{}, err
	}
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		return IssuedSession{}, err
	}
	return s.issueSession(ctx, user.ID)
}

// Login issues a new session. Existing sessions of the user stay valid.
func (s *Service) Login(ctx context.Context, input CredentialsInput) (IssuedSession, error) {
	if err := validateInput(input); err != nil {
		return IssuedSession{}, err
	}
	user, err := s.passwords.Login(ctx, authpw.LoginRequest{
		Username: input.Username,
		Password: input.Password,
	})
	if err != nil {
		return IssuedSession{}, err
	}
	return s.issueSession(ctx, user.ID)
}

// Logout removes the session for token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, token)
}

func (s *Service) Profile(identity auth.Identity) UserProfile {
	user := identity.User
	statuses := []store.StatusDefinition(user.StatusDefinitions)
	if statuses == nil {
		statuses = []store.StatusDefinition{}
	}
	return UserProfile{
		ID:                user.ID,
		Username:          user.Username,
		CreatedAt:         user.CreatedAt,
		StatusDefinitions: statuses,
		APIKeys:           apiKeyViews(user.APIKeys),
	}
}

func (s *Service) ChangePassword(ctx context.Context, identity auth.Identity, input ChangePasswordInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	err := s.passwords.ChangePassword(ctx, identity.User, input.CurrentPassword, input.NewPassword)
	if errors.Is(err, authpw.ErrIncorrectPassword) {
		return unauthorizedError("Current password is incorrect")
	}
	return err
}

// DeleteAccount removes sessions, ideas and archived exports before the user
// record, so a partial failure never leaves ideas without an owner.
func (s *Service) DeleteAccount(ctx context.Context, identity auth.Identity, input DeleteAccountInput) error {
	if err := validateInput(input); err != nil {
		return err
	}
	if err := s.passwords.VerifyPassword(identity.User, input.Password); err != nil {
		return unauthorizedError("Password is incorrect")
	}

	userID := identity.UserID
	if err := s.sessions.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteUserIdeas(ctx, userID); err != nil {
		return err
	}
	s.search.DeleteUser(userID)
	if _, err := s.archive.DeleteUserExports(ctx, userID); err != nil {
		log.Printf("account: delete archived exports of %s: %v", userID, err)
	}
	return s.store.DeleteUser(ctx, userID)
}

// Export renders the caller's profile and ideas in format.
func (s *Service) Export(ctx context.Context, identity auth.Identity, format string) (*export.Result, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError("format must be one of: json pdf", nil)
	}
	return s.exporter.Export(ctx, identity.User, parsed)
}

// ExportLink renders an export, uploads it and returns a presigned URL.
func (s *Service) ExportLink(ctx context.Context, identity auth.Identity, format string) (export.Link, error) {
	if s.archive == nil {
		return export.Link{}, export.ErrArchiveDisabled
	}
	result, err := s.Export(ctx, identity, format)
	if err != nil {
		return export.Link{}, err
	}
	return s.archive.Publish(ctx, identity.UserID, result)
}

func (s *Service) ListAPIKeys(identity auth.Identity) []APIKeyView {
	return apiKeyViews(identity.User.APIKeys)
}

func (s *Service) CreateAPIKey(ctx context.Context, identity auth.Identity, input CreateAPIKeyInput) (CreatedAPIKey, error) {
	if err := validateInput(input); err != nil {
		return CreatedAPIKey{}, err
	}
	token, err := auth.NewToken()
	if err != nil {
		return CreatedAPIKey{}, err
	}
	key := store.APIKey{
		ID:          util.NewID(),
		Description: input.Description,
		KeyHash:     auth.HashToken(token),
		CreatedAt:   s.now().UTC(),
	}

	_, err = s.mutateUser(ctx, identity.UserID, func(user *store.User) (bool, error) {
		if len(user.APIKeys) >= maxAPIKeys {
			return false, domainError(http.StatusBadRequest, codeLimitExceeded, "API key limit reached (max 4)", nil)
		}
		user.APIKeys = append(user.APIKeys, key)
		return true, nil
	})
	if err != nil {
		return CreatedAPIKey{}, err
	}
	return CreatedAPIKey{
		APIKeyView: APIKeyView{ID: key.ID, Description: key.Description, CreatedAt: key.CreatedAt},
		Token:      token,
	}, nil
}

// DeleteAPIKey removes keyID from the caller's keys. Unknown ids are ignored.
func (s *Service) DeleteAPIKey(ctx context.Context, identity auth.Identity, keyID string) error {
	_, err := s.mutateUser(ctx, identity.UserID, func(user *store.User) (bool, error) {
		kept := make(store.APIKeys, 0, len(user.APIKeys))
		for _, key := range user.APIKeys {
			if key.ID != keyID {
				kept = append(kept, key)
			}
		}
		if len(kept) == len(user.APIKeys) {
			return false, nil
		}
		user.APIKeys = kept
		return true, nil
	})
	return err
}

func apiKeyViews(keys store.APIKeys) []APIKeyView {
	views := make([]APIKeyView, 0, len(keys))
	for _, key := range keys {
		views = append(views, APIKeyView{ID: key.ID, Description: key.Description, CreatedAt: key.CreatedAt})
	}
	return views
}
