// Package authpw provides username/password authentication.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"thoughtful/api/internal/store"
	"thoughtful/api/internal/util"
)

const (
	MinCost = 10

	MinUsernameLength = 3
	MaxUsernameLength = 20
	MinPasswordLength = 6
	MaxPasswordLength = 200

	// bcrypt only reads the first 72 bytes of its input.
	bcryptMaxBytes = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrIncorrectPassword  = errors.New("password is incorrect")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidUsername    = fmt.Errorf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)
	ErrInvalidPassword    = fmt.Errorf("password must be %d-%d characters", MinPasswordLength, MaxPasswordLength)
)

// Service provides username/password authentication
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
}

// NewService creates a new auth service. Costs below MinCost are raised.
func NewService(store UserStore, cost int) *Service {
	if cost < MinCost {
		cost = MinCost
	}
	return &Service{
		store: store,
		cost:  cost,
		now:   time.Now,
	}
}

type RegisterRequest struct {
	Username string
	Password string
}

// Register creates a new user with no custom statuses and no API keys.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.User, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return store.User{}, err
	}
	if err := ValidatePassword(req.Password); err != nil {
		return store.User{}, err
	}

	hash, err := s.Hash(req.Password)
	if err != nil {
		return store.User{}, err
	}

	user := store.User{
		ID:                util.NewID(),
		Username:          req.Username,
		PasswordHash:      hash,
		StatusDefinitions: store.StatusDefinitions{},
		APIKeys:           store.APIKeys{},
		Version:           1,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, ErrUsernameTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

type LoginRequest struct {
	Username string
	Password string
}

// Login returns the user whose credentials match. Unknown usernames and wrong
// passwords fail with the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, ErrInvalidCredentials
		}
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := s.VerifyPassword(user, req.Password); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyPassword checks password against the stored hash of user.
func (s *Service) VerifyPassword(user store.User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), bcryptInput(password)); err != nil {
		return ErrIncorrectPassword
	}
	return nil
}

// ChangePassword replaces the password of user after checking current.
func (s *Service) ChangePassword(ctx context.Context, user store.User, current, next string) error {
	if err := s.VerifyPassword(user, current); err != nil {
		return err
	}
	return s.SetPassword(ctx, user.ID, next)
}

// SetPassword replaces the password of userID without checking the old one.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := s.Hash(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func ValidateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength || n > MaxUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

func bcryptInput(password string) []byte {
	raw := []byte(password)
	if len(raw) > bcryptMaxBytes {
		raw = raw[:bcryptMaxBytes]
	}
	return raw
}
