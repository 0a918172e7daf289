package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/promptweave-ai/promptweave/backend/internal/auth"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidInput indicates a missing or malformed registration field.
	ErrInvalidInput = errors.New("users: invalid input")
)

const minPasswordLength = 8

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user accounts and credential checks.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	Email    string
	Name     string
	Password string
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (auth.Identity, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return auth.Identity{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return auth.Identity{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return auth.Identity{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	var existing Account
	err = s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return auth.Identity{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Identity{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return auth.Identity{}, err
	}

	account := Account{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         "user",
		CreatedAt:    s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return auth.Identity{}, err
	}

	return auth.Identity{Email: account.Email, Name: account.Name}, nil
}

// Authenticate verifies the email/password pair and returns the account identity.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.Identity, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}

	var account Account
	err = s.db.WithContext(ctx).Where("email = ?", normalized).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, err
	}

	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return auth.Identity{}, ErrInvalidCredentials
		}
		return auth.Identity{}, err
	}

	return auth.Identity{Email: account.Email, Name: account.Name}, nil
}

// Lookup returns the identity for a known email, ErrInvalidCredentials otherwise.
func (s *Service) Lookup(ctx context.Context, email string) (auth.Identity, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return auth.Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return auth.Identity{Email: account.Email, Name: account.Name}, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return trimmed, nil
}
