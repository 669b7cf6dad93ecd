// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth is the credential store: it creates accounts, checks
// passwords and records verification state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"codeberg.org/oliverandrich/go-authflow/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicate          = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrSamePassword       = errors.New("new password matches the current one")
	ErrResetConsumed      = errors.New("reset link already used")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type Service struct {
	repo              *repository.Repository
	passwordValidator *PasswordValidator
	cost              int
}

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func NewService(repo *repository.Repository, validator *PasswordValidator, opts ...Option) *Service {
	if validator == nil {
		validator = DefaultPasswordValidator()
	}
	s := &Service{
		repo:              repo,
		passwordValidator: validator,
		cost:              bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail trims and lower-cases an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// ValidatePassword checks password against the configured policy.
func (s *Service) ValidatePassword(password string, userAttributes ...string) error {
	validation := s.passwordValidator.Validate(password, userAttributes...)
	if !validation.Valid {
		return &PasswordValidationError{Errors: validation.Errors}
	}
	return nil
}

// Create stores a new unverified user. Username and email must both be unused;
// email comparison ignores case.
func (s *Service) Create(ctx context.Context, username, email, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if err := s.ValidatePassword(password, username, email); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing email: %w", err)
	}
	if _, err := s.repo.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing username: %w", err)
	}

	passwordHash, err := s.hash(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}

	// A concurrent registration can still win the race; the unique index decides.
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Authenticate looks identifier up as email or username and checks password.
// Unknown users and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.repo.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.WarnContext(ctx, "login_failed", "identifier", identifier, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.WarnContext(ctx, "login_failed", "user_id", user.ID, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// CheckNewPassword rejects reuse of the current password and passwords that
// fail the policy.
func (s *Service) CheckNewPassword(user *models.User, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil {
		return ErrSamePassword
	}
	return s.ValidatePassword(password, user.Username, user.Email)
}

// SetPassword replaces the password of user and consumes the reset link
// resetID in one step. ErrResetConsumed means the link was already used or
// superseded.
func (s *Service) SetPassword(ctx context.Context, user *models.User, resetID, password string) error {
	if err := s.CheckNewPassword(user, password); err != nil {
		return err
	}

	passwordHash, err := s.hash(password)
	if err != nil {
		return err
	}

	if err := s.repo.ResetUserPassword(ctx, user.ID, resetID, passwordHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetConsumed
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	user.PasswordHash = passwordHash
	user.ResetToken = nil
	user.TokenIssuedAt = nil
	return nil
}

// MarkVerified flags user as verified. Calling it again is a no-op.
func (s *Service) MarkVerified(ctx context.Context, user *models.User) error {
	if user.IsVerified && user.VerificationToken == nil {
		return nil
	}
	if err := s.repo.MarkUserVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}
	user.IsVerified = true
	user.VerificationToken = nil
	return nil
}

// SetVerificationToken records tokenID as the outstanding verification link.
func (s *Service) SetVerificationToken(ctx context.Context, user *models.User, tokenID string) error {
	if err := s.repo.SetVerificationToken(ctx, user.ID, tokenID); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	user.VerificationToken = &tokenID
	return nil
}

// SetResetToken records tokenID as the outstanding reset link.
func (s *Service) SetResetToken(ctx context.Context, user *models.User, tokenID string, issuedAt time.Time) error {
	if err := s.repo.SetResetToken(ctx, user.ID, tokenID, issuedAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}
	user.ResetToken = &tokenID
	user.TokenIssuedAt = &issuedAt
	return nil
}

// ClearResetToken drops the outstanding reset link.
func (s *Service) ClearResetToken(ctx context.Context, user *models.User) error {
	if err := s.repo.ClearResetToken(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to clear reset token: %w", err)
	}
	user.ResetToken = nil
	user.TokenIssuedAt = nil
	return nil
}

// UserByEmail returns the user registered under email.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.lookup(s.repo.GetUserByEmail(ctx, NormalizeEmail(email)))
}

// UserByID returns the user with the given id.
func (s *Service) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.lookup(s.repo.GetUserByID(ctx, id))
}

func (s *Service) lookup(user *models.User, err error) (*models.User, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) hash(password string) (string, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(passwordHash), nil
}
