// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package account drives the registration, verification, login and password
// reset flows on top of the credential store, the token issuer, the login
// throttle and the outbound mailer.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/metrics"
	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/email"
	"codeberg.org/oliverandrich/go-authflow/internal/services/throttle"
	"codeberg.org/oliverandrich/go-authflow/internal/services/token"
)

// Email kinds used for metrics and log events.
const (
	kindVerification = "verification"
	kindReset        = "reset"
)

// Deps are the collaborators of a Service. Metrics may be nil.
type Deps struct {
	Credentials *auth.Service
	Tokens      *token.Issuer
	Throttle    *throttle.Throttle
	Mailer      email.Sender
	Composer    *email.Composer
	Metrics     *metrics.Metrics
}

// Options tune link lifetimes and the forgot-password reply.
type Options struct {
	VerifyMaxAge       time.Duration
	ResetMaxAge        time.Duration
	RevealUnknownEmail bool
}

type Service struct {
	credentials *auth.Service
	tokens      *token.Issuer
	throttle    *throttle.Throttle
	mailer      email.Sender
	composer    *email.Composer
	metrics     *metrics.Metrics
	opts        Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.VerifyMaxAge <= 0 {
		opts.VerifyMaxAge = token.DefaultMaxAge
	}
	if opts.ResetMaxAge <= 0 {
		opts.ResetMaxAge = token.DefaultMaxAge
	}
	if deps.Composer == nil {
		deps.Composer = email.NewComposer("")
	}
	return &Service{
		credentials: deps.Credentials,
		tokens:      deps.Tokens,
		throttle:    deps.Throttle,
		mailer:      deps.Mailer,
		composer:    deps.Composer,
		metrics:     deps.Metrics,
		opts:        opts,
	}
}

// RevealsUnknownEmail reports whether ForgotPassword tells callers that an
// address is not registered.
func (s *Service) RevealsUnknownEmail() bool {
	return s.opts.RevealUnknownEmail
}

// RegisterResult is a newly created account. EmailSent is false when the
// verification link could only be logged.
type RegisterResult struct {
	User      *models.User
	EmailSent bool
}

// Register validates the form, creates an unverified user and sends the
// verification link. A delivery failure does not undo the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if err := in.validate(); err != nil {
		s.metrics.Registration("invalid")
		return nil, err
	}

	user, err := s.credentials.Create(ctx, in.Username, in.Email, in.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicate):
			s.metrics.Registration("duplicate")
		case errors.Is(err, auth.ErrWeakPassword):
			s.metrics.Registration("weak_password")
		}
		return nil, err
	}
	s.metrics.Registration(metrics.ResultOK)

	sent, err := s.sendVerification(ctx, user)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{User: user, EmailSent: sent}, nil
}

// sendVerification issues a fresh verification link, making it the only
// valid one, and mails it. The returned bool reports delivery.
func (s *Service) sendVerification(ctx context.Context, user *models.User) (bool, error) {
	tok, err := s.tokens.Issue(user.Email, token.PurposeEmailConfirm)
	if err != nil {
		return false, fmt.Errorf("failed to issue verification token: %w", err)
	}
	if err := s.credentials.SetVerificationToken(ctx, user, tok.ID); err != nil {
		return false, err
	}

	link := s.composer.VerificationLink(tok.Value)
	subject, body := s.composer.Verification(ctx, user.Username, link)
	return s.deliver(ctx, kindVerification, user, subject, body, link), nil
}

func (s *Service) sendReset(ctx context.Context, user *models.User) (bool, error) {
	tok, err := s.tokens.Issue(user.Email, token.PurposePasswordReset)
	if err != nil {
		return false, fmt.Errorf("failed to issue reset token: %w", err)
	}
	if err := s.credentials.SetResetToken(ctx, user, tok.ID, tok.IssuedAt); err != nil {
		return false, err
	}

	link := s.composer.ResetLink(tok.Value)
	subject, body := s.composer.PasswordReset(ctx, user.Username, link)
	return s.deliver(ctx, kindReset, user, subject, body, link), nil
}

// deliver sends the message and logs the link when sending fails, so an
// operator can still hand it out.
func (s *Service) deliver(ctx context.Context, kind string, user *models.User, subject, body, link string) bool {
	sent := s.mailer.Send(ctx, user.Email, subject, body)
	s.metrics.Email(kind, sent)
	if !sent {
		slog.WarnContext(ctx, "email_send_failed", "kind", kind, "user_id", user.ID, "email", user.Email)
		slog.InfoContext(ctx, kind+"_link", "user_id", user.ID, "link", link)
	}
	return sent
}

// VerifyEmail redeems a verification link. Redeeming a link of an account
// that is already verified succeeds without changes.
func (s *Service) VerifyEmail(ctx context.Context, value string) (*models.User, error) {
	claims, err := s.tokens.Verify(value, token.PurposeEmailConfirm, s.opts.VerifyMaxAge)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.metrics.Verification(metrics.ResultExpired)
			return nil, ErrTokenExpired
		}
		s.metrics.Verification(metrics.ResultInvalid)
		return nil, ErrTokenInvalid
	}

	user, err := s.credentials.UserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			s.metrics.Verification(metrics.ResultInvalid)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if user.IsVerified {
		return user, nil
	}
	if !user.PendingVerification(claims.ID) {
		s.metrics.Verification(metrics.ResultInvalid)
		return nil, ErrTokenInvalid
	}

	if err := s.credentials.MarkVerified(ctx, user); err != nil {
		return nil, err
	}
	s.metrics.Verification(metrics.ResultOK)
	slog.InfoContext(ctx, "email_verified", "user_id", user.ID)
	return user, nil
}

// ResendVerification mails a new verification link. Unknown and already
// verified addresses are ignored so the reply does not disclose them.
func (s *Service) ResendVerification(ctx context.Context, address string) error {
	if err := validateEmail(address); err != nil {
		return err
	}

	user, err := s.credentials.UserByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.IsVerified {
		return nil
	}

	sent, err := s.sendVerification(ctx, user)
	if err != nil {
		return err
	}
	if !sent {
		return ErrEmailDeliveryFailed
	}
	return nil
}

// Login authenticates identifier (username or email). The throttle is
// consulted first; a locked identifier never reaches the password check.
func (s *Service) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		var verr ValidationError
		verr.add("identifier", "error_login_required")
		return nil, &verr
	}

	status, err := s.throttle.Check(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to check login throttle: %w", err)
	}
	if status.Locked {
		s.metrics.Login(metrics.LoginLocked)
		slog.WarnContext(ctx, "login_locked", "identifier", throttle.Normalize(identifier), "remaining", status.Remaining)
		return nil, &LockedError{Remaining: status.Remaining}
	}

	user, err := s.credentials.Authenticate(ctx, identifier, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, err
		}
		return nil, s.loginFailed(ctx, identifier)
	}

	if !user.IsVerified {
		s.metrics.Login(metrics.LoginUnverified)
		sent, err := s.sendVerification(ctx, user)
		if err != nil {
			return nil, err
		}
		return nil, &NotVerifiedError{EmailSent: sent}
	}

	if err := s.throttle.RecordSuccess(ctx, identifier); err != nil {
		return nil, fmt.Errorf("failed to reset login throttle: %w", err)
	}
	s.metrics.Login(metrics.LoginSuccess)
	slog.InfoContext(ctx, "login_success", "user_id", user.ID)
	return user, nil
}

func (s *Service) loginFailed(ctx context.Context, identifier string) error {
	status, err := s.throttle.RecordFailure(ctx, identifier)
	if err != nil {
		return fmt.Errorf("failed to record login failure: %w", err)
	}
	if status.Locked {
		s.metrics.Lockout()
		s.metrics.Login(metrics.LoginLocked)
		slog.WarnContext(ctx, "login_locked", "identifier", throttle.Normalize(identifier), "remaining", status.Remaining)
		return &LockedError{Remaining: status.Remaining}
	}
	s.metrics.Login(metrics.LoginInvalid)
	return &InvalidCredentialsError{AttemptsLeft: status.AttemptsLeft}
}

// ForgotPassword mails a reset link to address. Unknown addresses succeed
// silently unless RevealUnknownEmail is set, in which case ErrUnknownEmail
// is returned. A failed delivery returns ErrEmailDeliveryFailed after the
// link has been stored.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	if err := validateEmail(address); err != nil {
		return err
	}

	user, err := s.credentials.UserByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			slog.InfoContext(ctx, "reset_requested_unknown_email")
			if s.opts.RevealUnknownEmail {
				return ErrUnknownEmail
			}
			return nil
		}
		return err
	}

	sent, err := s.sendReset(ctx, user)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "reset_requested", "user_id", user.ID)
	if !sent {
		return ErrEmailDeliveryFailed
	}
	return nil
}

// CheckResetToken returns the user a reset link belongs to. Only the most
// recently issued, unused link is accepted. An expired link is removed from
// the user so it cannot be redeemed later.
func (s *Service) CheckResetToken(ctx context.Context, value string) (*models.User, error) {
	claims, err := s.tokens.Verify(value, token.PurposePasswordReset, s.opts.ResetMaxAge)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			if err := s.expireReset(ctx, claims); err != nil {
				return nil, err
			}
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	user, err := s.credentials.UserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !user.HasPendingReset() || *user.ResetToken != claims.ID {
		return nil, ErrTokenInvalid
	}
	return user, nil
}

func (s *Service) expireReset(ctx context.Context, claims token.Claims) error {
	user, err := s.credentials.UserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.HasPendingReset() || *user.ResetToken != claims.ID {
		return nil
	}
	return s.credentials.ClearResetToken(ctx, user)
}

// ResetPassword redeems a reset link. The new hash is written and the link
// consumed in one statement, so a link works at most once.
func (s *Service) ResetPassword(ctx context.Context, value, password, confirm string) (*models.User, error) {
	var verr ValidationError
	validatePasswordPair(&verr, password, confirm)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	user, err := s.CheckResetToken(ctx, value)
	if err != nil {
		s.recordReset(err)
		return nil, err
	}

	if err := s.credentials.SetPassword(ctx, user, *user.ResetToken, password); err != nil {
		if errors.Is(err, auth.ErrResetConsumed) {
			s.metrics.Reset(metrics.ResultInvalid)
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	// The owner proved control of the mailbox; lift any lockout on the account.
	for _, identifier := range []string{user.Email, user.Username} {
		if err := s.throttle.RecordSuccess(ctx, identifier); err != nil {
			slog.WarnContext(ctx, "throttle_reset_failed", "user_id", user.ID, "error", err)
		}
	}

	s.metrics.Reset(metrics.ResultOK)
	slog.InfoContext(ctx, "password_reset", "user_id", user.ID)
	return user, nil
}

func (s *Service) recordReset(err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		s.metrics.Reset(metrics.ResultExpired)
	case errors.Is(err, ErrTokenInvalid):
		s.metrics.Reset(metrics.ResultInvalid)
	}
}
