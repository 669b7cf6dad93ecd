// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues and verifies signed, purpose-scoped links for email
// verification and password reset.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose restricts a token to a single operation.
type Purpose string

const (
	PurposeEmailConfirm  Purpose = "email-confirm"
	PurposePasswordReset Purpose = "password-reset"
)

// DefaultMaxAge is how long a link stays valid unless configured otherwise.
const DefaultMaxAge = time.Hour

var (
	ErrExpired        = errors.New("token expired")
	ErrInvalid        = errors.New("token invalid")
	ErrMissingSecret  = errors.New("token secret is required")
	ErrUnknownPurpose = errors.New("unknown token purpose")
)

// Token is a freshly issued link value plus the metadata the caller stores.
type Token struct {
	Value    string
	ID       string
	IssuedAt time.Time
}

// Claims are the verified contents of a token.
type Claims struct {
	Subject  string
	ID       string
	IssuedAt time.Time
}

// Issuer signs and verifies tokens. Each purpose gets its own key derived
// from the secret, so a token minted for one purpose never verifies for another.
type Issuer struct {
	keys map[Purpose][]byte
	now  func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer for the given secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	i := &Issuer{
		keys: map[Purpose][]byte{
			PurposeEmailConfirm:  deriveKey(secret, PurposeEmailConfirm),
			PurposePasswordReset: deriveKey(secret, PurposePasswordReset),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func deriveKey(secret string, purpose Purpose) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(purpose))
	return mac.Sum(nil)
}

// Issue creates a token bound to subject and purpose.
func (i *Issuer) Issue(subject string, purpose Purpose) (Token, error) {
	key, ok := i.keys[purpose]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownPurpose, purpose)
	}

	// Second precision keeps the stored issue time equal to the signed iat.
	issuedAt := i.now().UTC().Truncate(time.Second)
	id := uuid.NewString()

	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Audience: jwt.ClaimStrings{string(purpose)},
		IssuedAt: jwt.NewNumericDate(issuedAt),
		ID:       id,
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("signing token: %w", err)
	}

	return Token{Value: value, ID: id, IssuedAt: issuedAt}, nil
}

// Verify checks signature, purpose and age. It returns ErrExpired when the
// token is older than maxAge and ErrInvalid for anything else that is wrong.
// Expired tokens still carry their claims so callers can clean up state.
func (i *Issuer) Verify(value string, purpose Purpose, maxAge time.Duration) (Claims, error) {
	key, ok := i.keys[purpose]
	if !ok {
		return Claims{}, ErrInvalid
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(value, &claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(purpose)),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	if claims.IssuedAt == nil || claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrInvalid
	}

	verified := Claims{Subject: claims.Subject, ID: claims.ID, IssuedAt: claims.IssuedAt.UTC()}
	if i.now().Sub(verified.IssuedAt) > maxAge {
		return verified, ErrExpired
	}

	return verified, nil
}
