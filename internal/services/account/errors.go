// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
)

var (
	ErrTokenExpired        = errors.New("link expired")
	ErrTokenInvalid        = errors.New("link invalid")
	ErrNotVerified         = errors.New("email address not verified")
	ErrUnknownEmail        = errors.New("no account registered for this email")
	ErrLocked              = errors.New("too many failed login attempts")
	ErrEmailDeliveryFailed = errors.New("email could not be delivered")
)

// LockedError is returned while an identifier is locked out.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrLocked, e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Minutes is the remaining lockout rounded up to whole minutes.
func (e *LockedError) Minutes() int {
	m := int((e.Remaining + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

// InvalidCredentialsError is a rejected login that did not trigger a lockout.
type InvalidCredentialsError struct {
	AttemptsLeft int
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("%s, %d attempts left", auth.ErrInvalidCredentials, e.AttemptsLeft)
}

func (e *InvalidCredentialsError) Unwrap() error {
	return auth.ErrInvalidCredentials
}

// NotVerifiedError is a correct login for an account that still has to
// confirm its email. A fresh link was sent when EmailSent is true.
type NotVerifiedError struct {
	EmailSent bool
}

func (e *NotVerifiedError) Error() string {
	return ErrNotVerified.Error()
}

func (e *NotVerifiedError) Is(target error) bool {
	return target == ErrNotVerified
}

// ValidationError maps form fields to translation keys of their messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "invalid form: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, key string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = key
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
