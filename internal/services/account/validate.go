// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 25
)

// RegisterInput is the submitted registration form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

func (in RegisterInput) validate() error {
	var verr ValidationError

	n := utf8.RuneCountInString(strings.TrimSpace(in.Username))
	if n < MinUsernameLength || n > MaxUsernameLength {
		verr.add("username", "error_username_length")
	}
	if !validEmail(in.Email) {
		verr.add("email", "error_email_invalid")
	}
	validatePasswordPair(&verr, in.Password, in.ConfirmPassword)

	return verr.orNil()
}

func validatePasswordPair(verr *ValidationError, password, confirm string) {
	if password == "" {
		verr.add("password", "error_password_required")
	}
	if password != confirm {
		verr.add("confirm_password", "error_password_mismatch")
	}
}

func validateEmail(email string) error {
	var verr ValidationError
	if !validEmail(email) {
		verr.add("email", "error_email_invalid")
	}
	return verr.orNil()
}

// validEmail accepts a bare address. Display names are rejected.
func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".")
}
