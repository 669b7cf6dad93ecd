// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"net/url"
	"strings"

	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
)

// Composer builds the links and localized texts of account emails.
type Composer struct {
	baseURL string
}

// NewComposer creates a Composer that links to baseURL.
func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// VerificationLink returns the absolute URL that redeems a verification token.
func (c *Composer) VerificationLink(token string) string {
	return c.baseURL + "/verify-email/" + url.PathEscape(token)
}

// ResetLink returns the absolute URL of the reset form for a reset token.
func (c *Composer) ResetLink(token string) string {
	return c.baseURL + "/reset-password/" + url.PathEscape(token)
}

// Verification returns subject and body of the verification email.
func (c *Composer) Verification(ctx context.Context, username, link string) (string, string) {
	subject := i18n.T(ctx, "email_verification_subject")
	body := i18n.TData(ctx, "email_verification_body", map[string]any{
		"Username": username,
		"Link":     link,
	})
	return subject, body
}

// PasswordReset returns subject and body of the password reset email.
func (c *Composer) PasswordReset(ctx context.Context, username, link string) (string, string) {
	subject := i18n.T(ctx, "email_reset_subject")
	body := i18n.TData(ctx, "email_reset_body", map[string]any{
		"Username": username,
		"Link":     link,
	})
	return subject, body
}
