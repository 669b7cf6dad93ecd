// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import (
	"context"

	"codeberg.org/oliverandrich/go-authflow/internal/appcontext"
	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
)

// CSRFToken returns the CSRF token from the context.
func CSRFToken(ctx context.Context) string {
	if token, ok := ctx.Value(appcontext.CSRFToken{}).(string); ok {
		return token
	}
	return ""
}

// Locale returns the current locale.
func Locale(ctx context.Context) string {
	return i18n.GetLocale(ctx)
}

// GetUser returns the authenticated user from context, or nil if not logged in.
func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(appcontext.User{}).(*models.User); ok {
		return user
	}
	return nil
}

// GetFlash returns the flash message to show on this page.
func GetFlash(ctx context.Context) *session.Flash {
	if flash, ok := ctx.Value(appcontext.Flash{}).(*session.Flash); ok {
		return flash
	}
	return nil
}
