// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the custom Echo context and context keys.
package appcontext

import (
	"codeberg.org/oliverandrich/go-authflow/internal/htmx"
	"codeberg.org/oliverandrich/go-authflow/internal/models"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"github.com/labstack/echo/v4"
)

// Context keys for storing values in context.Context.
type (
	// CSRFToken is the context key for the CSRF token.
	CSRFToken struct{}
	// User is the context key for the authenticated user.
	User struct{}
	// Flash is the context key for the flash message of the current page.
	Flash struct{}
)

// Context is a custom Echo context with typed fields for htmx, the session
// user and the pending flash message.
type Context struct {
	echo.Context
	Htmx  *htmx.Request
	User  *models.User   // nil if not authenticated
	Flash *session.Flash // nil if none is pending
}

// GetUser returns the authenticated user, or nil if not authenticated.
func (c *Context) GetUser() *models.User {
	return c.User
}

// IsAuthenticated returns true if the user is authenticated.
func (c *Context) IsAuthenticated() bool {
	return c.User != nil
}

// From returns the custom context of c, or nil when c was not wrapped.
func From(c echo.Context) *Context {
	cc, _ := c.(*Context)
	return cc
}

// UserOf returns the authenticated user of c, or nil.
func UserOf(c echo.Context) *models.User {
	if cc := From(c); cc != nil {
		return cc.User
	}
	return nil
}
