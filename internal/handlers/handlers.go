// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP handlers of the account portal.
package handlers

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/appcontext"
	"codeberg.org/oliverandrich/go-authflow/internal/repository"
	"codeberg.org/oliverandrich/go-authflow/internal/services/account"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"codeberg.org/oliverandrich/go-authflow/internal/templates"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 2 * time.Second

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo      *repository.Repository
	accounts  *account.Service
	sessions  *session.Manager
	passwords *auth.PasswordValidator
}

// New creates a new Handlers instance.
func New(repo *repository.Repository, accounts *account.Service, sessions *session.Manager, passwords *auth.PasswordValidator) *Handlers {
	if passwords == nil {
		passwords = auth.DefaultPasswordValidator()
	}
	return &Handlers{
		repo:      repo,
		accounts:  accounts,
		sessions:  sessions,
		passwords: passwords,
	}
}

// Health reports whether the database answers.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := h.repo.DB().PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "unavailable",
			"database": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Home renders the home page.
func (h *Handlers) Home(c echo.Context) error {
	return Render(c, http.StatusOK, page(c, templates.PageHome, "home_title").Component())
}

// memberPage renders a page that is only shown to the logged-in user.
func memberPage(c echo.Context, name, title string) error {
	p := page(c, name, title)
	if p.User == nil {
		p.User = appcontext.UserOf(c)
	}
	return Render(c, http.StatusOK, p.Component())
}

// Dashboard renders the page of the logged-in user.
func (h *Handlers) Dashboard(c echo.Context) error {
	return memberPage(c, templates.PageDashboard, "dashboard_title")
}

// Profile shows the account details of the logged-in user.
func (h *Handlers) Profile(c echo.Context) error {
	return memberPage(c, templates.PageProfile, "profile_title")
}

func (h *Handlers) Projects(c echo.Context) error {
	return memberPage(c, templates.PageProjects, "projects_title")
}

func (h *Handlers) Contact(c echo.Context) error {
	return memberPage(c, templates.PageContact, "contact_title")
}

func (h *Handlers) Skills(c echo.Context) error {
	return memberPage(c, templates.PageSkills, "skills_title")
}
