// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/go-authflow/internal/htmx"
	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"codeberg.org/oliverandrich/go-authflow/internal/templates"
	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render renders a templ component with the given status code.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(c.Request().Context(), buf); err != nil {
		return err
	}

	return c.HTML(statusCode, buf.String())
}

// page prepares a template page for the current request.
func page(c echo.Context, name, title string) *templates.Page {
	return templates.NewPage(c.Request().Context(), name, title)
}

// flash stores a translated message for the next page.
func (h *Handlers) flash(c echo.Context, kind, messageID string) {
	h.flashText(c, kind, i18n.T(c.Request().Context(), messageID))
}

// flashData stores a translated message with template data for the next page.
func (h *Handlers) flashData(c echo.Context, kind, messageID string, data map[string]any) {
	h.flashText(c, kind, i18n.TData(c.Request().Context(), messageID, data))
}

// flashCount stores a translated message whose wording follows count.
func (h *Handlers) flashCount(c echo.Context, kind, messageID string, count int, data map[string]any) {
	h.flashText(c, kind, i18n.TCount(c.Request().Context(), messageID, count, data))
}

func (h *Handlers) flashText(c echo.Context, kind, message string) {
	if err := h.sessions.SetFlash(c.Response(), session.Flash{Kind: kind, Message: message}); err != nil {
		slog.ErrorContext(c.Request().Context(), "flash_failed", "error", err)
	}
}

// redirect answers with a 303 or, for partial htmx requests, an HX-Redirect.
func redirect(c echo.Context, url string) error {
	htmx.Redirect(c.Response(), c.Request(), url)
	return nil
}

// passwordReasons translates the failed checks of a password policy.
func (h *Handlers) passwordReasons(c echo.Context, perr *auth.PasswordValidationError) string {
	ctx := c.Request().Context()
	data := map[string]any{"MinLength": h.passwords.MinLength}

	reasons := make([]string, 0, len(perr.Errors))
	for _, code := range perr.Codes() {
		reasons = append(reasons, i18n.TData(ctx, "password_"+code, data))
	}
	return strings.Join(reasons, " ")
}

// fieldMessage returns the first translated message of a form error, in
// a stable field order.
func fieldMessage(c echo.Context, fields map[string]string, order ...string) string {
	for _, name := range order {
		if key, ok := fields[name]; ok {
			return i18n.T(c.Request().Context(), key)
		}
	}
	for _, key := range fields {
		return i18n.T(c.Request().Context(), key)
	}
	return ""
}
