// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/templates"
	"github.com/labstack/echo/v4"
)

// ErrorHandler renders HTTP errors as pages. Unexpected errors become a 500
// without exposing their text.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	ctx := c.Request().Context()
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request_failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	p := page(c, templates.PageError, "error_title")
	p.Status = code
	p.Message = errorMessage(c, code)

	if renderErr := Render(c, code, p.Component()); renderErr != nil {
		slog.ErrorContext(ctx, "error_page_failed", "error", renderErr)
		_ = c.String(code, http.StatusText(code))
	}
}

func errorMessage(c echo.Context, code int) string {
	ctx := c.Request().Context()
	switch code {
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return i18n.T(ctx, "error_not_found")
	case http.StatusForbidden, http.StatusBadRequest:
		return i18n.T(ctx, "error_forbidden")
	default:
		if text := http.StatusText(code); code < http.StatusInternalServerError && text != "" {
			return text
		}
		return i18n.T(ctx, "error_generic")
	}
}
