// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-authflow/internal/appcontext"
	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"codeberg.org/oliverandrich/go-authflow/internal/htmx"
	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, app *App) {
	cfg := app.Config

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(app.Metrics.Middleware())
	e.Use(middleware.Secure())
	// promhttp compresses on its own.
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{Skipper: isProbe}))
	if cfg.Server.MaxBodySize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	}
	e.Use(csrfMiddleware(cfg))
	e.Use(csrfToContext())
	e.Use(i18nMiddleware())
	e.Use(customContext())
	e.Use(AuthMiddleware(app.Sessions, app.Credentials))
}

// isProbe reports whether the request targets a machine endpoint.
func isProbe(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/health" || path == "/metrics"
}

// csrfMiddleware configures CSRF protection.
func csrfMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		Skipper:        isProbe,
		TokenLookup:    "form:csrf_token,header:X-CSRF-Token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieSecure:   secure,
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	})
}

// csrfToContext copies the CSRF token to the request context.
func csrfToContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := c.Get("csrf").(string); ok {
				ctx := context.WithValue(c.Request().Context(), appcontext.CSRFToken{}, token)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      isProbe,
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRemoteIP:  true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// NoCache marks responses as uncacheable. Pages carrying tokens or account
// state use it so a shared cache never replays them.
func NoCache() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
			return next(c)
		}
	}
}

// AuthMiddleware loads the session user into the custom context and the
// request context. Page requests also consume the pending flash message.
func AuthMiddleware(sessions *session.Manager, credentials *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc, ok := c.(*appcontext.Context)
			if !ok {
				return next(c)
			}

			r := c.Request()
			ctx := r.Context()

			if data, _ := sessions.Parse(r); data != nil {
				user, err := credentials.UserByID(ctx, data.UserID)
				switch {
				case err == nil:
					cc.User = user
					ctx = context.WithValue(ctx, appcontext.User{}, user)
				case errors.Is(err, auth.ErrUserNotFound):
					c.SetCookie(sessions.Clear())
				default:
					slog.ErrorContext(ctx, "session_user_lookup_failed", "user_id", data.UserID, "error", err)
				}
			}

			if r.Method == http.MethodGet && !isProbe(c) {
				if flash := sessions.PopFlash(c.Response(), r); flash != nil {
					cc.Flash = flash
					ctx = context.WithValue(ctx, appcontext.Flash{}, flash)
				}
			}

			c.SetRequest(r.WithContext(ctx))
			return next(c)
		}
	}
}

// RequireAuth sends anonymous visitors to the login page.
func RequireAuth(sessions *session.Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if appcontext.UserOf(c) != nil {
				return next(c)
			}

			msg := i18n.T(c.Request().Context(), "flash_login_required")
			if err := sessions.SetFlash(c.Response(), session.Flash{Kind: session.FlashInfo, Message: msg}); err != nil {
				slog.ErrorContext(c.Request().Context(), "flash_failed", "error", err)
			}
			htmx.Redirect(c.Response(), c.Request(), "/login")
			return nil
		}
	}
}

// RedirectIfAuthenticated keeps signed-in users away from guest-only pages.
func RedirectIfAuthenticated(target string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if appcontext.UserOf(c) == nil {
				return next(c)
			}
			htmx.Redirect(c.Response(), c.Request(), target)
			return nil
		}
	}
}
