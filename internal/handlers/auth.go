// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-authflow/internal/services/account"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"codeberg.org/oliverandrich/go-authflow/internal/templates"
	"github.com/labstack/echo/v4"
)

// RegisterPage renders the registration form.
func (h *Handlers) RegisterPage(c echo.Context) error {
	p := page(c, templates.PageRegister, "register_title")
	p.PasswordRules = h.passwords.GetHelpTexts()
	return Render(c, http.StatusOK, p.Component())
}

// Register creates an account and sends the verification link.
func (h *Handlers) Register(c echo.Context) error {
	res, err := h.accounts.Register(c.Request().Context(), account.RegisterInput{
		Username:        c.FormValue("username"),
		Email:           c.FormValue("email"),
		Password:        c.FormValue("password"),
		ConfirmPassword: c.FormValue("confirm_password"),
	})
	if err != nil {
		var verr *account.ValidationError
		var perr *auth.PasswordValidationError
		switch {
		case errors.As(err, &verr):
			h.flashText(c, session.FlashDanger, fieldMessage(c, verr.Fields, "username", "email", "password", "confirm_password"))
		case errors.As(err, &perr):
			h.flashData(c, session.FlashDanger, "flash_weak_password", map[string]any{"Reasons": h.passwordReasons(c, perr)})
		case errors.Is(err, auth.ErrDuplicate):
			h.flash(c, session.FlashDanger, "flash_duplicate")
		default:
			return err
		}
		return redirect(c, "/register")
	}

	if res.EmailSent {
		h.flash(c, session.FlashSuccess, "flash_registered")
	} else {
		h.flash(c, session.FlashWarning, "flash_registered_email_failed")
	}
	return redirect(c, "/login")
}

// VerifyEmail redeems a verification link.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	_, err := h.accounts.VerifyEmail(c.Request().Context(), c.Param("token"))
	switch {
	case err == nil:
		h.flash(c, session.FlashSuccess, "flash_email_verified")
	case errors.Is(err, account.ErrTokenExpired):
		h.flash(c, session.FlashWarning, "flash_link_expired")
	case errors.Is(err, account.ErrTokenInvalid):
		h.flash(c, session.FlashDanger, "flash_link_invalid")
	default:
		return err
	}
	return redirect(c, "/login")
}

// ResendVerification mails a fresh verification link.
func (h *Handlers) ResendVerification(c echo.Context) error {
	err := h.accounts.ResendVerification(c.Request().Context(), c.FormValue("email"))

	var verr *account.ValidationError
	switch {
	case err == nil:
		h.flash(c, session.FlashInfo, "flash_verification_resent")
	case errors.As(err, &verr):
		h.flashText(c, session.FlashDanger, fieldMessage(c, verr.Fields, "email"))
	case errors.Is(err, account.ErrEmailDeliveryFailed):
		h.flash(c, session.FlashWarning, "flash_email_failed")
	default:
		return err
	}
	return redirect(c, "/login")
}

// LoginPage renders the login form.
func (h *Handlers) LoginPage(c echo.Context) error {
	return Render(c, http.StatusOK, page(c, templates.PageLogin, "login_title").Component())
}

// Login checks the credentials and starts a session.
func (h *Handlers) Login(c echo.Context) error {
	user, err := h.accounts.Login(c.Request().Context(), c.FormValue("identifier"), c.FormValue("password"))
	if err != nil {
		var (
			lerr *account.LockedError
			ierr *account.InvalidCredentialsError
			nerr *account.NotVerifiedError
			verr *account.ValidationError
		)
		switch {
		case errors.As(err, &lerr):
			h.flashCount(c, session.FlashDanger, "flash_locked", lerr.Minutes(), map[string]any{"Minutes": lerr.Minutes()})
		case errors.As(err, &ierr):
			h.flashCount(c, session.FlashDanger, "flash_invalid_credentials", ierr.AttemptsLeft,
				map[string]any{"AttemptsLeft": ierr.AttemptsLeft})
		case errors.As(err, &nerr):
			if nerr.EmailSent {
				h.flash(c, session.FlashWarning, "flash_not_verified")
			} else {
				h.flash(c, session.FlashWarning, "flash_not_verified_email_failed")
			}
		case errors.As(err, &verr):
			h.flashText(c, session.FlashDanger, fieldMessage(c, verr.Fields, "identifier"))
		default:
			return err
		}
		return redirect(c, "/login")
	}

	cookie, err := h.sessions.Create(user.ID, user.Username)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "session_create_failed", "user_id", user.ID, "error", err)
		return err
	}
	c.SetCookie(cookie)

	h.flashData(c, session.FlashSuccess, "flash_welcome", map[string]any{"Username": user.Username})
	return redirect(c, "/dashboard")
}

// Logout ends the session.
func (h *Handlers) Logout(c echo.Context) error {
	c.SetCookie(h.sessions.Clear())
	h.flash(c, session.FlashInfo, "flash_logged_out")
	return redirect(c, "/")
}
