// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"codeberg.org/oliverandrich/go-authflow/internal/services/account"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"codeberg.org/oliverandrich/go-authflow/internal/templates"
	"github.com/labstack/echo/v4"
)

// ForgotPasswordPage renders the reset request form.
func (h *Handlers) ForgotPasswordPage(c echo.Context) error {
	return Render(c, http.StatusOK, page(c, templates.PageForgot, "forgot_title").Component())
}

// ForgotPassword sends a reset link. Unless unknown addresses are revealed,
// every outcome gets the same reply.
func (h *Handlers) ForgotPassword(c echo.Context) error {
	err := h.accounts.ForgotPassword(c.Request().Context(), c.FormValue("email"))

	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr):
		h.flashText(c, session.FlashDanger, fieldMessage(c, verr.Fields, "email"))
		return redirect(c, "/forgot-password")
	case errors.Is(err, account.ErrUnknownEmail):
		h.flash(c, session.FlashDanger, "flash_unknown_email")
		return redirect(c, "/forgot-password")
	case errors.Is(err, account.ErrEmailDeliveryFailed) && h.accounts.RevealsUnknownEmail():
		h.flash(c, session.FlashWarning, "flash_email_failed")
		return redirect(c, "/forgot-password")
	case err == nil, errors.Is(err, account.ErrEmailDeliveryFailed):
		h.flash(c, session.FlashInfo, "flash_reset_sent")
		return redirect(c, "/login")
	default:
		return err
	}
}

// ResetPasswordPage renders the new-password form for a valid reset link.
func (h *Handlers) ResetPasswordPage(c echo.Context) error {
	value := c.Param("token")
	if _, err := h.accounts.CheckResetToken(c.Request().Context(), value); err != nil {
		return h.resetLinkFailed(c, err)
	}

	p := page(c, templates.PageReset, "reset_title")
	p.Token = value
	p.PasswordRules = h.passwords.GetHelpTexts()
	return Render(c, http.StatusOK, p.Component())
}

// ResetPassword sets the new password and consumes the link.
func (h *Handlers) ResetPassword(c echo.Context) error {
	value := c.Param("token")
	retry := "/reset-password/" + url.PathEscape(value)

	_, err := h.accounts.ResetPassword(c.Request().Context(), value, c.FormValue("password"), c.FormValue("confirm_password"))
	if err != nil {
		var verr *account.ValidationError
		var perr *auth.PasswordValidationError
		switch {
		case errors.As(err, &verr):
			h.flashText(c, session.FlashDanger, fieldMessage(c, verr.Fields, "password", "confirm_password"))
			return redirect(c, retry)
		case errors.As(err, &perr):
			h.flashData(c, session.FlashDanger, "flash_weak_password", map[string]any{"Reasons": h.passwordReasons(c, perr)})
			return redirect(c, retry)
		case errors.Is(err, auth.ErrSamePassword):
			h.flash(c, session.FlashDanger, "flash_same_password")
			return redirect(c, retry)
		default:
			return h.resetLinkFailed(c, err)
		}
	}

	// Drop any session that predates the new password.
	c.SetCookie(h.sessions.Clear())
	h.flash(c, session.FlashSuccess, "flash_password_reset")
	return redirect(c, "/login")
}

func (h *Handlers) resetLinkFailed(c echo.Context, err error) error {
	switch {
	case errors.Is(err, account.ErrTokenExpired):
		h.flash(c, session.FlashWarning, "flash_link_expired")
	case errors.Is(err, account.ErrTokenInvalid):
		h.flash(c, session.FlashDanger, "flash_link_invalid")
	default:
		return err
	}
	return redirect(c, "/forgot-password")
}
