// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/i18n"
	"github.com/jimuzhe/doNow/internal/templates"
	"github.com/labstack/echo/v4"
)

// VerifyPage consumes the token from a verification email.
func (h *Handlers) VerifyPage(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.QueryParam("token")
	if token == "" {
		return h.result(c, http.StatusBadRequest, false, "verify_failed_title", "")
	}

	_, err := h.auth.VerifyEmail(ctx, token)
	switch {
	case errors.Is(err, autherr.ErrInvalidToken):
		return h.result(c, http.StatusBadRequest, false, "verify_failed_title", "")
	case err != nil:
		slog.ErrorContext(ctx, "email_verification_failed", "error", err)
		return h.result(c, http.StatusInternalServerError, false, "verify_error", "")
	}

	return h.result(c, http.StatusOK, true, "verify_success_title", "verify_success_body")
}

// ResetPage renders the password reset form for the token in the link.
func (h *Handlers) ResetPage(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return h.result(c, http.StatusBadRequest, false, "reset_failed_title", "")
	}
	return h.resetForm(c, http.StatusOK, token, "")
}

// ResetSubmit handles the reset form.
func (h *Handlers) ResetSubmit(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.FormValue("token")
	if token == "" {
		return h.result(c, http.StatusBadRequest, false, "reset_failed_title", "")
	}

	err := h.auth.ResetPassword(ctx, token, c.FormValue("password"))
	switch {
	case err == nil:
		return h.result(c, http.StatusOK, true, "reset_success_title", "reset_success_body")
	case errors.Is(err, autherr.ErrWeakPassword):
		msg := i18n.TData(ctx, "reset_password_too_short", map[string]any{"Min": h.auth.MinPasswordLength()})
		return h.resetForm(c, http.StatusBadRequest, token, msg)
	case errors.Is(err, autherr.ErrLongPassword):
		return h.resetForm(c, http.StatusBadRequest, token, i18n.T(ctx, "reset_password_too_long"))
	case errors.Is(err, autherr.ErrInvalidToken), errors.Is(err, autherr.ErrExpiredToken):
		return h.result(c, http.StatusBadRequest, false, "reset_failed_title", "")
	default:
		slog.ErrorContext(ctx, "password_reset_failed", "error", err)
		return h.result(c, http.StatusInternalServerError, false, "reset_error", "")
	}
}

func (h *Handlers) resetForm(c echo.Context, status int, token, errMsg string) error {
	return Render(c, status, templates.PageReset(templates.ResetFormData{
		Token:     token,
		MinLength: h.auth.MinPasswordLength(),
		Error:     errMsg,
	}))
}

func (h *Handlers) result(c echo.Context, status int, success bool, titleID, bodyID string) error {
	ctx := c.Request().Context()
	data := templates.ResultData{Success: success, Title: i18n.T(ctx, titleID)}
	if bodyID != "" {
		data.Body = i18n.T(ctx, bodyID)
	}
	return Render(c, status, templates.PageResult(data))
}
