// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/services/password"
	"github.com/labstack/echo/v4"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error string `json:"error"`
}

// fail writes err as a JSON error with the status its kind maps to.
// Unknown errors are logged and reported as a generic 500.
func (h *Handlers) fail(c echo.Context, err error) error {
	status, msg := h.classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(status, errorResponse{Error: msg})
}

func (h *Handlers) classify(err error) (int, string) {
	switch {
	case errors.Is(err, autherr.ErrInvalidInput):
		return http.StatusBadRequest, "Email and password are required"
	case errors.Is(err, autherr.ErrWeakPassword):
		return http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", h.auth.MinPasswordLength())
	case errors.Is(err, autherr.ErrLongPassword):
		return http.StatusBadRequest, fmt.Sprintf("Password must be at most %d bytes", password.MaxBytes)
	case errors.Is(err, autherr.ErrInvalidEmail):
		return http.StatusBadRequest, "Invalid email format"
	case errors.Is(err, autherr.ErrDuplicateEmail):
		return http.StatusConflict, "Email already registered"
	case errors.Is(err, autherr.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, autherr.ErrMissingAuth):
		return http.StatusUnauthorized, "Missing or invalid authorization header"
	case errors.Is(err, autherr.ErrExpiredToken):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, autherr.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, autherr.ErrInvalidRefreshToken):
		return http.StatusUnauthorized, "Invalid refresh token"
	case errors.Is(err, autherr.ErrExpiredRefreshToken):
		return http.StatusUnauthorized, "Refresh token expired"
	case errors.Is(err, autherr.ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
