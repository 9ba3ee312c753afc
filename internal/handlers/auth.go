// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token, for refresh and logout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordRequest is the request body for a reset link.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type authResponse struct {
	User   models.UserView  `json:"user"`
	Tokens models.TokenPair `json:"tokens"`
}

type userResponse struct {
	User models.UserView `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func newAuthResponse(res *auth.Result) authResponse {
	return authResponse{User: res.User.View(), Tokens: res.Tokens}
}

// Register creates an account and signs it in.
func (h *Handlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.auth.Register(c.Request().Context(), auth.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, newAuthResponse(res))
}

// Login signs a user in with email and password.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

// Anonymous creates and signs in an anonymous account.
func (h *Handlers) Anonymous(c echo.Context) error {
	res, err := h.auth.Anonymous(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

// Refresh rotates a refresh token into a new pair.
func (h *Handlers) Refresh(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return badRequest(c, "Refresh token is required")
	}

	res, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, newAuthResponse(res))
}

// ForgotPassword answers identically whether or not the account exists.
func (h *Handlers) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	_ = c.Bind(&req)

	if err := h.auth.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		slog.ErrorContext(c.Request().Context(), "password_reset_request_failed", "error", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: auth.ForgotPasswordMessage})
}

// Me returns the authenticated user's profile.
func (h *Handlers) Me(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return h.fail(c, err)
	}

	user, err := h.auth.Me(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user.ProfileView()})
}

// Logout revokes the refresh token in the body, if any.
func (h *Handlers) Logout(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req RefreshRequest
	_ = c.Bind(&req)

	if err := h.auth.Logout(c.Request().Context(), p, req.RefreshToken); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// DeleteAccount removes the authenticated user and all their sessions.
func (h *Handlers) DeleteAccount(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return h.fail(c, err)
	}

	if err := h.auth.DeleteAccount(c.Request().Context(), p); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "Account deleted successfully"})
}
