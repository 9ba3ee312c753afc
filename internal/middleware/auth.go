// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the echo middleware guarding the authenticated API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/jimuzhe/doNow/internal/appcontext"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/labstack/echo/v4"
)

// Authenticator validates an Authorization header value.
type Authenticator interface {
	Authenticate(header string) (models.Principal, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller in the request context otherwise.
func RequireAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, err := auth.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": message(err)})
			}

			ctx := appcontext.WithPrincipal(c.Request().Context(), p)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, autherr.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, autherr.ErrMissingAuth):
		return "Missing or invalid authorization header"
	default:
		return "Invalid token"
	}
}
