// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"github.com/a-h/templ"
	"github.com/jimuzhe/doNow/internal/appcontext"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
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

// principal returns the caller stored by middleware.RequireAuth.
func principal(c echo.Context) (models.Principal, error) {
	p, ok := appcontext.PrincipalFrom(c.Request().Context())
	if !ok {
		return models.Principal{}, autherr.ErrMissingAuth
	}
	return p, nil
}
