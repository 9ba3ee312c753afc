// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package appcontext provides the context keys shared by middleware, handlers and templates.
package appcontext

import (
	"context"

	"github.com/jimuzhe/doNow/internal/models"
)

// Context keys for storing values in context.Context.
type (
	// CSRFToken is the context key for the CSRF token.
	CSRFToken struct{}
	// Principal is the context key for the authenticated caller.
	Principal struct{}
)

// WithPrincipal returns a copy of ctx carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, Principal{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(Principal{}).(models.Principal)
	return p, ok
}

// WithCSRFToken returns a copy of ctx carrying the CSRF token for forms.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFToken{}, token)
}

// CSRFTokenFrom returns the CSRF token from the context.
func CSRFTokenFrom(ctx context.Context) string {
	if token, ok := ctx.Value(CSRFToken{}).(string); ok {
		return token
	}
	return ""
}
