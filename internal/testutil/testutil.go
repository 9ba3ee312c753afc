// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/database"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// TestPassword is the plaintext password of users created by NewTestUser.
const TestPassword = "password123"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// AuthConfig returns the default auth policy with a fixed secret and the
// cheapest bcrypt cost so tests stay fast.
func AuthConfig() config.AuthConfig {
	cfg := config.DefaultAuthConfig()
	cfg.SecretKey = "test-secret-key"
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

// NewTestUser creates a verified test user whose password is TestPassword.
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Email:         email,
		PasswordHash:  string(hash),
		EmailVerified: true,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewTestRefreshToken stores a refresh token digest for a user.
func NewTestRefreshToken(t *testing.T, repo *repository.Repository, userID, tokenHash string, ttl time.Duration) *models.RefreshToken {
	t.Helper()
	token := &models.RefreshToken{
		UserID:    userID,
		Token:     tokenHash,
		ExpiresAt: time.Now().Add(ttl),
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), token))
	return token
}

// CountRefreshTokens returns how many refresh tokens a user holds.
func CountRefreshTokens(t *testing.T, db *sqlx.DB, userID string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Get(&count, db.Rebind(`SELECT count(*) FROM refresh_tokens WHERE user_id = ?`), userID))
	return count
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
