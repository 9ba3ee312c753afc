// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/i18n"
	"github.com/jimuzhe/doNow/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 5000, BaseURL: "http://localhost:5000", MaxBodySize: 1},
		Auth:     testutil.AuthConfig(),
		Mail:     config.MailQueueConfig{Workers: 1, Buffer: 10},
		Cooldown: config.CooldownConfig{MaxResets: 5, ResetWindow: time.Hour},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	require.NoError(t, i18n.Init())
	_, repo := testutil.NewTestDB(t)

	a, err := newApp(context.Background(), cfg, repo)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestNewApp_Routes(t *testing.T) {
	a := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"SQLite"`)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rec = httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewApp_ResetFormRequiresCSRF(t *testing.T) {
	a := newTestApp(t, testConfig())

	form := url.Values{"token": {"abc"}, "password": {"newsecret"}}
	req := httptest.NewRequest(http.MethodPost, "/reset-password-page", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Invalid or expired reset link")
}

func TestNewApp_ResetFormWithCSRF(t *testing.T) {
	a := newTestApp(t, testConfig())

	get := httptest.NewRequest(http.MethodGet, "/reset-password-page?token=abc", nil)
	getRec := httptest.NewRecorder()
	a.echo.ServeHTTP(getRec, get)
	require.Equal(t, http.StatusOK, getRec.Code)

	cookies := getRec.Result().Cookies()
	require.NotEmpty(t, cookies)
	csrfToken := cookies[0].Value
	assert.Contains(t, getRec.Body.String(), csrfToken)

	form := url.Values{"token": {"abc"}, "password": {"newsecret"}, "csrf_token": {csrfToken}}
	req := httptest.NewRequest(http.MethodPost, "/reset-password-page", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)

	// the token is unknown, but the request made it past CSRF
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired reset link")
}

func TestNewApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.URL = "redis://" + mr.Addr()

	a := newTestApp(t, cfg)

	assert.NotNil(t, a.redis)
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "redis://127.0.0.1:1"

	a := newTestApp(t, cfg)

	assert.Nil(t, a.redis)
}
