// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/security"
	"github.com/jimuzhe/doNow/internal/services/token"
	"github.com/jimuzhe/doNow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, mutate ...func(*config.AuthConfig)) *token.Issuer {
	t.Helper()
	cfg := testutil.AuthConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	issuer, err := token.NewIssuer(cfg)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	cfg := testutil.AuthConfig()
	cfg.SecretKey = ""

	_, err := token.NewIssuer(cfg)

	assert.Error(t, err)
}

func TestIssue_PersistsRefreshToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "issue@example.com")
	issuer := newIssuer(t)

	before := time.Now()
	pair, err := issuer.Issue(ctx, repo, user.ID, user.Email)
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Len(t, pair.RefreshToken, 86)
	assert.InDelta(t, before.Add(7*24*time.Hour).Unix(), pair.ExpiresIn, 2)

	stored, err := repo.GetRefreshToken(ctx, security.HashToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), stored.ExpiresAt, 2*time.Second)
}

func TestIssue_DistinctRefreshTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "issue@example.com")
	issuer := newIssuer(t)

	first, err := issuer.Issue(ctx, repo, user.ID, user.Email)
	require.NoError(t, err)
	second, err := issuer.Issue(ctx, repo, user.ID, user.Email)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestParseAccess(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "parse@example.com")
	issuer := newIssuer(t)

	pair, err := issuer.Issue(context.Background(), repo, user.ID, user.Email)
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "parse@example.com", claims.Email)
	assert.Equal(t, pair.ExpiresIn, claims.ExpiresAt.Unix())
}

func TestParseAccess_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "expired@example.com")
	issuer := newIssuer(t, func(c *config.AuthConfig) { c.AccessTokenTTL = -time.Minute })

	pair, err := issuer.Issue(context.Background(), repo, user.ID, user.Email)
	require.NoError(t, err)

	_, err = issuer.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrExpiredToken)
}

func TestParseAccess_WrongSecret(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "secret@example.com")
	pair, err := newIssuer(t).Issue(context.Background(), repo, user.ID, user.Email)
	require.NoError(t, err)

	other := newIssuer(t, func(c *config.AuthConfig) { c.SecretKey = "another-secret" })
	_, err = other.ParseAccess(pair.AccessToken)

	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestParseAccess_Garbage(t *testing.T) {
	_, err := newIssuer(t).ParseAccess("not.a.jwt")

	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestParseAccess_RejectsOtherAlgorithms(t *testing.T) {
	claims := token.Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newIssuer(t).ParseAccess(signed)

	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestParseAccess_MissingExpiry(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, token.Claims{UserID: "u-1"}).
		SignedString([]byte(testutil.AuthConfig().SecretKey))
	require.NoError(t, err)

	_, err = newIssuer(t).ParseAccess(signed)

	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}
