// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/security"
	"github.com/jimuzhe/doNow/internal/services/auth"
	"github.com/jimuzhe/doNow/internal/services/ratelimit"
	"github.com/jimuzhe/doNow/internal/services/token"
	"github.com/jimuzhe/doNow/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

type sentMail struct {
	To    string
	Token string
}

type fakeNotifier struct {
	mu           sync.Mutex
	verification []sentMail
	reset        []sentMail
}

func (n *fakeNotifier) SendVerification(_ context.Context, to, tok string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verification = append(n.verification, sentMail{To: to, Token: tok})
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, to, tok string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reset = append(n.reset, sentMail{To: to, Token: tok})
}

type fixture struct {
	db       *sqlx.DB
	repo     *repository.Repository
	svc      *auth.Service
	notifier *fakeNotifier
	issuer   *token.Issuer
}

func setup(t *testing.T, limiter ratelimit.Limiter) fixture {
	t.Helper()
	db, repo := testutil.NewTestDB(t)
	cfg := testutil.AuthConfig()
	notifier := &fakeNotifier{}
	svc, err := auth.NewService(repo, cfg, notifier, limiter)
	require.NoError(t, err)
	issuer, err := token.NewIssuer(cfg)
	require.NoError(t, err)
	return fixture{db: db, repo: repo, svc: svc, notifier: notifier, issuer: issuer}
}

func register(t *testing.T, f fixture, email, password string) *auth.Result {
	t.Helper()
	res, err := f.svc.Register(context.Background(), auth.RegisterParams{Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, auth.RegisterParams{
		Email:       "  Alice@X.com ",
		Password:    "secret1",
		DisplayName: "Alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@x.com", res.User.Email)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, "Alice", *res.User.DisplayName)

	claims, err := f.issuer.ParseAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, res.User.ID, claims.UserID)

	stored, err := f.repo.GetRefreshToken(ctx, security.HashToken(res.Tokens.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, stored.UserID)

	require.Len(t, f.notifier.verification, 1)
	assert.Equal(t, "alice@x.com", f.notifier.verification[0].To)

	user, err := f.repo.FindUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.VerificationToken)
	assert.Equal(t, security.HashToken(f.notifier.verification[0].Token), *user.VerificationToken)
}

func TestRegister_Validation(t *testing.T) {
	f := setup(t, nil)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"missing email", "", "secret1", autherr.ErrInvalidInput},
		{"missing password", "a@x.com", "", autherr.ErrInvalidInput},
		{"short password", "a@x.com", "12345", autherr.ErrWeakPassword},
		{"no at sign", "not-an-email", "secret1", autherr.ErrInvalidEmail},
		{"display name form", "Bob <bob@x.com>", "secret1", autherr.ErrInvalidEmail},
		{"no domain dot", "bob@localhost", "secret1", autherr.ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), auth.RegisterParams{Email: tt.email, Password: tt.password})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.notifier.verification)
}

func TestRegister_Duplicate(t *testing.T) {
	f := setup(t, nil)
	register(t, f, "alice@x.com", "secret1")

	_, err := f.svc.Register(context.Background(), auth.RegisterParams{Email: "ALICE@x.com", Password: "secret2"})

	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)
	assert.Len(t, f.notifier.verification, 1)
}

func TestLogin_CaseInsensitiveEmail(t *testing.T) {
	f := setup(t, nil)
	registered := register(t, f, "alice@x.com", "secret1")

	res, err := f.svc.Login(context.Background(), "ALICE@x.com", "secret1")

	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.User.ID)
	assert.NotEqual(t, registered.Tokens.RefreshToken, res.Tokens.RefreshToken)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := setup(t, nil)
	register(t, f, "alice@x.com", "secret1")
	ctx := context.Background()

	_, wrongPassword := f.svc.Login(ctx, "alice@x.com", "secret2")
	_, unknownEmail := f.svc.Login(ctx, "nobody@x.com", "secret1")

	require.ErrorIs(t, wrongPassword, autherr.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, autherr.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_MissingFields(t *testing.T) {
	f := setup(t, nil)

	_, err := f.svc.Login(context.Background(), "", "secret1")

	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
}

func TestAnonymous(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	first, err := f.svc.Anonymous(ctx)
	require.NoError(t, err)
	second, err := f.svc.Anonymous(ctx)
	require.NoError(t, err)

	assert.True(t, first.User.IsAnonymous)
	assert.True(t, first.User.EmailVerified)
	assert.Nil(t, first.User.DisplayName)
	assert.True(t, strings.HasPrefix(first.User.Email, "anonymous_"))
	assert.True(t, strings.HasSuffix(first.User.Email, "@donow.local"))
	assert.NotEqual(t, first.User.Email, second.User.Email)

	claims, err := f.issuer.ParseAccess(first.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, claims.UserID)

	// nobody knows the password of an anonymous account
	_, err = f.svc.Login(ctx, first.User.Email, "")
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
	_, err = f.svc.Login(ctx, first.User.Email, "password")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	registered := register(t, f, "alice@x.com", "secret1")

	res, err := f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.User.ID)

	_, err = f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, autherr.ErrInvalidInput)
}

func TestForgotPassword_ExistingAndUnknown(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	registered := register(t, f, "alice@x.com", "secret1")

	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@x.com"))
	assert.Empty(t, f.notifier.reset)

	require.NoError(t, f.svc.ForgotPassword(ctx, "Alice@X.com"))
	require.Len(t, f.notifier.reset, 1)

	user, err := f.repo.FindUserByID(ctx, registered.User.ID)
	require.NoError(t, err)
	require.NotNil(t, user.ResetToken)
	assert.Equal(t, security.HashToken(f.notifier.reset[0].Token), *user.ResetToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *user.ResetTokenExpiry, 5*time.Second)
}

func TestForgotPassword_EmptyEmail(t *testing.T) {
	f := setup(t, nil)

	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "  "))
	assert.Empty(t, f.notifier.reset)
}

func TestForgotPassword_Cooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := setup(t, ratelimit.NewRedis(client, "test:reset:", 2, time.Hour))
	ctx := context.Background()
	register(t, f, "alice@x.com", "secret1")

	for range 4 {
		require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	}

	assert.Len(t, f.notifier.reset, 2)
}

func TestForgotPassword_CooldownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	f := setup(t, ratelimit.NewRedis(client, "test:reset:", 1, time.Hour))
	register(t, f, "alice@x.com", "secret1")
	mr.Close()

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "alice@x.com"))

	assert.Len(t, f.notifier.reset, 1)
}

func TestResetPassword(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	register(t, f, "alice@x.com", "secret1")
	require.NoError(t, f.svc.ForgotPassword(ctx, "alice@x.com"))
	resetToken := f.notifier.reset[0].Token

	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "newsecret"))

	_, err := f.svc.Login(ctx, "alice@x.com", "secret1")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@x.com", "newsecret")
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "othersecret"), autherr.ErrInvalidToken)
}

func TestVerifyEmail(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	registered := register(t, f, "alice@x.com", "secret1")
	verifyToken := f.notifier.verification[0].Token

	user, err := f.svc.VerifyEmail(ctx, verifyToken)
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	_, err = f.svc.VerifyEmail(ctx, verifyToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	me, err := f.svc.Me(ctx, models.Principal{UserID: registered.User.ID})
	require.NoError(t, err)
	assert.True(t, me.EmailVerified)
}

func TestLogout(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	alice := register(t, f, "alice@x.com", "secret1")
	bob := register(t, f, "bob@x.com", "secret1")
	alicePrincipal := models.Principal{UserID: alice.User.ID, Email: alice.User.Email}
	bobPrincipal := models.Principal{UserID: bob.User.ID, Email: bob.User.Email}

	// someone else's token is left alone
	require.NoError(t, f.svc.Logout(ctx, bobPrincipal, alice.Tokens.RefreshToken))
	_, err := f.repo.GetRefreshToken(ctx, security.HashToken(alice.Tokens.RefreshToken))
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, alicePrincipal, alice.Tokens.RefreshToken))
	_, err = f.svc.Refresh(ctx, alice.Tokens.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	assert.NoError(t, f.svc.Logout(ctx, alicePrincipal, ""))
}

func TestDeleteAccount(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	registered := register(t, f, "alice@x.com", "secret1")
	second, err := f.svc.Login(ctx, "alice@x.com", "secret1")
	require.NoError(t, err)
	p := models.Principal{UserID: registered.User.ID, Email: registered.User.Email}

	require.NoError(t, f.svc.DeleteAccount(ctx, p))

	count := testutil.CountRefreshTokens(t, f.db, p.UserID)
	assert.Zero(t, count)

	_, err = f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)
	_, err = f.svc.Refresh(ctx, second.Tokens.RefreshToken)
	assert.ErrorIs(t, err, autherr.ErrInvalidRefreshToken)

	_, err = f.svc.Me(ctx, p)
	assert.ErrorIs(t, err, autherr.ErrUserNotFound)

	// the email can be registered again
	register(t, f, "alice@x.com", "secret1")
}

func TestAuthenticate(t *testing.T) {
	f := setup(t, nil)
	registered := register(t, f, "alice@x.com", "secret1")

	p, err := f.svc.Authenticate("Bearer " + registered.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, p.UserID)
	assert.Equal(t, "alice@x.com", p.Email)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", registered.Tokens.AccessToken} {
		_, err := f.svc.Authenticate(header)
		assert.ErrorIs(t, err, autherr.ErrMissingAuth, "header %q", header)
	}

	_, err = f.svc.Authenticate("Bearer garbage")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestAuthenticate_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := testutil.AuthConfig()
	cfg.AccessTokenTTL = -time.Minute
	svc, err := auth.NewService(repo, cfg, &fakeNotifier{}, nil)
	require.NoError(t, err)

	res, err := svc.Register(context.Background(), auth.RegisterParams{Email: "alice@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Authenticate("Bearer " + res.Tokens.AccessToken)
	assert.ErrorIs(t, err, autherr.ErrExpiredToken)
}

func TestNewService_InvalidCost(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	cfg := config.DefaultAuthConfig()
	cfg.SecretKey = "s"
	cfg.BcryptCost = 100

	_, err := auth.NewService(repo, cfg, &fakeNotifier{}, nil)

	assert.Error(t, err)
}
