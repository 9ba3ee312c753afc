// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package actiontoken_test

import (
	"context"
	"testing"
	"time"

	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/security"
	"github.com/jimuzhe/doNow/internal/services/actiontoken"
	"github.com/jimuzhe/doNow/internal/services/password"
	"github.com/jimuzhe/doNow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setup(t *testing.T) (*repository.Repository, *password.Hasher, *actiontoken.Service) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := actiontoken.NewService(repo, hasher, password.Policy{MinLength: 6}, time.Hour)
	return repo, hasher, svc
}

func createUnverified(t *testing.T, repo *repository.Repository) (*models.User, string) {
	t.Helper()
	plain, hash, err := actiontoken.NewVerificationToken()
	require.NoError(t, err)
	user := &models.User{Email: "verify@example.com", PasswordHash: "x", VerificationToken: &hash}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user, plain
}

func TestNewVerificationToken(t *testing.T) {
	plain, hash, err := actiontoken.NewVerificationToken()
	require.NoError(t, err)

	assert.Len(t, plain, 43)
	assert.Equal(t, security.HashToken(plain), hash)
}

func TestConsumeVerification(t *testing.T) {
	repo, _, svc := setup(t)
	ctx := context.Background()
	user, plain := createUnverified(t, repo)

	verified, err := svc.ConsumeVerification(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)
	assert.True(t, verified.EmailVerified)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	assert.Nil(t, stored.VerificationToken)
	assert.False(t, stored.UpdatedAt.Before(user.UpdatedAt.Truncate(time.Millisecond)))
}

func TestConsumeVerification_Replay(t *testing.T) {
	repo, _, svc := setup(t)
	ctx := context.Background()
	_, plain := createUnverified(t, repo)

	_, err := svc.ConsumeVerification(ctx, plain)
	require.NoError(t, err)

	_, err = svc.ConsumeVerification(ctx, plain)
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestConsumeVerification_Unknown(t *testing.T) {
	_, _, svc := setup(t)

	_, err := svc.ConsumeVerification(context.Background(), "unknown")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	_, err = svc.ConsumeVerification(context.Background(), "")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestResetFlow(t *testing.T) {
	repo, hasher, svc := setup(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "reset@example.com")
	testutil.NewTestRefreshToken(t, repo, user.ID, "session", time.Hour)

	plain, err := svc.IssueReset(ctx, user)
	require.NoError(t, err)

	updated, err := svc.ConsumeReset(ctx, plain, "brand-new-password")
	require.NoError(t, err)
	assert.Nil(t, updated.ResetToken)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, hasher.Verify("brand-new-password", stored.PasswordHash))
	assert.False(t, hasher.Verify(testutil.TestPassword, stored.PasswordHash))
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiry)

	_, err = repo.GetRefreshToken(ctx, "session")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.ConsumeReset(ctx, plain, "another-password")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}

func TestIssueReset_ReplacesPending(t *testing.T) {
	repo, _, svc := setup(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "reset@example.com")

	first, err := svc.IssueReset(ctx, user)
	require.NoError(t, err)
	second, err := svc.IssueReset(ctx, user)
	require.NoError(t, err)

	_, err = svc.ConsumeReset(ctx, first, "brand-new-password")
	assert.ErrorIs(t, err, autherr.ErrInvalidToken)

	_, err = svc.ConsumeReset(ctx, second, "brand-new-password")
	assert.NoError(t, err)
}

func TestConsumeReset_Expired(t *testing.T) {
	repo, hasher, svc := setup(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "expired@example.com")
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, repo.SetResetToken(ctx, user.ID, security.HashToken("old-token"), past.Add(time.Hour), past))

	_, err := svc.ConsumeReset(ctx, "old-token", "brand-new-password")
	assert.ErrorIs(t, err, autherr.ErrExpiredToken)

	stored, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, stored.PasswordHash)
	assert.True(t, hasher.Verify(testutil.TestPassword, stored.PasswordHash))
}

func TestConsumeReset_WeakPassword(t *testing.T) {
	repo, _, svc := setup(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "weak@example.com")
	plain, err := svc.IssueReset(ctx, user)
	require.NoError(t, err)

	_, err = svc.ConsumeReset(ctx, plain, "123")
	assert.ErrorIs(t, err, autherr.ErrWeakPassword)

	// the token survives a rejected password
	_, err = svc.ConsumeReset(ctx, plain, "123456")
	assert.NoError(t, err)
}

func TestConsumeReset_Unknown(t *testing.T) {
	_, _, svc := setup(t)

	_, err := svc.ConsumeReset(context.Background(), "unknown", "brand-new-password")

	assert.ErrorIs(t, err, autherr.ErrInvalidToken)
}
