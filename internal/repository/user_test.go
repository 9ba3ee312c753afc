// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := &models.User{
		Email:             "  New@Example.com ",
		PasswordHash:      "hash",
		DisplayName:       ptr("New User"),
		VerificationToken: ptr("verify-digest"),
	}
	require.NoError(t, repo.CreateUser(ctx, user))

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "new@example.com", user.Email)
	assert.False(t, user.CreatedAt.IsZero())

	found, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", found.Email)
	assert.Equal(t, "hash", found.PasswordHash)
	require.NotNil(t, found.DisplayName)
	assert.Equal(t, "New User", *found.DisplayName)
	require.NotNil(t, found.VerificationToken)
	assert.Equal(t, "verify-digest", *found.VerificationToken)
	assert.Nil(t, found.ResetToken)
	assert.Nil(t, found.ResetTokenExpiry)
	assert.False(t, found.EmailVerified)
	assert.WithinDuration(t, user.CreatedAt, found.CreatedAt, time.Millisecond)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	testutil.NewTestUser(t, repo, "dup@example.com")

	err := repo.CreateUser(ctx, &models.User{Email: "DUP@example.com", PasswordHash: "hash"})

	assert.ErrorIs(t, err, autherr.ErrDuplicateEmail)
}

func TestFindUserByEmail_CaseInsensitive(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "case@example.com")

	found, err := repo.FindUserByEmail(context.Background(), " CASE@Example.com")

	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
}

func TestFindUser_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.FindUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.FindUserByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.FindUserByVerificationToken(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.FindUserByResetToken(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "update@example.com")
	before := user.UpdatedAt

	expiry := time.Now().Add(time.Hour)
	user.DisplayName = ptr("Renamed")
	user.ResetToken = ptr("reset-digest")
	user.ResetTokenExpiry = &expiry
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.UpdateUser(ctx, user))

	found, err := repo.FindUserByResetToken(ctx, "reset-digest")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, "Renamed", *found.DisplayName)
	require.NotNil(t, found.ResetTokenExpiry)
	assert.WithinDuration(t, expiry, *found.ResetTokenExpiry, time.Millisecond)
	assert.True(t, found.UpdatedAt.After(before))
}

func TestUpdateUser_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	err := repo.UpdateUser(context.Background(), &models.User{ID: "missing", Email: "x@example.com"})

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteUser_CascadesRefreshTokens(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "gone@example.com")
	testutil.NewTestRefreshToken(t, repo, user.ID, "hash-1", time.Hour)
	testutil.NewTestRefreshToken(t, repo, user.ID, "hash-2", time.Hour)

	require.NoError(t, repo.DeleteUser(ctx, user.ID))

	_, err := repo.FindUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetRefreshToken(ctx, "hash-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	count := testutil.CountRefreshTokens(t, db, user.ID)
	assert.Zero(t, count)

	assert.ErrorIs(t, repo.DeleteUser(ctx, user.ID), repository.ErrNotFound)
}

func TestMarkEmailVerified_SingleWinner(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := &models.User{Email: "verify@example.com", PasswordHash: "hash", VerificationToken: ptr("digest")}
	require.NoError(t, repo.CreateUser(ctx, user))

	ok, err := repo.MarkEmailVerified(ctx, user.ID, "digest", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkEmailVerified(ctx, user.ID, "digest", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, found.EmailVerified)
	assert.Nil(t, found.VerificationToken)
}

func TestResetPassword_SingleWinner(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "reset@example.com")
	now := time.Now()
	require.NoError(t, repo.SetResetToken(ctx, user.ID, "digest", now.Add(time.Hour), now))

	ok, err := repo.ResetPassword(ctx, user.ID, "digest", "new-hash", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ResetPassword(ctx, user.ID, "digest", "other-hash", now)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", found.PasswordHash)
	assert.Nil(t, found.ResetToken)
	assert.Nil(t, found.ResetTokenExpiry)
}

func TestClearResetToken(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "clear@example.com")
	now := time.Now()
	require.NoError(t, repo.SetResetToken(ctx, user.ID, "digest", now.Add(time.Hour), now))

	require.NoError(t, repo.ClearResetToken(ctx, user.ID, "digest"))

	_, err := repo.FindUserByResetToken(ctx, "digest")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
