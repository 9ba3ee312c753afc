// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jimuzhe/doNow/internal/models"
)

type refreshTokenRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	Token     string `db:"token"`
	ExpiresAt int64  `db:"expires_at"`
	CreatedAt int64  `db:"created_at"`
}

// CreateRefreshToken persists a refresh token digest. A missing ID or CreatedAt is filled in.
func (r *Repository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	_, err := r.exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.UserID, token.Token, toMillis(token.ExpiresAt), toMillis(token.CreatedAt))
	return err
}

// GetRefreshToken retrieves a refresh token by digest.
func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var row refreshTokenRow
	if err := r.get(ctx, &row,
		`SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens WHERE token = ?`, tokenHash); err != nil {
		return nil, err
	}
	return &models.RefreshToken{
		ID:        row.ID,
		UserID:    row.UserID,
		Token:     row.Token,
		ExpiresAt: fromMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}, nil
}

// ConsumeRefreshToken deletes a refresh token by digest and reports whether
// this call removed it. Of two concurrent callers at most one gets true.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, tokenHash)
	return n == 1, err
}

// DeleteRefreshTokenForUser deletes a refresh token only if it belongs to userID.
func (r *Repository) DeleteRefreshTokenForUser(ctx context.Context, userID, tokenHash string) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM refresh_tokens WHERE token = ? AND user_id = ?`, tokenHash, userID)
	return n == 1, err
}

// DeleteUserRefreshTokens deletes all refresh tokens of a user.
func (r *Repository) DeleteUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
}

// DeleteExpiredRefreshTokens deletes every refresh token whose expiry lies before now.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(now))
}
