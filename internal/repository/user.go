// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
)

const userColumns = `id, email, password_hash, display_name, email_verified, verification_token,
	reset_token, reset_token_expiry, is_anonymous, created_at, updated_at`

type userRow struct { //nolint:govet // fieldalignment not critical for row structs
	ID                string         `db:"id"`
	Email             string         `db:"email"`
	PasswordHash      string         `db:"password_hash"`
	DisplayName       sql.NullString `db:"display_name"`
	EmailVerified     bool           `db:"email_verified"`
	VerificationToken sql.NullString `db:"verification_token"`
	ResetToken        sql.NullString `db:"reset_token"`
	ResetTokenExpiry  sql.NullInt64  `db:"reset_token_expiry"`
	IsAnonymous       bool           `db:"is_anonymous"`
	CreatedAt         int64          `db:"created_at"`
	UpdatedAt         int64          `db:"updated_at"`
}

func (row *userRow) toModel() *models.User {
	user := &models.User{
		ID:            row.ID,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		EmailVerified: row.EmailVerified,
		IsAnonymous:   row.IsAnonymous,
		CreatedAt:     fromMillis(row.CreatedAt),
		UpdatedAt:     fromMillis(row.UpdatedAt),
	}
	if row.DisplayName.Valid {
		user.DisplayName = &row.DisplayName.String
	}
	if row.VerificationToken.Valid {
		user.VerificationToken = &row.VerificationToken.String
	}
	if row.ResetToken.Valid {
		user.ResetToken = &row.ResetToken.String
	}
	if row.ResetTokenExpiry.Valid {
		expiry := fromMillis(row.ResetTokenExpiry.Int64)
		user.ResetTokenExpiry = &expiry
	}
	return user
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func (r *Repository) findUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var row userRow
	if err := r.get(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// FindUserByEmail retrieves a user by email, compared case-insensitively.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email = ?", NormalizeEmail(email))
}

// FindUserByID retrieves a user by ID.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

// FindUserByVerificationToken retrieves the user holding the given verification token digest.
func (r *Repository) FindUserByVerificationToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return r.findUser(ctx, "verification_token = ?", tokenHash)
}

// FindUserByResetToken retrieves the user holding the given reset token digest.
func (r *Repository) FindUserByResetToken(ctx context.Context, tokenHash string) (*models.User, error) {
	return r.findUser(ctx, "reset_token = ?", tokenHash)
}

// CreateUser inserts a new user. A missing ID or timestamp is filled in.
// Returns autherr.ErrDuplicateEmail when the email is taken.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = NormalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, nullString(user.DisplayName), user.EmailVerified,
		nullString(user.VerificationToken), nullString(user.ResetToken), nullMillis(user.ResetTokenExpiry),
		user.IsAnonymous, toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
	if isUniqueViolation(err) {
		return autherr.ErrDuplicateEmail
	}
	return err
}

// UpdateUser writes every mutable column of the user and bumps UpdatedAt.
func (r *Repository) UpdateUser(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	user.UpdatedAt = time.Now().UTC()

	n, err := r.exec(ctx,
		`UPDATE users SET email = ?, password_hash = ?, display_name = ?, email_verified = ?,
			verification_token = ?, reset_token = ?, reset_token_expiry = ?, is_anonymous = ?, updated_at = ?
		WHERE id = ?`,
		user.Email, user.PasswordHash, nullString(user.DisplayName), user.EmailVerified,
		nullString(user.VerificationToken), nullString(user.ResetToken), nullMillis(user.ResetTokenExpiry),
		user.IsAnonymous, toMillis(user.UpdatedAt), user.ID)
	if isUniqueViolation(err) {
		return autherr.ErrDuplicateEmail
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser deletes a user by ID. Refresh tokens go with it via ON DELETE CASCADE.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	n, err := r.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified sets the verified flag and clears the verification token,
// but only while the user still holds tokenHash. Reports whether this call won.
func (r *Repository) MarkEmailVerified(ctx context.Context, userID, tokenHash string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE users SET email_verified = ?, verification_token = NULL, updated_at = ?
		WHERE id = ? AND verification_token = ?`,
		true, toMillis(now), userID, tokenHash)
	return n == 1, err
}

// SetResetToken stores a reset token digest and its expiry, replacing any pending one.
func (r *Repository) SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt, now time.Time) error {
	n, err := r.exec(ctx,
		`UPDATE users SET reset_token = ?, reset_token_expiry = ?, updated_at = ? WHERE id = ?`,
		tokenHash, toMillis(expiresAt), toMillis(now), userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPassword replaces the password hash and clears the reset token, but
// only while the user still holds tokenHash. Reports whether this call won.
func (r *Repository) ResetPassword(ctx context.Context, userID, tokenHash, passwordHash string, now time.Time) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE users SET password_hash = ?, reset_token = NULL, reset_token_expiry = NULL, updated_at = ?
		WHERE id = ? AND reset_token = ?`,
		passwordHash, toMillis(now), userID, tokenHash)
	return n == 1, err
}

// ClearResetToken drops a reset token digest if the user still holds it.
func (r *Repository) ClearResetToken(ctx context.Context, userID, tokenHash string) error {
	_, err := r.exec(ctx,
		`UPDATE users SET reset_token = NULL, reset_token_expiry = NULL WHERE id = ? AND reset_token = ?`,
		userID, tokenHash)
	return err
}
