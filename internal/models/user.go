// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
)

// User is a registered or anonymous account.
// VerificationToken and ResetToken hold SHA-256 digests, never the plaintext sent by mail.
type User struct { //nolint:govet // fieldalignment not critical for models
	ID                string
	Email             string
	PasswordHash      string
	DisplayName       *string
	EmailVerified     bool
	VerificationToken *string
	ResetToken        *string
	ResetTokenExpiry  *time.Time
	IsAnonymous       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserView is the public JSON shape of a user.
type UserView struct { //nolint:govet // fieldalignment not critical for models
	UID           string     `json:"uid"`
	Email         string     `json:"email"`
	DisplayName   *string    `json:"displayName"`
	EmailVerified bool       `json:"emailVerified"`
	IsAnonymous   bool       `json:"isAnonymous"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`
}

// View returns the public representation without the creation time.
func (u *User) View() UserView {
	return UserView{
		UID:           u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerified,
		IsAnonymous:   u.IsAnonymous,
	}
}

// ProfileView is View plus the creation time, as returned by the profile endpoint.
func (u *User) ProfileView() UserView {
	v := u.View()
	created := u.CreatedAt.UTC()
	v.CreatedAt = &created
	return v
}

// ResetExpired reports whether the pending reset token is past its expiry at now.
// A token without an expiry counts as expired.
func (u *User) ResetExpired(now time.Time) bool {
	return u.ResetTokenExpiry == nil || now.After(*u.ResetTokenExpiry)
}

// Principal identifies the caller of an authenticated operation.
type Principal struct {
	UserID string
	Email  string
}
