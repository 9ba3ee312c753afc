// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RefreshToken is a persisted, single-use refresh credential.
// Token holds the SHA-256 digest of the value handed to the client.
type RefreshToken struct { //nolint:govet // fieldalignment not critical for models
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether now lies after the token's expiry. A token is
// still valid at the exact expiry instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// TokenPair is the credential bundle returned by every sign-in and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // unix seconds of access token expiry
}
