// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token issues access/refresh token pairs and validates access tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/security"
)

// TypeBearer is the token_type of every issued pair.
const TypeBearer = "Bearer"

// Claims are the access token claims.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// RefreshStore persists refresh tokens.
type RefreshStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
}

// Issuer signs access tokens and mints refresh tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an issuer from the auth policy.
func NewIssuer(cfg config.AuthConfig) (*Issuer, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("token issuer requires a secret key")
	}
	return &Issuer{
		secret:     []byte(cfg.SecretKey),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

// Issue creates a new token pair for a user. The refresh token is persisted
// through store before the pair is returned.
func (i *Issuer) Issue(ctx context.Context, store RefreshStore, userID, email string) (models.TokenPair, error) {
	now := time.Now()

	access, expiresAt, err := i.signAccess(userID, email, now)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := security.RandomToken(security.RefreshTokenBytes)
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := store.CreateRefreshToken(ctx, &models.RefreshToken{
		UserID:    userID,
		Token:     security.HashToken(refresh),
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
	}); err != nil {
		return models.TokenPair{}, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TypeBearer,
		ExpiresIn:    expiresAt.Unix(),
	}, nil
}

func (i *Issuer) signAccess(userID, email string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.accessTTL)
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccess validates an access token and returns its claims.
// Expired tokens yield autherr.ErrExpiredToken, anything else unusable autherr.ErrInvalidToken.
func (i *Issuer) ParseAccess(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, autherr.ErrExpiredToken
	}
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, autherr.ErrInvalidToken
	}
	return claims, nil
}
