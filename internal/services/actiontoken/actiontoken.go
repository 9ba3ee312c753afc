// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package actiontoken manages the single-use email verification and password reset tokens.
package actiontoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/security"
	"github.com/jimuzhe/doNow/internal/services/password"
)

// Service issues and consumes action tokens. Only SHA-256 digests are stored.
type Service struct {
	repo     *repository.Repository
	hasher   *password.Hasher
	policy   password.Policy
	resetTTL time.Duration
}

// NewService creates an action token service.
func NewService(repo *repository.Repository, hasher *password.Hasher, policy password.Policy, resetTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		hasher:   hasher,
		policy:   policy,
		resetTTL: resetTTL,
	}
}

// NewVerificationToken returns a fresh verification token and the digest to store with the account.
func NewVerificationToken() (plain, hash string, err error) {
	plain, err = security.RandomToken(security.ActionTokenBytes)
	if err != nil {
		return "", "", err
	}
	return plain, security.HashToken(plain), nil
}

// ConsumeVerification marks the holder of token as verified and invalidates the token.
func (s *Service) ConsumeVerification(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, autherr.ErrInvalidToken
	}
	hash := security.HashToken(token)

	user, err := s.repo.FindUserByVerificationToken(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	now := time.Now().UTC()
	won, err := s.repo.MarkEmailVerified(ctx, user.ID, hash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to verify email: %w", err)
	}
	if !won {
		return nil, autherr.ErrInvalidToken
	}

	user.EmailVerified = true
	user.VerificationToken = nil
	user.UpdatedAt = now

	slog.Info("email_verified", "user_id", user.ID)
	return user, nil
}

// IssueReset stores a new reset token for user, replacing any pending one, and returns the plaintext.
func (s *Service) IssueReset(ctx context.Context, user *models.User) (string, error) {
	plain, err := security.RandomToken(security.ActionTokenBytes)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.resetTTL)
	hash := security.HashToken(plain)
	if err := s.repo.SetResetToken(ctx, user.ID, hash, expiresAt, now); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	user.ResetToken = &hash
	user.ResetTokenExpiry = &expiresAt
	return plain, nil
}

// ConsumeReset replaces the password of the token holder and invalidates the token.
// An expired token leaves the password untouched. A successful reset also
// revokes every refresh token of the user.
func (s *Service) ConsumeReset(ctx context.Context, token, newPassword string) (*models.User, error) {
	if token == "" {
		return nil, autherr.ErrInvalidToken
	}
	if err := s.policy.Check(newPassword); err != nil {
		return nil, err
	}
	hash := security.HashToken(token)

	var (
		user    *models.User
		outcome error
	)
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		user, err = tx.FindUserByResetToken(ctx, hash)
		if errors.Is(err, repository.ErrNotFound) {
			outcome = autherr.ErrInvalidToken
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		now := time.Now().UTC()
		if user.ResetExpired(now) {
			if err := tx.ClearResetToken(ctx, user.ID, hash); err != nil {
				return fmt.Errorf("failed to clear reset token: %w", err)
			}
			outcome = autherr.ErrExpiredToken
			return nil
		}

		passwordHash, err := s.hasher.Hash(newPassword)
		if err != nil {
			return err
		}

		won, err := tx.ResetPassword(ctx, user.ID, hash, passwordHash, now)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if !won {
			outcome = autherr.ErrInvalidToken
			return nil
		}

		if _, err := tx.DeleteUserRefreshTokens(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}

		user.PasswordHash = passwordHash
		user.ResetToken = nil
		user.ResetTokenExpiry = nil
		user.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		slog.Warn("password_reset_failed", "reason", outcome.Error())
		return nil, outcome
	}

	slog.Info("password_reset", "user_id", user.ID)
	return user, nil
}
