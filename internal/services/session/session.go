// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session rotates refresh tokens into new token pairs.
package session

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
	"github.com/jimuzhe/doNow/internal/services/token"
)

// Engine exchanges a refresh token for a fresh pair. Each refresh token
// value can be rotated at most once.
type Engine struct {
	repo   *repository.Repository
	issuer *token.Issuer
}

// NewEngine creates a rotation engine.
func NewEngine(repo *repository.Repository, issuer *token.Issuer) *Engine {
	return &Engine{repo: repo, issuer: issuer}
}

// Rotate consumes refreshToken and issues a new pair for its owner.
// The lookup, the consumption and the new issuance share one transaction.
func (e *Engine) Rotate(ctx context.Context, refreshToken string) (*models.User, models.TokenPair, error) {
	hash := security.HashToken(refreshToken)

	var (
		user    *models.User
		pair    models.TokenPair
		outcome error
	)

	err := e.repo.WithTx(ctx, func(tx *repository.Repository) error {
		stored, err := tx.GetRefreshToken(ctx, hash)
		if errors.Is(err, repository.ErrNotFound) {
			outcome = autherr.ErrInvalidRefreshToken
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get refresh token: %w", err)
		}

		if stored.Expired(time.Now()) {
			// The delete must commit, so the outcome is reported outside the tx.
			if _, err := tx.ConsumeRefreshToken(ctx, hash); err != nil {
				return fmt.Errorf("failed to delete expired refresh token: %w", err)
			}
			outcome = autherr.ErrExpiredRefreshToken
			return nil
		}

		consumed, err := tx.ConsumeRefreshToken(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to consume refresh token: %w", err)
		}
		if !consumed {
			outcome = autherr.ErrInvalidRefreshToken
			return nil
		}

		user, err = tx.FindUserByID(ctx, stored.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			// Orphaned token: keep the consume, report the missing owner.
			outcome = autherr.ErrUserNotFound
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		pair, err = e.issuer.Issue(ctx, tx, user.ID, user.Email)
		return err
	})
	if err != nil {
		return nil, models.TokenPair{}, err
	}
	if outcome != nil {
		slog.Warn("refresh_failed", "reason", outcome.Error())
		return nil, models.TokenPair{}, outcome
	}

	slog.Info("refresh_rotated", "user_id", user.ID)
	return user, pair, nil
}

// PurgeExpired deletes every expired refresh token and returns how many were removed.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := e.repo.DeleteExpiredRefreshTokens(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	return n, nil
}

// RunJanitor purges expired refresh tokens every interval until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.PurgeExpired(ctx)
			if err != nil {
				slog.Error("refresh_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("refresh_purged", "count", n)
			}
		}
	}
}
