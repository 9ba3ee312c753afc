// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth orchestrates the account flows on top of the credential store,
// the password hasher, the token issuer and the action tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/jimuzhe/doNow/internal/autherr"
	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/models"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/security"
	"github.com/jimuzhe/doNow/internal/services/actiontoken"
	"github.com/jimuzhe/doNow/internal/services/password"
	"github.com/jimuzhe/doNow/internal/services/ratelimit"
	"github.com/jimuzhe/doNow/internal/services/session"
	"github.com/jimuzhe/doNow/internal/services/token"
)

// ForgotPasswordMessage is returned by ForgotPassword whether or not the account exists.
const ForgotPasswordMessage = "If the email exists, a reset link will be sent"

// Notifier delivers account emails. Calls return immediately and never fail
// from the caller's point of view.
type Notifier interface {
	SendVerification(ctx context.Context, toEmail, token string)
	SendPasswordReset(ctx context.Context, toEmail, token string)
}

// Result is what every sign-in style flow returns.
type Result struct {
	User   *models.User
	Tokens models.TokenPair
}

type Service struct {
	repo     *repository.Repository
	config   config.AuthConfig
	hasher   *password.Hasher
	policy   password.Policy
	issuer   *token.Issuer
	sessions *session.Engine
	actions  *actiontoken.Service
	notifier Notifier
	limiter  ratelimit.Limiter
}

// NewService wires the auth components from the auth policy. A nil limiter disables the reset cooldown.
func NewService(repo *repository.Repository, cfg config.AuthConfig, notifier Notifier, limiter ratelimit.Limiter) (*Service, error) {
	hasher, err := password.NewHasher(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewIssuer(cfg)
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}

	policy := password.Policy{MinLength: cfg.MinPasswordLength}
	return &Service{
		repo:     repo,
		config:   cfg,
		hasher:   hasher,
		policy:   policy,
		issuer:   issuer,
		sessions: session.NewEngine(repo, issuer),
		actions:  actiontoken.NewService(repo, hasher, policy, cfg.ResetTokenTTL),
		notifier: notifier,
		limiter:  limiter,
	}, nil
}

// Sessions exposes the rotation engine, e.g. for the expiry janitor.
func (s *Service) Sessions() *session.Engine {
	return s.sessions
}

// MinPasswordLength is the configured minimum password length.
func (s *Service) MinPasswordLength() int {
	return s.config.MinPasswordLength
}

// RegisterParams holds the parameters for user registration
type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
}

// Register creates a new, unverified account, sends the verification mail and signs the user in.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*Result, error) {
	email := repository.NormalizeEmail(params.Email)
	if email == "" || params.Password == "" {
		return nil, autherr.ErrInvalidInput
	}
	if err := s.policy.Check(params.Password); err != nil {
		return nil, err
	}
	if !validEmail(email) {
		return nil, autherr.ErrInvalidEmail
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}
	verifyToken, verifyHash, err := actiontoken.NewVerificationToken()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:             email,
		PasswordHash:      passwordHash,
		VerificationToken: &verifyHash,
	}
	if name := strings.TrimSpace(params.DisplayName); name != "" {
		user.DisplayName = &name
	}

	var tokens models.TokenPair
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		tokens, err = s.issuer.Issue(ctx, tx, user.ID, user.Email)
		return err
	})
	if errors.Is(err, autherr.ErrDuplicateEmail) {
		slog.Warn("register_failed", "email", email, "reason", "duplicate_email")
		return nil, autherr.ErrDuplicateEmail
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.notifier.SendVerification(ctx, user.Email, verifyToken)

	slog.Info("register_success", "user_id", user.ID, "email", user.Email)
	return &Result{User: user, Tokens: tokens}, nil
}

// Login authenticates a user by email and password.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, plain string) (*Result, error) {
	email = repository.NormalizeEmail(email)
	if email == "" || plain == "" {
		return nil, autherr.ErrInvalidInput
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			s.hasher.VerifyDummy(plain)
			slog.Warn("login_failed", "email", email, "reason", "user_not_found")
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.hasher.Verify(plain, user.PasswordHash) {
		slog.Warn("login_failed", "email", email, "reason", "invalid_password")
		return nil, autherr.ErrInvalidCredentials
	}

	tokens, err := s.issuer.Issue(ctx, s.repo, user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("login_success", "user_id", user.ID, "email", user.Email)
	return &Result{User: user, Tokens: tokens}, nil
}

// Anonymous creates a pre-verified anonymous account and signs it in.
// Its password hash is of a random secret nobody knows.
func (s *Service) Anonymous(ctx context.Context) (*Result, error) {
	secret, err := security.RandomToken(security.ActionTokenBytes)
	if err != nil {
		return nil, err
	}
	passwordHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	user := &models.User{
		ID:            id,
		Email:         fmt.Sprintf("anonymous_%s@%s", strings.ReplaceAll(id, "-", ""), s.config.AnonymousEmailDomain),
		PasswordHash:  passwordHash,
		EmailVerified: true,
		IsAnonymous:   true,
	}

	var tokens models.TokenPair
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		tokens, err = s.issuer.Issue(ctx, tx, user.ID, user.Email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous user: %w", err)
	}

	slog.Info("anonymous_created", "user_id", user.ID)
	return &Result{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	if refreshToken == "" {
		return nil, autherr.ErrInvalidInput
	}
	user, tokens, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &Result{User: user, Tokens: tokens}, nil
}

// ForgotPassword sends a reset link if the account exists. The outcome is
// never reported so callers cannot probe for accounts; only infrastructure
// failures surface as errors.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		slog.Info("password_reset_requested", "email", email, "sent", false)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsAnonymous {
		return nil
	}

	if err := s.limiter.Allow(ctx, email); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			slog.Warn("password_reset_throttled", "user_id", user.ID)
			return nil
		}
		// the cooldown is best effort, a Redis outage must not block resets
		slog.Error("password_reset_cooldown_failed", "error", err)
	}

	resetToken, err := s.actions.IssueReset(ctx, user)
	if err != nil {
		return err
	}
	s.notifier.SendPasswordReset(ctx, user.Email, resetToken)

	slog.Info("password_reset_requested", "email", email, "sent", true)
	return nil
}

// ResetPassword sets a new password for the holder of a reset token.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	_, err := s.actions.ConsumeReset(ctx, resetToken, newPassword)
	return err
}

// VerifyEmail consumes a verification token.
func (s *Service) VerifyEmail(ctx context.Context, verifyToken string) (*models.User, error) {
	return s.actions.ConsumeVerification(ctx, verifyToken)
}

// Logout revokes the given refresh token if it belongs to the caller.
// Without a token it is a no-op; access tokens expire on their own.
func (s *Service) Logout(ctx context.Context, p models.Principal, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	revoked, err := s.repo.DeleteRefreshTokenForUser(ctx, p.UserID, security.HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	slog.Info("logout", "user_id", p.UserID, "revoked", revoked)
	return nil
}

// DeleteAccount removes the caller's refresh tokens and then the account itself.
func (s *Service) DeleteAccount(ctx context.Context, p models.Principal) error {
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if _, err := tx.DeleteUserRefreshTokens(ctx, p.UserID); err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, p.UserID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	slog.Info("account_deleted", "user_id", p.UserID)
	return nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, p models.Principal) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Authenticate validates an Authorization header value of the form "Bearer <token>".
func (s *Service) Authenticate(header string) (models.Principal, error) {
	scheme, raw, ok := strings.Cut(strings.TrimSpace(header), " ")
	raw = strings.TrimSpace(raw)
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return models.Principal{}, autherr.ErrMissingAuth
	}

	claims, err := s.issuer.ParseAccess(raw)
	if err != nil {
		return models.Principal{}, err
	}
	return models.Principal{UserID: claims.UserID, Email: claims.Email}, nil
}

// validEmail accepts a bare address with a dotted domain.
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}
