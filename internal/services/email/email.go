// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/jimuzhe/doNow/internal/i18n"
	"github.com/jimuzhe/doNow/internal/templates"
)

// Queue accepts messages for background delivery.
type Queue interface {
	Enqueue(msg Message) bool
}

// Service renders the account emails and queues them. Rendering happens in
// the request context so the mail uses the caller's language.
type Service struct {
	queue    Queue
	baseURL  string
	resetTTL time.Duration
}

// NewService creates a new email service.
func NewService(queue Queue, baseURL string, resetTTL time.Duration) *Service {
	return &Service{
		queue:    queue,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		resetTTL: resetTTL,
	}
}

// VerificationURL returns the link a verification mail points to.
func (s *Service) VerificationURL(token string) string {
	return s.baseURL + "/verify?token=" + url.QueryEscape(token)
}

// ResetURL returns the link a password reset mail points to.
func (s *Service) ResetURL(token string) string {
	return s.baseURL + "/reset-password-page?token=" + url.QueryEscape(token)
}

// SendVerification queues a verification email with the given token.
func (s *Service) SendVerification(ctx context.Context, toEmail, token string) {
	s.render(ctx, toEmail, "email_verification_subject", templates.EmailVerify(s.VerificationURL(token)))
}

// SendPasswordReset queues a password reset email with the given token.
func (s *Service) SendPasswordReset(ctx context.Context, toEmail, token string) {
	minutes := int(s.resetTTL / time.Minute)
	s.render(ctx, toEmail, "email_reset_subject", templates.EmailReset(s.ResetURL(token), minutes))
}

func (s *Service) render(ctx context.Context, to, subjectID string, component templ.Component) {
	buf := templ.GetBuffer()
	defer templ.ReleaseBuffer(buf)

	if err := component.Render(ctx, buf); err != nil {
		slog.ErrorContext(ctx, "email_render_failed", "subject", subjectID, "error", err)
		return
	}

	s.queue.Enqueue(Message{
		To:      to,
		Subject: i18n.T(ctx, subjectID),
		HTML:    buf.String(),
	})
}
