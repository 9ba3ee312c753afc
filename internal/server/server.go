// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jimuzhe/doNow/internal/config"
	"github.com/jimuzhe/doNow/internal/database"
	"github.com/jimuzhe/doNow/internal/handlers"
	"github.com/jimuzhe/doNow/internal/i18n"
	authmw "github.com/jimuzhe/doNow/internal/middleware"
	"github.com/jimuzhe/doNow/internal/repository"
	"github.com/jimuzhe/doNow/internal/services/auth"
	"github.com/jimuzhe/doNow/internal/services/email"
	"github.com/jimuzhe/doNow/internal/services/ratelimit"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// shutdownTimeout bounds draining requests and queued mail on exit.
const shutdownTimeout = 10 * time.Second

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.NewFromCLI(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)
	if cfg.Auth.GeneratedSecret {
		slog.Warn("no secret key configured, using a random one; issued tokens will not survive a restart")
	}

	// Database (migrations run on open)
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	app, err := newApp(ctx, cfg, repository.New(db))
	if err != nil {
		return err
	}
	defer app.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Database.JanitorInterval > 0 {
		go app.auth.Sessions().RunJanitor(runCtx, cfg.Database.JanitorInterval)
	}

	return startWithGracefulShutdown(runCtx, app.echo, cfg)
}

// app holds the long-lived components behind the HTTP server.
type app struct {
	echo       *echo.Echo
	auth       *auth.Service
	dispatcher *email.Dispatcher
	redis      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, repo *repository.Repository) (*app, error) {
	sender, err := email.NewSender(&cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mail: %w", err)
	}
	if cfg.SMTP.Host == "" {
		slog.Warn("no SMTP host configured, emails are written to the log")
	}
	dispatcher := email.NewDispatcher(sender, cfg.Mail.Workers, cfg.Mail.Buffer)
	dispatcher.Start()

	a := &app{dispatcher: dispatcher}

	var limiter ratelimit.Limiter
	if cfg.Redis.URL != "" {
		client, dialErr := ratelimit.Dial(ctx, cfg.Redis.URL)
		if dialErr != nil {
			slog.Warn("reset cooldown disabled", "error", dialErr)
		} else {
			a.redis = client
			limiter = ratelimit.NewRedis(client, "donow:reset:", cfg.Cooldown.MaxResets, cfg.Cooldown.ResetWindow)
		}
	}

	notifier := email.NewService(dispatcher, cfg.Server.BaseURL, cfg.Auth.ResetTokenTTL)
	a.auth, err = auth.NewService(repo, cfg.Auth, notifier, limiter)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to configure auth: %w", err)
	}

	a.echo = newEcho(cfg, a.auth, repo)
	return a, nil
}

// close drains the mail queue and releases Redis.
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.dispatcher.Close(ctx); err != nil {
		slog.Error("mail queue not drained", "error", err)
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// newEcho builds the router with middleware and routes.
func newEcho(cfg *config.Config, svc *auth.Service, repo *repository.Repository) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, svc, repo)
	return e
}

func setupRoutes(e *echo.Echo, cfg *config.Config, svc *auth.Service, repo *repository.Repository) {
	h := handlers.New(svc, repo)
	requireAuth := authmw.RequireAuth(svc)

	e.GET("/api/health", h.Health)

	api := e.Group("/api/auth")
	api.POST("/register", h.Register)
	api.POST("/login", h.Login)
	api.POST("/anonymous", h.Anonymous)
	api.POST("/refresh", h.Refresh)
	api.POST("/forgot-password", h.ForgotPassword)
	api.GET("/me", h.Me, requireAuth)
	api.POST("/logout", h.Logout, requireAuth)
	api.DELETE("/delete-account", h.DeleteAccount, requireAuth)

	// Browser landing pages from the emails
	e.GET("/verify", h.VerifyPage)
	forms := []echo.MiddlewareFunc{csrfMiddleware(cfg), csrfToContext()}
	e.GET("/reset-password-page", h.ResetPage, forms...)
	e.POST("/reset-password-page", h.ResetSubmit, forms...)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	serve := func(listen func() error) {
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	var redirect *http.Server

	slog.Info("server running", "url", cfg.Server.BaseURL, "tls", tlsResult.Mode)
	switch tlsResult.Mode {
	case TLSModeOff:
		go serve(func() error { return e.Start(addr) })
	case TLSModeManual:
		go serve(func() error { return startTLSServer(e, addr, tlsResult.TLSConfig) })
	case TLSModeACME:
		// ACME always terminates on 443 and answers challenges on 80
		go serve(func() error { return startTLSServer(e, ":443", tlsResult.TLSConfig) })
		redirect = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go serve(redirect.ListenAndServe)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutting down server", "reason", ctx.Err())
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if redirect != nil {
		if err := redirect.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
