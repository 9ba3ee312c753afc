// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Mail     MailQueueConfig
	Redis    RedisConfig
	Cooldown CooldownConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN             string        // postgres:// or postgresql:// selects PostgreSQL, anything else is a SQLite path
	JanitorInterval time.Duration // how often expired refresh tokens are purged, 0 disables
}

type TLSConfig struct {
	Mode     string // off, acme, manual
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

// AuthConfig is the immutable token and credential policy handed to every auth component.
type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	SecretKey            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	ResetTokenTTL        time.Duration
	MinPasswordLength    int
	BcryptCost           int
	AnonymousEmailDomain string

	// GeneratedSecret is set when no secret was configured and a random one was created.
	GeneratedSecret bool
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string // empty disables SMTP, mails are logged instead
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type MailQueueConfig struct {
	Workers int
	Buffer  int
}

type RedisConfig struct {
	URL string // empty disables the reset cooldown
}

type CooldownConfig struct {
	MaxResets   int
	ResetWindow time.Duration
}

// DefaultAuthConfig returns the auth policy used when nothing is configured.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenTTL:       7 * 24 * time.Hour,
		RefreshTokenTTL:      30 * 24 * time.Hour,
		ResetTokenTTL:        time.Hour,
		MinPasswordLength:    6,
		BcryptCost:           bcrypt.DefaultCost,
		AnonymousEmailDomain: "donow.local",
	}
}

func NewFromCLI(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN:             cmd.String("database-dsn"),
			JanitorInterval: cmd.Duration("janitor-interval"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Auth: AuthConfig{
			SecretKey:            cmd.String("secret-key"),
			AccessTokenTTL:       cmd.Duration("access-token-ttl"),
			RefreshTokenTTL:      cmd.Duration("refresh-token-ttl"),
			ResetTokenTTL:        cmd.Duration("reset-token-ttl"),
			MinPasswordLength:    int(cmd.Int("min-password-length")),
			BcryptCost:           int(cmd.Int("bcrypt-cost")),
			AnonymousEmailDomain: cmd.String("anonymous-email-domain"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Mail: MailQueueConfig{
			Workers: int(cmd.Int("mail-workers")),
			Buffer:  int(cmd.Int("mail-buffer")),
		},
		Redis: RedisConfig{
			URL: cmd.String("redis-url"),
		},
		Cooldown: CooldownConfig{
			MaxResets:   int(cmd.Int("reset-cooldown-max")),
			ResetWindow: cmd.Duration("reset-cooldown-window"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	if err := applyAuthDefaults(&cfg.Auth); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyAuthDefaults fills in a random signing secret when none is configured.
func applyAuthDefaults(auth *AuthConfig) error {
	if auth.SecretKey != "" {
		return nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating secret key: %w", err)
	}
	auth.SecretKey = hex.EncodeToString(buf)
	auth.GeneratedSecret = true
	return nil
}

// Validate rejects configurations the auth components cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("access-token-ttl must be positive"))
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("refresh-token-ttl must be positive"))
	}
	if c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("reset-token-ttl must be positive"))
	}
	if c.Auth.MinPasswordLength < 1 {
		errs = append(errs, errors.New("min-password-length must be at least 1"))
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt-cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp-from is required when smtp-host is set"))
	}
	if c.Mail.Workers < 1 {
		errs = append(errs, errors.New("mail-workers must be at least 1"))
	}

	return errors.Join(errs...)
}

// IsPostgres reports whether the DSN points at a PostgreSQL server.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(d.DSN, "postgres://") || strings.HasPrefix(d.DSN, "postgresql://")
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if mode == "acme" || mode == "manual" {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	defaults := DefaultAuthConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   5000,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in email links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/auth.db",
			Usage:   "SQLite path or postgres:// URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.DurationFlag{
			Name:    "janitor-interval",
			Value:   time.Hour,
			Usage:   "How often expired refresh tokens are purged (0 disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("JANITOR_INTERVAL"), toml.TOML("database.janitor_interval", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "off",
			Usage:   "TLS mode (off, acme, manual)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for ACME certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "HMAC secret for access tokens (random per process if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("auth.secret_key", configFile)),
		},
		&cli.DurationFlag{
			Name:    "access-token-ttl",
			Value:   defaults.AccessTokenTTL,
			Usage:   "Access token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("auth.access_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "refresh-token-ttl",
			Value:   defaults.RefreshTokenTTL,
			Usage:   "Refresh token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REFRESH_TOKEN_TTL"), toml.TOML("auth.refresh_token_ttl", configFile)),
		},
		&cli.DurationFlag{
			Name:    "reset-token-ttl",
			Value:   defaults.ResetTokenTTL,
			Usage:   "Password reset link lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_TOKEN_TTL"), toml.TOML("auth.reset_token_ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "min-password-length",
			Value:   6,
			Usage:   "Minimum password length on register and reset",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MIN_PASSWORD_LENGTH"), toml.TOML("auth.min_password_length", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost factor",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("auth.bcrypt_cost", configFile)),
		},
		&cli.StringFlag{
			Name:    "anonymous-email-domain",
			Value:   defaults.AnonymousEmailDomain,
			Usage:   "Domain used for synthetic anonymous account emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ANONYMOUS_EMAIL_DOMAIN"), toml.TOML("auth.anonymous_email_domain", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (mails are only logged if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@donow.local",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "DoNow",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Usage:   "Require TLS for SMTP (implicit TLS on port 465)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.IntFlag{
			Name:    "mail-workers",
			Value:   2,
			Usage:   "Number of background mail senders",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_WORKERS"), toml.TOML("mail.workers", configFile)),
		},
		&cli.IntFlag{
			Name:    "mail-buffer",
			Value:   100,
			Usage:   "Queued mails before new ones are dropped",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_BUFFER"), toml.TOML("mail.buffer", configFile)),
		},
		// Cooldown flags
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the password reset cooldown (disabled if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_URL"), toml.TOML("redis.url", configFile)),
		},
		&cli.IntFlag{
			Name:    "reset-cooldown-max",
			Value:   5,
			Usage:   "Reset emails allowed per address within the cooldown window",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_COOLDOWN_MAX"), toml.TOML("cooldown.max_resets", configFile)),
		},
		&cli.DurationFlag{
			Name:    "reset-cooldown-window",
			Value:   time.Hour,
			Usage:   "Cooldown window for reset emails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_COOLDOWN_WINDOW"), toml.TOML("cooldown.reset_window", configFile)),
		},
	}
}
