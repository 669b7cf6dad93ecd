// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Session  SessionConfig
	Auth     AuthConfig
	Throttle ThrottleConfig
	Email    EmailConfig
	SMTP     SMTPConfig
	SendGrid SendGridConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
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
	DSN         string
	FallbackDSN string // local SQLite used when DSN cannot be opened at startup
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical
	SecretKey          string        // signs verification and reset tokens
	PasswordPolicy     string        // loose, default, strict
	VerifyMaxAge       time.Duration // lifetime of email-confirm tokens
	ResetMaxAge        time.Duration // lifetime of password-reset tokens
	RevealUnknownEmail bool          // forgot-password reports unknown addresses
}

type ThrottleConfig struct { //nolint:govet // fieldalignment not critical
	Store     string // memory, redis
	RedisAddr string
	Threshold int
	Lockout   time.Duration
}

type EmailConfig struct {
	Transport string // smtp, sendgrid, log
	From      string
	FromName  string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
}

type SendGridConfig struct {
	APIKey string
}

func NewFromCLI(cmd *cli.Command) *Config {
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
			DSN:         cmd.String("database-dsn"),
			FallbackDSN: cmd.String("database-fallback-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		Auth: AuthConfig{
			SecretKey:          cmd.String("secret-key"),
			PasswordPolicy:     cmd.String("password-policy"),
			VerifyMaxAge:       cmd.Duration("verify-max-age"),
			ResetMaxAge:        cmd.Duration("reset-max-age"),
			RevealUnknownEmail: cmd.Bool("reveal-unknown-email"),
		},
		Throttle: ThrottleConfig{
			Store:     cmd.String("throttle-store"),
			RedisAddr: cmd.String("redis-addr"),
			Threshold: int(cmd.Int("throttle-threshold")),
			Lockout:   cmd.Duration("throttle-lockout"),
		},
		Email: EmailConfig{
			Transport: cmd.String("email-transport"),
			From:      cmd.String("email-from"),
			FromName:  cmd.String("email-from-name"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		SendGrid: SendGridConfig{
			APIKey: cmd.String("sendgrid-api-key"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
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

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
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
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application, used in emailed links",
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
			Value:   "./data/app.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_URL"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-fallback-dsn",
			Value:   "./data/fallback.db",
			Usage:   "Local SQLite DSN used when the primary database is unreachable (empty disables)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_FALLBACK_DSN"), toml.TOML("database.fallback_dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for ACME certificate cache",
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
		// Session flags
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
	}

	flags = append(flags, authFlags()...)
	flags = append(flags, throttleFlags()...)
	return append(flags, emailFlags()...)
}

func authFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Secret used to sign verification and reset tokens",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("auth.secret_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "password-policy",
			Value:   "default",
			Usage:   "Password policy (loose, default, strict)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PASSWORD_POLICY"), toml.TOML("auth.password_policy", configFile)),
		},
		&cli.DurationFlag{
			Name:    "verify-max-age",
			Value:   time.Hour,
			Usage:   "Lifetime of email verification links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("VERIFY_MAX_AGE"), toml.TOML("auth.verify_max_age", configFile)),
		},
		&cli.DurationFlag{
			Name:    "reset-max-age",
			Value:   time.Hour,
			Usage:   "Lifetime of password reset links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("RESET_MAX_AGE"), toml.TOML("auth.reset_max_age", configFile)),
		},
		&cli.BoolFlag{
			Name:    "reveal-unknown-email",
			Usage:   "Tell forgot-password users when no account matches the address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REVEAL_UNKNOWN_EMAIL"), toml.TOML("auth.reveal_unknown_email", configFile)),
		},
	}
}

func throttleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "throttle-store",
			Value:   "memory",
			Usage:   "Login throttle store (memory, redis)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THROTTLE_STORE"), toml.TOML("throttle.store", configFile)),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			Usage:   "Redis address for the shared throttle store",
			Sources: cli.NewValueSourceChain(cli.EnvVar("REDIS_ADDR"), toml.TOML("throttle.redis_addr", configFile)),
		},
		&cli.IntFlag{
			Name:    "throttle-threshold",
			Value:   5,
			Usage:   "Failed logins before an identifier is locked",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THROTTLE_THRESHOLD"), toml.TOML("throttle.threshold", configFile)),
		},
		&cli.DurationFlag{
			Name:    "throttle-lockout",
			Value:   15 * time.Minute,
			Usage:   "Lockout duration after too many failed logins",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THROTTLE_LOCKOUT"), toml.TOML("throttle.lockout", configFile)),
		},
	}
}

func emailFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "email-transport",
			Value:   "log",
			Usage:   "Outbound email transport (smtp, sendgrid, log)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("EMAIL_TRANSPORT"), toml.TOML("email.transport", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-from",
			Usage:   "Sender address for outbound email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FROM_EMAIL"), toml.TOML("email.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "email-from-name",
			Usage:   "Sender display name for outbound email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FROM_NAME"), toml.TOML("email.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
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
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP (implicit TLS on port 465)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "sendgrid-api-key",
			Usage:   "SendGrid API key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SENDGRID_API_KEY"), toml.TOML("sendgrid.api_key", configFile)),
		},
	}
}
