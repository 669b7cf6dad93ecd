// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"codeberg.org/oliverandrich/go-authflow/internal/database"
	"codeberg.org/oliverandrich/go-authflow/internal/handlers"
	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/metrics"
	"codeberg.org/oliverandrich/go-authflow/internal/repository"
	"codeberg.org/oliverandrich/go-authflow/internal/services/account"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/email"
	"codeberg.org/oliverandrich/go-authflow/internal/services/session"
	"codeberg.org/oliverandrich/go-authflow/internal/services/throttle"
	"codeberg.org/oliverandrich/go-authflow/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

const redisPingTimeout = 3 * time.Second

// App holds the wired services of a running instance.
type App struct {
	Config      *config.Config
	Repo        *repository.Repository
	Credentials *auth.Service
	Accounts    *account.Service
	Sessions    *session.Manager
	Metrics     *metrics.Metrics
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.OpenWithFallback(cfg.Database.DSN, cfg.Database.FallbackDSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	// Throttle store
	store, closeStore := newThrottleStore(ctx, &cfg.Throttle)
	defer closeStore()

	app, err := NewApp(cfg, db, store, email.NewSender(cfg))
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(NewEcho(app), cfg)
}

// NewApp wires the services for cfg on top of db.
func NewApp(cfg *config.Config, db *sqlx.DB, store throttle.Store, mailer email.Sender) (*App, error) {
	validator, err := auth.PolicyByName(cfg.Auth.PasswordPolicy)
	if err != nil {
		return nil, err
	}

	secret := cfg.Auth.SecretKey
	if secret == "" {
		slog.Warn("no secret key configured, generating a temporary one; outstanding links break on restart")
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
	}
	issuer, err := token.NewIssuer(secret)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(&cfg.Session, strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	var throttleOpts []throttle.Option
	if cfg.Throttle.Threshold > 0 {
		throttleOpts = append(throttleOpts, throttle.WithThreshold(cfg.Throttle.Threshold))
	}
	if cfg.Throttle.Lockout > 0 {
		throttleOpts = append(throttleOpts, throttle.WithLockout(cfg.Throttle.Lockout))
	}

	repo := repository.New(db)
	m := metrics.New()
	credentials := auth.NewService(repo, validator)
	accounts := account.NewService(account.Deps{
		Credentials: credentials,
		Tokens:      issuer,
		Throttle:    throttle.New(store, throttleOpts...),
		Mailer:      mailer,
		Composer:    email.NewComposer(cfg.Server.BaseURL),
		Metrics:     m,
	}, account.Options{
		VerifyMaxAge:       cfg.Auth.VerifyMaxAge,
		ResetMaxAge:        cfg.Auth.ResetMaxAge,
		RevealUnknownEmail: cfg.Auth.RevealUnknownEmail,
	})

	return &App{
		Config:      cfg,
		Repo:        repo,
		Credentials: credentials,
		Accounts:    accounts,
		Sessions:    sessions,
		Metrics:     m,
	}, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// newThrottleStore returns the configured failure store. An unreachable
// redis falls back to process memory so logins keep working.
func newThrottleStore(ctx context.Context, cfg *config.ThrottleConfig) (throttle.Store, func()) {
	if cfg.Store != "redis" {
		return throttle.NewMemoryStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unavailable, throttling per process", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return throttle.NewMemoryStore(), func() {}
	}

	slog.Info("throttle store: redis", "addr", cfg.RedisAddr)
	return throttle.NewRedisStore(client), func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close redis client", "error", err)
		}
	}
}

// NewEcho builds the HTTP handler for app.
func NewEcho(app *App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	setupMiddleware(e, app)
	setupRoutes(e, app)

	return e
}

func setupRoutes(e *echo.Echo, app *App) {
	h := handlers.New(app.Repo, app.Accounts, app.Sessions, app.Credentials.PasswordValidator())

	guest := []echo.MiddlewareFunc{NoCache(), RedirectIfAuthenticated("/dashboard")}
	private := []echo.MiddlewareFunc{NoCache(), RequireAuth(app.Sessions)}

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(app.Metrics.Handler()))
	e.GET("/", h.Home)

	// Registration and verification
	e.GET("/register", h.RegisterPage, guest...)
	e.POST("/register", h.Register, guest...)
	e.GET("/verify-email/:token", h.VerifyEmail, NoCache())
	e.POST("/verify-email/resend", h.ResendVerification, NoCache())

	// Sessions
	e.GET("/login", h.LoginPage, guest...)
	e.POST("/login", h.Login, guest...)
	e.POST("/logout", h.Logout, NoCache())

	// Member pages
	e.GET("/dashboard", h.Dashboard, private...)
	e.GET("/profile", h.Profile, private...)
	e.GET("/projects", h.Projects, private...)
	e.GET("/contact", h.Contact, private...)
	e.GET("/skills", h.Skills, private...)

	// Password reset
	e.GET("/forgot-password", h.ForgotPasswordPage, guest...)
	e.POST("/forgot-password", h.ForgotPassword, guest...)
	e.GET("/reset-password/:token", h.ResetPasswordPage, NoCache())
	e.POST("/reset-password/:token", h.ResetPassword, NoCache())
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
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
