// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/lmittmann/tint"
)

const redacted = "[redacted]"

// sensitiveKeys are attribute keys whose values never reach the log.
var sensitiveKeys = map[string]bool{
	"password":         true,
	"confirm_password": true,
	"password_hash":    true,
	"secret_key":       true,
	"token":            true,
}

// linkTokenPattern matches the signed token in verification and reset links.
// Anyone holding it can confirm an address or set a password.
var linkTokenPattern = regexp.MustCompile(`(/(?:verify-email|reset-password)/)[^/?#\s]+`)

// setupLogger configures the global slog logger.
func setupLogger(level, format string) {
	slog.SetDefault(newLogger(os.Stdout, level, format))
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	logLevel := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel, ReplaceAttr: redactAttr})
	} else {
		handler = tint.NewHandler(w, &tint.Options{Level: logLevel, ReplaceAttr: redactAttr})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[a.Key] {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); linkTokenPattern.MatchString(s) {
			return slog.String(a.Key, redactLinkTokens(s))
		}
	}
	return a
}

// redactLinkTokens replaces link tokens in s, keeping the route visible.
func redactLinkTokens(s string) string {
	return linkTokenPattern.ReplaceAllString(s, "${1}"+redacted)
}
