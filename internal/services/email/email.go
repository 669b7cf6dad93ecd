// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers outbound messages. Delivery problems are logged and
// reported as false, never returned as errors.
package email

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
)

// SendTimeout bounds a single delivery attempt.
const SendTimeout = 10 * time.Second

// Transport names accepted by NewSender.
const (
	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"
	TransportLog      = "log"
)

// Sender delivers a plain-text message and reports whether it was accepted.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) bool
}

// NewSender builds the sender selected by cfg.Email.Transport. Unknown
// transports fall back to logging.
func NewSender(cfg *config.Config) Sender {
	switch strings.ToLower(cfg.Email.Transport) {
	case TransportSMTP:
		return NewSMTPSender(&cfg.SMTP, cfg.Email)
	case TransportSendGrid:
		return NewSendGridSender(cfg.SendGrid, cfg.Email)
	case TransportLog, "":
		return NewLogSender()
	default:
		slog.Warn("unknown email transport, logging messages instead", "transport", cfg.Email.Transport)
		return NewLogSender()
	}
}

// LogSender writes messages to the log. Links in the body stay reachable for
// operators when no mail transport is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender logs through the default slog logger.
func NewLogSender() *LogSender {
	return &LogSender{logger: slog.Default()}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) bool {
	s.logger.InfoContext(ctx, "email_logged", "to", to, "subject", subject, "body", body)
	return true
}
