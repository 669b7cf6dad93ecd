// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"github.com/wneessen/go-mail"
)

// SMTPSender delivers through an SMTP relay using go-mail.
type SMTPSender struct {
	cfg  *config.SMTPConfig
	from config.EmailConfig
}

// NewSMTPSender creates an SMTP sender. Missing settings are reported at send time.
func NewSMTPSender(cfg *config.SMTPConfig, from config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, from: from}
}

// Configured reports whether host and sender address are set.
func (s *SMTPSender) Configured() bool {
	return s.cfg.Host != "" && s.from.From != ""
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) bool {
	if !s.Configured() {
		slog.WarnContext(ctx, "email_skipped", "transport", TransportSMTP, "reason", "missing SMTP host or from address", "to", to)
		return false
	}

	msg, err := s.message(to, subject, body)
	if err != nil {
		slog.ErrorContext(ctx, "email_send_failed", "transport", TransportSMTP, "to", to, "error", err)
		return false
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		slog.ErrorContext(ctx, "email_send_failed", "transport", TransportSMTP, "to", to, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "email_send_failed", "transport", TransportSMTP, "to", to, "error", err)
		return false
	}

	slog.InfoContext(ctx, "email_sent", "transport", TransportSMTP, "to", to)
	return true
}

func (s *SMTPSender) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.from.FromName != "" {
		if err := msg.FromFormat(s.from.FromName, s.from.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.from.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(SendTimeout),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	return opts
}
