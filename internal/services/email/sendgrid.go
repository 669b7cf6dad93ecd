// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-authflow/internal/config"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	host   string
	from   config.EmailConfig
}

// SendGridOption configures a SendGridSender.
type SendGridOption func(*SendGridSender)

// WithSendGridHost points the sender at another API host.
func WithSendGridHost(host string) SendGridOption {
	return func(s *SendGridSender) {
		s.host = host
	}
}

// NewSendGridSender creates a SendGrid sender. Missing settings are reported at send time.
func NewSendGridSender(cfg config.SendGridConfig, from config.EmailConfig, opts ...SendGridOption) *SendGridSender {
	s := &SendGridSender{
		apiKey: cfg.APIKey,
		host:   sendGridHost,
		from:   from,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether API key and sender address are set.
func (s *SendGridSender) Configured() bool {
	return s.apiKey != "" && s.from.From != ""
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) bool {
	if !s.Configured() {
		slog.WarnContext(ctx, "email_skipped", "transport", TransportSendGrid, "reason", "missing SendGrid API key or from address", "to", to)
		return false
	}

	req := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(s.message(to, subject, body))

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "email_send_failed", "transport", TransportSendGrid, "to", to, "error", err)
		return false
	}
	if resp.StatusCode >= http.StatusBadRequest {
		slog.ErrorContext(ctx, "email_send_failed",
			"transport", TransportSendGrid,
			"to", to,
			"status", resp.StatusCode,
			"body", resp.Body,
		)
		return false
	}

	slog.InfoContext(ctx, "email_sent", "transport", TransportSendGrid, "to", to, "status", resp.StatusCode)
	return true
}

func (s *SendGridSender) message(to, subject, body string) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail("", to))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(s.from.FromName, s.from.From))
	m.Subject = subject
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))
	return m
}
