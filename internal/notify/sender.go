// Package notify delivers account emails (welcome, login alert, password
// change, invitation). Delivery is best-effort: a failed send is logged and
// counted but never fails the operation that triggered it.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MURUGANQA/auth-service/internal/config"
)

// Sender delivers a single plain-text message. It returns the provider's
// status code and response body; a 2xx code means the message was accepted.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) (statusCode int, respBody string, err error)
}

// Accepted reports whether a provider status code means the message was
// handed off for delivery.
func Accepted(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// NewSender builds the Sender selected by cfg.Provider. Disabled notifications
// get a LogSender so callers never need a nil check.
func NewSender(cfg *config.NotificationsConfig) (Sender, error) {
	if !cfg.Enabled {
		return NewLogSender(slog.Default()), nil
	}
	switch cfg.Provider {
	case "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.From), nil
	case "sendgrid":
		return NewSendGridSender(cfg.SendGrid.APIKey, cfg.From), nil
	case "log", "":
		return NewLogSender(slog.Default()), nil
	default:
		return nil, fmt.Errorf("unknown notifications provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the log instead of sending them. Used in
// development and when notifications are disabled.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender writing to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message and reports it as accepted.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) (int, string, error) {
	s.logger.InfoContext(ctx, "notification (not sent)", "to", to, "subject", subject, "bytes", len(body))
	return 202, "", nil
}
