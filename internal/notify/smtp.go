package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/smtp"
	"strings"

	"github.com/MURUGANQA/auth-service/internal/config"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg  config.SMTPConfig
	from string
	// send is replaced in tests.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTPSender. With UseTLS the connection is made over
// implicit TLS, falling back to STARTTLS.
func NewSMTPSender(cfg config.SMTPConfig, from string) *SMTPSender {
	s := &SMTPSender{cfg: cfg, from: from}
	if cfg.UseTLS {
		s.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
			return sendMailTLS(addr, cfg.Host, auth, from, to, msg)
		}
	} else {
		s.send = smtp.SendMail
	}
	return s
}

// Send composes a plain-text message and relays it. SMTP has no HTTP-style
// status, so an accepted message reports 202.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}

	msg := buildMessage(s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.send(addr, auth, s.from, []string{to}, msg); err != nil {
		return 0, err.Error(), fmt.Errorf("smtp send: %w", err)
	}
	return http.StatusAccepted, "", nil
}

func buildMessage(from, to, subject, body string) []byte {
	// strip CR/LF so user-controlled values cannot inject headers
	clean := strings.NewReplacer("\r", "", "\n", "")
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		clean.Replace(from), clean.Replace(to), clean.Replace(subject),
	)
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return []byte(headers + body + "\r\n")
}

// sendMailTLS connects via implicit TLS (port 465) and sends a message. If the
// TLS dial fails it falls back to smtp.SendMail, which upgrades with STARTTLS
// when the server offers it (port 587).
func sendMailTLS(addr, host string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}
