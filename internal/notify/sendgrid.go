package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	apiKey string
	from   *mail.Email
	host   string // empty selects the public API host
}

// NewSendGridSender creates a SendGridSender authenticating with apiKey.
func NewSendGridSender(apiKey, from string) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, from: mail.NewEmail("", from)}
}

// Send posts a single plain-text message. SendGrid answers 202 when the
// message is queued; any other status is returned with the response body.
func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) (int, string, error) {
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), body, "")

	// a fresh request per send: the client's Body field is not safe to share
	req := sendgrid.GetRequest(s.apiKey, sendGridEndpoint, s.host)
	req.Method = "POST"
	req.Body = mail.GetRequestBody(msg)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return 0, "", fmt.Errorf("sendgrid send: %w", err)
	}
	if !Accepted(resp.StatusCode) {
		return resp.StatusCode, resp.Body, fmt.Errorf("sendgrid send: unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, resp.Body, nil
}
