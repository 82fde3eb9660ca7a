package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MURUGANQA/auth-service/internal/safego"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// Notification kinds, used as the kind label on notifications_total.
const (
	KindWelcome         = "welcome"
	KindLoginAlert      = "login_alert"
	KindPasswordUpdated = "password_updated"
	KindInvite          = "invite"
)

const defaultSendTimeout = 10 * time.Second

// Notifier composes account emails and hands them to a Sender in the
// background. A nil *Notifier is valid and sends nothing.
type Notifier struct {
	sender        Sender
	inviteBaseURL string
	timeout       time.Duration
	wg            sync.WaitGroup
}

// NewNotifier creates a Notifier. A non-positive timeout falls back to 10s.
func NewNotifier(sender Sender, inviteBaseURL string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		sender:        sender,
		inviteBaseURL: strings.TrimRight(inviteBaseURL, "/"),
		timeout:       timeout,
	}
}

// Welcome is sent once a signup has committed.
func (n *Notifier) Welcome(email string) {
	n.dispatch(KindWelcome, email, "Welcome aboard",
		"Your account has been created. You can sign in with "+email+".")
}

// LoginAlert is sent after every successful signin.
func (n *Notifier) LoginAlert(email string) {
	n.dispatch(KindLoginAlert, email, "New sign-in to your account",
		"A new sign-in to your account was recorded at "+time.Now().UTC().Format(time.RFC1123)+
			". If this was not you, reset your password.")
}

// PasswordUpdated confirms a password reset.
func (n *Notifier) PasswordUpdated(email string) {
	n.dispatch(KindPasswordUpdated, email, "Your password was changed",
		"The password for your account was changed. If you did not request this, contact your administrator.")
}

// Invite sends the pending member a link for accepting the invitation.
func (n *Notifier) Invite(email, orgName string, orgID int64) {
	n.dispatch(KindInvite, email, "You have been invited to "+orgName,
		fmt.Sprintf("You have been invited to join %s. Accept the invitation here:\n\n%s", orgName, n.InviteLink(orgID)))
}

// InviteLink builds the acceptance link for orgID.
func (n *Notifier) InviteLink(orgID int64) string {
	id := strconv.FormatInt(orgID, 10)
	if n == nil || n.inviteBaseURL == "" {
		return "/organizations/" + id + "/invites/accept"
	}
	link, err := url.JoinPath(n.inviteBaseURL, "organizations", id, "invites", "accept")
	if err != nil {
		return n.inviteBaseURL + "/organizations/" + id + "/invites/accept"
	}
	return link
}

// Wait blocks until every in-flight send has finished. Called on shutdown
// and by tests.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatch(kind, to, subject, body string) {
	if n == nil || n.sender == nil || to == "" {
		return
	}
	n.wg.Add(1)
	safego.Go("notify."+kind, func() {
		defer n.wg.Done()
		n.deliver(kind, to, subject, body)
	})
}

// deliver runs detached from the request that triggered it, so it gets its
// own deadline rather than the request context.
func (n *Notifier) deliver(kind, to, subject, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	status, resp, err := n.sender.Send(ctx, to, subject, body)
	if err != nil || !Accepted(status) {
		telemetry.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
		slog.Warn("notification delivery failed",
			"kind", kind, "status", status, "response", resp, "error", err)
		return
	}
	telemetry.NotificationsTotal.WithLabelValues(kind, "sent").Inc()
	slog.Debug("notification sent", "kind", kind, "status", status)
}
