// Package notify delivers out-of-band messages such as invitation emails.
// Delivery itself is done by a downstream mailer consuming the queue.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Invitation asks the mailer to send a set-your-password link.
type Invitation struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	AcceptURL string    `json:"accept_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier sends invitation notifications.
type Notifier interface {
	NotifyInvitation(ctx context.Context, inv Invitation) error
}

// LogNotifier writes invitations to the log. For local development only:
// the accept URL carries the invitation token.
type LogNotifier struct{}

// NotifyInvitation implements Notifier.
func (LogNotifier) NotifyInvitation(ctx context.Context, inv Invitation) error {
	zerolog.Ctx(ctx).Info().
		Str("user_id", inv.UserID.String()).
		Str("email", inv.Email).
		Str("accept_url", inv.AcceptURL).
		Time("expires_at", inv.ExpiresAt).
		Msg("Invitation (not sent, log notifier)")
	return nil
}
