package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Account notification event names.
const (
	EventPasswordChanged       = "password_changed"
	EventPasswordResetRequest  = "password_reset_requested"
	EventPasswordResetComplete = "password_reset_completed"
	EventTwoFactorEnabled      = "two_factor_enabled"
	EventTwoFactorDisabled     = "two_factor_disabled"
	EventAccountLocked         = "account_locked"
)

// Notification is one message addressed to an account.
type Notification struct {
	ID        string            `json:"id"`
	RequestID string            `json:"request_id,omitempty"`
	AccountID uuid.UUID         `json:"account_id"`
	Event     string            `json:"event"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`

	// ExpiresAt is set when Data holds a credential that is worthless after that instant.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the notification's content is no longer usable at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// NotificationDispatcher hands a notification to the delivery pipeline.
// Delivery is best-effort; callers never depend on its success.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, notification *Notification) error
}
