package entity

import (
	"time"

	"github.com/google/uuid"
)

// SessionRecord is the single server-side pointer that makes an account's refresh token revocable.
// There is at most one per account; every issuance overwrites it.
type SessionRecord struct {
	AccountID uuid.UUID // Unique key: one live refresh session per account.
	TokenHash string    // Keyed hash of the current refresh token.
	ExpiresAt time.Time // Refresh token expiry.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsExpired reports whether the record has passed its expiry.
func (s *SessionRecord) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Identity is the subject carried by an access token.
type Identity struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
}

// TokenPair is the result of a successful issuance.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// PasswordReset is an outstanding one-time password-reset grant.
type PasswordReset struct {
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
