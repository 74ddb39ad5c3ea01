// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the administrative state of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account is the identity record every credential, session and audit entry hangs off.
type Account struct {
	ID                     uuid.UUID     // The Global Unique Identifier (GUID) for the account.
	Email                  string        // Normalized login email (trimmed, lower-cased).
	Name                   string        // Display name embedded in access tokens.
	PasswordHash           string        // bcrypt hash of the password.
	Role                   Role          // Single role gating CRUD surfaces.
	Status                 AccountStatus // Active or suspended.
	FailedAttempts         int           // Consecutive failed password attempts.
	LockUntil              *time.Time    // Set while a brute-force lockout is active.
	TwoFactorEnabled       bool          // Whether login requires a second factor.
	TwoFactorSecret        string        // Active TOTP secret, empty when disabled.
	PendingTwoFactorSecret string        // Secret awaiting confirmation, empty when no setup is in progress.
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NormalizeEmail trims and lower-cases an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLocked reports whether a lockout is in force at the given instant.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockUntil != nil && a.LockUntil.After(now)
}

// IsActive reports whether the account may sign in.
func (a *Account) IsActive() bool {
	return a.Status == "" || a.Status == AccountStatusActive
}

// TwoFactorState derives the TOTP lifecycle state from the stored secrets.
func (a *Account) TwoFactorState() TwoFactorState {
	switch {
	case a.TwoFactorEnabled:
		return TwoFactorEnabled
	case a.PendingTwoFactorSecret != "":
		return TwoFactorPendingSetup
	default:
		return TwoFactorDisabled
	}
}

// Identity projects the claims carried by an access token.
func (a *Account) Identity() Identity {
	return Identity{
		AccountID: a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Role:      a.Role,
	}
}

// TwoFactorState is the TOTP lifecycle of an account.
type TwoFactorState string

const (
	TwoFactorDisabled     TwoFactorState = "disabled"
	TwoFactorPendingSetup TwoFactorState = "pending_setup"
	TwoFactorEnabled      TwoFactorState = "enabled"
)

// LockoutPolicy is the brute-force threshold applied on failed password checks.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockoutState is the result of an atomic failed-attempt increment.
type LockoutState struct {
	FailedAttempts int
	LockUntil      *time.Time
}

// IsLocked reports whether the increment left the account locked at now.
func (s LockoutState) IsLocked(now time.Time) bool {
	return s.LockUntil != nil && s.LockUntil.After(now)
}
