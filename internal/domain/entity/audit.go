package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names a security-relevant event.
type AuditAction string

const (
	AuditActionLogin                AuditAction = "login"
	AuditActionLoginTwoFactor       AuditAction = "login_2fa"
	AuditActionAccountLocked        AuditAction = "account_locked"
	AuditActionLogout               AuditAction = "logout"
	AuditActionTokenRefresh         AuditAction = "token_refresh"
	AuditActionSessionsRevoke       AuditAction = "sessions_revoke"
	AuditActionRegister             AuditAction = "register"
	AuditActionPasswordChange       AuditAction = "password_change"
	AuditActionPasswordResetRequest AuditAction = "password_reset_request"
	AuditActionPasswordReset        AuditAction = "password_reset"
	AuditActionTwoFactorSetup       AuditAction = "two_factor_setup"
	AuditActionTwoFactorEnable      AuditAction = "two_factor_enable"
	AuditActionTwoFactorDisable     AuditAction = "two_factor_disable"
	AuditActionAccessDenied         AuditAction = "access_denied"
	AuditActionRateLimited          AuditAction = "rate_limited"
	AuditActionInternalError        AuditAction = "internal_error"
)

// AuditOutcome is the binary result of an audited action.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
)

// AuditEntityAccount is the entity type for account-scoped events.
const AuditEntityAccount = "account"

// AuditEntry is an immutable, append-only record of a security-relevant event.
type AuditEntry struct {
	ID         uuid.UUID
	Timestamp  time.Time
	ActorID    *uuid.UUID   // Nil for anonymous actors (unknown email, bad token).
	ActorRole  Role         `validate:"omitempty,oneof=admin teacher student parent"`
	Action     AuditAction  `validate:"required"`
	EntityType string       `validate:"omitempty,max=64"`
	EntityID   string       `validate:"omitempty,max=128"`
	Outcome    AuditOutcome `validate:"required,oneof=success failure"`
	Metadata   AuditMetadata
}

// AuditMetadata carries the typed core context of an event plus an open bag for diagnostics.
type AuditMetadata struct {
	Email     string            `json:"email,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}
