package usecase

import (
	"context"
	"time"

	"portal/internal/domain/entity"
)

// CredentialOutcome is the successful result of a password check.
type CredentialOutcome string

const (
	CredentialAuthenticated     CredentialOutcome = "authenticated"
	CredentialTwoFactorRequired CredentialOutcome = "two_factor_required"
)

// CredentialResult is returned when the password matched. Failed checks are returned as
// ErrInvalidCredentials, ErrAccountLocked or ErrAccountSuspended.
type CredentialResult struct {
	Outcome            CredentialOutcome
	Account            *entity.Account
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// CredentialUsecase verifies passwords and enforces the brute-force lockout.
type CredentialUsecase interface {
	Authenticate(ctx context.Context, email, password string) (*CredentialResult, error)
}
