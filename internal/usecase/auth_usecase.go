// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
)

// LoginStatus tells the caller whether tokens were issued or a second factor is still due.
type LoginStatus string

const (
	LoginStatusAuthenticated     LoginStatus = "authenticated"
	LoginStatusTwoFactorRequired LoginStatus = "two_factor_required"
)

// --- Input DTOs ---

// RegisterInput defines the data required to self-register an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     entity.Role
	ClientID string
}

// LoginInput defines the data required for an account to log in.
// ClientID identifies the caller for rate limiting, typically the source IP.
type LoginInput struct {
	Email    string
	Password string
	ClientID string
}

// VerifyTwoFactorInput completes a login that was answered with a challenge token.
type VerifyTwoFactorInput struct {
	ChallengeToken string
	Code           string
	ClientID       string
}

// ChangePasswordInput defines the data required to change a known password.
type ChangePasswordInput struct {
	AccountID       uuid.UUID
	CurrentPassword string
	NewPassword     string
}

// RequestPasswordResetInput starts the forgotten-password flow.
type RequestPasswordResetInput struct {
	Email    string
	ClientID string
}

// ResetPasswordInput redeems a reset token.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
}

// --- Output DTOs ---

// RegisterOutput returns the newly created account.
type RegisterOutput struct {
	Account *entity.Account
}

// LoginOutput carries either a token pair or a challenge token, depending on Status.
type LoginOutput struct {
	Status             LoginStatus
	Identity           *entity.Identity
	Tokens             *entity.TokenPair
	ChallengeToken     string
	ChallengeExpiresAt time.Time
}

// TwoFactorSetupOutput is the material an authenticator app needs to enroll.
type TwoFactorSetupOutput struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
}

// EnableTwoFactorOutput returns the recovery codes. They are shown exactly once.
type EnableTwoFactorOutput struct {
	RecoveryCodes []string
}

// PasswordResetRequestOutput is identical whether or not the email is registered.
type PasswordResetRequestOutput struct {
	Message string
}

// AuthUsecase is the authentication core's produced interface. Delivery layers depend on it.
type AuthUsecase interface {
	Register(ctx context.Context, input *RegisterInput) (*RegisterOutput, error)
	Login(ctx context.Context, input *LoginInput) (*LoginOutput, error)
	VerifyTwoFactor(ctx context.Context, input *VerifyTwoFactorInput) (*LoginOutput, error)
	Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error)
	Logout(ctx context.Context, accountID uuid.UUID) error
	RevokeSessions(ctx context.Context, actor *entity.Identity, targetID uuid.UUID) error

	SetupTwoFactor(ctx context.Context, accountID uuid.UUID) (*TwoFactorSetupOutput, error)
	EnableTwoFactor(ctx context.Context, accountID uuid.UUID, code string) (*EnableTwoFactorOutput, error)
	DisableTwoFactor(ctx context.Context, accountID uuid.UUID, password string) error

	ChangePassword(ctx context.Context, input *ChangePasswordInput) error
	RequestPasswordReset(ctx context.Context, input *RequestPasswordResetInput) (*PasswordResetRequestOutput, error)
	ResetPassword(ctx context.Context, input *ResetPasswordInput) error

	// Me returns the current account of an authenticated caller.
	Me(ctx context.Context, accountID uuid.UUID) (*entity.Account, error)
}
