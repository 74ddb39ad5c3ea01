package usecase

import (
	"context"

	"portal/internal/domain/entity"

	"github.com/google/uuid"
)

// TwoFactorUsecase drives the TOTP lifecycle Disabled → PendingSetup → Enabled → Disabled.
type TwoFactorUsecase interface {
	// Setup overwrites the pending secret and returns the enrollment material.
	Setup(ctx context.Context, accountID uuid.UUID) (*TwoFactorSetupOutput, error)

	// VerifyAndEnable promotes the pending secret after a valid code and returns fresh recovery codes.
	VerifyAndEnable(ctx context.Context, accountID uuid.UUID, code string) ([]string, error)

	// VerifyLogin checks a TOTP or recovery code against the account named by the challenge token.
	VerifyLogin(ctx context.Context, challengeToken, code string) (*entity.Account, error)

	// Disable requires the account password and clears every second-factor secret.
	Disable(ctx context.Context, accountID uuid.UUID, password string) error
}
