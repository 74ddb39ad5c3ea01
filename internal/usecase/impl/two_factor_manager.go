package impl

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/domain/repository"
	"portal/internal/domain/service"
	"portal/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// twoFactorManager implements the TwoFactorUsecase interface.
type twoFactorManager struct {
	txManager    repository.TransactionManager
	accountRepo  repository.AccountRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	totp         service.TOTPService
	qrCode       service.QRCodeService
	audit        usecase.AuditUsecase
	clock        service.Clock
	codeCount    int
	codeLength   int
	storeTimeout time.Duration
	logger       *slog.Logger
}

// TwoFactorManagerParams holds dependencies for TwoFactorManager, injected by Fx.
type TwoFactorManagerParams struct {
	fx.In

	TxManager    repository.TransactionManager
	AccountRepo  repository.AccountRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	TOTP         service.TOTPService
	QRCode       service.QRCodeService
	Audit        usecase.AuditUsecase
	Clock        service.Clock
	Config       *config.Config
	Logger       *slog.Logger
}

// NewTwoFactorManager is the constructor for twoFactorManager.
func NewTwoFactorManager(params TwoFactorManagerParams) usecase.TwoFactorUsecase {
	return &twoFactorManager{
		txManager:    params.TxManager,
		accountRepo:  params.AccountRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		totp:         params.TOTP,
		qrCode:       params.QRCode,
		audit:        params.Audit,
		clock:        params.Clock,
		codeCount:    params.Config.TwoFactor.RecoveryCodeCount,
		codeLength:   params.Config.TwoFactor.RecoveryCodeLength,
		storeTimeout: params.Config.Auth.StoreTimeout,
		logger:       params.Logger,
	}
}

func (m *twoFactorManager) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, m.logger)
}

// Setup generates a fresh secret and stores it as the only pending secret.
func (m *twoFactorManager) Setup(ctx context.Context, accountID uuid.UUID) (*usecase.TwoFactorSetupOutput, error) {
	account, err := m.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, errors.WithStack(domainerrors.ErrTwoFactorAlreadyEnabled)
	}

	key, err := m.totp.GenerateKey(account.Email)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate totp key")
	}

	png, err := m.qrCode.GeneratePNG(key.ProvisioningURI)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render provisioning qr code")
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	if err := m.accountRepo.SetPendingTwoFactorSecret(storeCtx, accountID, key.Secret); err != nil {
		return nil, storeError(err, "failed to store pending two-factor secret")
	}

	recordAudit(ctx, m.audit, entity.AuditActionTwoFactorSetup, entity.AuditOutcomeSuccess, withAccount(account))
	m.log(ctx).InfoContext(ctx, "Two-factor setup started", slog.String("account_id", accountID.String()))

	return &usecase.TwoFactorSetupOutput{
		Secret:          key.Secret,
		ProvisioningURI: key.ProvisioningURI,
		QRCodePNG:       png,
	}, nil
}

// VerifyAndEnable promotes the pending secret and replaces the recovery codes in one transaction.
func (m *twoFactorManager) VerifyAndEnable(ctx context.Context, accountID uuid.UUID, code string) ([]string, error) {
	account, err := m.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, errors.WithStack(domainerrors.ErrTwoFactorAlreadyEnabled)
	}
	pending := account.PendingTwoFactorSecret
	if pending == "" {
		return nil, errors.WithStack(domainerrors.ErrSetupNotInitiated)
	}

	if !m.totp.Validate(code, pending, m.clock.Now()) {
		recordAudit(ctx, m.audit, entity.AuditActionTwoFactorEnable, entity.AuditOutcomeFailure,
			withAccount(account), withReason("invalid_code"))

		return nil, errors.WithStack(domainerrors.ErrTwoFactorInvalid)
	}

	codes, err := generateRecoveryCodes(m.codeCount, m.codeLength)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	err = m.txManager.Execute(storeCtx, func(factory repository.RepositoryFactory) error {
		accounts := factory.AccountRepo()
		if err := accounts.EnableTwoFactor(storeCtx, accountID, pending); err != nil {
			return err
		}

		return accounts.ReplaceRecoveryCodes(storeCtx, accountID, hashRecoveryCodes(codes))
	})
	if errors.Is(err, repository.ErrPendingSecretMismatch) {
		// A concurrent setup replaced the secret this code was checked against.
		return nil, errors.Wrap(domainerrors.ErrSetupNotInitiated, "pending secret changed during verification")
	}
	if err != nil {
		return nil, storeError(err, "failed to enable two-factor")
	}

	recordAudit(ctx, m.audit, entity.AuditActionTwoFactorEnable, entity.AuditOutcomeSuccess, withAccount(account))

	return codes, nil
}

// VerifyLogin accepts a TOTP code or, failing that, consumes a matching recovery code.
func (m *twoFactorManager) VerifyLogin(ctx context.Context, challengeToken, code string) (*entity.Account, error) {
	claims, err := m.tokenService.ParseChallengeToken(challengeToken)
	if err != nil {
		return nil, err
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "invalid challenge subject")
	}

	account, err := m.loadAccount(ctx, accountID)
	if errors.Is(err, domainerrors.ErrAccountNotFound) {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "challenge subject no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled || account.TwoFactorSecret == "" {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "two-factor no longer enabled")
	}
	if !account.IsActive() {
		return nil, errors.WithStack(domainerrors.ErrAccountSuspended)
	}

	if m.totp.Validate(code, account.TwoFactorSecret, m.clock.Now()) {
		recordAudit(ctx, m.audit, entity.AuditActionLoginTwoFactor, entity.AuditOutcomeSuccess,
			withAccount(account), withExtra("method", "totp"))

		return account, nil
	}

	consumed, err := m.consumeRecoveryCode(ctx, accountID, code)
	if err != nil {
		return nil, err
	}
	if consumed {
		recordAudit(ctx, m.audit, entity.AuditActionLoginTwoFactor, entity.AuditOutcomeSuccess,
			withAccount(account), withExtra("method", "recovery_code"))

		return account, nil
	}

	recordAudit(ctx, m.audit, entity.AuditActionLoginTwoFactor, entity.AuditOutcomeFailure,
		withAccount(account), withReason("invalid_code"))

	return nil, errors.WithStack(domainerrors.ErrTwoFactorInvalid)
}

// Disable always requires the current password.
func (m *twoFactorManager) Disable(ctx context.Context, accountID uuid.UUID, password string) error {
	account, err := m.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TwoFactorEnabled {
		return errors.WithStack(domainerrors.ErrTwoFactorNotEnabled)
	}
	if password == "" || !m.hasher.Check(password, account.PasswordHash) {
		recordAudit(ctx, m.audit, entity.AuditActionTwoFactorDisable, entity.AuditOutcomeFailure,
			withAccount(account), withReason("incorrect_password"))

		return errors.WithStack(domainerrors.ErrIncorrectPassword)
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	err = m.txManager.Execute(storeCtx, func(factory repository.RepositoryFactory) error {
		accounts := factory.AccountRepo()
		if err := accounts.DisableTwoFactor(storeCtx, accountID); err != nil {
			return err
		}

		return accounts.DeleteRecoveryCodes(storeCtx, accountID)
	})
	if err != nil {
		return storeError(err, "failed to disable two-factor")
	}

	recordAudit(ctx, m.audit, entity.AuditActionTwoFactorDisable, entity.AuditOutcomeSuccess, withAccount(account))

	return nil
}

func (m *twoFactorManager) consumeRecoveryCode(ctx context.Context, accountID uuid.UUID, code string) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	consumed, err := m.accountRepo.ConsumeRecoveryCode(storeCtx, accountID, hashRecoveryCode(code))
	if err != nil {
		return false, storeError(err, "failed to consume recovery code")
	}

	return consumed, nil
}

func (m *twoFactorManager) loadAccount(ctx context.Context, accountID uuid.UUID) (*entity.Account, error) {
	return findAccountByID(ctx, m.accountRepo, accountID, m.storeTimeout)
}

// findAccountByID maps a missing account to ErrAccountNotFound and store failures via storeError.
func findAccountByID(
	ctx context.Context,
	repo repository.AccountRepository,
	accountID uuid.UUID,
	timeout time.Duration,
) (*entity.Account, error) {
	storeCtx, cancel := withStoreTimeout(ctx, timeout)
	defer cancel()

	account, err := repo.FindByID(storeCtx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, errors.WithStack(domainerrors.ErrAccountNotFound)
	}
	if err != nil {
		return nil, storeError(err, "failed to find account by id")
	}

	return account, nil
}
