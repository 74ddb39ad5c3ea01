package impl

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"portal/config"
	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/domain/repository"
	"portal/internal/domain/service"
	"portal/internal/usecase"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// timingPassword is hashed once at start-up so unknown emails cost one bcrypt comparison too.
const timingPassword = "Timing-Equaliser#9f2c"

// credentialManager implements the CredentialUsecase interface.
type credentialManager struct {
	accountRepo  repository.AccountRepository
	hasher       service.PasswordHasher
	tokenService service.TokenService
	audit        usecase.AuditUsecase
	notifier     *notifier
	clock        service.Clock
	policy       entity.LockoutPolicy
	storeTimeout time.Duration
	dummyHash    string
	logger       *slog.Logger
}

// CredentialManagerParams holds dependencies for CredentialManager, injected by Fx.
type CredentialManagerParams struct {
	fx.In

	AccountRepo  repository.AccountRepository
	Hasher       service.PasswordHasher
	TokenService service.TokenService
	Audit        usecase.AuditUsecase
	Dispatcher   service.NotificationDispatcher
	Runner       service.BackgroundRunner
	Clock        service.Clock
	Config       *config.Config
	Logger       *slog.Logger
}

// NewCredentialManager is the constructor for credentialManager.
func NewCredentialManager(params CredentialManagerParams) usecase.CredentialUsecase {
	dummyHash, err := params.Hasher.Hash(timingPassword)
	if err != nil {
		params.Logger.Warn("Failed to prepare timing hash for unknown accounts", slog.Any("error", err))
	}

	return &credentialManager{
		accountRepo:  params.AccountRepo,
		hasher:       params.Hasher,
		tokenService: params.TokenService,
		audit:        params.Audit,
		notifier:     newNotifier(params.Dispatcher, params.Runner),
		clock:        params.Clock,
		policy: entity.LockoutPolicy{
			Threshold: params.Config.Auth.Lockout.Threshold,
			Duration:  params.Config.Auth.Lockout.Duration,
		},
		storeTimeout: params.Config.Auth.StoreTimeout,
		dummyHash:    dummyHash,
		logger:       params.Logger,
	}
}

func (m *credentialManager) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, m.logger)
}

// Authenticate checks email and password and applies the lockout policy.
func (m *credentialManager) Authenticate(ctx context.Context, email, password string) (*usecase.CredentialResult, error) {
	email = entity.NormalizeEmail(email)

	account, err := m.findAccount(ctx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		m.hasher.Check(password, m.dummyHash)

		return nil, errors.WithStack(domainerrors.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	if account.IsLocked(now) {
		recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeFailure,
			withAccount(account), withReason("account_locked"))

		return nil, errors.WithStack(domainerrors.ErrAccountLocked)
	}

	if !m.hasher.Check(password, account.PasswordHash) {
		return nil, m.recordFailure(ctx, account, now)
	}

	if err := m.resetFailures(ctx, account); err != nil {
		return nil, err
	}

	if !account.IsActive() {
		recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeFailure,
			withAccount(account), withReason("account_suspended"))

		return nil, errors.WithStack(domainerrors.ErrAccountSuspended)
	}

	if account.TwoFactorEnabled {
		challenge, expiresAt, err := m.tokenService.IssueChallengeToken(account.ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to issue challenge token")
		}
		recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeSuccess,
			withAccount(account), withReason("two_factor_required"))

		return &usecase.CredentialResult{
			Outcome:            usecase.CredentialTwoFactorRequired,
			Account:            account,
			ChallengeToken:     challenge,
			ChallengeExpiresAt: expiresAt,
		}, nil
	}

	recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeSuccess, withAccount(account))

	return &usecase.CredentialResult{
		Outcome: usecase.CredentialAuthenticated,
		Account: account,
	}, nil
}

func (m *credentialManager) findAccount(ctx context.Context, email string) (*entity.Account, error) {
	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	account, err := m.accountRepo.FindByEmail(storeCtx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, storeError(err, "failed to find account by email")
	}

	return account, nil
}

// recordFailure bumps the counter atomically and reports Locked only when this attempt tripped it.
func (m *credentialManager) recordFailure(ctx context.Context, account *entity.Account, now time.Time) error {
	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	state, err := m.accountRepo.IncrementFailedAttempts(storeCtx, account.ID, m.policy, now)
	if err != nil {
		return storeError(err, "failed to increment failed attempts")
	}

	attempts := strconv.Itoa(state.FailedAttempts)
	if state.IsLocked(now) {
		// Concurrent failures past the threshold only report the lock once.
		if state.FailedAttempts == m.policy.Threshold {
			m.log(ctx).WarnContext(ctx, "Account locked after repeated failures",
				slog.String("account_id", account.ID.String()),
				slog.Int("failed_attempts", state.FailedAttempts),
			)
			recordAudit(ctx, m.audit, entity.AuditActionAccountLocked, entity.AuditOutcomeSuccess,
				withAccount(account), withExtra("failed_attempts", attempts),
				withExtra("lock_until", state.LockUntil.Format(time.RFC3339)))
			m.notifier.notify(ctx, account.ID, service.EventAccountLocked,
				"Your account was temporarily locked after repeated failed sign-in attempts.",
				map[string]string{"lock_until": state.LockUntil.Format(time.RFC3339)})
		}
		recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeFailure,
			withAccount(account), withReason("invalid_password"), withExtra("failed_attempts", attempts))

		return errors.WithStack(domainerrors.ErrAccountLocked)
	}

	recordAudit(ctx, m.audit, entity.AuditActionLogin, entity.AuditOutcomeFailure,
		withAccount(account), withReason("invalid_password"), withExtra("failed_attempts", attempts))

	return errors.WithStack(domainerrors.ErrInvalidCredentials)
}

func (m *credentialManager) resetFailures(ctx context.Context, account *entity.Account) error {
	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	if err := m.accountRepo.ResetFailedAttempts(storeCtx, account.ID); err != nil {
		return storeError(err, "failed to reset failed attempts")
	}
	account.FailedAttempts = 0
	account.LockUntil = nil

	return nil
}
