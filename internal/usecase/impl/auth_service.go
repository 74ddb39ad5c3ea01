package impl

import (
	"context"
	"log/slog"
	"strconv"
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

// passwordResetMessage is returned for every reset request, registered email or not.
const passwordResetMessage = "If an account exists for this email, a password reset link has been sent."

// authService implements the AuthUsecase interface by composing the managers.
// It is the only place where unexpected failures are converted to the opaque internal error.
type authService struct {
	credentials usecase.CredentialUsecase
	twoFactor   usecase.TwoFactorUsecase
	sessions    usecase.SessionUsecase
	rateLimiter usecase.RateLimitUsecase
	audit       usecase.AuditUsecase

	txManager    repository.TransactionManager
	accountRepo  repository.AccountRepository
	resetRepo    repository.PasswordResetRepository
	hasher       service.PasswordHasher
	notifier     *notifier
	reporter     service.ErrorReporter
	clock        service.Clock
	resetTTL     time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	Credentials usecase.CredentialUsecase
	TwoFactor   usecase.TwoFactorUsecase
	Sessions    usecase.SessionUsecase
	RateLimiter usecase.RateLimitUsecase
	Audit       usecase.AuditUsecase

	TxManager   repository.TransactionManager
	AccountRepo repository.AccountRepository
	ResetRepo   repository.PasswordResetRepository
	Hasher      service.PasswordHasher
	Dispatcher  service.NotificationDispatcher
	Runner      service.BackgroundRunner
	Reporter    service.ErrorReporter
	Clock       service.Clock
	Config      *config.Config
	Logger      *slog.Logger
}

// NewAuthService is the constructor for authService.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	return &authService{
		credentials:  params.Credentials,
		twoFactor:    params.TwoFactor,
		sessions:     params.Sessions,
		rateLimiter:  params.RateLimiter,
		audit:        params.Audit,
		txManager:    params.TxManager,
		accountRepo:  params.AccountRepo,
		resetRepo:    params.ResetRepo,
		hasher:       params.Hasher,
		notifier:     newNotifier(params.Dispatcher, params.Runner),
		reporter:     params.Reporter,
		clock:        params.Clock,
		resetTTL:     params.Config.Auth.PasswordResetTTL,
		storeTimeout: params.Config.Auth.StoreTimeout,
		logger:       params.Logger,
	}
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// Register creates a self-service account.
func (srv *authService) Register(ctx context.Context, input *usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	const op = "register"

	if err := srv.admit(ctx, input.ClientID, entity.BucketRegister); err != nil {
		return nil, err
	}
	if !input.Role.IsSelfService() {
		return nil, domainerrors.ErrValidationFailed.WithDetails("role must be one of teacher, student, parent")
	}

	email := entity.NormalizeEmail(input.Email)
	if email == "" || strings.TrimSpace(input.Name) == "" {
		return nil, domainerrors.ErrValidationFailed.WithDetails("email and name are required")
	}

	passwordHash, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, srv.finish(ctx, op, uuid.Nil, err)
	}

	account := &entity.Account{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: passwordHash,
		Role:         input.Role,
		Status:       entity.AccountStatusActive,
	}

	storeCtx, cancel := withStoreTimeout(ctx, srv.storeTimeout)
	defer cancel()

	err = srv.accountRepo.Create(storeCtx, account)
	if errors.Is(err, repository.ErrAccountExists) {
		recordAudit(ctx, srv.audit, entity.AuditActionRegister, entity.AuditOutcomeFailure,
			withEmail(email), withReason("email_taken"))

		return nil, errors.WithStack(domainerrors.ErrAccountAlreadyExists)
	}
	if err != nil {
		return nil, srv.finish(ctx, op, uuid.Nil, storeError(err, "failed to create account"))
	}

	recordAudit(ctx, srv.audit, entity.AuditActionRegister, entity.AuditOutcomeSuccess, withAccount(account))
	srv.log(ctx).InfoContext(ctx, "Account registered",
		slog.String("account_id", account.ID.String()),
		slog.String("role", account.Role.String()),
	)

	return &usecase.RegisterOutput{Account: account}, nil
}

// Login checks the rate limit before any password comparison, then issues tokens or a challenge.
func (srv *authService) Login(ctx context.Context, input *usecase.LoginInput) (*usecase.LoginOutput, error) {
	const op = "login"

	if err := srv.admit(ctx, input.ClientID, entity.BucketLogin); err != nil {
		return nil, err
	}

	result, err := srv.credentials.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		return nil, srv.finish(ctx, op, uuid.Nil, err)
	}

	identity := result.Account.Identity()
	if result.Outcome == usecase.CredentialTwoFactorRequired {
		return &usecase.LoginOutput{
			Status:             usecase.LoginStatusTwoFactorRequired,
			ChallengeToken:     result.ChallengeToken,
			ChallengeExpiresAt: result.ChallengeExpiresAt,
		}, nil
	}

	pair, err := srv.sessions.Issue(ctx, identity)
	if err != nil {
		return nil, srv.finish(ctx, op, identity.AccountID, err)
	}

	return &usecase.LoginOutput{
		Status:   usecase.LoginStatusAuthenticated,
		Identity: &identity,
		Tokens:   pair,
	}, nil
}

// VerifyTwoFactor completes a challenged login. It shares the login budget under its own key.
func (srv *authService) VerifyTwoFactor(ctx context.Context, input *usecase.VerifyTwoFactorInput) (*usecase.LoginOutput, error) {
	const op = "verify_two_factor"

	if err := srv.admit(ctx, "2fa:"+input.ClientID, entity.BucketLogin); err != nil {
		return nil, err
	}

	account, err := srv.twoFactor.VerifyLogin(ctx, input.ChallengeToken, input.Code)
	if err != nil {
		return nil, srv.finish(ctx, op, uuid.Nil, err)
	}

	identity := account.Identity()
	pair, err := srv.sessions.Issue(ctx, identity)
	if err != nil {
		return nil, srv.finish(ctx, op, identity.AccountID, err)
	}

	return &usecase.LoginOutput{
		Status:   usecase.LoginStatusAuthenticated,
		Identity: &identity,
		Tokens:   pair,
	}, nil
}

// Refresh rotates a refresh token. Failures require a full login.
func (srv *authService) Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, error) {
	pair, identity, err := srv.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		if isExpected(err) {
			recordAudit(ctx, srv.audit, entity.AuditActionTokenRefresh, entity.AuditOutcomeFailure,
				withReason(reasonOf(err)))
		}

		return nil, srv.finish(ctx, "refresh", uuid.Nil, err)
	}

	recordAudit(ctx, srv.audit, entity.AuditActionTokenRefresh, entity.AuditOutcomeSuccess, withIdentity(identity))

	return pair, nil
}

// Logout revokes the refresh session. The access token stays valid until it expires.
func (srv *authService) Logout(ctx context.Context, accountID uuid.UUID) error {
	if err := srv.sessions.Revoke(ctx, accountID); err != nil {
		return srv.finish(ctx, "logout", accountID, err)
	}

	recordAudit(ctx, srv.audit, entity.AuditActionLogout, entity.AuditOutcomeSuccess, withAccountID(accountID))

	return nil
}

// RevokeSessions signs another account out on behalf of an administrator.
func (srv *authService) RevokeSessions(ctx context.Context, actor *entity.Identity, targetID uuid.UUID) error {
	target := withTarget(targetID)
	if actor == nil || actor.Role != entity.RoleAdmin {
		recordAudit(ctx, srv.audit, entity.AuditActionSessionsRevoke, entity.AuditOutcomeFailure,
			withIdentity(actor), target, withReason("role_not_permitted"))

		return errors.WithStack(domainerrors.ErrForbidden)
	}

	if err := srv.sessions.Revoke(ctx, targetID); err != nil {
		recordAudit(ctx, srv.audit, entity.AuditActionSessionsRevoke, entity.AuditOutcomeFailure,
			withIdentity(actor), target, withReason(reasonOf(err)))

		return srv.finish(ctx, "revoke_sessions", actor.AccountID, err)
	}

	recordAudit(ctx, srv.audit, entity.AuditActionSessionsRevoke, entity.AuditOutcomeSuccess,
		withIdentity(actor), target)

	return nil
}

// SetupTwoFactor starts (or restarts) enrollment.
func (srv *authService) SetupTwoFactor(ctx context.Context, accountID uuid.UUID) (*usecase.TwoFactorSetupOutput, error) {
	output, err := srv.twoFactor.Setup(ctx, accountID)
	if err != nil {
		return nil, srv.finish(ctx, "setup_two_factor", accountID, err)
	}

	return output, nil
}

// EnableTwoFactor confirms enrollment and returns the one-time view of the recovery codes.
func (srv *authService) EnableTwoFactor(ctx context.Context, accountID uuid.UUID, code string) (*usecase.EnableTwoFactorOutput, error) {
	codes, err := srv.twoFactor.VerifyAndEnable(ctx, accountID, code)
	if err != nil {
		return nil, srv.finish(ctx, "enable_two_factor", accountID, err)
	}

	srv.notifier.notify(ctx, accountID, service.EventTwoFactorEnabled,
		"Two-factor authentication was enabled on your account.", nil)

	return &usecase.EnableTwoFactorOutput{RecoveryCodes: codes}, nil
}

// DisableTwoFactor turns the second factor off after confirming the password.
func (srv *authService) DisableTwoFactor(ctx context.Context, accountID uuid.UUID, password string) error {
	if err := srv.twoFactor.Disable(ctx, accountID, password); err != nil {
		return srv.finish(ctx, "disable_two_factor", accountID, err)
	}

	srv.notifier.notify(ctx, accountID, service.EventTwoFactorDisabled,
		"Two-factor authentication was disabled on your account.", nil)

	return nil
}

// ChangePassword replaces a known password and signs the account out everywhere.
func (srv *authService) ChangePassword(ctx context.Context, input *usecase.ChangePasswordInput) error {
	const op = "change_password"

	account, err := findAccountByID(ctx, srv.accountRepo, input.AccountID, srv.storeTimeout)
	if err != nil {
		return srv.finish(ctx, op, input.AccountID, err)
	}

	if !srv.hasher.Check(input.CurrentPassword, account.PasswordHash) {
		recordAudit(ctx, srv.audit, entity.AuditActionPasswordChange, entity.AuditOutcomeFailure,
			withAccount(account), withReason("incorrect_password"))

		return errors.WithStack(domainerrors.ErrIncorrectPassword)
	}

	passwordHash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		if errors.Is(err, domainerrors.ErrWeakPassword) {
			recordAudit(ctx, srv.audit, entity.AuditActionPasswordChange, entity.AuditOutcomeFailure,
				withAccount(account), withReason("weak_password"))
		}

		return srv.finish(ctx, op, account.ID, err)
	}

	storeCtx, cancel := withStoreTimeout(ctx, srv.storeTimeout)
	defer cancel()

	err = srv.txManager.Execute(storeCtx, func(factory repository.RepositoryFactory) error {
		if err := factory.AccountRepo().UpdatePassword(storeCtx, account.ID, passwordHash); err != nil {
			return err
		}

		return factory.SessionRepo().DeleteByAccount(storeCtx, account.ID)
	})
	if err != nil {
		return srv.finish(ctx, op, account.ID, storeError(err, "failed to update password"))
	}

	recordAudit(ctx, srv.audit, entity.AuditActionPasswordChange, entity.AuditOutcomeSuccess, withAccount(account))
	srv.notifier.notify(ctx, account.ID, service.EventPasswordChanged,
		"Your password was changed. If this wasn't you, reset it immediately.", nil)

	return nil
}

// RequestPasswordReset answers identically for registered and unknown emails.
func (srv *authService) RequestPasswordReset(
	ctx context.Context,
	input *usecase.RequestPasswordResetInput,
) (*usecase.PasswordResetRequestOutput, error) {
	const op = "request_password_reset"

	if err := srv.admit(ctx, input.ClientID, entity.BucketPasswordReset); err != nil {
		return nil, err
	}

	output := &usecase.PasswordResetRequestOutput{Message: passwordResetMessage}
	email := entity.NormalizeEmail(input.Email)

	storeCtx, cancel := withStoreTimeout(ctx, srv.storeTimeout)
	defer cancel()

	account, err := srv.accountRepo.FindByEmail(storeCtx, email)
	if errors.Is(err, repository.ErrAccountNotFound) {
		recordAudit(ctx, srv.audit, entity.AuditActionPasswordResetRequest, entity.AuditOutcomeFailure,
			withEmail(email), withReason("unknown_email"))

		return output, nil
	}
	if err != nil {
		return nil, srv.finish(ctx, op, uuid.Nil, storeError(err, "failed to find account by email"))
	}
	if !account.IsActive() {
		recordAudit(ctx, srv.audit, entity.AuditActionPasswordResetRequest, entity.AuditOutcomeFailure,
			withAccount(account), withReason("account_suspended"))

		return output, nil
	}

	token, digest, err := newOpaqueToken()
	if err != nil {
		return nil, srv.finish(ctx, op, account.ID, err)
	}
	expiresAt := srv.clock.Now().Add(srv.resetTTL)

	if err := srv.resetRepo.Upsert(storeCtx, &entity.PasswordReset{
		AccountID: account.ID,
		TokenHash: digest,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, srv.finish(ctx, op, account.ID, storeError(err, "failed to store password reset"))
	}

	recordAudit(ctx, srv.audit, entity.AuditActionPasswordResetRequest, entity.AuditOutcomeSuccess, withAccount(account))
	srv.notifier.notifyUntil(ctx, account.ID, service.EventPasswordResetRequest,
		"Use the enclosed token to reset your password.",
		map[string]string{
			"reset_token": token,
			"expires_at":  expiresAt.Format(time.RFC3339),
			"ttl_minutes": strconv.Itoa(int(srv.resetTTL.Minutes())),
		}, expiresAt)

	return output, nil
}

// ResetPassword redeems a one-time reset token: the new password, the cleared lockout and the
// revoked session are committed together with the token consumption.
func (srv *authService) ResetPassword(ctx context.Context, input *usecase.ResetPasswordInput) error {
	const op = "reset_password"

	if strings.TrimSpace(input.Token) == "" {
		return errors.Wrap(domainerrors.ErrTokenInvalid, "empty reset token")
	}

	passwordHash, err := srv.hasher.Hash(input.NewPassword)
	if err != nil {
		return srv.finish(ctx, op, uuid.Nil, err)
	}

	storeCtx, cancel := withStoreTimeout(ctx, srv.storeTimeout)
	defer cancel()

	var accountID uuid.UUID
	err = srv.txManager.Execute(storeCtx, func(factory repository.RepositoryFactory) error {
		var consumeErr error
		accountID, consumeErr = factory.PasswordResetRepo().Consume(storeCtx, hashOpaqueToken(input.Token), srv.clock.Now())
		if consumeErr != nil {
			return consumeErr
		}

		accounts := factory.AccountRepo()
		if err := accounts.UpdatePassword(storeCtx, accountID, passwordHash); err != nil {
			return err
		}
		if err := accounts.ResetFailedAttempts(storeCtx, accountID); err != nil {
			return err
		}

		return factory.SessionRepo().DeleteByAccount(storeCtx, accountID)
	})
	if errors.Is(err, repository.ErrPasswordResetNotFound) {
		recordAudit(ctx, srv.audit, entity.AuditActionPasswordReset, entity.AuditOutcomeFailure,
			withReason("invalid_token"))

		return errors.Wrap(domainerrors.ErrTokenInvalid, "reset token unknown, expired or used")
	}
	if err != nil {
		return srv.finish(ctx, op, accountID, storeError(err, "failed to reset password"))
	}

	recordAudit(ctx, srv.audit, entity.AuditActionPasswordReset, entity.AuditOutcomeSuccess, withAccountID(accountID))
	srv.notifier.notify(ctx, accountID, service.EventPasswordResetComplete,
		"Your password was reset. All sessions were signed out.", nil)

	return nil
}

// Me returns the caller's account.
func (srv *authService) Me(ctx context.Context, accountID uuid.UUID) (*entity.Account, error) {
	account, err := findAccountByID(ctx, srv.accountRepo, accountID, srv.storeTimeout)
	if err != nil {
		return nil, srv.finish(ctx, "me", accountID, err)
	}

	return account, nil
}

// admit applies the rate limit for bucket. Rejections are explicit so callers can back off.
func (srv *authService) admit(ctx context.Context, identifier, bucket string) error {
	decision := srv.rateLimiter.Check(ctx, identifier, bucket)
	if decision.Allowed {
		return nil
	}

	recordAudit(ctx, srv.audit, entity.AuditActionRateLimited, entity.AuditOutcomeFailure,
		withReason(bucket), withExtra("retry_after", decision.RetryAfter.String()))

	return domainerrors.ErrRateLimited.WithDetails(
		"retry after " + strconv.Itoa(int(decision.RetryAfter.Round(time.Second).Seconds())) + " seconds")
}

// finish passes typed outcomes through untouched. Store outages are logged and reported as
// ErrUnavailable; anything else is audited with full context, reported and replaced by the
// opaque internal error.
func (srv *authService) finish(ctx context.Context, op string, accountID uuid.UUID, err error) error {
	if err == nil {
		return nil
	}

	logger := srv.log(ctx)
	if errors.Is(err, domainerrors.ErrUnavailable) {
		logger.ErrorContext(ctx, "Store unavailable", slog.String("op", op), slog.Any("error", err))
		srv.report(ctx, err, op)

		return err
	}
	if isExpected(err) {
		return err
	}

	logger.ErrorContext(ctx, "Unexpected failure",
		slog.String("op", op),
		slog.String("account_id", accountID.String()),
		slog.Any("error", err),
	)
	recordAudit(ctx, srv.audit, entity.AuditActionInternalError, entity.AuditOutcomeFailure,
		withAccountID(accountID), withReason(err.Error()), withExtra("op", op))
	srv.report(ctx, err, op)

	return errors.WithStack(domainerrors.ErrInternalError)
}

func (srv *authService) report(ctx context.Context, err error, op string) {
	if srv.reporter != nil {
		srv.reporter.CaptureError(ctx, err, map[string]string{"op": op})
	}
}

// reasonOf returns the business code of a typed outcome for audit metadata.
func reasonOf(err error) string {
	var appErr domainerrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.ErrorCode())
	}

	return "unknown"
}
