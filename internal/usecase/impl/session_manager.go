package impl

import (
	"context"
	"crypto/subtle"
	"log/slog"
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

// sessionManager implements the SessionUsecase interface.
// Each account has at most one session record; issuing overwrites it and refreshing
// swaps it only if the presented token is still the current one.
type sessionManager struct {
	sessionRepo  repository.SessionRepository
	accountRepo  repository.AccountRepository
	tokenService service.TokenService
	clock        service.Clock
	storeTimeout time.Duration
	logger       *slog.Logger
}

// SessionManagerParams holds dependencies for SessionManager, injected by Fx.
type SessionManagerParams struct {
	fx.In

	SessionRepo  repository.SessionRepository
	AccountRepo  repository.AccountRepository
	TokenService service.TokenService
	Clock        service.Clock
	Config       *config.Config
	Logger       *slog.Logger
}

// NewSessionManager is the constructor for sessionManager.
func NewSessionManager(params SessionManagerParams) usecase.SessionUsecase {
	return &sessionManager{
		sessionRepo:  params.SessionRepo,
		accountRepo:  params.AccountRepo,
		tokenService: params.TokenService,
		clock:        params.Clock,
		storeTimeout: params.Config.Auth.StoreTimeout,
		logger:       params.Logger,
	}
}

func (m *sessionManager) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, m.logger)
}

// Issue signs a pair and overwrites the account's session record, invalidating any earlier refresh token.
func (m *sessionManager) Issue(ctx context.Context, identity entity.Identity) (*entity.TokenPair, error) {
	pair, refreshHash, err := m.signPair(identity)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	if err := m.sessionRepo.UpsertByAccount(storeCtx, &entity.SessionRecord{
		AccountID: identity.AccountID,
		TokenHash: refreshHash,
		ExpiresAt: pair.RefreshExpiresAt,
	}); err != nil {
		return nil, storeError(err, "failed to store session record")
	}

	m.log(ctx).DebugContext(ctx, "Session issued", slog.String("account_id", identity.AccountID.String()))

	return pair, nil
}

// Refresh rotates the pair. The stored hash is swapped atomically, so of two concurrent
// refreshes with the same token exactly one wins and the other sees ErrSessionRevoked.
func (m *sessionManager) Refresh(ctx context.Context, refreshToken string) (*entity.TokenPair, *entity.Identity, error) {
	claims, err := m.tokenService.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, nil, errors.Wrap(domainerrors.ErrTokenInvalid, "invalid refresh subject")
	}

	record, err := m.findRecord(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}

	now := m.clock.Now()
	if record.IsExpired(now) {
		m.revokeQuietly(ctx, accountID)

		return nil, nil, errors.Wrap(domainerrors.ErrSessionRevoked, "session record expired")
	}

	presentedHash := m.tokenService.HashRefreshToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(record.TokenHash), []byte(presentedHash)) != 1 {
		return nil, nil, errors.Wrap(domainerrors.ErrSessionRevoked, "refresh token superseded")
	}

	account, err := findAccountByID(ctx, m.accountRepo, accountID, m.storeTimeout)
	if errors.Is(err, domainerrors.ErrAccountNotFound) {
		m.revokeQuietly(ctx, accountID)

		return nil, nil, errors.Wrap(domainerrors.ErrSessionRevoked, "account no longer exists")
	}
	if err != nil {
		return nil, nil, err
	}
	if !account.IsActive() {
		m.revokeQuietly(ctx, accountID)

		return nil, nil, errors.Wrap(domainerrors.ErrSessionRevoked, "account suspended")
	}

	identity := account.Identity()
	pair, nextHash, err := m.signPair(identity)
	if err != nil {
		return nil, nil, err
	}

	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	swapped, err := m.sessionRepo.CompareAndSwap(storeCtx, accountID, presentedHash, &entity.SessionRecord{
		AccountID: accountID,
		TokenHash: nextHash,
		ExpiresAt: pair.RefreshExpiresAt,
	}, now)
	if err != nil {
		return nil, nil, storeError(err, "failed to rotate session record")
	}
	if !swapped {
		return nil, nil, errors.Wrap(domainerrors.ErrSessionRevoked, "refresh token already rotated")
	}

	return pair, &identity, nil
}

// VerifyAccess is the stateless fast path for authenticated requests.
func (m *sessionManager) VerifyAccess(accessToken string) (*entity.Identity, error) {
	claims, err := m.tokenService.ParseAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	identity, err := claims.Identity()
	if err != nil || !identity.Role.IsValid() {
		return nil, errors.Wrap(domainerrors.ErrTokenInvalid, "invalid access token identity")
	}

	return identity, nil
}

// Revoke deletes the account's session record.
func (m *sessionManager) Revoke(ctx context.Context, accountID uuid.UUID) error {
	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	if err := m.sessionRepo.DeleteByAccount(storeCtx, accountID); err != nil {
		return storeError(err, "failed to delete session record")
	}

	return nil
}

// CleanupExpired deletes every expired session record.
func (m *sessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := m.sessionRepo.DeleteExpired(ctx, m.clock.Now())
	if err != nil {
		return 0, storeError(err, "failed to delete expired sessions")
	}

	return removed, nil
}

func (m *sessionManager) findRecord(ctx context.Context, accountID uuid.UUID) (*entity.SessionRecord, error) {
	storeCtx, cancel := withStoreTimeout(ctx, m.storeTimeout)
	defer cancel()

	record, err := m.sessionRepo.FindByAccount(storeCtx, accountID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, errors.Wrap(domainerrors.ErrSessionRevoked, "no session record")
	}
	if err != nil {
		return nil, storeError(err, "failed to find session record")
	}

	return record, nil
}

func (m *sessionManager) revokeQuietly(ctx context.Context, accountID uuid.UUID) {
	if err := m.Revoke(ctx, accountID); err != nil {
		m.log(ctx).WarnContext(ctx, "Failed to delete stale session record",
			slog.String("account_id", accountID.String()),
			slog.Any("error", err),
		)
	}
}

func (m *sessionManager) signPair(identity entity.Identity) (*entity.TokenPair, string, error) {
	access, accessExpiresAt, err := m.tokenService.IssueAccessToken(identity)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to issue access token")
	}
	refresh, refreshExpiresAt, err := m.tokenService.IssueRefreshToken(identity.AccountID)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to issue refresh token")
	}

	return &entity.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, m.tokenService.HashRefreshToken(refresh), nil
}
