package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"portal/internal/domain/entity"
	domainerrors "portal/internal/domain/errors"
	"portal/internal/domain/repository"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_ConcurrentRefreshHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleStudent)

	pair, err := env.sessions.Issue(context.Background(), account.Identity())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*entity.TokenPair
		losers  []error
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _, err := env.sessions.Refresh(context.Background(), pair.RefreshToken)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)

				return
			}
			winners = append(winners, next)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, losers, 1)
	assert.ErrorIs(t, losers[0], domainerrors.ErrSessionRevoked)

	// The winner's token is the only live one.
	_, _, err = env.sessions.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionRevoked)

	_, _, err = env.sessions.Refresh(context.Background(), winners[0].RefreshToken)
	assert.NoError(t, err)
}

func TestSessionManager_IssueSupersedesEarlierSession(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleTeacher)
	ctx := context.Background()

	first, err := env.sessions.Issue(ctx, account.Identity())
	require.NoError(t, err)
	second, err := env.sessions.Issue(ctx, account.Identity())
	require.NoError(t, err)

	_, _, err = env.sessions.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionRevoked)

	rotated, identity, err := env.sessions.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, account.ID, identity.AccountID)
	assert.Equal(t, entity.RoleTeacher, identity.Role)
	assert.NotEqual(t, second.RefreshToken, rotated.RefreshToken)
}

func TestSessionManager_RevokeInvalidatesRefreshButNotAccess(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleParent)
	ctx := context.Background()

	pair, err := env.sessions.Issue(ctx, account.Identity())
	require.NoError(t, err)
	require.NoError(t, env.sessions.Revoke(ctx, account.ID))

	_, _, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionRevoked)

	identity, err := env.sessions.VerifyAccess(pair.AccessToken)
	require.NoError(t, err, "access tokens stay valid until they expire")
	assert.Equal(t, account.Email, identity.Email)

	env.clock.Advance(env.cfg.Auth.Tokens.AccessTTL + time.Second)
	_, err = env.sessions.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, domainerrors.ErrTokenExpired)
}

func TestSessionManager_ExpiredRecordIsRemoved(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleStudent)
	ctx := context.Background()

	pair, err := env.sessions.Issue(ctx, account.Identity())
	require.NoError(t, err)

	// Shorten the stored record so it expires before the token itself.
	record, err := env.store.SessionRepo().FindByAccount(ctx, account.ID)
	require.NoError(t, err)
	record.ExpiresAt = env.clock.Now().Add(time.Minute)
	require.NoError(t, env.store.SessionRepo().UpsertByAccount(ctx, record))

	env.clock.Advance(2 * time.Minute)
	_, _, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionRevoked)

	_, err = env.store.SessionRepo().FindByAccount(ctx, account.ID)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestSessionManager_SuspendedAccountCannotRefresh(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleStudent)
	ctx := context.Background()

	pair, err := env.sessions.Issue(ctx, account.Identity())
	require.NoError(t, err)

	require.NoError(t, env.store.SetStatus(account.ID, entity.AccountStatusSuspended))

	_, _, err = env.sessions.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrSessionRevoked)
}

func TestSessionManager_RejectsWrongTokenKinds(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, "a@school.edu", entity.RoleStudent)

	pair, err := env.sessions.Issue(context.Background(), account.Identity())
	require.NoError(t, err)

	_, _, err = env.sessions.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalid)

	_, err = env.sessions.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, domainerrors.ErrTokenInvalid)

	_, err = env.sessions.VerifyAccess("not-a-token")
	assert.True(t, errors.Is(err, domainerrors.ErrTokenInvalid))
}

func TestSessionManager_CleanupExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	old := env.createAccount(t, "old@school.edu", entity.RoleStudent)

	_, err := env.sessions.Issue(ctx, old.Identity())
	require.NoError(t, err)

	env.clock.Advance(env.cfg.Auth.Tokens.RefreshTTL - time.Hour)
	fresh := env.createAccount(t, "fresh@school.edu", entity.RoleStudent)
	_, err = env.sessions.Issue(ctx, fresh.Identity())
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	removed, err := env.sessions.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = env.store.SessionRepo().FindByAccount(ctx, fresh.ID)
	assert.NoError(t, err)
}
