package memory

import (
	"context"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"

	"github.com/google/uuid"
)

type accountRepository struct {
	v view
}

func (r *accountRepository) Create(ctx context.Context, account *entity.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		email := entity.NormalizeEmail(account.Email)
		if _, ok := st.emails[email]; ok {
			return repository.ErrAccountExists
		}
		if account.ID == uuid.Nil {
			account.ID = uuid.New()
		}
		if account.Status == "" {
			account.Status = entity.AccountStatusActive
		}
		now := r.v.now()
		account.Email = email
		account.CreatedAt = now
		account.UpdatedAt = now

		st.accounts[account.ID] = *account
		st.emails[email] = account.ID

		return nil
	})
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *entity.Account
	err := r.v.do(func(st *state) error {
		id, ok := st.emails[entity.NormalizeEmail(email)]
		if !ok {
			return repository.ErrAccountNotFound
		}
		account := st.accounts[id]
		found = &account

		return nil
	})

	return found, err
}

func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *entity.Account
	err := r.v.do(func(st *state) error {
		account, ok := st.accounts[id]
		if !ok {
			return repository.ErrAccountNotFound
		}
		found = &account

		return nil
	})

	return found, err
}

func (r *accountRepository) IncrementFailedAttempts(
	ctx context.Context,
	id uuid.UUID,
	policy entity.LockoutPolicy,
	now time.Time,
) (*entity.LockoutState, error) {
	var result *entity.LockoutState
	err := r.mutate(ctx, id, func(a *entity.Account) {
		switch {
		case a.LockUntil != nil && !a.LockUntil.After(now):
			a.FailedAttempts = 1
			a.LockUntil = nil
		default:
			a.FailedAttempts++
		}
		if a.LockUntil == nil && a.FailedAttempts >= policy.Threshold {
			until := now.Add(policy.Duration)
			a.LockUntil = &until
		}
		result = &entity.LockoutState{FailedAttempts: a.FailedAttempts, LockUntil: a.LockUntil}
	})

	return result, err
}

func (r *accountRepository) ResetFailedAttempts(ctx context.Context, id uuid.UUID) error {
	return r.mutate(ctx, id, func(a *entity.Account) {
		a.FailedAttempts = 0
		a.LockUntil = nil
	})
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.mutate(ctx, id, func(a *entity.Account) {
		a.PasswordHash = passwordHash
	})
}

func (r *accountRepository) SetPendingTwoFactorSecret(ctx context.Context, id uuid.UUID, secret string) error {
	return r.mutate(ctx, id, func(a *entity.Account) {
		a.PendingTwoFactorSecret = secret
	})
}

func (r *accountRepository) EnableTwoFactor(ctx context.Context, id uuid.UUID, pendingSecret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok || a.PendingTwoFactorSecret == "" || a.PendingTwoFactorSecret != pendingSecret {
			return repository.ErrPendingSecretMismatch
		}
		a.TwoFactorEnabled = true
		a.TwoFactorSecret = pendingSecret
		a.PendingTwoFactorSecret = ""
		a.UpdatedAt = r.v.now()
		st.accounts[id] = a

		return nil
	})
}

func (r *accountRepository) DisableTwoFactor(ctx context.Context, id uuid.UUID) error {
	return r.mutate(ctx, id, func(a *entity.Account) {
		a.TwoFactorEnabled = false
		a.TwoFactorSecret = ""
		a.PendingTwoFactorSecret = ""
	})
}

func (r *accountRepository) ReplaceRecoveryCodes(ctx context.Context, id uuid.UUID, codeHashes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		codes := make(map[string]struct{}, len(codeHashes))
		for _, hash := range codeHashes {
			codes[hash] = struct{}{}
		}
		st.recoveryCodes[id] = codes

		return nil
	})
}

func (r *accountRepository) ConsumeRecoveryCode(ctx context.Context, id uuid.UUID, codeHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	consumed := false
	err := r.v.do(func(st *state) error {
		if _, ok := st.recoveryCodes[id][codeHash]; ok {
			delete(st.recoveryCodes[id], codeHash)
			consumed = true
		}

		return nil
	})

	return consumed, err
}

func (r *accountRepository) DeleteRecoveryCodes(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		delete(st.recoveryCodes, id)

		return nil
	})
}

// RecoveryCodeCount reports how many unused codes the account has left.
func (s *Store) RecoveryCodeCount(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data.recoveryCodes[id])
}

func (r *accountRepository) mutate(ctx context.Context, id uuid.UUID, fn func(a *entity.Account)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return repository.ErrAccountNotFound
		}
		fn(&a)
		a.UpdatedAt = r.v.now()
		st.accounts[id] = a

		return nil
	})
}

// SetStatus changes an account's administrative status.
func (s *Store) SetStatus(id uuid.UUID, status entity.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.Status = status
	a.UpdatedAt = s.clock.Now()
	s.data.accounts[id] = a

	return nil
}
