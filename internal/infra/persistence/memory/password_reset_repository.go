package memory

import (
	"context"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"

	"github.com/google/uuid"
)

type passwordResetRepository struct {
	v view
}

func (r *passwordResetRepository) Upsert(ctx context.Context, reset *entity.PasswordReset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		next := *reset
		if next.CreatedAt.IsZero() {
			next.CreatedAt = r.v.now()
		}
		st.resets[reset.AccountID] = next

		return nil
	})
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	accountID := uuid.Nil
	err := r.v.do(func(st *state) error {
		for id, reset := range st.resets {
			if reset.TokenHash != tokenHash || !reset.ExpiresAt.After(now) {
				continue
			}
			delete(st.resets, id)
			accountID = id

			return nil
		}

		return repository.ErrPasswordResetNotFound
	})

	return accountID, err
}
