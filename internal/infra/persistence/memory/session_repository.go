package memory

import (
	"context"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"

	"github.com/google/uuid"
)

type sessionRepository struct {
	v view
}

func (r *sessionRepository) UpsertByAccount(ctx context.Context, record *entity.SessionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		now := r.v.now()
		next := *record
		next.UpdatedAt = now
		if existing, ok := st.sessions[record.AccountID]; ok {
			next.CreatedAt = existing.CreatedAt
		} else {
			next.CreatedAt = now
		}
		st.sessions[record.AccountID] = next

		return nil
	})
}

func (r *sessionRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*entity.SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *entity.SessionRecord
	err := r.v.do(func(st *state) error {
		record, ok := st.sessions[accountID]
		if !ok {
			return repository.ErrSessionNotFound
		}
		found = &record

		return nil
	})

	return found, err
}

func (r *sessionRepository) CompareAndSwap(
	ctx context.Context,
	accountID uuid.UUID,
	oldHash string,
	next *entity.SessionRecord,
	now time.Time,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	swapped := false
	err := r.v.do(func(st *state) error {
		record, ok := st.sessions[accountID]
		if !ok || record.TokenHash != oldHash || !record.ExpiresAt.After(now) {
			return nil
		}
		record.TokenHash = next.TokenHash
		record.ExpiresAt = next.ExpiresAt
		record.UpdatedAt = r.v.now()
		st.sessions[accountID] = record
		swapped = true

		return nil
	})

	return swapped, err
}

func (r *sessionRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.v.do(func(st *state) error {
		delete(st.sessions, accountID)

		return nil
	})
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var removed int64
	err := r.v.do(func(st *state) error {
		for id, record := range st.sessions {
			if !record.ExpiresAt.After(now) {
				delete(st.sessions, id)
				removed++
			}
		}

		return nil
	})

	return removed, err
}
