package postgres

import (
	"context"
	"testing"

	domainerrors "portal/internal/domain/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestConstraintHelpers(t *testing.T) {
	unique := errors.Wrap(&pgconn.PgError{Code: "23505"}, "insert")
	fk := &pgconn.PgError{Code: "23503"}
	notNull := &pgconn.PgError{Code: "23502"}
	check := &pgconn.PgError{Code: "23514"}

	assert.True(t, isUniqueConstraintViolation(unique))
	assert.True(t, isUniqueConstraintViolation(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueConstraintViolation(fk))

	assert.True(t, isForeignKeyConstraintViolation(fk))
	assert.True(t, isNotNullConstraintViolation(notNull))
	assert.True(t, isCheckConstraintViolation(check))
	assert.False(t, isCheckConstraintViolation(errors.New("boom")))
}

func TestWrapStoreError(t *testing.T) {
	assert.NoError(t, wrapStoreError(nil, "noop"))

	var appErr domainerrors.AppError

	err := wrapStoreError(context.DeadlineExceeded, "find account")
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "DATABASE_EXECUTE_FAILED", appErr.ErrorCode())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	err = wrapStoreError(errors.New("connection refused"), "find account")
	assert.True(t, errors.As(err, &appErr))

	err = wrapStoreError(&pgconn.PgError{Code: "23502"}, "create account")
	assert.False(t, errors.As(err, &appErr))
}
