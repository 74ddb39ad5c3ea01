package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionModel mirrors the 'sessions' table. account_id is the primary key, which is what
// limits every account to a single live refresh session.
type SessionModel struct {
	AccountID uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenHash string    `gorm:"type:char(64);not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (SessionModel) TableName() string {
	return "sessions"
}

// PasswordResetModel mirrors the 'password_resets' table.
type PasswordResetModel struct {
	AccountID uuid.UUID `gorm:"type:uuid;primaryKey"`
	TokenHash string    `gorm:"type:char(64);uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (PasswordResetModel) TableName() string {
	return "password_resets"
}
