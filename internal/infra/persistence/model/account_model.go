// Package model holds the GORM persistence models. They mirror the SQL schema and are
// mapped to and from domain entities inside the postgres package.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountModel mirrors the 'accounts' table. PostgreSQL generates UUIDs via uuid_generate_v7().
type AccountModel struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v7()"`
	Email                  string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	Name                   string     `gorm:"type:varchar(100);not null"`
	PasswordHash           string     `gorm:"type:varchar(255);not null"`
	Role                   string     `gorm:"type:varchar(20);not null"`
	Status                 string     `gorm:"type:varchar(20);not null;default:active"`
	FailedAttempts         int        `gorm:"not null;default:0"`
	LockUntil              *time.Time `gorm:"index"`
	TwoFactorEnabled       bool       `gorm:"not null;default:false"`
	TwoFactorSecret        *string    `gorm:"type:varchar(128)"`
	PendingTwoFactorSecret *string    `gorm:"type:varchar(128)"`
	CreatedAt              time.Time
	UpdatedAt              time.Time

	RecoveryCodes []RecoveryCodeModel `gorm:"foreignKey:AccountID"`
}

// TableName explicitly sets the table name for GORM.
func (AccountModel) TableName() string {
	return "accounts"
}

// RecoveryCodeModel mirrors the 'account_recovery_codes' table. One row per unused code.
type RecoveryCodeModel struct {
	AccountID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CodeHash  string    `gorm:"type:char(64);primaryKey"`
	CreatedAt time.Time
}

// TableName explicitly sets the table name for GORM.
func (RecoveryCodeModel) TableName() string {
	return "account_recovery_codes"
}
