package model

import (
	"time"

	"github.com/google/uuid"
)

// AuditMetadataModel is the jsonb payload of an audit row.
type AuditMetadataModel struct {
	Email     string            `json:"email,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// AuditEntryModel mirrors the append-only 'audit_entries' table.
type AuditEntryModel struct {
	ID         uuid.UUID          `gorm:"type:uuid;primary_key"`
	OccurredAt time.Time          `gorm:"not null;index"`
	ActorID    *uuid.UUID         `gorm:"type:uuid;index"`
	ActorRole  string             `gorm:"type:varchar(20)"`
	Action     string             `gorm:"type:varchar(64);not null;index"`
	EntityType string             `gorm:"type:varchar(64)"`
	EntityID   string             `gorm:"type:varchar(128)"`
	Outcome    string             `gorm:"type:varchar(16);not null"`
	Metadata   AuditMetadataModel `gorm:"type:jsonb;serializer:json"`
}

// TableName explicitly sets the table name for GORM.
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}
