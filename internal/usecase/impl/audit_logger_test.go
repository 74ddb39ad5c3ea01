package impl

import (
	"context"
	"testing"

	deliverycontext "portal/internal/delivery/context"
	"portal/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_StampsRequestContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := deliverycontext.WithRequestID(context.Background(), "req-123")
	ctx = deliverycontext.WithClientIP(ctx, "192.0.2.44")

	env.audit.Record(ctx, &entity.AuditEntry{
		Action:  entity.AuditActionLogout,
		Outcome: entity.AuditOutcomeSuccess,
	})

	entries := env.auditRepo.Entries()
	require.Len(t, entries, 1)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.Equal(t, env.clock.Now(), entries[0].Timestamp)
	assert.Equal(t, "req-123", entries[0].Metadata.RequestID)
	assert.Equal(t, "192.0.2.44", entries[0].Metadata.ClientIP)
}

func TestAuditLogger_DropsInvalidEntries(t *testing.T) {
	env := newTestEnv(t)

	env.audit.Record(context.Background(), &entity.AuditEntry{Action: entity.AuditActionLogin})
	env.audit.Record(context.Background(), &entity.AuditEntry{
		Action:    entity.AuditActionLogin,
		Outcome:   entity.AuditOutcomeSuccess,
		ActorRole: entity.Role("janitor"),
	})
	env.audit.Record(context.Background(), nil)

	assert.Empty(t, env.auditRepo.Entries())
}

func TestAuditLogger_OutlivesCallerCancellation(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env.audit.Record(ctx, &entity.AuditEntry{
		Action:  entity.AuditActionLogin,
		Outcome: entity.AuditOutcomeFailure,
	})

	assert.Len(t, env.auditRepo.Entries(), 1)
}
