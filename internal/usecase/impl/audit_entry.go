package impl

import (
	"context"

	"portal/internal/domain/entity"
	"portal/internal/usecase"

	"github.com/google/uuid"
)

type auditOption func(*entity.AuditEntry)

// withAccount attributes the entry to account and targets it.
func withAccount(account *entity.Account) auditOption {
	return func(e *entity.AuditEntry) {
		if account == nil {
			return
		}
		id := account.ID
		e.ActorID = &id
		e.ActorRole = account.Role
		e.EntityType = entity.AuditEntityAccount
		e.EntityID = account.ID.String()
		e.Metadata.Email = account.Email
	}
}

// withAccountID is withAccount for callers that only know the id.
func withAccountID(id uuid.UUID) auditOption {
	return func(e *entity.AuditEntry) {
		if id == uuid.Nil {
			return
		}
		e.ActorID = &id
		e.EntityType = entity.AuditEntityAccount
		e.EntityID = id.String()
	}
}

func withIdentity(identity *entity.Identity) auditOption {
	return func(e *entity.AuditEntry) {
		if identity == nil {
			return
		}
		withAccountID(identity.AccountID)(e)
		e.ActorRole = identity.Role
		e.Metadata.Email = identity.Email
	}
}

// withTarget names the account acted upon when it differs from the actor.
func withTarget(id uuid.UUID) auditOption {
	return func(e *entity.AuditEntry) {
		e.EntityType = entity.AuditEntityAccount
		e.EntityID = id.String()
	}
}

func withEmail(email string) auditOption {
	return func(e *entity.AuditEntry) {
		e.Metadata.Email = email
	}
}

func withReason(reason string) auditOption {
	return func(e *entity.AuditEntry) {
		e.Metadata.Reason = reason
	}
}

func withExtra(key, value string) auditOption {
	return func(e *entity.AuditEntry) {
		if e.Metadata.Extra == nil {
			e.Metadata.Extra = make(map[string]string)
		}
		e.Metadata.Extra[key] = value
	}
}

func recordAudit(
	ctx context.Context,
	audit usecase.AuditUsecase,
	action entity.AuditAction,
	outcome entity.AuditOutcome,
	opts ...auditOption,
) {
	entry := &entity.AuditEntry{
		Action:  action,
		Outcome: outcome,
	}
	for _, opt := range opts {
		opt(entry)
	}
	audit.Record(ctx, entry)
}
