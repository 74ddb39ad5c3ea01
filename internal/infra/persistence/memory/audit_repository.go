package memory

import (
	"context"
	"slices"
	"sync"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
)

// AuditRepository keeps appended entries in a slice.
type AuditRepository struct {
	mu      sync.Mutex
	entries []entity.AuditEntry
}

var _ repository.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository returns an empty sink.
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Append stores a copy of entry.
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)

	return nil
}

// Entries returns a snapshot of everything appended so far.
func (r *AuditRepository) Entries() []entity.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.entries)
}

// Actions lists the actions recorded so far, in order.
func (r *AuditRepository) Actions() []entity.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	actions := make([]entity.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		actions = append(actions, e.Action)
	}

	return actions
}
