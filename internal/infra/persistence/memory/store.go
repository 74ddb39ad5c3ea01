package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"portal/internal/domain/entity"
	"portal/internal/domain/repository"
	"portal/internal/domain/service"

	"github.com/google/uuid"
)

type state struct {
	accounts      map[uuid.UUID]entity.Account
	emails        map[string]uuid.UUID
	recoveryCodes map[uuid.UUID]map[string]struct{}
	sessions      map[uuid.UUID]entity.SessionRecord
	resets        map[uuid.UUID]entity.PasswordReset
}

func newState() *state {
	return &state{
		accounts:      make(map[uuid.UUID]entity.Account),
		emails:        make(map[string]uuid.UUID),
		recoveryCodes: make(map[uuid.UUID]map[string]struct{}),
		sessions:      make(map[uuid.UUID]entity.SessionRecord),
		resets:        make(map[uuid.UUID]entity.PasswordReset),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:      maps.Clone(s.accounts),
		emails:        maps.Clone(s.emails),
		recoveryCodes: make(map[uuid.UUID]map[string]struct{}, len(s.recoveryCodes)),
		sessions:      maps.Clone(s.sessions),
		resets:        maps.Clone(s.resets),
	}
	for id, codes := range s.recoveryCodes {
		c.recoveryCodes[id] = maps.Clone(codes)
	}

	return c
}

// Store is an in-process account, session and password-reset store.
// Every operation runs under one mutex, which gives the same single-statement
// atomicity the SQL adapters get from row locks.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock service.Clock
}

// NewStore returns an empty store stamping rows with clock.
func NewStore(clock service.Clock) *Store {
	return &Store{data: newState(), clock: clock}
}

// view routes repository calls either to the live state under mu or, inside Execute,
// to the transaction's working copy whose lock is already held.
type view struct {
	store *Store
	tx    *state
}

func (v view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()

	return fn(v.store.data)
}

func (v view) now() time.Time {
	return v.store.clock.Now()
}

// AccountRepo returns the account repository backed by the store.
func (s *Store) AccountRepo() repository.AccountRepository {
	return &accountRepository{view{store: s}}
}

// SessionRepo returns the session repository backed by the store.
func (s *Store) SessionRepo() repository.SessionRepository {
	return &sessionRepository{view{store: s}}
}

// PasswordResetRepo returns the password reset repository backed by the store.
func (s *Store) PasswordResetRepo() repository.PasswordResetRepository {
	return &passwordResetRepository{view{store: s}}
}

// TransactionManager returns a manager whose transactions commit atomically into the store.
func (s *Store) TransactionManager() repository.TransactionManager {
	return &txManager{store: s}
}

type txManager struct {
	store *Store
}

type txFactory struct {
	v view
}

func (f *txFactory) AccountRepo() repository.AccountRepository {
	return &accountRepository{f.v}
}

func (f *txFactory) SessionRepo() repository.SessionRepository {
	return &sessionRepository{f.v}
}

func (f *txFactory) PasswordResetRepo() repository.PasswordResetRepository {
	return &passwordResetRepository{f.v}
}

// Execute works on a copy of the state and swaps it in only when fn succeeds.
func (m *txManager) Execute(ctx context.Context, fn func(txRepoFactory repository.RepositoryFactory) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	working := m.store.data.clone()
	if err := fn(&txFactory{v: view{store: m.store, tx: working}}); err != nil {
		return err
	}
	m.store.data = working

	return nil
}
