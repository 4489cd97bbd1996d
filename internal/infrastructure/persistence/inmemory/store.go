// Package inmemory keeps the settlement aggregates in process memory. It backs
// the "memory" database driver and the application tests, and gives the same
// version and atomic-debit guarantees as the GORM repositories.
package inmemory

import (
	"context"
	"maps"
	"sync"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
)

// tables holds immutable snapshots; a stored value is replaced, never mutated.
type tables struct {
	documents   map[uuid.UUID]*finance.FinancialDocument
	sources     map[uuid.UUID]*finance.FundingSource
	accounts    map[uuid.UUID]*finance.CreditAccount // keyed by counterparty
	creditTx    map[uuid.UUID][]finance.CreditTransaction
	settlements map[uuid.UUID]*finance.Settlement
}

func newTables() *tables {
	return &tables{
		documents:   make(map[uuid.UUID]*finance.FinancialDocument),
		sources:     make(map[uuid.UUID]*finance.FundingSource),
		accounts:    make(map[uuid.UUID]*finance.CreditAccount),
		creditTx:    make(map[uuid.UUID][]finance.CreditTransaction),
		settlements: make(map[uuid.UUID]*finance.Settlement),
	}
}

func (t *tables) copy() *tables {
	return &tables{
		documents:   maps.Clone(t.documents),
		sources:     maps.Clone(t.sources),
		accounts:    maps.Clone(t.accounts),
		creditTx:    maps.Clone(t.creditTx),
		settlements: maps.Clone(t.settlements),
	}
}

// Store is an in-memory finance.UnitOfWork.
//
// Do holds the store lock for the whole unit of work and works on a copy of
// the tables that is swapped in only when fn succeeds. Repositories handed
// to fn must be used instead of Store.Repositories while inside Do.
type Store struct {
	mu   sync.Mutex
	data *tables
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{data: newTables()}
}

// Do runs fn atomically
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos finance.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.copy()
	if err := fn(ctx, repositoriesOver(work, nil)); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Repositories returns repositories that lock the store per call
func (s *Store) Repositories() finance.Repositories {
	return repositoriesOver(nil, s)
}

func repositoriesOver(tx *tables, s *Store) finance.Repositories {
	v := view{tx: tx, store: s}
	return finance.Repositories{
		Documents:      &DocumentRepository{view: v},
		FundingSources: &FundingSourceRepository{view: v},
		Credits:        &CreditAccountRepository{view: v},
		Settlements:    &SettlementRepository{view: v},
	}
}

// view resolves the tables a repository call reads and writes: the unit of
// work's copy when inside Do, otherwise the store's tables under its lock.
type view struct {
	tx    *tables
	store *Store
}

func (v view) with(fn func(t *tables) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

// Ensure Store implements the interface
var _ finance.UnitOfWork = (*Store)(nil)
