package finance

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentFilter defines filtering options for document queries
type DocumentFilter struct {
	shared.Filter
	Kind           *DocumentKind   // Filter by kind
	CounterpartyID *uuid.UUID      // Filter by counterparty
	ApprovalStatus *ApprovalStatus // Filter by approval status
	OnlyOpen       bool            // Only documents with outstanding > 0
	DueBefore      *time.Time      // Filter by due date
}

// DocumentRepository defines the interface for financial document persistence.
//
// Save inserts aggregates at version 0 and otherwise updates only when the
// stored version still equals the loaded one, returning a
// *ConcurrencyConflictError when it does not. On success the in-memory
// version is bumped.
type DocumentRepository interface {
	// FindByID finds a document by ID, payments and audit log included
	FindByID(ctx context.Context, id uuid.UUID) (*FinancialDocument, error)

	// FindByNumber finds a document by its human-readable number
	FindByNumber(ctx context.Context, number string) (*FinancialDocument, error)

	// FindOpenByCounterparty returns approved documents of a kind with
	// outstanding > 0, ordered by due date, issue date then number
	FindOpenByCounterparty(ctx context.Context, counterpartyID uuid.UUID, kind DocumentKind) ([]FinancialDocument, error)

	// FindAll finds documents with filtering and returns the total count
	FindAll(ctx context.Context, filter DocumentFilter) ([]FinancialDocument, int64, error)

	// Save creates or updates a document with optimistic locking
	Save(ctx context.Context, doc *FinancialDocument) error

	// Delete removes a document
	Delete(ctx context.Context, id uuid.UUID) error
}

// FundingSourceRepository defines the interface for funding source persistence.
// Balance changes go through Debit and Credit, never through Save.
type FundingSourceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FundingSource, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]FundingSource, int64, error)

	// Create persists a new funding source
	Create(ctx context.Context, source *FundingSource) error

	// Debit decrements the balance if and only if it covers amount, in a
	// single atomic step. It reports false when the balance was too low.
	Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error)

	// Credit increments the balance
	Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
}

// CreditAccountRepository defines the interface for counterparty credit persistence
type CreditAccountRepository interface {
	// FindByCounterparty returns shared.ErrNotFound for a counterparty with no account
	FindByCounterparty(ctx context.Context, counterpartyID uuid.UUID) (*CreditAccount, error)

	// FindOrCreate returns the existing account or a fresh unsaved one
	FindOrCreate(ctx context.Context, counterpartyID uuid.UUID) (*CreditAccount, error)

	// ListTransactions returns the credit history, newest first
	ListTransactions(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]CreditTransaction, int64, error)

	// Save persists the balance with optimistic locking and appends pending transactions
	Save(ctx context.Context, account *CreditAccount) error
}

// SettlementRepository defines the interface for settlement persistence
type SettlementRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Settlement, error)
	FindByCounterparty(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]Settlement, int64, error)
	Create(ctx context.Context, settlement *Settlement) error
}

// Repositories bundles the repositories bound to one unit of work
type Repositories struct {
	Documents      DocumentRepository
	FundingSources FundingSourceRepository
	Credits        CreditAccountRepository
	Settlements    SettlementRepository
}

// UnitOfWork runs fn against repositories that commit together. If fn
// returns an error nothing it wrote is kept.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
