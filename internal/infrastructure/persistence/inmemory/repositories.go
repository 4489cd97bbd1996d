package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentRepository implements finance.DocumentRepository in memory
type DocumentRepository struct {
	view
}

// FindByID finds a document by ID
func (r *DocumentRepository) FindByID(_ context.Context, id uuid.UUID) (*finance.FinancialDocument, error) {
	var out *finance.FinancialDocument
	err := r.with(func(t *tables) error {
		doc, ok := t.documents[id]
		if !ok {
			return fmt.Errorf("document %s: %w", id, shared.ErrNotFound)
		}
		out = cloneDocument(doc)
		return nil
	})
	return out, err
}

// FindByNumber finds a document by its number
func (r *DocumentRepository) FindByNumber(_ context.Context, number string) (*finance.FinancialDocument, error) {
	var out *finance.FinancialDocument
	err := r.with(func(t *tables) error {
		for _, doc := range t.documents {
			if doc.DocumentNumber == number {
				out = cloneDocument(doc)
				return nil
			}
		}
		return fmt.Errorf("document %s: %w", number, shared.ErrNotFound)
	})
	return out, err
}

// FindOpenByCounterparty returns approved documents with outstanding > 0,
// earliest due first and undated documents last
func (r *DocumentRepository) FindOpenByCounterparty(_ context.Context, counterpartyID uuid.UUID, kind finance.DocumentKind) ([]finance.FinancialDocument, error) {
	var out []finance.FinancialDocument
	err := r.with(func(t *tables) error {
		for _, doc := range t.documents {
			if doc.CounterpartyID != counterpartyID || doc.Kind != kind {
				continue
			}
			if doc.ApprovalStatus != finance.ApprovalApproved || !doc.OutstandingAmount().IsPositive() {
				continue
			}
			out = append(out, *cloneDocument(doc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b finance.FinancialDocument) int {
		if c := compareDue(a.DueDate, b.DueDate); c != 0 {
			return c
		}
		if c := a.IssueDate.Compare(b.IssueDate); c != 0 {
			return c
		}
		return strings.Compare(a.DocumentNumber, b.DocumentNumber)
	})
	return out, nil
}

// FindAll finds documents matching filter and returns the total count
func (r *DocumentRepository) FindAll(_ context.Context, filter finance.DocumentFilter) ([]finance.FinancialDocument, int64, error) {
	var matched []finance.FinancialDocument
	err := r.with(func(t *tables) error {
		for _, doc := range t.documents {
			if matchesDocument(doc, filter) {
				matched = append(matched, *cloneDocument(doc))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	asc := ascending(filter.Filter)
	slices.SortFunc(matched, func(a, b finance.FinancialDocument) int {
		c := compareDocuments(&a, &b, filter.OrderBy)
		if c == 0 {
			c = strings.Compare(a.DocumentNumber, b.DocumentNumber)
		}
		if !asc {
			c = -c
		}
		return c
	})
	return page(matched, filter.Filter), int64(len(matched)), nil
}

func matchesDocument(doc *finance.FinancialDocument, filter finance.DocumentFilter) bool {
	switch {
	case filter.Kind != nil && doc.Kind != *filter.Kind:
		return false
	case filter.CounterpartyID != nil && doc.CounterpartyID != *filter.CounterpartyID:
		return false
	case filter.ApprovalStatus != nil && doc.ApprovalStatus != *filter.ApprovalStatus:
		return false
	case filter.OnlyOpen && !doc.OutstandingAmount().IsPositive():
		return false
	case filter.DueBefore != nil && (doc.DueDate == nil || !doc.DueDate.Before(*filter.DueBefore)):
		return false
	}
	return true
}

func compareDocuments(a, b *finance.FinancialDocument, field string) int {
	switch field {
	case "document_number":
		return strings.Compare(a.DocumentNumber, b.DocumentNumber)
	case "issue_date":
		return a.IssueDate.Compare(b.IssueDate)
	case "due_date":
		return compareDue(a.DueDate, b.DueDate)
	case "total_amount":
		return a.TotalAmount.Cmp(b.TotalAmount)
	case "paid_amount":
		return a.PaidAmount.Cmp(b.PaidAmount)
	case "outstanding_amount":
		return a.OutstandingAmount().Cmp(b.OutstandingAmount())
	case "approval_status":
		return strings.Compare(string(a.ApprovalStatus), string(b.ApprovalStatus))
	case "kind":
		return strings.Compare(string(a.Kind), string(b.Kind))
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// compareDue orders dated documents before undated ones
func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// Save inserts a document at version 0 or replaces it under its version
func (r *DocumentRepository) Save(_ context.Context, doc *finance.FinancialDocument) error {
	return r.with(func(t *tables) error {
		stored, exists := t.documents[doc.ID]
		if doc.Version == 0 {
			if exists {
				return fmt.Errorf("document %s: %w", doc.ID, shared.ErrAlreadyExists)
			}
			for _, other := range t.documents {
				if other.DocumentNumber == doc.DocumentNumber {
					return fmt.Errorf("document number %s: %w", doc.DocumentNumber, shared.ErrAlreadyExists)
				}
			}
		} else if !exists || stored.Version != doc.Version {
			return finance.NewConcurrencyConflictError("document", doc.ID, doc.Version)
		}

		doc.Version++
		t.documents[doc.ID] = cloneDocument(doc)
		return nil
	})
}

// Delete removes a document
func (r *DocumentRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.with(func(t *tables) error {
		if _, ok := t.documents[id]; !ok {
			return fmt.Errorf("document %s: %w", id, shared.ErrNotFound)
		}
		delete(t.documents, id)
		return nil
	})
}

// FundingSourceRepository implements finance.FundingSourceRepository in memory
type FundingSourceRepository struct {
	view
}

// FindByID finds a funding source by ID
func (r *FundingSourceRepository) FindByID(_ context.Context, id uuid.UUID) (*finance.FundingSource, error) {
	var out *finance.FundingSource
	err := r.with(func(t *tables) error {
		src, ok := t.sources[id]
		if !ok {
			return fmt.Errorf("funding source %s: %w", id, shared.ErrNotFound)
		}
		out = cloneFundingSource(src)
		return nil
	})
	return out, err
}

// FindAll lists funding sources
func (r *FundingSourceRepository) FindAll(_ context.Context, filter shared.Filter) ([]finance.FundingSource, int64, error) {
	var all []finance.FundingSource
	err := r.with(func(t *tables) error {
		for _, src := range t.sources {
			all = append(all, *cloneFundingSource(src))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	asc := ascending(filter)
	slices.SortFunc(all, func(a, b finance.FundingSource) int {
		var c int
		switch filter.OrderBy {
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "kind":
			c = strings.Compare(string(a.Kind), string(b.Kind))
		case "available_balance":
			c = a.AvailableBalance.Cmp(b.AvailableBalance)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(a.Name, b.Name)
		}
		if !asc {
			c = -c
		}
		return c
	})
	return page(all, filter), int64(len(all)), nil
}

// Create stores a new funding source. Names are unique.
func (r *FundingSourceRepository) Create(_ context.Context, source *finance.FundingSource) error {
	return r.with(func(t *tables) error {
		if _, ok := t.sources[source.ID]; ok {
			return fmt.Errorf("funding source %s: %w", source.ID, shared.ErrAlreadyExists)
		}
		for _, other := range t.sources {
			if strings.EqualFold(other.Name, source.Name) {
				return fmt.Errorf("funding source %q: %w", source.Name, shared.ErrAlreadyExists)
			}
		}
		source.Version = 1
		t.sources[source.ID] = cloneFundingSource(source)
		return nil
	})
}

// Debit draws amount only when the stored balance covers it
func (r *FundingSourceRepository) Debit(_ context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	var ok bool
	err := r.with(func(t *tables) error {
		src, found := t.sources[id]
		if !found {
			return fmt.Errorf("funding source %s: %w", id, shared.ErrNotFound)
		}
		if src.AvailableBalance.LessThan(amount) {
			return nil
		}
		next := cloneFundingSource(src)
		next.AvailableBalance = next.AvailableBalance.Sub(amount)
		next.Version++
		next.Touch()
		t.sources[id] = next
		ok = true
		return nil
	})
	return ok, err
}

// Credit adds amount to the stored balance
func (r *FundingSourceRepository) Credit(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.with(func(t *tables) error {
		src, found := t.sources[id]
		if !found {
			return fmt.Errorf("funding source %s: %w", id, shared.ErrNotFound)
		}
		next := cloneFundingSource(src)
		next.AvailableBalance = next.AvailableBalance.Add(amount)
		next.Version++
		next.Touch()
		t.sources[id] = next
		return nil
	})
}

// CreditAccountRepository implements finance.CreditAccountRepository in memory
type CreditAccountRepository struct {
	view
}

// FindByCounterparty returns the counterparty's credit account
func (r *CreditAccountRepository) FindByCounterparty(_ context.Context, counterpartyID uuid.UUID) (*finance.CreditAccount, error) {
	var out *finance.CreditAccount
	err := r.with(func(t *tables) error {
		acc, ok := t.accounts[counterpartyID]
		if !ok {
			return fmt.Errorf("credit account for %s: %w", counterpartyID, shared.ErrNotFound)
		}
		out = cloneCreditAccount(acc)
		return nil
	})
	return out, err
}

// FindOrCreate returns the stored account or a new unsaved one
func (r *CreditAccountRepository) FindOrCreate(ctx context.Context, counterpartyID uuid.UUID) (*finance.CreditAccount, error) {
	acc, err := r.FindByCounterparty(ctx, counterpartyID)
	if err == nil {
		return acc, nil
	}
	if shared.KindOf(err) == shared.KindNotFound {
		return finance.NewCreditAccount(counterpartyID), nil
	}
	return nil, err
}

// ListTransactions returns credit history, newest first unless asked otherwise
func (r *CreditAccountRepository) ListTransactions(_ context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]finance.CreditTransaction, int64, error) {
	var all []finance.CreditTransaction
	err := r.with(func(t *tables) error {
		for _, tx := range t.creditTx[counterpartyID] {
			all = append(all, cloneTransaction(tx))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	asc := ascending(filter)
	// history is kept in insertion order, which breaks timestamp ties
	order := make(map[uuid.UUID]int, len(all))
	for i, tx := range all {
		order[tx.ID] = i
	}
	slices.SortStableFunc(all, func(a, b finance.CreditTransaction) int {
		var c int
		switch filter.OrderBy {
		case "amount":
			c = a.Amount.Cmp(b.Amount)
		case "type":
			c = strings.Compare(string(a.Type), string(b.Type))
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(order[a.ID], order[b.ID])
		}
		if !asc {
			c = -c
		}
		return c
	})
	return page(all, filter), int64(len(all)), nil
}

// Save stores the balance under its version and appends pending transactions
func (r *CreditAccountRepository) Save(_ context.Context, account *finance.CreditAccount) error {
	return r.with(func(t *tables) error {
		stored, exists := t.accounts[account.CounterpartyID]
		if account.Version == 0 {
			if exists {
				return finance.NewConcurrencyConflictError("credit_account", account.ID, 0)
			}
		} else if !exists || stored.Version != account.Version {
			return finance.NewConcurrencyConflictError("credit_account", account.ID, account.Version)
		}

		history := slices.Clip(t.creditTx[account.CounterpartyID])
		for _, tx := range account.PendingTransactions() {
			history = append(history, cloneTransaction(tx))
		}
		t.creditTx[account.CounterpartyID] = history

		account.Version++
		account.ClearPendingTransactions()
		t.accounts[account.CounterpartyID] = cloneCreditAccount(account)
		return nil
	})
}

// SettlementRepository implements finance.SettlementRepository in memory
type SettlementRepository struct {
	view
}

// FindByID finds a settlement by ID
func (r *SettlementRepository) FindByID(_ context.Context, id uuid.UUID) (*finance.Settlement, error) {
	var out *finance.Settlement
	err := r.with(func(t *tables) error {
		s, ok := t.settlements[id]
		if !ok {
			return fmt.Errorf("settlement %s: %w", id, shared.ErrNotFound)
		}
		out = cloneSettlement(s)
		return nil
	})
	return out, err
}

// FindByCounterparty lists a counterparty's settlements
func (r *SettlementRepository) FindByCounterparty(_ context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]finance.Settlement, int64, error) {
	var all []finance.Settlement
	err := r.with(func(t *tables) error {
		for _, s := range t.settlements {
			if s.CounterpartyID == counterpartyID {
				all = append(all, *cloneSettlement(s))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	asc := ascending(filter)
	slices.SortFunc(all, func(a, b finance.Settlement) int {
		var c int
		switch filter.OrderBy {
		case "number":
			c = strings.Compare(a.Number, b.Number)
		case "total_amount":
			c = a.TotalAmount.Cmp(b.TotalAmount)
		case "credit_consumed":
			c = a.CreditConsumed.Cmp(b.CreditConsumed)
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		default:
			c = a.RecordedAt.Compare(b.RecordedAt)
		}
		if c == 0 {
			c = strings.Compare(a.ID.String(), b.ID.String())
		}
		if !asc {
			c = -c
		}
		return c
	})
	return page(all, filter), int64(len(all)), nil
}

// Create stores a settlement
func (r *SettlementRepository) Create(_ context.Context, settlement *finance.Settlement) error {
	return r.with(func(t *tables) error {
		if _, ok := t.settlements[settlement.ID]; ok {
			return fmt.Errorf("settlement %s: %w", settlement.ID, shared.ErrAlreadyExists)
		}
		settlement.Version = 1
		t.settlements[settlement.ID] = cloneSettlement(settlement)
		return nil
	})
}

// Ensure the repositories implement the interfaces
var (
	_ finance.DocumentRepository      = (*DocumentRepository)(nil)
	_ finance.FundingSourceRepository = (*FundingSourceRepository)(nil)
	_ finance.CreditAccountRepository = (*CreditAccountRepository)(nil)
	_ finance.SettlementRepository    = (*SettlementRepository)(nil)
)
