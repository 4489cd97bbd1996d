package inmemory

import (
	"slices"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
)

// cloneRoot copies identity and version, dropping pending domain events
func cloneRoot(r shared.BaseAggregateRoot) shared.BaseAggregateRoot {
	return shared.BaseAggregateRoot{BaseEntity: r.BaseEntity, Version: r.Version}
}

func cloneDocument(d *finance.FinancialDocument) *finance.FinancialDocument {
	c := *d
	c.BaseAggregateRoot = cloneRoot(d.BaseAggregateRoot)
	c.DueDate = clonePtr(d.DueDate)
	c.SourceDocumentID = clonePtr(d.SourceDocumentID)
	c.LineItems = make([]finance.LineItem, len(d.LineItems))
	for i, item := range d.LineItems {
		item.TaxComponents = slices.Clone(item.TaxComponents)
		c.LineItems[i] = item
	}
	c.Payments = make([]finance.PaymentEntry, len(d.Payments))
	for i, p := range d.Payments {
		p.FundingSourceID = clonePtr(p.FundingSourceID)
		p.SettlementID = clonePtr(p.SettlementID)
		c.Payments[i] = p
	}
	c.AuditLog = slices.Clone(d.AuditLog)
	return &c
}

func cloneFundingSource(f *finance.FundingSource) *finance.FundingSource {
	c := *f
	c.BaseAggregateRoot = cloneRoot(f.BaseAggregateRoot)
	return &c
}

// cloneCreditAccount copies the balance only; pending transactions belong
// to the caller's copy until Save appends them.
func cloneCreditAccount(a *finance.CreditAccount) *finance.CreditAccount {
	return &finance.CreditAccount{
		BaseAggregateRoot: cloneRoot(a.BaseAggregateRoot),
		CounterpartyID:    a.CounterpartyID,
		AvailableCredit:   a.AvailableCredit,
	}
}

func cloneSettlement(s *finance.Settlement) *finance.Settlement {
	c := *s
	c.BaseAggregateRoot = cloneRoot(s.BaseAggregateRoot)
	c.Legs = slices.Clone(s.Legs)
	c.Allocations = slices.Clone(s.Allocations)
	return &c
}

func cloneTransaction(t finance.CreditTransaction) finance.CreditTransaction {
	t.SourceID = clonePtr(t.SourceID)
	return t
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// page applies filter pagination to an already sorted slice
func page[T any](items []T, filter shared.Filter) []T {
	if filter.PageSize <= 0 {
		return items
	}
	start := filter.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := min(start+filter.PageSize, len(items))
	return items[start:end]
}

func ascending(filter shared.Filter) bool {
	return filter.OrderDir == "asc" || filter.OrderDir == "ASC"
}
