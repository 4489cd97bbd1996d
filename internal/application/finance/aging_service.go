package finance

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// AgingQuery selects the documents of an aging report
type AgingQuery struct {
	Kind           finance.DocumentKind
	CounterpartyID *uuid.UUID
	AsOf           time.Time
}

// AgingRow is one open document in an aging report
type AgingRow struct {
	DocumentID     uuid.UUID           `json:"document_id"`
	DocumentNumber string              `json:"document_number"`
	CounterpartyID uuid.UUID           `json:"counterparty_id"`
	DueDate        *time.Time          `json:"due_date,omitempty"`
	Outstanding    string              `json:"outstanding"`
	DaysOverdue    int                 `json:"days_overdue"`
	Bucket         finance.AgingBucket `json:"bucket"`
}

// AgingBucketTotal sums one bucket
type AgingBucketTotal struct {
	Bucket  finance.AgingBucket `json:"bucket"`
	Count   int                 `json:"count"`
	Amount  string              `json:"amount"`
	Display string              `json:"display"`
}

// AgingReport lists open documents by overdue severity
type AgingReport struct {
	Kind         finance.DocumentKind `json:"kind"`
	AsOf         time.Time            `json:"as_of"`
	Rows         []AgingRow           `json:"rows"`
	Buckets      []AgingBucketTotal   `json:"buckets"`
	Total        string               `json:"total"`
	TotalDisplay string               `json:"total_display"`
}

// AgingService builds read-only aging reports. It takes no locks.
type AgingService struct {
	deps
	locale language.Tag
}

// NewAgingService creates a new AgingService. locale controls digit grouping
// of the display amounts.
func NewAgingService(store Store, locale language.Tag, opts ...Option) *AgingService {
	return &AgingService{deps: newDeps(store, opts), locale: locale}
}

// Report classifies every approved document of the kind with outstanding > 0
func (s *AgingService) Report(ctx context.Context, q AgingQuery) (*AgingReport, error) {
	if q.Kind != finance.KindBill && q.Kind != finance.KindSalesInvoice {
		return nil, &finance.ValidationError{Field: "kind", Message: "aging covers BILL or SALES_INVOICE documents"}
	}
	asOf := q.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}

	approved := finance.ApprovalApproved
	filter := finance.DocumentFilter{
		Filter:         shared.Filter{OrderBy: "due_date", OrderDir: "asc"},
		Kind:           &q.Kind,
		CounterpartyID: q.CounterpartyID,
		ApprovalStatus: &approved,
		OnlyOpen:       true,
	}
	docs, _, err := s.store.Repositories().Documents.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}

	totals := make(map[finance.AgingBucket]*AgingBucketTotal, len(finance.AgingBuckets))
	sums := make(map[finance.AgingBucket]decimal.Decimal, len(finance.AgingBuckets))
	for _, b := range finance.AgingBuckets {
		totals[b] = &AgingBucketTotal{Bucket: b}
		sums[b] = decimal.Zero
	}

	report := &AgingReport{Kind: q.Kind, AsOf: asOf, Rows: make([]AgingRow, 0, len(docs))}
	grand := decimal.Zero
	for i := range docs {
		doc := &docs[i]
		outstanding := doc.OutstandingAmount()
		if !outstanding.IsPositive() {
			continue
		}
		aging := doc.Aging(asOf)
		report.Rows = append(report.Rows, AgingRow{
			DocumentID:     doc.ID,
			DocumentNumber: doc.DocumentNumber,
			CounterpartyID: doc.CounterpartyID,
			DueDate:        doc.DueDate,
			Outstanding:    money(outstanding),
			DaysOverdue:    aging.DaysOverdue,
			Bucket:         aging.Bucket,
		})
		totals[aging.Bucket].Count++
		sums[aging.Bucket] = sums[aging.Bucket].Add(outstanding)
		grand = grand.Add(outstanding)
	}

	for _, b := range finance.AgingBuckets {
		t := totals[b]
		t.Amount = money(sums[b])
		t.Display = shared.DisplayMoney(s.locale, sums[b])
		report.Buckets = append(report.Buckets, *t)
	}
	report.Total = money(grand)
	report.TotalDisplay = shared.DisplayMoney(s.locale, grand)
	return report, nil
}
