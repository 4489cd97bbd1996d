package finance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/persistence/inmemory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	store       *inmemory.Store
	publisher   *recordingPublisher
	now         time.Time
	documents   *DocumentService
	settlements *SettlementService
	funding     *FundingService
	credits     *CreditService
	aging       *AgingService
}

func newFixture(t *testing.T, extra ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     inmemory.NewStore(),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC),
	}
	locker := cache.NewInMemoryLocker(5 * time.Second)
	opts := append([]Option{
		WithEventPublisher(f.publisher),
		WithClock(func() time.Time { return f.now }),
	}, extra...)

	f.documents = NewDocumentService(f.store, locker, opts...)
	f.settlements = NewSettlementService(f.store, locker, opts...)
	f.funding = NewFundingService(f.store, locker, opts...)
	f.credits = NewCreditService(f.store, locker, opts...)
	f.aging = NewAgingService(f.store, language.English, opts...)
	return f
}

func amount(s string) decimal.Decimal {
	return shared.MustMoney(s)
}

func lines(total string) []LineItemInput {
	return []LineItemInput{{
		Description: "Services",
		Quantity:    decimal.NewFromInt(1),
		UnitRate:    amount(total),
	}}
}

// draft creates a draft document of the given total
func (f *fixture) draft(t *testing.T, kind finance.DocumentKind, counterpartyID uuid.UUID, total string, due *time.Time) *DocumentResponse {
	t.Helper()
	issue := f.now.AddDate(0, -3, 0)
	doc, err := f.documents.Create(context.Background(), CreateDocumentRequest{
		Kind:           string(kind),
		CounterpartyID: counterpartyID,
		IssueDate:      &issue,
		DueDate:        due,
		LineItems:      lines(total),
	}, "alice")
	require.NoError(t, err)
	return doc
}

// approved creates and approves a document of the given total
func (f *fixture) approved(t *testing.T, kind finance.DocumentKind, counterpartyID uuid.UUID, total string, due *time.Time) *DocumentResponse {
	t.Helper()
	doc := f.draft(t, kind, counterpartyID, total, due)
	approved, err := f.documents.Approve(context.Background(), doc.ID, "bob")
	require.NoError(t, err)
	return approved
}

func (f *fixture) source(t *testing.T, name string, kind finance.FundingSourceKind, balance string) uuid.UUID {
	t.Helper()
	src, err := f.funding.Create(context.Background(), CreateFundingSourceRequest{
		Name:           name,
		Kind:           string(kind),
		OpeningBalance: amount(balance),
	})
	require.NoError(t, err)
	return src.ID
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	src, err := f.funding.Get(context.Background(), id)
	require.NoError(t, err)
	return src.AvailableBalance
}

func (f *fixture) document(t *testing.T, id uuid.UUID) *DocumentResponse {
	t.Helper()
	doc, err := f.documents.Get(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func (f *fixture) creditBalance(t *testing.T, counterpartyID uuid.UUID) string {
	t.Helper()
	bal, err := f.credits.Balance(context.Background(), counterpartyID)
	require.NoError(t, err)
	return bal.AvailableCredit
}

func leg(id uuid.UUID, value string) FundingLegInput {
	return FundingLegInput{FundingSourceID: id, Amount: amount(value)}
}

func ptr[T any](v T) *T {
	return &v
}

func auditActions(doc *DocumentResponse) []string {
	out := make([]string, len(doc.AuditLog))
	for i, a := range doc.AuditLog {
		out[i] = a.Action
	}
	return out
}
