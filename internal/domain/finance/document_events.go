package finance

import (
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants for financial documents
const (
	EventTypeDocumentCreated         = "DocumentCreated"
	EventTypeDocumentSubmitted       = "DocumentSubmitted"
	EventTypeDocumentApproved        = "DocumentApproved"
	EventTypeDocumentRejected        = "DocumentRejected"
	EventTypeDocumentCancelled       = "DocumentCancelled"
	EventTypeDocumentPaymentRecorded = "DocumentPaymentRecorded"
	EventTypeDocumentSettled         = "DocumentSettled"
	EventTypeSettlementRecorded      = "SettlementRecorded"
)

// DocumentRef identifies the document an event is about
type DocumentRef struct {
	DocumentID     uuid.UUID    `json:"document_id"`
	DocumentNumber string       `json:"document_number"`
	Kind           DocumentKind `json:"kind"`
	CounterpartyID uuid.UUID    `json:"counterparty_id"`
}

func refOf(d *FinancialDocument) DocumentRef {
	return DocumentRef{
		DocumentID:     d.ID,
		DocumentNumber: d.DocumentNumber,
		Kind:           d.Kind,
		CounterpartyID: d.CounterpartyID,
	}
}

// DocumentCreatedEvent is raised when a draft is created
type DocumentCreatedEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func NewDocumentCreatedEvent(d *FinancialDocument) *DocumentCreatedEvent {
	return &DocumentCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentCreated, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		TotalAmount:     d.TotalAmount,
	}
}

// DocumentSubmittedEvent is raised when a draft enters the approval workflow
type DocumentSubmittedEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	Actor string `json:"actor"`
}

func NewDocumentSubmittedEvent(d *FinancialDocument, actor string) *DocumentSubmittedEvent {
	return &DocumentSubmittedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentSubmitted, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		Actor:           actor,
	}
}

// DocumentApprovedEvent is raised when a document is approved.
// Line items are carried so stock can be reserved for sales invoices.
type DocumentApprovedEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	Actor       string          `json:"actor"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LineItems   []LineItem      `json:"line_items"`
}

func NewDocumentApprovedEvent(d *FinancialDocument, actor string) *DocumentApprovedEvent {
	return &DocumentApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentApproved, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		Actor:           actor,
		TotalAmount:     d.TotalAmount,
		LineItems:       append([]LineItem(nil), d.LineItems...),
	}
}

// DocumentRejectedEvent is raised when a document is rejected
type DocumentRejectedEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func NewDocumentRejectedEvent(d *FinancialDocument, actor, reason string) *DocumentRejectedEvent {
	return &DocumentRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentRejected, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		Actor:           actor,
		Reason:          reason,
	}
}

// DocumentCancelledEvent is raised when a document is cancelled
type DocumentCancelledEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
	NeedsReversal bool   `json:"needs_reversal"`
	WasApproved   bool   `json:"was_approved"`
}

func NewDocumentCancelledEvent(d *FinancialDocument, actor, reason string, needsReversal, wasApproved bool) *DocumentCancelledEvent {
	return &DocumentCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentCancelled, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		Actor:           actor,
		Reason:          reason,
		NeedsReversal:   needsReversal,
		WasApproved:     wasApproved,
	}
}

// DocumentPaymentRecordedEvent is raised for each payment entry applied
type DocumentPaymentRecordedEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	Amount      decimal.Decimal `json:"amount"`
	Method      PaymentMethod   `json:"method"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

func NewDocumentPaymentRecordedEvent(d *FinancialDocument, entry PaymentEntry) *DocumentPaymentRecordedEvent {
	return &DocumentPaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentPaymentRecorded, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		Amount:          entry.Amount,
		Method:          entry.Method,
		Outstanding:     d.OutstandingAmount(),
	}
}

// DocumentSettledEvent is raised when outstanding reaches zero
type DocumentSettledEvent struct {
	shared.BaseDomainEvent
	DocumentRef
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	CreditApplied decimal.Decimal `json:"credit_applied"`
}

func NewDocumentSettledEvent(d *FinancialDocument) *DocumentSettledEvent {
	return &DocumentSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDocumentSettled, AggregateTypeDocument, d.ID),
		DocumentRef:     refOf(d),
		TotalAmount:     d.TotalAmount,
		PaidAmount:      d.PaidAmount,
		CreditApplied:   d.CreditApplied,
	}
}
