package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentModel is the persistence model for the FinancialDocument aggregate root.
// Line items, payments and audit entries live in child tables ordered by Position.
type DocumentModel struct {
	AggregateModel
	Kind              finance.DocumentKind   `gorm:"type:varchar(20);not null;index"`
	DocumentNumber    string                 `gorm:"type:varchar(50);not null;uniqueIndex"`
	CounterpartyID    uuid.UUID              `gorm:"type:uuid;not null;index"`
	IssueDate         time.Time              `gorm:"not null"`
	DueDate           *time.Time             `gorm:"index"`
	Subtotal          decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	TaxAmount         decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	LineItemDiscounts decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	DocumentDiscount  decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	TotalAmount       decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	PaidAmount        decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	CreditApplied     decimal.Decimal        `gorm:"type:decimal(18,2);not null"`
	OutstandingAmount decimal.Decimal        `gorm:"type:decimal(18,2);not null;index"`
	ApprovalStatus    finance.ApprovalStatus `gorm:"type:varchar(20);not null;default:'DRAFT';index"`
	IsLocked          bool                   `gorm:"not null;default:false"`
	RejectReason      string                 `gorm:"type:varchar(500)"`
	CancelReason      string                 `gorm:"type:varchar(500)"`
	SourceDocumentID  *uuid.UUID             `gorm:"type:uuid"`
	Remark            string                 `gorm:"type:text"`
	LineItems         []LineItemModel        `gorm:"foreignKey:DocumentID;references:ID"`
	Payments          []PaymentEntryModel    `gorm:"foreignKey:DocumentID;references:ID"`
	AuditLog          []AuditEntryModel      `gorm:"foreignKey:DocumentID;references:ID"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "financial_documents"
}

// ToDomain converts the persistence model to a domain FinancialDocument
func (m *DocumentModel) ToDomain() *finance.FinancialDocument {
	doc := &finance.FinancialDocument{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Kind:              m.Kind,
		DocumentNumber:    m.DocumentNumber,
		CounterpartyID:    m.CounterpartyID,
		IssueDate:         m.IssueDate,
		DueDate:           m.DueDate,
		Subtotal:          m.Subtotal,
		TaxAmount:         m.TaxAmount,
		LineItemDiscounts: m.LineItemDiscounts,
		DocumentDiscount:  m.DocumentDiscount,
		TotalAmount:       m.TotalAmount,
		PaidAmount:        m.PaidAmount,
		CreditApplied:     m.CreditApplied,
		ApprovalStatus:    m.ApprovalStatus,
		IsLocked:          m.IsLocked,
		RejectReason:      m.RejectReason,
		CancelReason:      m.CancelReason,
		SourceDocumentID:  m.SourceDocumentID,
		Remark:            m.Remark,
		LineItems:         make([]finance.LineItem, len(m.LineItems)),
		Payments:          make([]finance.PaymentEntry, len(m.Payments)),
		AuditLog:          make([]finance.AuditEntry, len(m.AuditLog)),
	}
	for i := range m.LineItems {
		doc.LineItems[i] = m.LineItems[i].ToDomain()
	}
	for i := range m.Payments {
		doc.Payments[i] = m.Payments[i].ToDomain()
	}
	for i := range m.AuditLog {
		doc.AuditLog[i] = m.AuditLog[i].ToDomain()
	}
	return doc
}

// FromDomain populates the persistence model from a domain FinancialDocument
func (m *DocumentModel) FromDomain(d *finance.FinancialDocument) {
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.Kind = d.Kind
	m.DocumentNumber = d.DocumentNumber
	m.CounterpartyID = d.CounterpartyID
	m.IssueDate = d.IssueDate
	m.DueDate = d.DueDate
	m.Subtotal = d.Subtotal
	m.TaxAmount = d.TaxAmount
	m.LineItemDiscounts = d.LineItemDiscounts
	m.DocumentDiscount = d.DocumentDiscount
	m.TotalAmount = d.TotalAmount
	m.PaidAmount = d.PaidAmount
	m.CreditApplied = d.CreditApplied
	m.OutstandingAmount = d.OutstandingAmount()
	m.ApprovalStatus = d.ApprovalStatus
	m.IsLocked = d.IsLocked
	m.RejectReason = d.RejectReason
	m.CancelReason = d.CancelReason
	m.SourceDocumentID = d.SourceDocumentID
	m.Remark = d.Remark

	m.LineItems = make([]LineItemModel, len(d.LineItems))
	for i, li := range d.LineItems {
		m.LineItems[i] = LineItemModelFromDomain(d.ID, i, li)
	}
	m.Payments = make([]PaymentEntryModel, len(d.Payments))
	for i, p := range d.Payments {
		m.Payments[i] = PaymentEntryModelFromDomain(d.ID, i, p)
	}
	m.AuditLog = make([]AuditEntryModel, len(d.AuditLog))
	for i, a := range d.AuditLog {
		m.AuditLog[i] = AuditEntryModelFromDomain(d.ID, i, a)
	}
}

// HeaderColumns returns the mutable header columns written on a versioned update
func (m *DocumentModel) HeaderColumns() map[string]any {
	return map[string]any{
		"due_date":            m.DueDate,
		"subtotal":            m.Subtotal,
		"tax_amount":          m.TaxAmount,
		"line_item_discounts": m.LineItemDiscounts,
		"document_discount":   m.DocumentDiscount,
		"total_amount":        m.TotalAmount,
		"paid_amount":         m.PaidAmount,
		"credit_applied":      m.CreditApplied,
		"outstanding_amount":  m.OutstandingAmount,
		"approval_status":     m.ApprovalStatus,
		"is_locked":           m.IsLocked,
		"reject_reason":       m.RejectReason,
		"cancel_reason":       m.CancelReason,
		"remark":              m.Remark,
		"updated_at":          m.UpdatedAt,
	}
}

// DocumentModelFromDomain creates a new persistence model from a domain FinancialDocument
func DocumentModelFromDomain(d *finance.FinancialDocument) *DocumentModel {
	m := &DocumentModel{}
	m.FromDomain(d)
	return m
}

// LineItemModel is one priced row of a document
type LineItemModel struct {
	ID            uuid.UUID                      `gorm:"type:uuid;primary_key"`
	DocumentID    uuid.UUID                      `gorm:"type:uuid;not null;index"`
	Position      int                            `gorm:"not null"`
	Description   string                         `gorm:"type:varchar(500);not null"`
	Quantity      decimal.Decimal                `gorm:"type:decimal(18,4);not null"`
	UnitRate      decimal.Decimal                `gorm:"type:decimal(18,2);not null"`
	Discount      decimal.Decimal                `gorm:"type:decimal(18,2);not null"`
	TaxComponents JSONList[finance.TaxComponent] `gorm:"type:jsonb"`
}

// TableName returns the table name for GORM
func (LineItemModel) TableName() string {
	return "document_line_items"
}

// ToDomain converts the model to a domain LineItem
func (m *LineItemModel) ToDomain() finance.LineItem {
	return finance.LineItem{
		ID:            m.ID,
		Description:   m.Description,
		Quantity:      m.Quantity,
		UnitRate:      m.UnitRate,
		Discount:      m.Discount,
		TaxComponents: append([]finance.TaxComponent(nil), m.TaxComponents...),
	}
}

// LineItemModelFromDomain creates a line item row at position
func LineItemModelFromDomain(documentID uuid.UUID, position int, li finance.LineItem) LineItemModel {
	return LineItemModel{
		ID:            li.ID,
		DocumentID:    documentID,
		Position:      position,
		Description:   li.Description,
		Quantity:      li.Quantity,
		UnitRate:      li.UnitRate,
		Discount:      li.Discount,
		TaxComponents: JSONList[finance.TaxComponent](li.TaxComponents),
	}
}

// PaymentEntryModel is an append-only payment history row
type PaymentEntryModel struct {
	ID              uuid.UUID             `gorm:"type:uuid;primary_key"`
	DocumentID      uuid.UUID             `gorm:"type:uuid;not null;index"`
	Position        int                   `gorm:"not null"`
	Amount          decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	Method          finance.PaymentMethod `gorm:"type:varchar(20);not null"`
	FundingSourceID *uuid.UUID            `gorm:"type:uuid;index"`
	SettlementID    *uuid.UUID            `gorm:"type:uuid;index"`
	Reference       string                `gorm:"type:varchar(100)"`
	RecordedAt      time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentEntryModel) TableName() string {
	return "document_payments"
}

// ToDomain converts the model to a domain PaymentEntry
func (m *PaymentEntryModel) ToDomain() finance.PaymentEntry {
	return finance.PaymentEntry{
		ID:              m.ID,
		Amount:          m.Amount,
		Method:          m.Method,
		FundingSourceID: m.FundingSourceID,
		SettlementID:    m.SettlementID,
		Reference:       m.Reference,
		RecordedAt:      m.RecordedAt,
	}
}

// PaymentEntryModelFromDomain creates a payment row at position
func PaymentEntryModelFromDomain(documentID uuid.UUID, position int, p finance.PaymentEntry) PaymentEntryModel {
	return PaymentEntryModel{
		ID:              p.ID,
		DocumentID:      documentID,
		Position:        position,
		Amount:          p.Amount,
		Method:          p.Method,
		FundingSourceID: p.FundingSourceID,
		SettlementID:    p.SettlementID,
		Reference:       p.Reference,
		RecordedAt:      p.RecordedAt,
	}
}

// AuditEntryModel is an append-only audit row
type AuditEntryModel struct {
	ID         uuid.UUID           `gorm:"type:uuid;primary_key"`
	DocumentID uuid.UUID           `gorm:"type:uuid;not null;index"`
	Position   int                 `gorm:"not null"`
	Action     finance.AuditAction `gorm:"type:varchar(40);not null"`
	Actor      string              `gorm:"type:varchar(100);not null"`
	Details    string              `gorm:"type:text"`
	Timestamp  time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "document_audit_entries"
}

// ToDomain converts the model to a domain AuditEntry
func (m *AuditEntryModel) ToDomain() finance.AuditEntry {
	return finance.AuditEntry{
		ID:        m.ID,
		Action:    m.Action,
		Actor:     m.Actor,
		Details:   m.Details,
		Timestamp: m.Timestamp,
	}
}

// AuditEntryModelFromDomain creates an audit row at position
func AuditEntryModelFromDomain(documentID uuid.UUID, position int, a finance.AuditEntry) AuditEntryModel {
	return AuditEntryModel{
		ID:         a.ID,
		DocumentID: documentID,
		Position:   position,
		Action:     a.Action,
		Actor:      a.Actor,
		Details:    a.Details,
		Timestamp:  a.Timestamp,
	}
}
