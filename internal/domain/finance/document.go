package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeDocument is the aggregate type for financial documents
const AggregateTypeDocument = "FinancialDocument"

// DocumentKind is the polymorphic variant of a financial document
type DocumentKind string

const (
	KindBill         DocumentKind = "BILL"
	KindSalesInvoice DocumentKind = "SALES_INVOICE"
	KindCreditNote   DocumentKind = "CREDIT_NOTE"
)

// Direction is the way money moves when a document is settled
type Direction string

const (
	DirectionPayable    Direction = "PAYABLE"
	DirectionReceivable Direction = "RECEIVABLE"
	DirectionCredit     Direction = "CREDIT"
)

func (k DocumentKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is known
func (k DocumentKind) IsValid() bool {
	switch k {
	case KindBill, KindSalesInvoice, KindCreditNote:
		return true
	}
	return false
}

// Direction returns how settlement moves money for this kind
func (k DocumentKind) Direction() Direction {
	switch k {
	case KindBill:
		return DirectionPayable
	case KindSalesInvoice:
		return DirectionReceivable
	default:
		return DirectionCredit
	}
}

// NumberPrefix returns the document number prefix for this kind
func (k DocumentKind) NumberPrefix() string {
	switch k {
	case KindBill:
		return "BILL"
	case KindSalesInvoice:
		return "INV"
	default:
		return "CN"
	}
}

// ApprovalStatus is the workflow state of a document
type ApprovalStatus string

const (
	ApprovalDraft           ApprovalStatus = "DRAFT"
	ApprovalPendingApproval ApprovalStatus = "PENDING_APPROVAL"
	ApprovalApproved        ApprovalStatus = "APPROVED"
	ApprovalRejected        ApprovalStatus = "REJECTED"
	ApprovalCancelled       ApprovalStatus = "CANCELLED"
)

func (s ApprovalStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalDraft, ApprovalPendingApproval, ApprovalApproved, ApprovalRejected, ApprovalCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for statuses no transition leaves
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalRejected || s == ApprovalCancelled
}

// CanDecide returns true if the document may be approved or rejected
func (s ApprovalStatus) CanDecide() bool {
	return s == ApprovalDraft || s == ApprovalPendingApproval
}

// CanCancel returns true if the document may be cancelled
func (s ApprovalStatus) CanCancel() bool {
	return s == ApprovalDraft || s == ApprovalApproved
}

// AcceptsPayment returns true if payments or credit may be applied
func (s ApprovalStatus) AcceptsPayment() bool {
	return s == ApprovalApproved
}

// PaymentStatus is the derived settlement state of a document
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// FinancialDocument is the shape shared by bills, sales invoices and credit
// notes. Money fields other than PaidAmount and CreditApplied are derived
// from the line items on every change.
type FinancialDocument struct {
	shared.BaseAggregateRoot
	Kind              DocumentKind
	DocumentNumber    string
	CounterpartyID    uuid.UUID
	IssueDate         time.Time
	DueDate           *time.Time
	LineItems         []LineItem
	Subtotal          decimal.Decimal
	TaxAmount         decimal.Decimal
	LineItemDiscounts decimal.Decimal
	DocumentDiscount  decimal.Decimal
	TotalAmount       decimal.Decimal
	PaidAmount        decimal.Decimal
	CreditApplied     decimal.Decimal
	ApprovalStatus    ApprovalStatus
	IsLocked          bool
	Payments          []PaymentEntry
	AuditLog          []AuditEntry
	RejectReason      string
	CancelReason      string
	SourceDocumentID  *uuid.UUID
	Remark            string
}

// NewDocumentParams carries the inputs for a new draft
type NewDocumentParams struct {
	Kind             DocumentKind
	DocumentNumber   string
	CounterpartyID   uuid.UUID
	IssueDate        time.Time
	DueDate          *time.Time
	LineItems        []LineItem
	DocumentDiscount decimal.Decimal
	Remark           string
	Actor            string
}

// NewFinancialDocument creates a draft document
func NewFinancialDocument(p NewDocumentParams) (*FinancialDocument, error) {
	if !p.Kind.IsValid() {
		return nil, newValidationError("kind", "unknown document kind "+string(p.Kind))
	}
	if p.CounterpartyID == uuid.Nil {
		return nil, newValidationError("counterparty_id", "counterparty is required")
	}
	if len(p.LineItems) == 0 {
		return nil, newValidationError("line_items", "at least one line item is required")
	}
	issueDate := p.IssueDate
	if issueDate.IsZero() {
		issueDate = time.Now()
	}
	if p.DueDate != nil && p.DueDate.Before(truncateDay(issueDate)) {
		return nil, newValidationError("due_date", "due date cannot be before issue date")
	}

	number := strings.TrimSpace(p.DocumentNumber)
	if number == "" {
		number = GenerateNumber(p.Kind.NumberPrefix(), issueDate)
	}

	doc := &FinancialDocument{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Kind:              p.Kind,
		DocumentNumber:    number,
		CounterpartyID:    p.CounterpartyID,
		IssueDate:         issueDate,
		DueDate:           p.DueDate,
		PaidAmount:        decimal.Zero,
		CreditApplied:     decimal.Zero,
		ApprovalStatus:    ApprovalDraft,
		Payments:          make([]PaymentEntry, 0),
		AuditLog:          make([]AuditEntry, 0),
		Remark:            p.Remark,
	}
	if err := doc.setLineItems(p.LineItems, p.DocumentDiscount); err != nil {
		return nil, err
	}

	doc.appendAudit(AuditCreated, p.Actor, fmt.Sprintf("%s %s created, total %s",
		doc.Kind, doc.DocumentNumber, shared.FormatMoney(doc.TotalAmount)))
	doc.AddDomainEvent(NewDocumentCreatedEvent(doc))
	return doc, nil
}

// GenerateNumber builds a human-readable number such as BILL-20240131-3f9a1c
func GenerateNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format("20060102"), uuid.NewString()[:6])
}

// OutstandingAmount is total - paid - credit applied
func (d *FinancialDocument) OutstandingAmount() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount).Sub(d.CreditApplied)
}

// SettledAmount is everything applied so far, money and credit alike
func (d *FinancialDocument) SettledAmount() decimal.Decimal {
	return d.PaidAmount.Add(d.CreditApplied)
}

// PaymentStatus derives the payment status at the given instant
func (d *FinancialDocument) PaymentStatus(now time.Time) PaymentStatus {
	return derivePaymentStatus(d.OutstandingAmount(), d.SettledAmount(), d.DueDate, now)
}

// Aging classifies the document's due date at the given instant
func (d *FinancialDocument) Aging(now time.Time) AgingResult {
	return Classify(d.DueDate, now)
}

func derivePaymentStatus(outstanding, settled decimal.Decimal, dueDate *time.Time, now time.Time) PaymentStatus {
	switch {
	case outstanding.IsZero():
		return PaymentPaid
	case dueDate != nil && dueDate.Before(now):
		return PaymentOverdue
	case settled.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// Submit sends a draft into the approval workflow, or approves it directly
// when no workflow is configured.
func (d *FinancialDocument) Submit(actor string, workflowRequired bool) error {
	if d.ApprovalStatus != ApprovalDraft {
		return d.illegal("submit")
	}
	if workflowRequired {
		d.ApprovalStatus = ApprovalPendingApproval
		d.appendAudit(AuditSubmitted, actor, "submitted for approval")
		d.AddDomainEvent(NewDocumentSubmittedEvent(d, actor))
	} else {
		d.ApprovalStatus = ApprovalApproved
		d.appendAudit(AuditApproved, actor, "approved on submission, no approval workflow configured")
		d.AddDomainEvent(NewDocumentApprovedEvent(d, actor))
	}
	d.Touch()
	return nil
}

// Approve approves a draft or pending document. It never touches money.
func (d *FinancialDocument) Approve(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return newValidationError("actor", "approver is required")
	}
	if !d.ApprovalStatus.CanDecide() {
		return d.illegal("approve")
	}
	d.ApprovalStatus = ApprovalApproved
	d.appendAudit(AuditApproved, actor, "approved")
	d.AddDomainEvent(NewDocumentApprovedEvent(d, actor))
	d.Touch()
	return nil
}

// Reject rejects a draft or pending document. The reason is mandatory.
func (d *FinancialDocument) Reject(actor, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return newValidationError("reason", "rejection reason is required")
	}
	if strings.TrimSpace(actor) == "" {
		return newValidationError("actor", "rejecting user is required")
	}
	if !d.ApprovalStatus.CanDecide() {
		return d.illegal("reject")
	}
	d.ApprovalStatus = ApprovalRejected
	d.RejectReason = reason
	d.appendAudit(AuditRejected, actor, reason)
	d.AddDomainEvent(NewDocumentRejectedEvent(d, actor, reason))
	d.Touch()
	return nil
}

// Cancel cancels a draft or approved document. Once anything has been
// applied a reversal reason is required; refunds are handled manually.
func (d *FinancialDocument) Cancel(actor, reason string) error {
	reason = strings.TrimSpace(reason)
	hasPayments := d.SettledAmount().IsPositive()
	if hasPayments && reason == "" {
		return newValidationError("reason", "a reversal reason is required to cancel a document with payments")
	}
	if !d.ApprovalStatus.CanCancel() {
		return d.illegal("cancel")
	}

	wasApproved := d.ApprovalStatus == ApprovalApproved
	d.ApprovalStatus = ApprovalCancelled
	d.CancelReason = reason
	if hasPayments {
		d.appendAudit(AuditCancelledWithReversal, actor, fmt.Sprintf("%s; %s already applied requires manual refund",
			reason, shared.FormatMoney(d.SettledAmount())))
	} else {
		d.appendAudit(AuditCancelled, actor, reason)
	}
	d.AddDomainEvent(NewDocumentCancelledEvent(d, actor, reason, hasPayments, wasApproved))
	d.Touch()
	return nil
}

// ApplyPayment appends a payment or credit entry. The entry must not push
// the outstanding amount below zero; such entries are rejected, not clamped.
func (d *FinancialDocument) ApplyPayment(actor string, entry PaymentEntry) error {
	if !entry.Amount.IsPositive() {
		return newValidationError("amount", "payment amount must be positive")
	}
	if !entry.Method.IsValid() {
		return newValidationError("method", "unknown payment method "+string(entry.Method))
	}
	if !d.ApprovalStatus.AcceptsPayment() {
		return d.illegal("record payment on")
	}
	if d.Kind.Direction() == DirectionCredit {
		return d.illegal("record payment on")
	}
	outstanding := d.OutstandingAmount()
	if entry.Amount.GreaterThan(outstanding) {
		id := d.ID
		return &OverAllocationError{DocumentID: &id, Requested: entry.Amount, Available: outstanding}
	}

	d.Payments = append(d.Payments, entry)
	if entry.IsCredit() {
		d.CreditApplied = d.CreditApplied.Add(entry.Amount)
		d.appendAudit(AuditCreditApplied, actor, fmt.Sprintf("credit %s applied", shared.FormatMoney(entry.Amount)))
	} else {
		d.PaidAmount = d.PaidAmount.Add(entry.Amount)
		d.appendAudit(AuditPaymentRecorded, actor, fmt.Sprintf("%s %s recorded, ref %q",
			entry.Method, shared.FormatMoney(entry.Amount), entry.Reference))
	}
	d.IsLocked = true
	d.AddDomainEvent(NewDocumentPaymentRecordedEvent(d, entry))
	if d.OutstandingAmount().IsZero() {
		d.AddDomainEvent(NewDocumentSettledEvent(d))
	}
	d.Touch()
	return nil
}

// ApplyCredit applies a CREDIT entry; money entries go through ApplyPayment
func (d *FinancialDocument) ApplyCredit(actor string, entry PaymentEntry) error {
	if !entry.IsCredit() {
		return newValidationError("method", "credit application requires the CREDIT method")
	}
	return d.ApplyPayment(actor, entry)
}

// ApplyToLedger converts an approved credit note's outstanding amount into
// counterparty credit and returns the amount to credit.
func (d *FinancialDocument) ApplyToLedger(actor string) (decimal.Decimal, error) {
	if d.Kind != KindCreditNote || !d.ApprovalStatus.AcceptsPayment() {
		return decimal.Zero, d.illegal("apply credit from")
	}
	amount := d.OutstandingAmount()
	if !amount.IsPositive() {
		return decimal.Zero, d.illegal("apply credit from")
	}
	entry := NewPaymentEntry(amount, PaymentMethodCredit, nil, nil, d.DocumentNumber)
	d.Payments = append(d.Payments, entry)
	d.CreditApplied = d.CreditApplied.Add(amount)
	d.IsLocked = true
	d.appendAudit(AuditCreditNoteApplied, actor, fmt.Sprintf("%s moved to counterparty credit", shared.FormatMoney(amount)))
	d.AddDomainEvent(NewDocumentSettledEvent(d))
	d.Touch()
	return amount, nil
}

// RecordRejectedPayment audits a payment attempt that was refused
func (d *FinancialDocument) RecordRejectedPayment(actor string, cause error) {
	d.appendAudit(AuditPaymentRejected, actor, cause.Error())
	d.Touch()
}

// ReplaceLineItems swaps the line items and recomputes totals. Locked
// documents keep their lines.
func (d *FinancialDocument) ReplaceLineItems(actor string, items []LineItem, documentDiscount decimal.Decimal) error {
	if d.IsLocked {
		return shared.NewIllegalStateError(CodeDocumentLocked,
			fmt.Sprintf("document %s is locked by applied payments", d.DocumentNumber))
	}
	if d.ApprovalStatus.IsTerminal() {
		return d.illegal("edit")
	}
	if len(items) == 0 {
		return newValidationError("line_items", "at least one line item is required")
	}
	if err := d.setLineItems(items, documentDiscount); err != nil {
		return err
	}
	d.appendAudit(AuditLineItemsUpdated, actor, fmt.Sprintf("%d line items, total %s",
		len(d.LineItems), shared.FormatMoney(d.TotalAmount)))
	d.Touch()
	return nil
}

// EnsureDeletable fails for locked documents and for documents still in
// the active part of the workflow.
func (d *FinancialDocument) EnsureDeletable() error {
	if d.IsLocked {
		return shared.NewIllegalStateError(CodeDocumentLocked,
			fmt.Sprintf("document %s is locked by applied payments", d.DocumentNumber))
	}
	switch d.ApprovalStatus {
	case ApprovalDraft, ApprovalRejected, ApprovalCancelled:
		return nil
	}
	return d.illegal("delete")
}

// CloneAsDraft starts a new draft from a rejected document
func (d *FinancialDocument) CloneAsDraft(actor string) (*FinancialDocument, error) {
	if d.ApprovalStatus != ApprovalRejected {
		return nil, d.illegal("resubmit")
	}
	items := make([]LineItem, len(d.LineItems))
	for i, li := range d.LineItems {
		li.ID = uuid.New()
		li.TaxComponents = append([]TaxComponent(nil), li.TaxComponents...)
		items[i] = li
	}
	clone, err := NewFinancialDocument(NewDocumentParams{
		Kind:             d.Kind,
		CounterpartyID:   d.CounterpartyID,
		IssueDate:        time.Now(),
		DueDate:          d.DueDate,
		LineItems:        items,
		DocumentDiscount: d.DocumentDiscount,
		Remark:           d.Remark,
		Actor:            actor,
	})
	if err != nil {
		return nil, err
	}
	source := d.ID
	clone.SourceDocumentID = &source
	clone.appendAudit(AuditResubmitted, actor, "resubmitted from "+d.DocumentNumber)
	return clone, nil
}

func (d *FinancialDocument) setLineItems(items []LineItem, documentDiscount decimal.Decimal) error {
	copied := append([]LineItem(nil), items...)
	totals, err := ComputeTotals(copied, documentDiscount)
	if err != nil {
		return err
	}
	if totals.TotalAmount.LessThan(d.SettledAmount()) {
		return newValidationError("line_items", "new total is below the amount already settled")
	}
	d.LineItems = copied
	d.Subtotal = totals.Subtotal
	d.TaxAmount = totals.TaxAmount
	d.LineItemDiscounts = totals.LineItemDiscounts
	d.DocumentDiscount = totals.DocumentDiscount
	d.TotalAmount = totals.TotalAmount
	return nil
}

func (d *FinancialDocument) appendAudit(action AuditAction, actor, details string) {
	if strings.TrimSpace(actor) == "" {
		actor = "system"
	}
	d.AuditLog = append(d.AuditLog, AuditEntry{
		ID:        uuid.New(),
		Action:    action,
		Actor:     actor,
		Details:   details,
		Timestamp: time.Now(),
	})
}

func (d *FinancialDocument) illegal(action string) error {
	return &IllegalStateTransitionError{
		Entity: "document " + d.DocumentNumber,
		From:   string(d.ApprovalStatus),
		Action: action,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, t.Location())
}
