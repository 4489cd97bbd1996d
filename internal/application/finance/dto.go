package finance

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Document DTOs
// =============================================================================

// TaxInput is a tax component as supplied by callers
type TaxInput struct {
	Kind string          `json:"kind" binding:"required,max=30"`
	Rate decimal.Decimal `json:"rate"`
}

// LineItemInput is a line item as supplied by callers
type LineItemInput struct {
	Description string          `json:"description" binding:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
	Discount    decimal.Decimal `json:"discount"`
	Taxes       []TaxInput      `json:"taxes" binding:"omitempty,dive"`
}

// CreateDocumentRequest represents a request to create a draft document
type CreateDocumentRequest struct {
	Kind             string          `json:"kind" binding:"required,oneof=BILL SALES_INVOICE CREDIT_NOTE"`
	DocumentNumber   string          `json:"document_number" binding:"max=50"`
	CounterpartyID   uuid.UUID       `json:"counterparty_id" binding:"required"`
	IssueDate        *time.Time      `json:"issue_date"`
	DueDate          *time.Time      `json:"due_date"`
	LineItems        []LineItemInput `json:"line_items" binding:"required,min=1,dive"`
	DocumentDiscount decimal.Decimal `json:"document_discount"`
	Remark           string          `json:"remark" binding:"max=2000"`
}

// UpdateLineItemsRequest replaces a document's line items
type UpdateLineItemsRequest struct {
	LineItems        []LineItemInput `json:"line_items" binding:"required,min=1,dive"`
	DocumentDiscount decimal.Decimal `json:"document_discount"`
}

// ReasonRequest carries the reason for a reject or cancel
type ReasonRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// DocumentListFilter holds the list query parameters
type DocumentListFilter struct {
	Kind           string `form:"kind" binding:"omitempty,oneof=BILL SALES_INVOICE CREDIT_NOTE"`
	CounterpartyID string `form:"counterparty_id" binding:"omitempty,uuid"`
	ApprovalStatus string `form:"approval_status" binding:"omitempty,oneof=DRAFT PENDING_APPROVAL APPROVED REJECTED CANCELLED"`
	OnlyOpen       bool   `form:"only_open"`
	Page           int    `form:"page" binding:"omitempty,min=1"`
	PageSize       int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy        string `form:"order_by"`
	OrderDir       string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// TaxResponse is a computed tax component
type TaxResponse struct {
	Kind   string `json:"kind"`
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
}

// LineItemResponse is a line item in API responses
type LineItemResponse struct {
	ID          uuid.UUID     `json:"id"`
	Description string        `json:"description"`
	Quantity    string        `json:"quantity"`
	UnitRate    string        `json:"unit_rate"`
	Discount    string        `json:"discount"`
	Net         string        `json:"net"`
	Taxes       []TaxResponse `json:"taxes"`
}

// PaymentResponse is one payment entry of a document
type PaymentResponse struct {
	ID              uuid.UUID  `json:"id"`
	Amount          string     `json:"amount"`
	Method          string     `json:"method"`
	FundingSourceID *uuid.UUID `json:"funding_source_id,omitempty"`
	SettlementID    *uuid.UUID `json:"settlement_id,omitempty"`
	Reference       string     `json:"reference"`
	RecordedAt      time.Time  `json:"recorded_at"`
}

// AuditResponse is one audit entry of a document
type AuditResponse struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentResponse represents a financial document in API responses.
// Payment status and aging are derived at response time.
type DocumentResponse struct {
	ID                uuid.UUID           `json:"id"`
	Kind              string              `json:"kind"`
	DocumentNumber    string              `json:"document_number"`
	CounterpartyID    uuid.UUID           `json:"counterparty_id"`
	IssueDate         time.Time           `json:"issue_date"`
	DueDate           *time.Time          `json:"due_date,omitempty"`
	Subtotal          string              `json:"subtotal"`
	TaxAmount         string              `json:"tax_amount"`
	LineItemDiscounts string              `json:"line_item_discounts"`
	DocumentDiscount  string              `json:"document_discount"`
	TotalAmount       string              `json:"total_amount"`
	PaidAmount        string              `json:"paid_amount"`
	CreditApplied     string              `json:"credit_applied"`
	Outstanding       string              `json:"outstanding"`
	ApprovalStatus    string              `json:"approval_status"`
	PaymentStatus     string              `json:"payment_status"`
	Aging             finance.AgingResult `json:"aging"`
	IsLocked          bool                `json:"is_locked"`
	RejectReason      string              `json:"reject_reason,omitempty"`
	CancelReason      string              `json:"cancel_reason,omitempty"`
	SourceDocumentID  *uuid.UUID          `json:"source_document_id,omitempty"`
	Remark            string              `json:"remark,omitempty"`
	LineItems         []LineItemResponse  `json:"line_items"`
	Payments          []PaymentResponse   `json:"payments"`
	AuditLog          []AuditResponse     `json:"audit_log,omitempty"`
	Version           int                 `json:"version"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// DocumentSummary is the list view of a document
type DocumentSummary struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	DocumentNumber string     `json:"document_number"`
	CounterpartyID uuid.UUID  `json:"counterparty_id"`
	IssueDate      time.Time  `json:"issue_date"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	TotalAmount    string     `json:"total_amount"`
	Outstanding    string     `json:"outstanding"`
	ApprovalStatus string     `json:"approval_status"`
	PaymentStatus  string     `json:"payment_status"`
}

// ApplyCreditNoteResponse reports a credit note moved to the ledger
type ApplyCreditNoteResponse struct {
	Document       DocumentResponse `json:"document"`
	CreditedAmount string           `json:"credited_amount"`
	CreditBalance  string           `json:"credit_balance"`
}

// =============================================================================
// Settlement DTOs
// =============================================================================

// FundingLegInput is one funding source's share of a payment
type FundingLegInput struct {
	FundingSourceID uuid.UUID       `json:"funding_source_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

// AllocationInput is a caller-chosen amount for one document
type AllocationInput struct {
	DocumentID uuid.UUID       `json:"document_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

// RecordPaymentRequest represents a payment against a counterparty's open
// documents. Either CounterpartyID with Kind, or DocumentID, is required.
type RecordPaymentRequest struct {
	CounterpartyID *uuid.UUID        `json:"counterparty_id"`
	Kind           string            `json:"kind" binding:"omitempty,oneof=BILL SALES_INVOICE"`
	DocumentID     *uuid.UUID        `json:"document_id"`
	Legs           []FundingLegInput `json:"legs" binding:"omitempty,dive"`
	Allocations    []AllocationInput `json:"allocations" binding:"omitempty,dive"`
	UseCredit      bool              `json:"use_credit"`
	Reference      string            `json:"reference" binding:"max=100"`
	Actor          string            `json:"-"`
}

// SettlementLegResponse is one funding leg of a settlement
type SettlementLegResponse struct {
	FundingSourceID uuid.UUID `json:"funding_source_id"`
	FundingKind     string    `json:"funding_kind"`
	Amount          string    `json:"amount"`
}

// AllocationResponse is one allocation record of a settlement
type AllocationResponse struct {
	DocumentID    uuid.UUID `json:"document_id"`
	AppliedAmount string    `json:"applied_amount"`
	Source        string    `json:"source"`
}

// SettlementResponse represents a recorded settlement
type SettlementResponse struct {
	ID             uuid.UUID               `json:"id"`
	Number         string                  `json:"number"`
	CounterpartyID uuid.UUID               `json:"counterparty_id"`
	Direction      string                  `json:"direction"`
	TotalAmount    string                  `json:"total_amount"`
	CreditConsumed string                  `json:"credit_consumed"`
	ExcessAmount   string                  `json:"excess_amount"`
	Legs           []SettlementLegResponse `json:"legs"`
	Allocations    []AllocationResponse    `json:"allocations"`
	Reference      string                  `json:"reference,omitempty"`
	Actor          string                  `json:"actor"`
	RecordedAt     time.Time               `json:"recorded_at"`
}

// RecordPaymentResponse is the outcome of RecordPayment
type RecordPaymentResponse struct {
	Settlement    SettlementResponse `json:"settlement"`
	Documents     []DocumentSummary  `json:"documents"`
	CreditBalance string             `json:"credit_balance"`
}

// =============================================================================
// Funding source DTOs
// =============================================================================

// CreateFundingSourceRequest represents a request to create a funding source
type CreateFundingSourceRequest struct {
	Name           string          `json:"name" binding:"required,min=1,max=100"`
	Kind           string          `json:"kind" binding:"required,oneof=CASH BANK_ACCOUNT OWNER_PERSONAL_FUNDS"`
	AccountNumber  string          `json:"account_number" binding:"max=50"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// DepositRequest tops up a funding source
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FundingSourceResponse represents a funding source
type FundingSourceResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Kind             string    `json:"kind"`
	AccountNumber    string    `json:"account_number,omitempty"`
	Tracked          bool      `json:"tracked"`
	AvailableBalance string    `json:"available_balance"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// =============================================================================
// Credit DTOs
// =============================================================================

// GrantCreditRequest adds manual credit, e.g. for a goods return
type GrantCreditRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference" binding:"max=100"`
}

// CreditTransactionResponse is one line of a credit history
type CreditTransactionResponse struct {
	ID            uuid.UUID  `json:"id"`
	Type          string     `json:"type"`
	Amount        string     `json:"amount"`
	BalanceBefore string     `json:"balance_before"`
	BalanceAfter  string     `json:"balance_after"`
	SourceType    string     `json:"source_type"`
	SourceID      *uuid.UUID `json:"source_id,omitempty"`
	Reference     string     `json:"reference,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CreditBalanceResponse is a counterparty's available credit
type CreditBalanceResponse struct {
	CounterpartyID  uuid.UUID `json:"counterparty_id"`
	AvailableCredit string    `json:"available_credit"`
}

// =============================================================================
// Conversions
// =============================================================================

func money(d decimal.Decimal) string {
	return shared.FormatMoney(d)
}

// ToDocumentResponse converts a domain document, deriving status at now
func ToDocumentResponse(d *finance.FinancialDocument, now time.Time) DocumentResponse {
	items := make([]LineItemResponse, len(d.LineItems))
	for i, li := range d.LineItems {
		taxes := make([]TaxResponse, len(li.TaxComponents))
		for j, tc := range li.TaxComponents {
			taxes[j] = TaxResponse{Kind: tc.Kind, Rate: tc.Rate.String(), Amount: money(tc.Amount)}
		}
		items[i] = LineItemResponse{
			ID:          li.ID,
			Description: li.Description,
			Quantity:    li.Quantity.String(),
			UnitRate:    money(li.UnitRate),
			Discount:    money(li.Discount),
			Net:         money(li.Net()),
			Taxes:       taxes,
		}
	}
	payments := make([]PaymentResponse, len(d.Payments))
	for i, p := range d.Payments {
		payments[i] = PaymentResponse{
			ID:              p.ID,
			Amount:          money(p.Amount),
			Method:          string(p.Method),
			FundingSourceID: p.FundingSourceID,
			SettlementID:    p.SettlementID,
			Reference:       p.Reference,
			RecordedAt:      p.RecordedAt,
		}
	}
	audit := make([]AuditResponse, len(d.AuditLog))
	for i, a := range d.AuditLog {
		audit[i] = AuditResponse{Action: string(a.Action), Actor: a.Actor, Details: a.Details, Timestamp: a.Timestamp}
	}

	return DocumentResponse{
		ID:                d.ID,
		Kind:              string(d.Kind),
		DocumentNumber:    d.DocumentNumber,
		CounterpartyID:    d.CounterpartyID,
		IssueDate:         d.IssueDate,
		DueDate:           d.DueDate,
		Subtotal:          money(d.Subtotal),
		TaxAmount:         money(d.TaxAmount),
		LineItemDiscounts: money(d.LineItemDiscounts),
		DocumentDiscount:  money(d.DocumentDiscount),
		TotalAmount:       money(d.TotalAmount),
		PaidAmount:        money(d.PaidAmount),
		CreditApplied:     money(d.CreditApplied),
		Outstanding:       money(d.OutstandingAmount()),
		ApprovalStatus:    string(d.ApprovalStatus),
		PaymentStatus:     string(d.PaymentStatus(now)),
		Aging:             d.Aging(now),
		IsLocked:          d.IsLocked,
		RejectReason:      d.RejectReason,
		CancelReason:      d.CancelReason,
		SourceDocumentID:  d.SourceDocumentID,
		Remark:            d.Remark,
		LineItems:         items,
		Payments:          payments,
		AuditLog:          audit,
		Version:           d.Version,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// ToDocumentSummary converts a domain document to its list view
func ToDocumentSummary(d *finance.FinancialDocument, now time.Time) DocumentSummary {
	return DocumentSummary{
		ID:             d.ID,
		Kind:           string(d.Kind),
		DocumentNumber: d.DocumentNumber,
		CounterpartyID: d.CounterpartyID,
		IssueDate:      d.IssueDate,
		DueDate:        d.DueDate,
		TotalAmount:    money(d.TotalAmount),
		Outstanding:    money(d.OutstandingAmount()),
		ApprovalStatus: string(d.ApprovalStatus),
		PaymentStatus:  string(d.PaymentStatus(now)),
	}
}

// ToSettlementResponse converts a domain settlement
func ToSettlementResponse(s *finance.Settlement) SettlementResponse {
	legs := make([]SettlementLegResponse, len(s.Legs))
	for i, l := range s.Legs {
		legs[i] = SettlementLegResponse{FundingSourceID: l.FundingSourceID, FundingKind: string(l.FundingKind), Amount: money(l.Amount)}
	}
	allocations := make([]AllocationResponse, len(s.Allocations))
	for i, a := range s.Allocations {
		allocations[i] = AllocationResponse{DocumentID: a.DocumentID, AppliedAmount: money(a.AppliedAmount), Source: string(a.Source)}
	}
	return SettlementResponse{
		ID:             s.ID,
		Number:         s.Number,
		CounterpartyID: s.CounterpartyID,
		Direction:      string(s.Direction),
		TotalAmount:    money(s.TotalAmount),
		CreditConsumed: money(s.CreditConsumed),
		ExcessAmount:   money(s.ExcessAmount),
		Legs:           legs,
		Allocations:    allocations,
		Reference:      s.Reference,
		Actor:          s.Actor,
		RecordedAt:     s.RecordedAt,
	}
}

// ToFundingSourceResponse converts a domain funding source
func ToFundingSourceResponse(f *finance.FundingSource) FundingSourceResponse {
	return FundingSourceResponse{
		ID:               f.ID,
		Name:             f.Name,
		Kind:             string(f.Kind),
		AccountNumber:    f.AccountNumber,
		Tracked:          f.Kind.IsTracked(),
		AvailableBalance: money(f.AvailableBalance),
		Version:          f.Version,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ToCreditTransactionResponse converts a credit transaction
func ToCreditTransactionResponse(t finance.CreditTransaction) CreditTransactionResponse {
	return CreditTransactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		Amount:        money(t.Amount),
		BalanceBefore: money(t.BalanceBefore),
		BalanceAfter:  money(t.BalanceAfter),
		SourceType:    string(t.SourceType),
		SourceID:      t.SourceID,
		Reference:     t.Reference,
		CreatedAt:     t.CreatedAt,
	}
}

func toLineItems(inputs []LineItemInput) ([]finance.LineItem, error) {
	items := make([]finance.LineItem, 0, len(inputs))
	for _, in := range inputs {
		taxes := make([]finance.TaxComponent, len(in.Taxes))
		for i, t := range in.Taxes {
			taxes[i] = finance.TaxComponent{Kind: t.Kind, Rate: t.Rate}
		}
		item, err := finance.NewLineItem(in.Description, in.Quantity, in.UnitRate, in.Discount, taxes)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
