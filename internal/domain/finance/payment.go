package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how an amount reached a document
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOwnerFunds   PaymentMethod = "OWNER_FUNDS"
	// PaymentMethodCredit records consumption of counterparty credit
	PaymentMethodCredit PaymentMethod = "CREDIT"
)

func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid returns true if the method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodOwnerFunds, PaymentMethodCredit:
		return true
	}
	return false
}

// PaymentEntry is one immutable line of a document's payment history
type PaymentEntry struct {
	ID              uuid.UUID
	Amount          decimal.Decimal
	Method          PaymentMethod
	FundingSourceID *uuid.UUID
	SettlementID    *uuid.UUID
	Reference       string
	RecordedAt      time.Time
}

// NewPaymentEntry builds an entry. Credit entries carry no funding source.
func NewPaymentEntry(amount decimal.Decimal, method PaymentMethod, fundingSourceID, settlementID *uuid.UUID, reference string) PaymentEntry {
	if method == PaymentMethodCredit {
		fundingSourceID = nil
	}
	return PaymentEntry{
		ID:              uuid.New(),
		Amount:          amount,
		Method:          method,
		FundingSourceID: fundingSourceID,
		SettlementID:    settlementID,
		Reference:       reference,
		RecordedAt:      time.Now(),
	}
}

// IsCredit reports whether the entry consumed credit rather than money
func (p PaymentEntry) IsCredit() bool {
	return p.Method == PaymentMethodCredit
}

// AuditAction names an audited event in a document's life
type AuditAction string

const (
	AuditCreated               AuditAction = "CREATED"
	AuditLineItemsUpdated      AuditAction = "LINE_ITEMS_UPDATED"
	AuditSubmitted             AuditAction = "SUBMITTED"
	AuditApproved              AuditAction = "APPROVED"
	AuditRejected              AuditAction = "REJECTED"
	AuditCancelled             AuditAction = "CANCELLED"
	AuditCancelledWithReversal AuditAction = "CANCELLED_WITH_REVERSAL"
	AuditPaymentRecorded       AuditAction = "PAYMENT_RECORDED"
	AuditCreditApplied         AuditAction = "CREDIT_APPLIED"
	AuditCreditNoteApplied     AuditAction = "CREDIT_NOTE_APPLIED"
	AuditPaymentRejected       AuditAction = "PAYMENT_REJECTED"
	AuditResubmitted           AuditAction = "RESUBMITTED"
)

// AuditEntry is one immutable line of a document's audit trail
type AuditEntry struct {
	ID        uuid.UUID
	Action    AuditAction
	Actor     string
	Details   string
	Timestamp time.Time
}

// ReplayResult is the payment state reconstructed from a payment log
type ReplayResult struct {
	PaidAmount    decimal.Decimal
	CreditApplied decimal.Decimal
	Outstanding   decimal.Decimal
	Status        PaymentStatus
}

// ReplayPayments rebuilds paid, credit and status from a document's total and
// its payment entries in order. The result depends only on its inputs, so
// replaying a stored log reproduces the stored state.
func ReplayPayments(total decimal.Decimal, payments []PaymentEntry, dueDate *time.Time, now time.Time) (ReplayResult, error) {
	r := ReplayResult{
		PaidAmount:    decimal.Zero,
		CreditApplied: decimal.Zero,
		Outstanding:   total,
	}
	for _, p := range payments {
		if !p.Amount.IsPositive() {
			return ReplayResult{}, newValidationError("payments.amount", "payment amounts must be positive")
		}
		if p.Amount.GreaterThan(r.Outstanding) {
			return ReplayResult{}, &OverAllocationError{Requested: p.Amount, Available: r.Outstanding, Reason: "payment log exceeds document total"}
		}
		if p.IsCredit() {
			r.CreditApplied = r.CreditApplied.Add(p.Amount)
		} else {
			r.PaidAmount = r.PaidAmount.Add(p.Amount)
		}
		r.Outstanding = r.Outstanding.Sub(p.Amount)
	}
	r.Status = derivePaymentStatus(r.Outstanding, r.PaidAmount.Add(r.CreditApplied), dueDate, now)
	return r, nil
}
