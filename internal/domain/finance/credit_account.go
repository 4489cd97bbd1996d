package finance

import (
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeCreditAccount is the aggregate type for credit accounts
const AggregateTypeCreditAccount = "CreditAccount"

// CreditTransactionType is the direction of a credit change
type CreditTransactionType string

const (
	CreditTxCredit  CreditTransactionType = "CREDIT"
	CreditTxConsume CreditTransactionType = "CONSUME"
)

// CreditSourceType records why credit changed
type CreditSourceType string

const (
	CreditSourceOverpayment CreditSourceType = "OVERPAYMENT"
	CreditSourceAdvance     CreditSourceType = "ADVANCE"
	CreditSourceCreditNote  CreditSourceType = "CREDIT_NOTE"
	CreditSourceSettlement  CreditSourceType = "SETTLEMENT"
	CreditSourceManual      CreditSourceType = "MANUAL"
)

// IsValid returns true if the source type is known
func (s CreditSourceType) IsValid() bool {
	switch s {
	case CreditSourceOverpayment, CreditSourceAdvance, CreditSourceCreditNote, CreditSourceSettlement, CreditSourceManual:
		return true
	}
	return false
}

// CreditTransaction is one immutable line of a counterparty's credit history
type CreditTransaction struct {
	ID             uuid.UUID
	CounterpartyID uuid.UUID
	Type           CreditTransactionType
	Amount         decimal.Decimal
	BalanceBefore  decimal.Decimal
	BalanceAfter   decimal.Decimal
	SourceType     CreditSourceType
	SourceID       *uuid.UUID
	Reference      string
	CreatedAt      time.Time
}

// CreditAccount holds the credit a counterparty may spend against future
// documents. AvailableCredit never goes below zero.
type CreditAccount struct {
	shared.BaseAggregateRoot
	CounterpartyID  uuid.UUID
	AvailableCredit decimal.Decimal
	pending         []CreditTransaction
}

// NewCreditAccount opens an empty account for a counterparty
func NewCreditAccount(counterpartyID uuid.UUID) *CreditAccount {
	return &CreditAccount{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CounterpartyID:    counterpartyID,
		AvailableCredit:   decimal.Zero,
	}
}

// Balance returns the credit available now
func (a *CreditAccount) Balance() decimal.Decimal {
	return a.AvailableCredit
}

// Credit adds credit, e.g. from an overpayment or an applied credit note
func (a *CreditAccount) Credit(amount decimal.Decimal, source CreditSourceType, sourceID *uuid.UUID, reference string) (CreditTransaction, error) {
	amount = shared.RoundMoney(amount)
	if !amount.IsPositive() {
		return CreditTransaction{}, newValidationError("amount", "credit amount must be greater than zero")
	}
	if !source.IsValid() {
		return CreditTransaction{}, newValidationError("source_type", "unknown credit source "+string(source))
	}
	return a.record(CreditTxCredit, amount, source, sourceID, reference), nil
}

// Consume spends credit. It fails rather than letting the balance go negative.
func (a *CreditAccount) Consume(amount decimal.Decimal, source CreditSourceType, sourceID *uuid.UUID, reference string) (CreditTransaction, error) {
	amount = shared.RoundMoney(amount)
	if !amount.IsPositive() {
		return CreditTransaction{}, newValidationError("amount", "consumed amount must be greater than zero")
	}
	if amount.GreaterThan(a.AvailableCredit) {
		return CreditTransaction{}, &InsufficientCreditError{
			CounterpartyID: a.CounterpartyID,
			Available:      a.AvailableCredit,
			Requested:      amount,
		}
	}
	return a.record(CreditTxConsume, amount, source, sourceID, reference), nil
}

// PendingTransactions returns the transactions not yet persisted
func (a *CreditAccount) PendingTransactions() []CreditTransaction {
	return a.pending
}

// ClearPendingTransactions is called by repositories after a successful save
func (a *CreditAccount) ClearPendingTransactions() {
	a.pending = nil
}

func (a *CreditAccount) record(kind CreditTransactionType, amount decimal.Decimal, source CreditSourceType, sourceID *uuid.UUID, reference string) CreditTransaction {
	before := a.AvailableCredit
	after := before.Add(amount)
	if kind == CreditTxConsume {
		after = before.Sub(amount)
	}
	tx := CreditTransaction{
		ID:             uuid.New(),
		CounterpartyID: a.CounterpartyID,
		Type:           kind,
		Amount:         amount,
		BalanceBefore:  before,
		BalanceAfter:   after,
		SourceType:     source,
		SourceID:       sourceID,
		Reference:      reference,
		CreatedAt:      time.Now(),
	}
	a.AvailableCredit = after
	a.pending = append(a.pending, tx)
	a.Touch()
	return tx
}

func (t CreditTransaction) String() string {
	return fmt.Sprintf("%s %s (%s -> %s)", t.Type, shared.FormatMoney(t.Amount),
		shared.FormatMoney(t.BalanceBefore), shared.FormatMoney(t.BalanceAfter))
}
