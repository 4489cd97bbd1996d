package finance

import (
	"strings"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// FundingSourceKind is the kind of place money is drawn from
type FundingSourceKind string

const (
	FundingCash               FundingSourceKind = "CASH"
	FundingBankAccount        FundingSourceKind = "BANK_ACCOUNT"
	FundingOwnerPersonalFunds FundingSourceKind = "OWNER_PERSONAL_FUNDS"
)

func (k FundingSourceKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is known
func (k FundingSourceKind) IsValid() bool {
	switch k {
	case FundingCash, FundingBankAccount, FundingOwnerPersonalFunds:
		return true
	}
	return false
}

// IsTracked reports whether the source has a balance to check.
// Owner's personal funds are unlimited.
func (k FundingSourceKind) IsTracked() bool {
	return k == FundingCash || k == FundingBankAccount
}

// PaymentMethod is the payment method recorded for draws from this kind
func (k FundingSourceKind) PaymentMethod() PaymentMethod {
	switch k {
	case FundingCash:
		return PaymentMethodCash
	case FundingBankAccount:
		return PaymentMethodBankTransfer
	default:
		return PaymentMethodOwnerFunds
	}
}

// FundingSource is a cash drawer, bank account or the owner's own pocket.
// Its balance changes only through BalanceGuard.
type FundingSource struct {
	shared.BaseAggregateRoot
	Name             string
	Kind             FundingSourceKind
	AccountNumber    string
	AvailableBalance decimal.Decimal
}

// NewFundingSource creates a funding source with an opening balance
func NewFundingSource(name string, kind FundingSourceKind, openingBalance decimal.Decimal) (*FundingSource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("name", "funding source name is required")
	}
	if !kind.IsValid() {
		return nil, newValidationError("kind", "unknown funding source kind "+string(kind))
	}
	openingBalance = shared.RoundMoney(openingBalance)
	if openingBalance.IsNegative() {
		return nil, newValidationError("opening_balance", "opening balance cannot be negative")
	}
	if !kind.IsTracked() {
		openingBalance = decimal.Zero
	}
	return &FundingSource{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Kind:              kind,
		AvailableBalance:  openingBalance,
	}, nil
}

// CanCover reports whether amount can be drawn right now
func (f *FundingSource) CanCover(amount decimal.Decimal) bool {
	return !f.Kind.IsTracked() || f.AvailableBalance.GreaterThanOrEqual(amount)
}

// Debit draws amount from the balance. Repositories call this inside their
// atomic debit step; nothing else should.
func (f *FundingSource) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newValidationError("amount", "debit amount must be positive")
	}
	if !f.Kind.IsTracked() {
		return nil
	}
	if f.AvailableBalance.LessThan(amount) {
		return NewInsufficientFundsError(f, amount)
	}
	f.AvailableBalance = f.AvailableBalance.Sub(amount)
	f.Touch()
	return nil
}

// Credit adds amount to the balance
func (f *FundingSource) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return newValidationError("amount", "credit amount must be positive")
	}
	if !f.Kind.IsTracked() {
		return nil
	}
	f.AvailableBalance = f.AvailableBalance.Add(amount)
	f.Touch()
	return nil
}
