package finance

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error codes surfaced to callers
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeOverAllocation     = "OVER_ALLOCATION"
	CodeInsufficientCredit = "INSUFFICIENT_CREDIT"
	CodeIllegalTransition  = "ILLEGAL_STATE_TRANSITION"
	CodeDocumentLocked     = "DOCUMENT_LOCKED"
	CodeConcurrency        = "CONCURRENCY_CONFLICT"
)

// ValidationError reports malformed input caught before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return shared.NewValidationError(CodeValidation, e.Error())
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// RemediationAction is one of the recovery paths offered after a rejected draw
type RemediationAction string

const (
	RemediationPayPartial       RemediationAction = "PAY_PARTIAL"
	RemediationSwitchSource     RemediationAction = "SWITCH_SOURCE"
	RemediationUsePersonalFunds RemediationAction = "USE_PERSONAL_FUNDS"
)

// RemediationOption describes a recovery path. MaxAmount is set for PAY_PARTIAL.
type RemediationOption struct {
	Action    RemediationAction `json:"action"`
	Label     string            `json:"label"`
	MaxAmount *decimal.Decimal  `json:"max_amount,omitempty"`
}

// InsufficientFundsError is returned when a funding source cannot cover a draw.
// Its fields are reported to the user verbatim.
type InsufficientFundsError struct {
	FundingSourceID    uuid.UUID
	FundingSourceLabel string
	Available          decimal.Decimal
	Requested          decimal.Decimal
	Shortfall          decimal.Decimal
}

// NewInsufficientFundsError computes the shortfall from available and requested
func NewInsufficientFundsError(source *FundingSource, requested decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{
		FundingSourceID:    source.ID,
		FundingSourceLabel: source.Name,
		Available:          source.AvailableBalance,
		Requested:          requested,
		Shortfall:          requested.Sub(source.AvailableBalance),
	}
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %q: available %s, requested %s, shortfall %s",
		e.FundingSourceLabel,
		shared.FormatMoney(e.Available),
		shared.FormatMoney(e.Requested),
		shared.FormatMoney(e.Shortfall))
}

func (e *InsufficientFundsError) Unwrap() error {
	return shared.NewDomainError(CodeInsufficientFunds, e.Error())
}

// RemediationOptions lists what the user can do instead. Paying partially is
// only offered when something is available.
func (e *InsufficientFundsError) RemediationOptions() []RemediationOption {
	opts := make([]RemediationOption, 0, 3)
	if e.Available.IsPositive() {
		partial := e.Available
		opts = append(opts, RemediationOption{
			Action:    RemediationPayPartial,
			Label:     fmt.Sprintf("Pay %s from %s now", shared.FormatMoney(partial), e.FundingSourceLabel),
			MaxAmount: &partial,
		})
	}
	opts = append(opts,
		RemediationOption{Action: RemediationSwitchSource, Label: "Choose another cash or bank account"},
		RemediationOption{Action: RemediationUsePersonalFunds, Label: "Record the payment from owner's personal funds"},
	)
	return opts
}

// OverAllocationError is returned when an allocation exceeds a document's
// outstanding amount or the funds available to the settlement.
type OverAllocationError struct {
	DocumentID *uuid.UUID
	Requested  decimal.Decimal
	Available  decimal.Decimal
	Reason     string
}

func (e *OverAllocationError) Error() string {
	if e.DocumentID != nil {
		return fmt.Sprintf("allocation of %s to document %s exceeds outstanding %s",
			shared.FormatMoney(e.Requested), e.DocumentID, shared.FormatMoney(e.Available))
	}
	return fmt.Sprintf("%s: requested %s, available %s",
		e.Reason, shared.FormatMoney(e.Requested), shared.FormatMoney(e.Available))
}

func (e *OverAllocationError) Unwrap() error {
	return shared.NewDomainError(CodeOverAllocation, e.Error())
}

// InsufficientCreditError is returned when a consumption exceeds a counterparty's credit
type InsufficientCreditError struct {
	CounterpartyID uuid.UUID
	Available      decimal.Decimal
	Requested      decimal.Decimal
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("counterparty %s has %s credit available, %s requested",
		e.CounterpartyID, shared.FormatMoney(e.Available), shared.FormatMoney(e.Requested))
}

func (e *InsufficientCreditError) Unwrap() error {
	return shared.NewDomainError(CodeInsufficientCredit, e.Error())
}

// IllegalStateTransitionError signals that an operation was invoked on an
// entity whose lifecycle state does not allow it. This is a caller bug, not a
// business rejection.
type IllegalStateTransitionError struct {
	Entity string
	From   string
	Action string
}

func (e *IllegalStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s in status %s", e.Action, e.Entity, e.From)
}

func (e *IllegalStateTransitionError) Unwrap() error {
	return shared.NewIllegalStateError(CodeIllegalTransition, e.Error())
}

// ConcurrencyConflictError is returned when an optimistic version check fails.
// The caller should reload and retry.
type ConcurrencyConflictError struct {
	Entity          string
	ID              uuid.UUID
	ExpectedVersion int
}

func NewConcurrencyConflictError(entity string, id uuid.UUID, expected int) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{Entity: entity, ID: id, ExpectedVersion: expected}
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected version %d)", e.Entity, e.ID, e.ExpectedVersion)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return shared.NewConflictError(CodeConcurrency, e.Error())
}
