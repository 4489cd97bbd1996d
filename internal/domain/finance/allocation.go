package finance

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationSource tells whether an applied amount came from new money or
// from the counterparty's existing credit
type AllocationSource string

const (
	SourceDirectPayment     AllocationSource = "DIRECT_PAYMENT"
	SourceCreditConsumption AllocationSource = "CREDIT_CONSUMPTION"
)

// RequestedAllocation is a caller-chosen amount for one document
type RequestedAllocation struct {
	DocumentID uuid.UUID
	Amount     decimal.Decimal
}

// Payment is the money brought by one settlement and, optionally, how the
// caller wants it spread
type Payment struct {
	Amount              decimal.Decimal
	ExplicitAllocations []RequestedAllocation
}

// Candidate is an open document the payment may be applied to
type Candidate struct {
	DocumentID  uuid.UUID
	Outstanding decimal.Decimal
}

// AllocationRecord is one immutable application of money to a document
type AllocationRecord struct {
	DocumentID    uuid.UUID        `json:"document_id"`
	AppliedAmount decimal.Decimal  `json:"applied_amount"`
	Source        AllocationSource `json:"source"`
}

// AllocationResult is the outcome of Allocate. It always satisfies
// sum(Records) + ExcessAmount = payment + CreditConsumed.
type AllocationResult struct {
	Records        []AllocationRecord
	CreditConsumed decimal.Decimal
	ExcessAmount   decimal.Decimal
}

// TotalApplied sums every record
func (r *AllocationResult) TotalApplied() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		total = total.Add(rec.AppliedAmount)
	}
	return total
}

// AppliedTo sums the records for one document
func (r *AllocationResult) AppliedTo(documentID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		if rec.DocumentID == documentID {
			total = total.Add(rec.AppliedAmount)
		}
	}
	return total
}

// Allocate decides how a payment plus available credit is spread over open
// documents. It is pure and has no side effects.
//
// With explicit allocations every amount is honoured exactly or the whole
// request fails. Without them a single candidate receives as much as it can
// absorb; with zero or several candidates nothing is guessed and the whole
// payment becomes excess. Direct money is used before credit.
func Allocate(payment Payment, candidates []Candidate, existingCredit decimal.Decimal) (*AllocationResult, error) {
	amount := shared.RoundMoney(payment.Amount)
	credit := shared.RoundMoney(existingCredit)
	if amount.IsNegative() {
		return nil, newValidationError("amount", "payment amount cannot be negative")
	}
	if credit.IsNegative() {
		return nil, newValidationError("existing_credit", "existing credit cannot be negative")
	}

	outstanding := make(map[uuid.UUID]decimal.Decimal, len(candidates))
	for _, c := range candidates {
		outstanding[c.DocumentID] = c.Outstanding
	}

	var allocations []RequestedAllocation
	if len(payment.ExplicitAllocations) > 0 {
		var err error
		allocations, err = checkExplicit(payment.ExplicitAllocations, outstanding, amount.Add(credit))
		if err != nil {
			return nil, err
		}
	} else if len(candidates) == 1 {
		applied := decimal.Min(amount.Add(credit), candidates[0].Outstanding)
		if applied.IsPositive() {
			allocations = []RequestedAllocation{{DocumentID: candidates[0].DocumentID, Amount: applied}}
		}
	}

	result := &AllocationResult{Records: make([]AllocationRecord, 0, len(allocations))}
	direct := amount
	allocated := decimal.Zero
	for _, a := range allocations {
		fromDirect := decimal.Min(direct, a.Amount)
		if fromDirect.IsPositive() {
			result.Records = append(result.Records, AllocationRecord{
				DocumentID:    a.DocumentID,
				AppliedAmount: fromDirect,
				Source:        SourceDirectPayment,
			})
			direct = direct.Sub(fromDirect)
		}
		if rest := a.Amount.Sub(fromDirect); rest.IsPositive() {
			result.Records = append(result.Records, AllocationRecord{
				DocumentID:    a.DocumentID,
				AppliedAmount: rest,
				Source:        SourceCreditConsumption,
			})
		}
		allocated = allocated.Add(a.Amount)
	}

	result.CreditConsumed = decimal.Max(decimal.Zero, allocated.Sub(amount))
	result.ExcessAmount = decimal.Max(decimal.Zero, amount.Sub(allocated))
	return result, nil
}

func checkExplicit(requested []RequestedAllocation, outstanding map[uuid.UUID]decimal.Decimal, pool decimal.Decimal) ([]RequestedAllocation, error) {
	seen := make(map[uuid.UUID]struct{}, len(requested))
	allocations := make([]RequestedAllocation, 0, len(requested))
	for i, a := range requested {
		amount := shared.RoundMoney(a.Amount)
		if !amount.IsPositive() {
			return nil, newValidationError(fmt.Sprintf("allocations[%d].amount", i), "allocation amount must be greater than zero")
		}
		if _, dup := seen[a.DocumentID]; dup {
			return nil, newValidationError(fmt.Sprintf("allocations[%d].document_id", i), "document allocated more than once")
		}
		if _, ok := outstanding[a.DocumentID]; !ok {
			return nil, newValidationError(fmt.Sprintf("allocations[%d].document_id", i), "document is not open for this counterparty")
		}
		seen[a.DocumentID] = struct{}{}
		allocations = append(allocations, RequestedAllocation{DocumentID: a.DocumentID, Amount: amount})
	}

	total := decimal.Zero
	for _, a := range allocations {
		if open := outstanding[a.DocumentID]; a.Amount.GreaterThan(open) {
			id := a.DocumentID
			return nil, &OverAllocationError{DocumentID: &id, Requested: a.Amount, Available: open}
		}
		total = total.Add(a.Amount)
	}
	if total.GreaterThan(pool) {
		return nil, &OverAllocationError{
			Requested: total,
			Available: pool,
			Reason:    "allocations exceed payment plus available credit",
		}
	}
	return allocations, nil
}
