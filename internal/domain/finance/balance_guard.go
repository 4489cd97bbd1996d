package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReservationDirection tells Release which way to compensate
type ReservationDirection string

const (
	ReservationDebit  ReservationDirection = "DEBIT"
	ReservationCredit ReservationDirection = "CREDIT"
)

// ReservationToken proves that a balance change has been made and lets the
// caller undo it if a later step of the same settlement fails.
type ReservationToken struct {
	ID              uuid.UUID
	FundingSourceID uuid.UUID
	Label           string
	Kind            FundingSourceKind
	Amount          decimal.Decimal
	Direction       ReservationDirection
	ReservedAt      time.Time
	released        bool
}

// Released reports whether the token has been compensated
func (t *ReservationToken) Released() bool {
	return t.released
}

// FundingLeg is one {funding source, amount} pair of a settlement
type FundingLeg struct {
	FundingSourceID uuid.UUID
	Amount          decimal.Decimal
}

// TotalOf sums the amounts of legs
func TotalOf(legs []FundingLeg) decimal.Decimal {
	total := decimal.Zero
	for _, l := range legs {
		total = total.Add(l.Amount)
	}
	return total
}

// BalanceGuard is the only path by which funding source balances change.
// Each reservation is a single conditional update in the repository, so two
// callers can never both pass the check against the same stale balance.
type BalanceGuard struct {
	sources FundingSourceRepository
}

// NewBalanceGuard creates a guard over the given repository
func NewBalanceGuard(sources FundingSourceRepository) *BalanceGuard {
	return &BalanceGuard{sources: sources}
}

// CheckAndReserve draws amount from the funding source or returns an
// *InsufficientFundsError describing the shortfall.
func (g *BalanceGuard) CheckAndReserve(ctx context.Context, fundingSourceID uuid.UUID, amount decimal.Decimal) (*ReservationToken, error) {
	amount = shared.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, newValidationError("amount", "amount must be greater than zero")
	}
	source, err := g.load(ctx, fundingSourceID)
	if err != nil {
		return nil, err
	}
	if !source.Kind.IsTracked() {
		return newToken(source, amount, ReservationDebit), nil
	}
	if !source.CanCover(amount) {
		return nil, NewInsufficientFundsError(source, amount)
	}

	ok, err := g.sources.Debit(ctx, fundingSourceID, amount)
	if err != nil {
		return nil, fmt.Errorf("debit funding source %s: %w", fundingSourceID, err)
	}
	if !ok {
		// Lost a race since the read above; report against the current balance.
		fresh, err := g.load(ctx, fundingSourceID)
		if err != nil {
			return nil, err
		}
		return nil, NewInsufficientFundsError(fresh, amount)
	}
	return newToken(source, amount, ReservationDebit), nil
}

// Deposit credits amount to the funding source, e.g. for a customer receipt
func (g *BalanceGuard) Deposit(ctx context.Context, fundingSourceID uuid.UUID, amount decimal.Decimal) (*ReservationToken, error) {
	amount = shared.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, newValidationError("amount", "amount must be greater than zero")
	}
	source, err := g.load(ctx, fundingSourceID)
	if err != nil {
		return nil, err
	}
	if source.Kind.IsTracked() {
		if err := g.sources.Credit(ctx, fundingSourceID, amount); err != nil {
			return nil, fmt.Errorf("credit funding source %s: %w", fundingSourceID, err)
		}
	}
	return newToken(source, amount, ReservationCredit), nil
}

// Release compensates a reservation. Releasing twice is a no-op.
func (g *BalanceGuard) Release(ctx context.Context, token *ReservationToken) error {
	if token == nil || token.released {
		return nil
	}
	if !token.Kind.IsTracked() {
		token.released = true
		return nil
	}
	switch token.Direction {
	case ReservationDebit:
		if err := g.sources.Credit(ctx, token.FundingSourceID, token.Amount); err != nil {
			return fmt.Errorf("release reservation %s: %w", token.ID, err)
		}
	case ReservationCredit:
		ok, err := g.sources.Debit(ctx, token.FundingSourceID, token.Amount)
		if err != nil {
			return fmt.Errorf("release deposit %s: %w", token.ID, err)
		}
		if !ok {
			return fmt.Errorf("release deposit %s: funds already drawn from %s", token.ID, token.Label)
		}
	}
	token.released = true
	return nil
}

// ReserveAll draws every leg or none. Legs on the same source are checked
// against the balance jointly before anything is drawn.
func (g *BalanceGuard) ReserveAll(ctx context.Context, legs []FundingLeg) ([]*ReservationToken, error) {
	return g.applyAll(ctx, legs, g.CheckAndReserve)
}

// DepositAll credits every leg or none
func (g *BalanceGuard) DepositAll(ctx context.Context, legs []FundingLeg) ([]*ReservationToken, error) {
	return g.applyAll(ctx, legs, g.Deposit)
}

// ReleaseAll releases tokens in reverse order and returns the first error
func (g *BalanceGuard) ReleaseAll(ctx context.Context, tokens []*ReservationToken) error {
	var firstErr error
	for i := len(tokens) - 1; i >= 0; i-- {
		if err := g.Release(ctx, tokens[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *BalanceGuard) applyAll(
	ctx context.Context,
	legs []FundingLeg,
	apply func(context.Context, uuid.UUID, decimal.Decimal) (*ReservationToken, error),
) ([]*ReservationToken, error) {
	merged, err := mergeLegs(legs)
	if err != nil {
		return nil, err
	}
	tokens := make([]*ReservationToken, 0, len(merged))
	for _, leg := range merged {
		token, err := apply(ctx, leg.FundingSourceID, leg.Amount)
		if err != nil {
			if relErr := g.ReleaseAll(ctx, tokens); relErr != nil {
				return nil, fmt.Errorf("%w (compensation failed: %v)", err, relErr)
			}
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// mergeLegs validates legs and sums amounts per source, keeping first-seen order
func mergeLegs(legs []FundingLeg) ([]FundingLeg, error) {
	if len(legs) == 0 {
		return nil, newValidationError("legs", "at least one funding leg is required")
	}
	index := make(map[uuid.UUID]int, len(legs))
	merged := make([]FundingLeg, 0, len(legs))
	for i, leg := range legs {
		if leg.FundingSourceID == uuid.Nil {
			return nil, newValidationError(fmt.Sprintf("legs[%d].funding_source_id", i), "funding source is required")
		}
		amount := shared.RoundMoney(leg.Amount)
		if !amount.IsPositive() {
			return nil, newValidationError(fmt.Sprintf("legs[%d].amount", i), "amount must be greater than zero")
		}
		if j, ok := index[leg.FundingSourceID]; ok {
			merged[j].Amount = merged[j].Amount.Add(amount)
			continue
		}
		index[leg.FundingSourceID] = len(merged)
		merged = append(merged, FundingLeg{FundingSourceID: leg.FundingSourceID, Amount: amount})
	}
	return merged, nil
}

func (g *BalanceGuard) load(ctx context.Context, id uuid.UUID) (*FundingSource, error) {
	source, err := g.sources.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return source, nil
}

func newToken(source *FundingSource, amount decimal.Decimal, direction ReservationDirection) *ReservationToken {
	return &ReservationToken{
		ID:              uuid.New(),
		FundingSourceID: source.ID,
		Label:           source.Name,
		Kind:            source.Kind,
		Amount:          amount,
		Direction:       direction,
		ReservedAt:      time.Now(),
	}
}
