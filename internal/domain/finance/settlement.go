package finance

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeSettlement is the aggregate type for settlements
const AggregateTypeSettlement = "Settlement"

// SettlementLeg is one funding source's share of a settlement
type SettlementLeg struct {
	FundingSourceID uuid.UUID         `json:"funding_source_id"`
	FundingKind     FundingSourceKind `json:"funding_kind"`
	Amount          decimal.Decimal   `json:"amount"`
}

// Settlement is the immutable record of one recorded payment: where the money
// came from and which documents it was applied to.
type Settlement struct {
	shared.BaseAggregateRoot
	Number         string
	CounterpartyID uuid.UUID
	Direction      Direction
	Legs           []SettlementLeg
	Allocations    []AllocationRecord
	TotalAmount    decimal.Decimal
	CreditConsumed decimal.Decimal
	ExcessAmount   decimal.Decimal
	Reference      string
	Actor          string
	RecordedAt     time.Time
}

// NewSettlementParams carries the inputs of NewSettlement
type NewSettlementParams struct {
	CounterpartyID uuid.UUID
	Direction      Direction
	Legs           []SettlementLeg
	Allocation     *AllocationResult
	Reference      string
	Actor          string
}

// NewSettlement builds a settlement from reserved legs and an allocation
func NewSettlement(p NewSettlementParams) (*Settlement, error) {
	if p.CounterpartyID == uuid.Nil {
		return nil, newValidationError("counterparty_id", "counterparty is required")
	}
	if p.Direction != DirectionPayable && p.Direction != DirectionReceivable {
		return nil, newValidationError("direction", "settlements are either payable or receivable")
	}
	if p.Allocation == nil {
		return nil, newValidationError("allocation", "allocation result is required")
	}
	total := decimal.Zero
	for _, l := range p.Legs {
		total = total.Add(l.Amount)
	}
	if len(p.Legs) == 0 && p.Allocation.CreditConsumed.IsZero() {
		return nil, newValidationError("legs", "a settlement needs money or credit")
	}

	actor := strings.TrimSpace(p.Actor)
	if actor == "" {
		actor = "system"
	}
	now := time.Now()
	s := &Settlement{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Number:            GenerateNumber("SET", now),
		CounterpartyID:    p.CounterpartyID,
		Direction:         p.Direction,
		Legs:              append([]SettlementLeg(nil), p.Legs...),
		Allocations:       append([]AllocationRecord(nil), p.Allocation.Records...),
		TotalAmount:       total,
		CreditConsumed:    p.Allocation.CreditConsumed,
		ExcessAmount:      p.Allocation.ExcessAmount,
		Reference:         p.Reference,
		Actor:             actor,
		RecordedAt:        now,
	}
	s.AddDomainEvent(NewSettlementRecordedEvent(s))
	return s, nil
}

// DocumentIDs lists the documents touched, in allocation order
func (s *Settlement) DocumentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Allocations))
	seen := make(map[uuid.UUID]struct{}, len(s.Allocations))
	for _, a := range s.Allocations {
		if _, ok := seen[a.DocumentID]; ok {
			continue
		}
		seen[a.DocumentID] = struct{}{}
		ids = append(ids, a.DocumentID)
	}
	return ids
}

// DocumentPayment is a payment entry destined for one document
type DocumentPayment struct {
	DocumentID uuid.UUID
	Entry      PaymentEntry
}

// PaymentEntries turns the allocation records into per-document payment
// entries. Direct records are drawn from the legs in order, so one record may
// become several entries when it spans two funding sources. Credit records
// become CREDIT entries.
func (s *Settlement) PaymentEntries() []DocumentPayment {
	settlementID := s.ID
	remaining := make([]decimal.Decimal, len(s.Legs))
	for i, l := range s.Legs {
		remaining[i] = l.Amount
	}

	out := make([]DocumentPayment, 0, len(s.Allocations))
	leg := 0
	for _, rec := range s.Allocations {
		if rec.Source == SourceCreditConsumption {
			out = append(out, DocumentPayment{
				DocumentID: rec.DocumentID,
				Entry:      NewPaymentEntry(rec.AppliedAmount, PaymentMethodCredit, nil, &settlementID, s.Number),
			})
			continue
		}
		need := rec.AppliedAmount
		for need.IsPositive() && leg < len(s.Legs) {
			take := decimal.Min(need, remaining[leg])
			if take.IsPositive() {
				sourceID := s.Legs[leg].FundingSourceID
				entry := NewPaymentEntry(take, s.Legs[leg].FundingKind.PaymentMethod(), &sourceID, &settlementID, s.paymentReference())
				out = append(out, DocumentPayment{DocumentID: rec.DocumentID, Entry: entry})
				remaining[leg] = remaining[leg].Sub(take)
				need = need.Sub(take)
			}
			if !remaining[leg].IsPositive() {
				leg++
			}
		}
	}
	return out
}

func (s *Settlement) paymentReference() string {
	if s.Reference != "" {
		return s.Reference
	}
	return s.Number
}

// SettlementRecordedEvent is raised once per successful settlement
type SettlementRecordedEvent struct {
	shared.BaseDomainEvent
	SettlementNumber string          `json:"settlement_number"`
	CounterpartyID   uuid.UUID       `json:"counterparty_id"`
	Direction        Direction       `json:"direction"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	CreditConsumed   decimal.Decimal `json:"credit_consumed"`
	ExcessAmount     decimal.Decimal `json:"excess_amount"`
	DocumentIDs      []uuid.UUID     `json:"document_ids"`
}

func NewSettlementRecordedEvent(s *Settlement) *SettlementRecordedEvent {
	return &SettlementRecordedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeSettlementRecorded, AggregateTypeSettlement, s.ID),
		SettlementNumber: s.Number,
		CounterpartyID:   s.CounterpartyID,
		Direction:        s.Direction,
		TotalAmount:      s.TotalAmount,
		CreditConsumed:   s.CreditConsumed,
		ExcessAmount:     s.ExcessAmount,
		DocumentIDs:      s.DocumentIDs(),
	}
}
