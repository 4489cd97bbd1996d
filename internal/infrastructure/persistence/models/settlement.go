package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementModel is the persistence model for the Settlement aggregate root.
// Settlements are written once, so legs and allocations are stored as JSON.
type SettlementModel struct {
	AggregateModel
	Number         string                             `gorm:"type:varchar(50);not null;uniqueIndex"`
	CounterpartyID uuid.UUID                          `gorm:"type:uuid;not null;index"`
	Direction      finance.Direction                  `gorm:"type:varchar(20);not null"`
	Legs           JSONList[finance.SettlementLeg]    `gorm:"type:jsonb"`
	Allocations    JSONList[finance.AllocationRecord] `gorm:"type:jsonb"`
	TotalAmount    decimal.Decimal                    `gorm:"type:decimal(18,2);not null"`
	CreditConsumed decimal.Decimal                    `gorm:"type:decimal(18,2);not null"`
	ExcessAmount   decimal.Decimal                    `gorm:"type:decimal(18,2);not null"`
	Reference      string                             `gorm:"type:varchar(100)"`
	Actor          string                             `gorm:"type:varchar(100);not null"`
	RecordedAt     time.Time                          `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (SettlementModel) TableName() string {
	return "settlements"
}

// ToDomain converts the persistence model to a domain Settlement
func (m *SettlementModel) ToDomain() *finance.Settlement {
	return &finance.Settlement{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Number:            m.Number,
		CounterpartyID:    m.CounterpartyID,
		Direction:         m.Direction,
		Legs:              append([]finance.SettlementLeg(nil), m.Legs...),
		Allocations:       append([]finance.AllocationRecord(nil), m.Allocations...),
		TotalAmount:       m.TotalAmount,
		CreditConsumed:    m.CreditConsumed,
		ExcessAmount:      m.ExcessAmount,
		Reference:         m.Reference,
		Actor:             m.Actor,
		RecordedAt:        m.RecordedAt,
	}
}

// SettlementModelFromDomain creates a new persistence model from a domain Settlement
func SettlementModelFromDomain(s *finance.Settlement) *SettlementModel {
	m := &SettlementModel{
		Number:         s.Number,
		CounterpartyID: s.CounterpartyID,
		Direction:      s.Direction,
		Legs:           JSONList[finance.SettlementLeg](s.Legs),
		Allocations:    JSONList[finance.AllocationRecord](s.Allocations),
		TotalAmount:    s.TotalAmount,
		CreditConsumed: s.CreditConsumed,
		ExcessAmount:   s.ExcessAmount,
		Reference:      s.Reference,
		Actor:          s.Actor,
		RecordedAt:     s.RecordedAt,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}
