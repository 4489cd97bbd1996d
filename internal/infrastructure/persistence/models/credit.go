package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditAccountModel is the persistence model for the CreditAccount aggregate root
type CreditAccountModel struct {
	AggregateModel
	CounterpartyID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	AvailableCredit decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (CreditAccountModel) TableName() string {
	return "credit_accounts"
}

// ToDomain converts the persistence model to a domain CreditAccount
func (m *CreditAccountModel) ToDomain() *finance.CreditAccount {
	return &finance.CreditAccount{
		BaseAggregateRoot: m.ToAggregateRoot(),
		CounterpartyID:    m.CounterpartyID,
		AvailableCredit:   m.AvailableCredit,
	}
}

// CreditAccountModelFromDomain creates a new persistence model from a domain CreditAccount
func CreditAccountModelFromDomain(a *finance.CreditAccount) *CreditAccountModel {
	m := &CreditAccountModel{
		CounterpartyID:  a.CounterpartyID,
		AvailableCredit: a.AvailableCredit,
	}
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	return m
}

// CreditTransactionModel is an immutable credit history row
type CreditTransactionModel struct {
	ID             uuid.UUID                     `gorm:"type:uuid;primary_key"`
	CounterpartyID uuid.UUID                     `gorm:"type:uuid;not null;index"`
	Type           finance.CreditTransactionType `gorm:"type:varchar(20);not null"`
	Amount         decimal.Decimal               `gorm:"type:decimal(18,2);not null"`
	BalanceBefore  decimal.Decimal               `gorm:"type:decimal(18,2);not null"`
	BalanceAfter   decimal.Decimal               `gorm:"type:decimal(18,2);not null"`
	SourceType     finance.CreditSourceType      `gorm:"type:varchar(20);not null"`
	SourceID       *uuid.UUID                    `gorm:"type:uuid;index"`
	Reference      string                        `gorm:"type:varchar(100)"`
	CreatedAt      time.Time                     `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (CreditTransactionModel) TableName() string {
	return "credit_transactions"
}

// ToDomain converts the model to a domain CreditTransaction
func (m *CreditTransactionModel) ToDomain() finance.CreditTransaction {
	return finance.CreditTransaction{
		ID:             m.ID,
		CounterpartyID: m.CounterpartyID,
		Type:           m.Type,
		Amount:         m.Amount,
		BalanceBefore:  m.BalanceBefore,
		BalanceAfter:   m.BalanceAfter,
		SourceType:     m.SourceType,
		SourceID:       m.SourceID,
		Reference:      m.Reference,
		CreatedAt:      m.CreatedAt,
	}
}

// CreditTransactionModelFromDomain creates a credit history row
func CreditTransactionModelFromDomain(t finance.CreditTransaction) CreditTransactionModel {
	return CreditTransactionModel{
		ID:             t.ID,
		CounterpartyID: t.CounterpartyID,
		Type:           t.Type,
		Amount:         t.Amount,
		BalanceBefore:  t.BalanceBefore,
		BalanceAfter:   t.BalanceAfter,
		SourceType:     t.SourceType,
		SourceID:       t.SourceID,
		Reference:      t.Reference,
		CreatedAt:      t.CreatedAt,
	}
}
