package models

import (
	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// FundingSourceModel is the persistence model for the FundingSource aggregate root.
// AvailableBalance is only ever changed by conditional UPDATE statements.
type FundingSourceModel struct {
	AggregateModel
	Name             string                    `gorm:"type:varchar(100);not null;uniqueIndex"`
	Kind             finance.FundingSourceKind `gorm:"type:varchar(30);not null;index"`
	AccountNumber    string                    `gorm:"type:varchar(50)"`
	AvailableBalance decimal.Decimal           `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (FundingSourceModel) TableName() string {
	return "funding_sources"
}

// ToDomain converts the persistence model to a domain FundingSource
func (m *FundingSourceModel) ToDomain() *finance.FundingSource {
	return &finance.FundingSource{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Name:              m.Name,
		Kind:              m.Kind,
		AccountNumber:     m.AccountNumber,
		AvailableBalance:  shared.RoundMoney(m.AvailableBalance),
	}
}

// FromDomain populates the persistence model from a domain FundingSource
func (m *FundingSourceModel) FromDomain(f *finance.FundingSource) {
	m.FromDomainAggregateRoot(f.BaseAggregateRoot)
	m.Name = f.Name
	m.Kind = f.Kind
	m.AccountNumber = f.AccountNumber
	m.AvailableBalance = f.AvailableBalance
}

// FundingSourceModelFromDomain creates a new persistence model from a domain FundingSource
func FundingSourceModelFromDomain(f *finance.FundingSource) *FundingSourceModel {
	m := &FundingSourceModel{}
	m.FromDomain(f)
	return m
}
