package persistence

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"gorm.io/gorm"
)

// GormUnitOfWork runs a settlement step inside one database transaction,
// handing out repositories bound to that transaction.
type GormUnitOfWork struct {
	db          *gorm.DB
	documents   *GormDocumentRepository
	sources     *GormFundingSourceRepository
	credits     *GormCreditAccountRepository
	settlements *GormSettlementRepository
}

// NewGormUnitOfWork creates a unit of work over db
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{
		db:          db,
		documents:   NewGormDocumentRepository(db),
		sources:     NewGormFundingSourceRepository(db),
		credits:     NewGormCreditAccountRepository(db),
		settlements: NewGormSettlementRepository(db),
	}
}

// Do runs fn in a transaction. Returning an error rolls back every write fn made.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos finance.Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, finance.Repositories{
			Documents:      u.documents.WithTx(tx),
			FundingSources: u.sources.WithTx(tx),
			Credits:        u.credits.WithTx(tx),
			Settlements:    u.settlements.WithTx(tx),
		})
	})
}

// Repositories returns repositories outside any transaction, for reads
func (u *GormUnitOfWork) Repositories() finance.Repositories {
	return finance.Repositories{
		Documents:      u.documents,
		FundingSources: u.sources,
		Credits:        u.credits,
		Settlements:    u.settlements,
	}
}

// Ensure GormUnitOfWork implements the interface
var _ finance.UnitOfWork = (*GormUnitOfWork)(nil)
