package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCreditAccountRepository implements finance.CreditAccountRepository using GORM
type GormCreditAccountRepository struct {
	db *gorm.DB
}

// NewGormCreditAccountRepository creates a new GormCreditAccountRepository
func NewGormCreditAccountRepository(db *gorm.DB) *GormCreditAccountRepository {
	return &GormCreditAccountRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormCreditAccountRepository) WithTx(tx *gorm.DB) *GormCreditAccountRepository {
	return &GormCreditAccountRepository{db: tx}
}

// FindByCounterparty finds the credit account of a counterparty
func (r *GormCreditAccountRepository) FindByCounterparty(ctx context.Context, counterpartyID uuid.UUID) (*finance.CreditAccount, error) {
	var model models.CreditAccountModel
	if err := r.db.WithContext(ctx).First(&model, "counterparty_id = ?", counterpartyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("credit account of %s: %w", counterpartyID, shared.ErrNotFound)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOrCreate returns the stored account or a fresh, unsaved one
func (r *GormCreditAccountRepository) FindOrCreate(ctx context.Context, counterpartyID uuid.UUID) (*finance.CreditAccount, error) {
	account, err := r.FindByCounterparty(ctx, counterpartyID)
	if errors.Is(err, shared.ErrNotFound) {
		return finance.NewCreditAccount(counterpartyID), nil
	}
	return account, err
}

// ListTransactions returns a counterparty's credit history, newest first by default
func (r *GormCreditAccountRepository) ListTransactions(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]finance.CreditTransaction, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditTransactionModel{}).
		Where("counterparty_id = ?", counterpartyID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).
		Where("counterparty_id = ?", counterpartyID).
		Clauses(creditTransactionSort.orderBy(filter))
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}

	var txModels []models.CreditTransactionModel
	if err := query.Find(&txModels).Error; err != nil {
		return nil, 0, err
	}
	txs := make([]finance.CreditTransaction, len(txModels))
	for i := range txModels {
		txs[i] = txModels[i].ToDomain()
	}
	return txs, total, nil
}

// Save writes the balance under the account's version and appends the
// pending transactions.
func (r *GormCreditAccountRepository) Save(ctx context.Context, account *finance.CreditAccount) error {
	db := r.db.WithContext(ctx)
	model := models.CreditAccountModelFromDomain(account)

	if account.Version == 0 {
		model.Version = 1
		if err := db.Create(model).Error; err != nil {
			return err
		}
	} else {
		result := db.Model(&models.CreditAccountModel{}).
			Where("id = ? AND version = ?", account.ID, account.Version).
			Updates(map[string]any{
				"available_credit": account.AvailableCredit,
				"version":          account.Version + 1,
				"updated_at":       account.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return finance.NewConcurrencyConflictError("credit account", account.ID, account.Version)
		}
	}

	if pending := account.PendingTransactions(); len(pending) > 0 {
		rows := make([]models.CreditTransactionModel, len(pending))
		for i, t := range pending {
			rows[i] = models.CreditTransactionModelFromDomain(t)
		}
		if err := db.Create(&rows).Error; err != nil {
			return err
		}
	}
	account.Version++
	account.ClearPendingTransactions()
	return nil
}

// Ensure GormCreditAccountRepository implements the interface
var _ finance.CreditAccountRepository = (*GormCreditAccountRepository)(nil)
