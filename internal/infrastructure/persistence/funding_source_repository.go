package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormFundingSourceRepository implements finance.FundingSourceRepository using GORM
type GormFundingSourceRepository struct {
	db *gorm.DB
}

// NewGormFundingSourceRepository creates a new GormFundingSourceRepository
func NewGormFundingSourceRepository(db *gorm.DB) *GormFundingSourceRepository {
	return &GormFundingSourceRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormFundingSourceRepository) WithTx(tx *gorm.DB) *GormFundingSourceRepository {
	return &GormFundingSourceRepository{db: tx}
}

// FindByID finds a funding source by ID
func (r *GormFundingSourceRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.FundingSource, error) {
	var model models.FundingSourceModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("funding source %s: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists funding sources
func (r *GormFundingSourceRepository) FindAll(ctx context.Context, filter shared.Filter) ([]finance.FundingSource, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.FundingSourceModel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).Clauses(fundingSourceSort.orderBy(filter))
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}

	var sourceModels []models.FundingSourceModel
	if err := query.Find(&sourceModels).Error; err != nil {
		return nil, 0, err
	}
	sources := make([]finance.FundingSource, len(sourceModels))
	for i := range sourceModels {
		sources[i] = *sourceModels[i].ToDomain()
	}
	return sources, total, nil
}

// Create persists a new funding source
func (r *GormFundingSourceRepository) Create(ctx context.Context, source *finance.FundingSource) error {
	model := models.FundingSourceModelFromDomain(source)
	model.Version = 1
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	source.Version = 1
	return nil
}

// Debit subtracts amount in one conditional statement. The WHERE clause is
// the sufficiency check, so concurrent debits can never overdraw the row.
func (r *GormFundingSourceRepository) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.FundingSourceModel{}).
		Where("id = ? AND available_balance >= ?", id, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Credit adds amount to the balance
func (r *GormFundingSourceRepository) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.FundingSourceModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("funding source %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Ensure GormFundingSourceRepository implements the interface
var _ finance.FundingSourceRepository = (*GormFundingSourceRepository)(nil)
