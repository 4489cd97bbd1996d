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

// GormSettlementRepository implements finance.SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormSettlementRepository) WithTx(tx *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: tx}
}

// FindByID finds a settlement by ID
func (r *GormSettlementRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.Settlement, error) {
	var model models.SettlementModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("settlement %s: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCounterparty lists a counterparty's settlements
func (r *GormSettlementRepository) FindByCounterparty(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) ([]finance.Settlement, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.SettlementModel{}).
		Where("counterparty_id = ?", counterpartyID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).
		Where("counterparty_id = ?", counterpartyID).
		Clauses(settlementSort.orderBy(filter))
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}

	var settlementModels []models.SettlementModel
	if err := query.Find(&settlementModels).Error; err != nil {
		return nil, 0, err
	}
	out := make([]finance.Settlement, len(settlementModels))
	for i := range settlementModels {
		out[i] = *settlementModels[i].ToDomain()
	}
	return out, total, nil
}

// Create persists a settlement. Settlements are never updated.
func (r *GormSettlementRepository) Create(ctx context.Context, settlement *finance.Settlement) error {
	model := models.SettlementModelFromDomain(settlement)
	model.Version = 1
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	settlement.Version = 1
	return nil
}

// Ensure GormSettlementRepository implements the interface
var _ finance.SettlementRepository = (*GormSettlementRepository)(nil)
