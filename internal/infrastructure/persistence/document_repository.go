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
	"gorm.io/gorm/clause"
)

// GormDocumentRepository implements finance.DocumentRepository using GORM
type GormDocumentRepository struct {
	db *gorm.DB
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormDocumentRepository) WithTx(tx *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: tx}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position")
}

func (r *GormDocumentRepository) withChildren(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("LineItems", byPosition).
		Preload("Payments", byPosition).
		Preload("AuditLog", byPosition)
}

// FindByID finds a document by ID
func (r *GormDocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.FinancialDocument, error) {
	var model models.DocumentModel
	if err := r.withChildren(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %s: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a document by its number
func (r *GormDocumentRepository) FindByNumber(ctx context.Context, number string) (*finance.FinancialDocument, error) {
	var model models.DocumentModel
	if err := r.withChildren(ctx).First(&model, "document_number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document %s: %w", number, shared.ErrNotFound)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenByCounterparty returns approved documents with an outstanding amount,
// oldest due date first. Documents without a due date sort last.
func (r *GormDocumentRepository) FindOpenByCounterparty(ctx context.Context, counterpartyID uuid.UUID, kind finance.DocumentKind) ([]finance.FinancialDocument, error) {
	var docModels []models.DocumentModel
	err := r.withChildren(ctx).
		Where("counterparty_id = ? AND kind = ? AND approval_status = ? AND outstanding_amount > 0",
			counterpartyID, kind, finance.ApprovalApproved).
		Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END").
		Order("due_date ASC").
		Order("issue_date ASC").
		Order("document_number ASC").
		Find(&docModels).Error
	if err != nil {
		return nil, err
	}
	return toDocuments(docModels), nil
}

// FindAll finds documents with filtering and returns the total count
func (r *GormDocumentRepository) FindAll(ctx context.Context, filter finance.DocumentFilter) ([]finance.FinancialDocument, int64, error) {
	var total int64
	countQuery := applyDocumentFilter(r.db.WithContext(ctx).Model(&models.DocumentModel{}), filter)
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := applyDocumentFilter(r.withChildren(ctx), filter).Clauses(documentSort.orderBy(filter.Filter))
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}

	var docModels []models.DocumentModel
	if err := query.Find(&docModels).Error; err != nil {
		return nil, 0, err
	}
	return toDocuments(docModels), total, nil
}

func applyDocumentFilter(query *gorm.DB, filter finance.DocumentFilter) *gorm.DB {
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.CounterpartyID != nil {
		query = query.Where("counterparty_id = ?", *filter.CounterpartyID)
	}
	if filter.ApprovalStatus != nil {
		query = query.Where("approval_status = ?", *filter.ApprovalStatus)
	}
	if filter.OnlyOpen {
		query = query.Where("outstanding_amount > 0")
	}
	if filter.DueBefore != nil {
		query = query.Where("due_date < ?", *filter.DueBefore)
	}
	return query
}

// Save inserts a new document or updates an existing one under its version.
// Line items are rewritten; payments and audit entries are append-only.
func (r *GormDocumentRepository) Save(ctx context.Context, doc *finance.FinancialDocument) error {
	model := models.DocumentModelFromDomain(doc)
	db := r.db.WithContext(ctx)

	if doc.Version == 0 {
		model.Version = 1
		if err := db.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if err := r.writeLineItems(db, model); err != nil {
			return err
		}
		if err := r.appendHistory(db, model); err != nil {
			return err
		}
		doc.Version = 1
		return nil
	}

	columns := model.HeaderColumns()
	columns["version"] = doc.Version + 1
	result := db.Model(&models.DocumentModel{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return finance.NewConcurrencyConflictError("document", doc.ID, doc.Version)
	}

	if err := db.Where("document_id = ?", doc.ID).Delete(&models.LineItemModel{}).Error; err != nil {
		return err
	}
	if err := r.writeLineItems(db, model); err != nil {
		return err
	}
	if err := r.appendHistory(db, model); err != nil {
		return err
	}
	doc.Version++
	return nil
}

func (r *GormDocumentRepository) writeLineItems(db *gorm.DB, model *models.DocumentModel) error {
	if len(model.LineItems) == 0 {
		return nil
	}
	return db.Create(&model.LineItems).Error
}

// appendHistory inserts payment and audit rows not stored yet. Existing rows
// are never rewritten.
func (r *GormDocumentRepository) appendHistory(db *gorm.DB, model *models.DocumentModel) error {
	if len(model.Payments) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.Payments).Error; err != nil {
			return err
		}
	}
	if len(model.AuditLog) > 0 {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.AuditLog).Error; err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a document and its children
func (r *GormDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	for _, child := range []any{&models.LineItemModel{}, &models.PaymentEntryModel{}, &models.AuditEntryModel{}} {
		if err := db.Where("document_id = ?", id).Delete(child).Error; err != nil {
			return err
		}
	}
	result := db.Delete(&models.DocumentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func toDocuments(docModels []models.DocumentModel) []finance.FinancialDocument {
	docs := make([]finance.FinancialDocument, len(docModels))
	for i := range docModels {
		docs[i] = *docModels[i].ToDomain()
	}
	return docs
}

// Ensure GormDocumentRepository implements the interface
var _ finance.DocumentRepository = (*GormDocumentRepository)(nil)
