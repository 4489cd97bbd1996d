package finance

import (
	"context"
	"fmt"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DocumentService manages the lifecycle of bills, sales invoices and credit notes
type DocumentService struct {
	deps
	locker shared.Locker
}

// NewDocumentService creates a new DocumentService. The locker serializes
// credit-note application with payments of the same counterparty.
func NewDocumentService(store Store, locker shared.Locker, opts ...Option) *DocumentService {
	return &DocumentService{deps: newDeps(store, opts), locker: locker}
}

// Create creates a draft document
func (s *DocumentService) Create(ctx context.Context, req CreateDocumentRequest, actor string) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "create",
		telemetry.SpanAttrDocumentKind, req.Kind,
		telemetry.SpanAttrCounterpartyID, req.CounterpartyID.String(),
	)
	defer span.End()

	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	items, err := toLineItems(req.LineItems)
	if err != nil {
		return nil, err
	}
	params := finance.NewDocumentParams{
		Kind:             kind,
		DocumentNumber:   req.DocumentNumber,
		CounterpartyID:   req.CounterpartyID,
		DueDate:          req.DueDate,
		LineItems:        items,
		DocumentDiscount: req.DocumentDiscount,
		Remark:           req.Remark,
		Actor:            actorOrSystem(actor),
	}
	if req.IssueDate != nil {
		params.IssueDate = *req.IssueDate
	}
	doc, err := finance.NewFinancialDocument(params)
	if err != nil {
		return nil, err
	}

	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		return repos.Documents.Save(ctx, doc)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, doc)
	s.recordTransition(ctx, doc.Kind, "create")
	s.logger.Info("document created",
		zap.String("document", doc.DocumentNumber),
		zap.String("kind", string(doc.Kind)),
		zap.String("total", money(doc.TotalAmount)),
	)
	resp := ToDocumentResponse(doc, s.now())
	return &resp, nil
}

// Get returns a document with its derived payment status and aging
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*DocumentResponse, error) {
	doc, err := s.store.Repositories().Documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToDocumentResponse(doc, s.now())
	return &resp, nil
}

// GetByNumber returns a document by its human-readable number
func (s *DocumentService) GetByNumber(ctx context.Context, number string) (*DocumentResponse, error) {
	doc, err := s.store.Repositories().Documents.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	resp := ToDocumentResponse(doc, s.now())
	return &resp, nil
}

// List returns a page of documents
func (s *DocumentService) List(ctx context.Context, f DocumentListFilter) (shared.Paginated[DocumentSummary], error) {
	filter := finance.DocumentFilter{
		Filter:   shared.DefaultFilter(),
		OnlyOpen: f.OnlyOpen,
	}
	if f.Page > 0 {
		filter.Page = f.Page
	}
	if f.PageSize > 0 {
		filter.PageSize = f.PageSize
	}
	if f.OrderBy != "" {
		filter.OrderBy = f.OrderBy
	}
	if f.OrderDir != "" {
		filter.OrderDir = f.OrderDir
	}
	if f.Kind != "" {
		kind, err := parseKind(f.Kind)
		if err != nil {
			return shared.Paginated[DocumentSummary]{}, err
		}
		filter.Kind = &kind
	}
	if f.CounterpartyID != "" {
		id, err := uuid.Parse(f.CounterpartyID)
		if err != nil {
			return shared.Paginated[DocumentSummary]{}, &finance.ValidationError{Field: "counterparty_id", Message: "invalid counterparty ID"}
		}
		filter.CounterpartyID = &id
	}
	if f.ApprovalStatus != "" {
		status := finance.ApprovalStatus(f.ApprovalStatus)
		if !status.IsValid() {
			return shared.Paginated[DocumentSummary]{}, &finance.ValidationError{Field: "approval_status", Message: "unknown approval status " + f.ApprovalStatus}
		}
		filter.ApprovalStatus = &status
	}

	docs, total, err := s.store.Repositories().Documents.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[DocumentSummary]{}, err
	}
	now := s.now()
	items := make([]DocumentSummary, len(docs))
	for i := range docs {
		items[i] = ToDocumentSummary(&docs[i], now)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// UpdateLineItems replaces the line items of an unlocked document
func (s *DocumentService) UpdateLineItems(ctx context.Context, id uuid.UUID, req UpdateLineItemsRequest, actor string) (*DocumentResponse, error) {
	items, err := toLineItems(req.LineItems)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "update_line_items", func(doc *finance.FinancialDocument) error {
		return doc.ReplaceLineItems(actorOrSystem(actor), items, req.DocumentDiscount)
	})
}

// Delete removes a draft, rejected or cancelled document that carries no payments
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	var kind finance.DocumentKind
	err := s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		doc, err := repos.Documents.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := doc.EnsureDeletable(); err != nil {
			return err
		}
		kind = doc.Kind
		return repos.Documents.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordTransition(ctx, kind, "delete")
	return nil
}

// Submit sends a draft for approval, or approves it when no workflow is configured
func (s *DocumentService) Submit(ctx context.Context, id uuid.UUID, actor string) (*DocumentResponse, error) {
	return s.mutate(ctx, id, "submit", func(doc *finance.FinancialDocument) error {
		return doc.Submit(actorOrSystem(actor), s.workflowRequired)
	})
}

// Approve approves a draft or pending document
func (s *DocumentService) Approve(ctx context.Context, id uuid.UUID, actor string) (*DocumentResponse, error) {
	return s.mutate(ctx, id, "approve", func(doc *finance.FinancialDocument) error {
		return doc.Approve(actor)
	})
}

// Reject rejects a draft or pending document with a mandatory reason
func (s *DocumentService) Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*DocumentResponse, error) {
	return s.mutate(ctx, id, "reject", func(doc *finance.FinancialDocument) error {
		return doc.Reject(actor, reason)
	})
}

// Cancel cancels a draft or approved document
func (s *DocumentService) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (*DocumentResponse, error) {
	return s.mutate(ctx, id, "cancel", func(doc *finance.FinancialDocument) error {
		return doc.Cancel(actorOrSystem(actor), reason)
	})
}

// Resubmit starts a new draft from a rejected document. The rejected
// document stays as it is.
func (s *DocumentService) Resubmit(ctx context.Context, id uuid.UUID, actor string) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "resubmit", telemetry.SpanAttrDocumentID, id.String())
	defer span.End()

	var clone *finance.FinancialDocument
	err := s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		doc, err := repos.Documents.FindByID(ctx, id)
		if err != nil {
			return err
		}
		clone, err = doc.CloneAsDraft(actorOrSystem(actor))
		if err != nil {
			return err
		}
		return repos.Documents.Save(ctx, clone)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, clone)
	s.recordTransition(ctx, clone.Kind, "resubmit")
	s.logger.Info("document resubmitted",
		zap.String("document", clone.DocumentNumber),
		zap.String("source_document_id", id.String()),
	)
	resp := ToDocumentResponse(clone, s.now())
	return &resp, nil
}

// ApplyCreditNote moves an approved credit note's outstanding amount into
// the counterparty's credit ledger
func (s *DocumentService) ApplyCreditNote(ctx context.Context, id uuid.UUID, actor string) (*ApplyCreditNoteResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", "apply_credit_note", telemetry.SpanAttrDocumentID, id.String())
	defer span.End()

	note, err := s.store.Repositories().Documents.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Acquire(ctx, lockKeyCounterparty(note.CounterpartyID))
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		doc      *finance.FinancialDocument
		account  *finance.CreditAccount
		credited decimal.Decimal
	)
	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		var err error
		doc, err = repos.Documents.FindByID(ctx, id)
		if err != nil {
			return err
		}
		credited, err = doc.ApplyToLedger(actorOrSystem(actor))
		if err != nil {
			return err
		}

		account, err = repos.Credits.FindOrCreate(ctx, doc.CounterpartyID)
		if err != nil {
			return err
		}
		sourceID := doc.ID
		if _, err := account.Credit(credited, finance.CreditSourceCreditNote, &sourceID, doc.DocumentNumber); err != nil {
			return err
		}
		if err := repos.Documents.Save(ctx, doc); err != nil {
			return err
		}
		return repos.Credits.Save(ctx, account)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, doc)
	s.recordTransition(ctx, doc.Kind, "apply_credit")
	s.logger.Info("credit note applied",
		zap.String("document", doc.DocumentNumber),
		zap.String("amount", money(credited)),
		zap.String("credit_balance", money(account.Balance())),
	)
	return &ApplyCreditNoteResponse{
		Document:       ToDocumentResponse(doc, s.now()),
		CreditedAmount: money(credited),
		CreditBalance:  money(account.Balance()),
	}, nil
}

// mutate loads a document, applies one transition and saves it under its
// version. A concurrent change surfaces as a ConcurrencyConflictError.
func (s *DocumentService) mutate(ctx context.Context, id uuid.UUID, transition string, fn func(doc *finance.FinancialDocument) error) (*DocumentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "document", transition, telemetry.SpanAttrDocumentID, id.String())
	defer span.End()

	var doc *finance.FinancialDocument
	err := s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		var err error
		doc, err = repos.Documents.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		if err := repos.Documents.Save(ctx, doc); err != nil {
			return fmt.Errorf("save document %s: %w", doc.DocumentNumber, err)
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentNumber, doc.DocumentNumber,
		telemetry.SpanAttrDocumentKind, string(doc.Kind),
	)
	s.publish(ctx, doc)
	s.recordTransition(ctx, doc.Kind, transition)
	s.logger.Info("document "+transition,
		zap.String("document", doc.DocumentNumber),
		zap.String("approval_status", string(doc.ApprovalStatus)),
	)
	resp := ToDocumentResponse(doc, s.now())
	return &resp, nil
}
