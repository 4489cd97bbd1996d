package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// SettlementService records payments against open documents. Each payment
// is one unit of work: funding sources are drawn, documents updated, credit
// moved and the settlement stored together, or not at all.
type SettlementService struct {
	deps
	locker shared.Locker
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(store Store, locker shared.Locker, opts ...Option) *SettlementService {
	return &SettlementService{deps: newDeps(store, opts), locker: locker}
}

// paymentPlan is a validated RecordPaymentRequest with the counterparty and
// direction resolved
type paymentPlan struct {
	counterpartyID uuid.UUID
	kind           finance.DocumentKind
	target         *uuid.UUID
	legs           []finance.FundingLeg
	allocations    []finance.RequestedAllocation
	useCredit      bool
	reference      string
	actor          string
}

func (p *paymentPlan) direction() finance.Direction {
	return p.kind.Direction()
}

func (p *paymentPlan) amount() decimal.Decimal {
	return finance.TotalOf(p.legs)
}

func (p *paymentPlan) lockKeys() []string {
	keys := make([]string, 0, len(p.legs)+1)
	for _, leg := range p.legs {
		keys = append(keys, lockKeyFundingSource(leg.FundingSourceID))
	}
	return append(keys, lockKeyCounterparty(p.counterpartyID))
}

// targetedDocuments are the documents the caller pointed at explicitly
func (p *paymentPlan) targetedDocuments() []uuid.UUID {
	if p.target != nil {
		return []uuid.UUID{*p.target}
	}
	ids := make([]uuid.UUID, 0, len(p.allocations))
	for _, a := range p.allocations {
		ids = append(ids, a.DocumentID)
	}
	return ids
}

// settlementOutcome is what a committed payment produced
type settlementOutcome struct {
	settlement *finance.Settlement
	documents  []*finance.FinancialDocument
	account    *finance.CreditAccount
}

// RecordPayment validates, reserves, allocates and applies a payment.
//
// Insufficient funds, over-allocation and illegal-state failures are audited
// on the targeted documents in a separate unit of work and returned
// unchanged; nothing of the payment itself is kept.
func (s *SettlementService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*RecordPaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "record_payment")
	defer span.End()

	var resp *RecordPaymentResponse
	var opErr error
	labels := telemetry.OperationLabels("record_payment", map[string]string{
		telemetry.ProfilingLabelDirection: req.Kind,
	})
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		resp, opErr = s.recordPayment(c, span, req)
	})
	if opErr != nil {
		telemetry.RecordError(span, opErr)
		telemetry.SetAttributes(span, telemetry.SpanAttrErrorCode, errorCode(opErr))
	}
	return resp, opErr
}

func (s *SettlementService) recordPayment(ctx context.Context, span trace.Span, req RecordPaymentRequest) (*RecordPaymentResponse, error) {
	start := time.Now()

	plan, err := s.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCounterpartyID, plan.counterpartyID.String(),
		telemetry.SpanAttrAmount, money(plan.amount()),
		telemetry.SpanAttrLegs, len(plan.legs),
		telemetry.SpanAttrActor, plan.actor,
	)

	release, err := s.locker.Acquire(ctx, plan.lockKeys()...)
	if err != nil {
		return nil, err
	}
	defer release()
	telemetry.AddEvent(span, "locks_acquired")

	var outcome *settlementOutcome
	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		var err error
		outcome, err = s.settle(ctx, repos, plan)
		return err
	})
	if err != nil {
		s.rejected(ctx, plan, err)
		return nil, err
	}

	settlement := outcome.settlement
	aggregates := make([]shared.AggregateRoot, 0, len(outcome.documents)+1)
	aggregates = append(aggregates, settlement)
	for _, doc := range outcome.documents {
		aggregates = append(aggregates, doc)
	}
	s.publish(ctx, aggregates...)

	if s.metrics != nil {
		s.metrics.RecordSettlement(ctx, string(plan.direction()), settlement.TotalAmount, time.Since(start))
	}
	telemetry.AddEvent(span, "settlement_recorded",
		telemetry.SpanAttrSettlementID, settlement.ID.String(),
		"credit_consumed", money(settlement.CreditConsumed),
		"excess", money(settlement.ExcessAmount),
	)
	s.logger.Info("settlement recorded",
		zap.String("settlement", settlement.Number),
		zap.String("counterparty_id", plan.counterpartyID.String()),
		zap.String("direction", string(plan.direction())),
		zap.String("amount", money(settlement.TotalAmount)),
		zap.String("credit_consumed", money(settlement.CreditConsumed)),
		zap.String("excess", money(settlement.ExcessAmount)),
		zap.Int("documents", len(outcome.documents)),
		zap.String("actor", plan.actor),
	)

	now := s.now()
	docs := make([]DocumentSummary, len(outcome.documents))
	for i, doc := range outcome.documents {
		docs[i] = ToDocumentSummary(doc, now)
	}
	return &RecordPaymentResponse{
		Settlement:    ToSettlementResponse(settlement),
		Documents:     docs,
		CreditBalance: money(outcome.account.Balance()),
	}, nil
}

// plan validates the request shape before any lock or write
func (s *SettlementService) plan(ctx context.Context, req RecordPaymentRequest) (*paymentPlan, error) {
	plan := &paymentPlan{
		useCredit: req.UseCredit,
		reference: req.Reference,
		actor:     actorOrSystem(req.Actor),
	}

	for i, leg := range req.Legs {
		if leg.FundingSourceID == uuid.Nil {
			return nil, &finance.ValidationError{Field: fmt.Sprintf("legs[%d].funding_source_id", i), Message: "funding source is required"}
		}
		amount := shared.RoundMoney(leg.Amount)
		if !amount.IsPositive() {
			return nil, &finance.ValidationError{Field: fmt.Sprintf("legs[%d].amount", i), Message: "amount must be greater than zero"}
		}
		plan.legs = append(plan.legs, finance.FundingLeg{FundingSourceID: leg.FundingSourceID, Amount: amount})
	}
	if len(plan.legs) == 0 && !req.UseCredit {
		return nil, &finance.ValidationError{Field: "legs", Message: "at least one funding leg or use_credit is required"}
	}
	for _, a := range req.Allocations {
		plan.allocations = append(plan.allocations, finance.RequestedAllocation{DocumentID: a.DocumentID, Amount: a.Amount})
	}

	if req.DocumentID != nil {
		doc, err := s.store.Repositories().Documents.FindByID(ctx, *req.DocumentID)
		if err != nil {
			return nil, err
		}
		if req.CounterpartyID != nil && *req.CounterpartyID != doc.CounterpartyID {
			return nil, &finance.ValidationError{Field: "counterparty_id", Message: "document belongs to another counterparty"}
		}
		target := doc.ID
		plan.target = &target
		plan.counterpartyID = doc.CounterpartyID
		plan.kind = doc.Kind
		return plan, nil
	}

	if req.CounterpartyID == nil || *req.CounterpartyID == uuid.Nil {
		return nil, &finance.ValidationError{Field: "counterparty_id", Message: "a counterparty or a target document is required"}
	}
	kind := finance.DocumentKind(req.Kind)
	if kind != finance.KindBill && kind != finance.KindSalesInvoice {
		return nil, &finance.ValidationError{Field: "kind", Message: "payments settle BILL or SALES_INVOICE documents"}
	}
	plan.counterpartyID = *req.CounterpartyID
	plan.kind = kind
	return plan, nil
}

// settle runs inside the unit of work. Reservations are compensated when a
// later step fails so that stores without rollback stay consistent too.
func (s *SettlementService) settle(ctx context.Context, repos finance.Repositories, plan *paymentPlan) (*settlementOutcome, error) {
	docs, candidates, err := s.candidates(ctx, repos.Documents, plan)
	if err != nil {
		return nil, err
	}
	account, err := repos.Credits.FindOrCreate(ctx, plan.counterpartyID)
	if err != nil {
		return nil, err
	}

	guard := finance.NewBalanceGuard(repos.FundingSources)
	var tokens []*finance.ReservationToken
	if len(plan.legs) > 0 {
		if plan.direction() == finance.DirectionPayable {
			tokens, err = guard.ReserveAll(ctx, plan.legs)
		} else {
			tokens, err = guard.DepositAll(ctx, plan.legs)
		}
		if err != nil {
			return nil, err
		}
	}

	outcome, err := s.apply(ctx, repos, plan, docs, candidates, account, tokens)
	if err != nil {
		if relErr := guard.ReleaseAll(ctx, tokens); relErr != nil {
			s.logger.Error("failed to release funding reservations",
				zap.Int("tokens", len(tokens)),
				zap.Error(relErr),
			)
		}
		return nil, err
	}
	return outcome, nil
}

func (s *SettlementService) candidates(ctx context.Context, repo finance.DocumentRepository, plan *paymentPlan) (map[uuid.UUID]*finance.FinancialDocument, []finance.Candidate, error) {
	if plan.target != nil {
		doc, err := repo.FindByID(ctx, *plan.target)
		if err != nil {
			return nil, nil, err
		}
		if doc.ApprovalStatus != finance.ApprovalApproved || doc.Kind.Direction() == finance.DirectionCredit {
			return nil, nil, &finance.IllegalStateTransitionError{
				Entity: "document " + doc.DocumentNumber,
				From:   string(doc.ApprovalStatus),
				Action: "record payment on",
			}
		}
		return map[uuid.UUID]*finance.FinancialDocument{doc.ID: doc},
			[]finance.Candidate{{DocumentID: doc.ID, Outstanding: doc.OutstandingAmount()}}, nil
	}

	open, err := repo.FindOpenByCounterparty(ctx, plan.counterpartyID, plan.kind)
	if err != nil {
		return nil, nil, err
	}
	docs := make(map[uuid.UUID]*finance.FinancialDocument, len(open))
	candidates := make([]finance.Candidate, len(open))
	for i := range open {
		doc := &open[i]
		docs[doc.ID] = doc
		candidates[i] = finance.Candidate{DocumentID: doc.ID, Outstanding: doc.OutstandingAmount()}
	}
	return docs, candidates, nil
}

func (s *SettlementService) apply(
	ctx context.Context,
	repos finance.Repositories,
	plan *paymentPlan,
	docs map[uuid.UUID]*finance.FinancialDocument,
	candidates []finance.Candidate,
	account *finance.CreditAccount,
	tokens []*finance.ReservationToken,
) (*settlementOutcome, error) {
	existingCredit := decimal.Zero
	if plan.useCredit {
		existingCredit = account.Balance()
	}
	allocation, err := finance.Allocate(finance.Payment{
		Amount:              plan.amount(),
		ExplicitAllocations: plan.allocations,
	}, candidates, existingCredit)
	if err != nil {
		return nil, err
	}

	legs := make([]finance.SettlementLeg, len(tokens))
	for i, t := range tokens {
		legs[i] = finance.SettlementLeg{FundingSourceID: t.FundingSourceID, FundingKind: t.Kind, Amount: t.Amount}
	}
	settlement, err := finance.NewSettlement(finance.NewSettlementParams{
		CounterpartyID: plan.counterpartyID,
		Direction:      plan.direction(),
		Legs:           legs,
		Allocation:     allocation,
		Reference:      plan.reference,
		Actor:          plan.actor,
	})
	if err != nil {
		return nil, err
	}

	touched := make([]*finance.FinancialDocument, 0, len(settlement.DocumentIDs()))
	seen := make(map[uuid.UUID]bool)
	for _, p := range settlement.PaymentEntries() {
		doc := docs[p.DocumentID]
		if p.Entry.IsCredit() {
			err = doc.ApplyCredit(plan.actor, p.Entry)
		} else {
			err = doc.ApplyPayment(plan.actor, p.Entry)
		}
		if err != nil {
			return nil, err
		}
		if !seen[doc.ID] {
			seen[doc.ID] = true
			touched = append(touched, doc)
		}
	}

	if allocation.CreditConsumed.IsPositive() {
		if _, err := account.Consume(allocation.CreditConsumed, finance.CreditSourceSettlement, &settlement.ID, settlement.Number); err != nil {
			return nil, err
		}
	}
	if allocation.ExcessAmount.IsPositive() {
		if _, err := account.Credit(allocation.ExcessAmount, finance.CreditSourceOverpayment, &settlement.ID, settlement.Number); err != nil {
			return nil, err
		}
	}

	for _, doc := range touched {
		if err := repos.Documents.Save(ctx, doc); err != nil {
			return nil, fmt.Errorf("save document %s: %w", doc.DocumentNumber, err)
		}
	}
	if len(account.PendingTransactions()) > 0 {
		if err := repos.Credits.Save(ctx, account); err != nil {
			return nil, fmt.Errorf("save credit account: %w", err)
		}
	}
	if err := repos.Settlements.Create(ctx, settlement); err != nil {
		return nil, fmt.Errorf("save settlement %s: %w", settlement.Number, err)
	}

	return &settlementOutcome{settlement: settlement, documents: touched, account: account}, nil
}

// rejected audits a refused payment on the documents it targeted. Malformed
// requests and version conflicts are not business rejections and leave no trace.
func (s *SettlementService) rejected(ctx context.Context, plan *paymentPlan, cause error) {
	kind := shared.KindOf(cause)
	if kind != shared.KindBusiness && kind != shared.KindIllegalState {
		return
	}
	code := errorCode(cause)
	if s.metrics != nil {
		s.metrics.RecordRejection(ctx, string(plan.direction()), code)
	}
	s.logger.Warn("payment rejected",
		zap.String("counterparty_id", plan.counterpartyID.String()),
		zap.String("code", code),
		zap.String("amount", money(plan.amount())),
		zap.String("actor", plan.actor),
		zap.Error(cause),
	)

	ids := plan.targetedDocuments()
	if len(ids) == 0 {
		return
	}
	err := s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		for _, id := range ids {
			doc, err := repos.Documents.FindByID(ctx, id)
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			doc.RecordRejectedPayment(plan.actor, cause)
			if err := repos.Documents.Save(ctx, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to audit rejected payment", zap.Error(err))
	}
}

// GetSettlement returns a recorded settlement
func (s *SettlementService) GetSettlement(ctx context.Context, id uuid.UUID) (*SettlementResponse, error) {
	settlement, err := s.store.Repositories().Settlements.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToSettlementResponse(settlement)
	return &resp, nil
}

// ListSettlements returns a counterparty's settlements
func (s *SettlementService) ListSettlements(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) (shared.Paginated[SettlementResponse], error) {
	settlements, total, err := s.store.Repositories().Settlements.FindByCounterparty(ctx, counterpartyID, filter)
	if err != nil {
		return shared.Paginated[SettlementResponse]{}, err
	}
	items := make([]SettlementResponse, len(settlements))
	for i := range settlements {
		items[i] = ToSettlementResponse(&settlements[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}
