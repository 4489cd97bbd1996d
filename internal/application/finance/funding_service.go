package finance

import (
	"context"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FundingService manages cash drawers, bank accounts and owner funds
type FundingService struct {
	deps
	locker shared.Locker
}

// NewFundingService creates a new FundingService
func NewFundingService(store Store, locker shared.Locker, opts ...Option) *FundingService {
	return &FundingService{deps: newDeps(store, opts), locker: locker}
}

// Create registers a funding source with its opening balance
func (s *FundingService) Create(ctx context.Context, req CreateFundingSourceRequest) (*FundingSourceResponse, error) {
	source, err := finance.NewFundingSource(req.Name, finance.FundingSourceKind(req.Kind), req.OpeningBalance)
	if err != nil {
		return nil, err
	}
	source.AccountNumber = req.AccountNumber

	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		return repos.FundingSources.Create(ctx, source)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("funding source created",
		zap.String("name", source.Name),
		zap.String("kind", string(source.Kind)),
		zap.String("opening_balance", money(source.AvailableBalance)),
	)
	resp := ToFundingSourceResponse(source)
	return &resp, nil
}

// Get returns a funding source
func (s *FundingService) Get(ctx context.Context, id uuid.UUID) (*FundingSourceResponse, error) {
	source, err := s.store.Repositories().FundingSources.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToFundingSourceResponse(source)
	return &resp, nil
}

// List returns a page of funding sources
func (s *FundingService) List(ctx context.Context, filter shared.Filter) (shared.Paginated[FundingSourceResponse], error) {
	sources, total, err := s.store.Repositories().FundingSources.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[FundingSourceResponse]{}, err
	}
	items := make([]FundingSourceResponse, len(sources))
	for i := range sources {
		items[i] = ToFundingSourceResponse(&sources[i])
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Deposit tops up a funding source through the balance guard
func (s *FundingService) Deposit(ctx context.Context, id uuid.UUID, req DepositRequest, actor string) (*FundingSourceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "funding", "deposit",
		telemetry.SpanAttrFundingSourceID, id.String(),
		telemetry.SpanAttrAmount, money(req.Amount),
	)
	defer span.End()

	release, err := s.locker.Acquire(ctx, lockKeyFundingSource(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var source *finance.FundingSource
	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		if _, err := finance.NewBalanceGuard(repos.FundingSources).Deposit(ctx, id, req.Amount); err != nil {
			return err
		}
		var err error
		source, err = repos.FundingSources.FindByID(ctx, id)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("funding source topped up",
		zap.String("name", source.Name),
		zap.String("amount", money(req.Amount)),
		zap.String("balance", money(source.AvailableBalance)),
		zap.String("actor", actorOrSystem(actor)),
	)
	resp := ToFundingSourceResponse(source)
	return &resp, nil
}
