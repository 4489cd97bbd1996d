package finance

import (
	"context"
	"errors"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditService exposes counterparty credit balances and history
type CreditService struct {
	deps
	locker shared.Locker
}

// NewCreditService creates a new CreditService
func NewCreditService(store Store, locker shared.Locker, opts ...Option) *CreditService {
	return &CreditService{deps: newDeps(store, opts), locker: locker}
}

// Balance returns the available credit. A counterparty without an account has none.
func (s *CreditService) Balance(ctx context.Context, counterpartyID uuid.UUID) (*CreditBalanceResponse, error) {
	balance := decimal.Zero
	account, err := s.store.Repositories().Credits.FindByCounterparty(ctx, counterpartyID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		balance = account.Balance()
	}
	return &CreditBalanceResponse{CounterpartyID: counterpartyID, AvailableCredit: money(balance)}, nil
}

// Transactions returns the credit history, newest first
func (s *CreditService) Transactions(ctx context.Context, counterpartyID uuid.UUID, filter shared.Filter) (shared.Paginated[CreditTransactionResponse], error) {
	txs, total, err := s.store.Repositories().Credits.ListTransactions(ctx, counterpartyID, filter)
	if err != nil {
		return shared.Paginated[CreditTransactionResponse]{}, err
	}
	items := make([]CreditTransactionResponse, len(txs))
	for i, tx := range txs {
		items[i] = ToCreditTransactionResponse(tx)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// Grant adds manual credit, e.g. for returned goods
func (s *CreditService) Grant(ctx context.Context, counterpartyID uuid.UUID, req GrantCreditRequest, actor string) (*CreditTransactionResponse, error) {
	if counterpartyID == uuid.Nil {
		return nil, &finance.ValidationError{Field: "counterparty_id", Message: "counterparty is required"}
	}
	release, err := s.locker.Acquire(ctx, lockKeyCounterparty(counterpartyID))
	if err != nil {
		return nil, err
	}
	defer release()

	var tx finance.CreditTransaction
	err = s.store.Do(ctx, func(ctx context.Context, repos finance.Repositories) error {
		account, err := repos.Credits.FindOrCreate(ctx, counterpartyID)
		if err != nil {
			return err
		}
		tx, err = account.Credit(req.Amount, finance.CreditSourceManual, nil, req.Reference)
		if err != nil {
			return err
		}
		return repos.Credits.Save(ctx, account)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("credit granted",
		zap.String("counterparty_id", counterpartyID.String()),
		zap.String("amount", money(tx.Amount)),
		zap.String("balance", money(tx.BalanceAfter)),
		zap.String("actor", actorOrSystem(actor)),
	)
	resp := ToCreditTransactionResponse(tx)
	return &resp, nil
}
