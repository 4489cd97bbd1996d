package event

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n finance.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type mockInventoryGateway struct {
	mock.Mock
}

func (m *mockInventoryGateway) Reserve(ctx context.Context, documentID uuid.UUID, lines []finance.LineItem) error {
	return m.Called(ctx, documentID, lines).Error(0)
}

func (m *mockInventoryGateway) Release(ctx context.Context, documentID uuid.UUID) error {
	return m.Called(ctx, documentID).Error(0)
}

func newDraft(t *testing.T, kind finance.DocumentKind) *finance.FinancialDocument {
	t.Helper()
	item, err := finance.NewLineItem("Widgets", decimal.NewFromInt(2), shared.MustMoney("50.00"), decimal.Zero, nil)
	require.NoError(t, err)
	doc, err := finance.NewFinancialDocument(finance.NewDocumentParams{
		Kind:           kind,
		CounterpartyID: uuid.New(),
		LineItems:      []finance.LineItem{item},
		Actor:          "alice",
	})
	require.NoError(t, err)
	return doc
}

func TestNotificationHandler(t *testing.T) {
	doc := newDraft(t, finance.KindBill)

	tests := []struct {
		name        string
		event       shared.DomainEvent
		wantCall    bool
		wantActor   string
		wantMessage string
	}{
		{
			name:        "submitted",
			event:       finance.NewDocumentSubmittedEvent(doc, "alice"),
			wantCall:    true,
			wantActor:   "alice",
			wantMessage: "BILL " + doc.DocumentNumber + " is awaiting approval",
		},
		{
			name:        "rejected carries the reason",
			event:       finance.NewDocumentRejectedEvent(doc, "bob", "wrong vendor"),
			wantCall:    true,
			wantActor:   "bob",
			wantMessage: "BILL " + doc.DocumentNumber + " was rejected: wrong vendor",
		},
		{
			name:        "settled",
			event:       finance.NewDocumentSettledEvent(doc),
			wantCall:    true,
			wantActor:   "system",
			wantMessage: "BILL " + doc.DocumentNumber + " is fully settled",
		},
		{
			name:  "other events are ignored",
			event: finance.NewDocumentCreatedEvent(doc),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			notifier := new(mockNotifier)
			if tc.wantCall {
				notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n finance.Notification) bool {
					return n.DocumentID == doc.ID &&
						n.Event == tc.event.EventType() &&
						n.Actor == tc.wantActor &&
						n.Message == tc.wantMessage
				})).Return(nil).Once()
			}

			h := NewNotificationHandler(notifier, zap.NewNop())
			require.NoError(t, h.Handle(context.Background(), tc.event))
			notifier.AssertExpectations(t)
		})
	}
}

func TestNotificationHandler_PropagatesFailure(t *testing.T) {
	doc := newDraft(t, finance.KindSalesInvoice)
	notifier := new(mockNotifier)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("mailbox full"))

	h := NewNotificationHandler(notifier, zap.NewNop())
	assert.Error(t, h.Handle(context.Background(), finance.NewDocumentApprovedEvent(doc, "carol")))
}

func TestInventoryHandler(t *testing.T) {
	t.Run("approved sales invoice reserves stock", func(t *testing.T) {
		doc := newDraft(t, finance.KindSalesInvoice)
		gateway := new(mockInventoryGateway)
		gateway.On("Reserve", mock.Anything, doc.ID, doc.LineItems).Return(nil).Once()

		h := NewInventoryHandler(gateway, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), finance.NewDocumentApprovedEvent(doc, "alice")))
		gateway.AssertExpectations(t)
	})

	t.Run("bills never touch stock", func(t *testing.T) {
		doc := newDraft(t, finance.KindBill)
		gateway := new(mockInventoryGateway)

		h := NewInventoryHandler(gateway, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), finance.NewDocumentApprovedEvent(doc, "alice")))
		require.NoError(t, h.Handle(context.Background(), finance.NewDocumentCancelledEvent(doc, "alice", "", false, true)))
		gateway.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
		gateway.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("cancelling an approved invoice releases stock", func(t *testing.T) {
		doc := newDraft(t, finance.KindSalesInvoice)
		gateway := new(mockInventoryGateway)
		gateway.On("Release", mock.Anything, doc.ID).Return(nil).Once()

		h := NewInventoryHandler(gateway, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), finance.NewDocumentCancelledEvent(doc, "alice", "duplicate", false, true)))
		gateway.AssertExpectations(t)
	})

	t.Run("cancelling a draft releases nothing", func(t *testing.T) {
		doc := newDraft(t, finance.KindSalesInvoice)
		gateway := new(mockInventoryGateway)

		h := NewInventoryHandler(gateway, zap.NewNop())
		require.NoError(t, h.Handle(context.Background(), finance.NewDocumentCancelledEvent(doc, "alice", "", false, false)))
		gateway.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
	})

	t.Run("gateway failure is reported", func(t *testing.T) {
		doc := newDraft(t, finance.KindSalesInvoice)
		gateway := new(mockInventoryGateway)
		gateway.On("Reserve", mock.Anything, doc.ID, mock.Anything).Return(errors.New("warehouse offline"))

		h := NewInventoryHandler(gateway, zap.NewNop())
		err := h.Handle(context.Background(), finance.NewDocumentApprovedEvent(doc, "alice"))
		assert.ErrorContains(t, err, "reserve stock for "+doc.DocumentNumber)
	})
}

func TestSettlementLogHandler(t *testing.T) {
	payment := finance.Payment{Amount: shared.MustMoney("40.00")}
	result, err := finance.Allocate(payment, nil, decimal.Zero)
	require.NoError(t, err)
	settlement, err := finance.NewSettlement(finance.NewSettlementParams{
		CounterpartyID: uuid.New(),
		Direction:      finance.DirectionPayable,
		Legs:           []finance.SettlementLeg{{FundingSourceID: uuid.New(), FundingKind: finance.FundingCash, Amount: payment.Amount}},
		Allocation:     result,
		Actor:          "alice",
	})
	require.NoError(t, err)

	h := NewSettlementLogHandler(zap.NewNop())
	assert.Contains(t, h.EventTypes(), finance.EventTypeSettlementRecorded)
	assert.NoError(t, h.Handle(context.Background(), finance.NewSettlementRecordedEvent(settlement)))
}
