package finance

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPayment_PartialBillPayment(t *testing.T) {
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "1000.00", nil)
	cash := f.source(t, "Cash drawer", finance.FundingCash, "5000.00")

	resp, err := f.settlements.RecordPayment(context.Background(), RecordPaymentRequest{
		DocumentID: &bill.ID,
		Legs:       []FundingLegInput{leg(cash, "600")},
		Actor:      "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "600.00", resp.Settlement.TotalAmount)
	assert.Equal(t, "PAYABLE", resp.Settlement.Direction)
	assert.Equal(t, "0.00", resp.Settlement.ExcessAmount)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "400.00", resp.Documents[0].Outstanding)

	doc := f.document(t, bill.ID)
	assert.Equal(t, "400.00", doc.Outstanding)
	assert.Equal(t, "600.00", doc.PaidAmount)
	assert.Equal(t, string(finance.PaymentPartial), doc.PaymentStatus)
	assert.True(t, doc.IsLocked)
	require.Len(t, doc.Payments, 1)
	assert.Equal(t, string(finance.PaymentMethodCash), doc.Payments[0].Method)
	assert.Equal(t, &resp.Settlement.ID, doc.Payments[0].SettlementID)
	assert.Equal(t, "4400.00", f.balance(t, cash))

	assert.Contains(t, f.publisher.types(), finance.EventTypeSettlementRecorded)
	assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentPaymentRecorded)
	assert.NotContains(t, f.publisher.types(), finance.EventTypeDocumentSettled)

	stored, err := f.settlements.GetSettlement(context.Background(), resp.Settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Settlement.Number, stored.Number)
}

func TestRecordPayment_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "1000.00", nil)
	bank := f.source(t, "Main bank", finance.FundingBankAccount, "100.00")

	_, err := f.settlements.RecordPayment(context.Background(), RecordPaymentRequest{
		DocumentID: &bill.ID,
		Legs:       []FundingLegInput{leg(bank, "400")},
		Actor:      "alice",
	})

	var insufficient *finance.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Equal(amount("100")))
	assert.True(t, insufficient.Requested.Equal(amount("400")))
	assert.True(t, insufficient.Shortfall.Equal(amount("300")))
	assert.Equal(t, "Main bank", insufficient.FundingSourceLabel)
	assert.Equal(t, shared.KindBusiness, shared.KindOf(err))

	doc := f.document(t, bill.ID)
	assert.Equal(t, "1000.00", doc.Outstanding)
	assert.Empty(t, doc.Payments)
	assert.False(t, doc.IsLocked)
	assert.Equal(t, string(finance.AuditPaymentRejected), auditActions(doc)[len(doc.AuditLog)-1])
	assert.Equal(t, "100.00", f.balance(t, bank))
	assert.NotContains(t, f.publisher.types(), finance.EventTypeSettlementRecorded)
}

func TestRecordPayment_ReceiptWithoutAllocation(t *testing.T) {
	ctx := context.Background()
	customer := uuid.New()

	t.Run("several candidates make the whole payment credit", func(t *testing.T) {
		f := newFixture(t)
		inv1 := f.approved(t, finance.KindSalesInvoice, customer, "300.00", nil)
		inv2 := f.approved(t, finance.KindSalesInvoice, customer, "500.00", nil)
		bank := f.source(t, "Main bank", finance.FundingBankAccount, "0.00")

		resp, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			CounterpartyID: &customer,
			Kind:           string(finance.KindSalesInvoice),
			Legs:           []FundingLegInput{leg(bank, "700")},
		})
		require.NoError(t, err)

		assert.Equal(t, "RECEIVABLE", resp.Settlement.Direction)
		assert.Equal(t, "700.00", resp.Settlement.ExcessAmount)
		assert.Empty(t, resp.Settlement.Allocations)
		assert.Equal(t, "700.00", resp.CreditBalance)
		assert.Equal(t, "700.00", f.creditBalance(t, customer))
		assert.Equal(t, "300.00", f.document(t, inv1.ID).Outstanding)
		assert.Equal(t, "500.00", f.document(t, inv2.ID).Outstanding)
		// receipts land in the funding source
		assert.Equal(t, "700.00", f.balance(t, bank))

		history, err := f.credits.Transactions(ctx, customer, shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, history.Items, 1)
		assert.Equal(t, string(finance.CreditSourceOverpayment), history.Items[0].SourceType)
	})

	t.Run("explicit allocation settles both invoices", func(t *testing.T) {
		f := newFixture(t)
		inv1 := f.approved(t, finance.KindSalesInvoice, customer, "300.00", nil)
		inv2 := f.approved(t, finance.KindSalesInvoice, customer, "500.00", nil)
		bank := f.source(t, "Main bank", finance.FundingBankAccount, "0.00")

		resp, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			CounterpartyID: &customer,
			Kind:           string(finance.KindSalesInvoice),
			Legs:           []FundingLegInput{leg(bank, "700")},
			Allocations: []AllocationInput{
				{DocumentID: inv1.ID, Amount: amount("300")},
				{DocumentID: inv2.ID, Amount: amount("400")},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, "0.00", resp.Settlement.ExcessAmount)
		assert.Equal(t, "0.00", resp.CreditBalance)
		assert.Equal(t, string(finance.PaymentPaid), f.document(t, inv1.ID).PaymentStatus)
		assert.Equal(t, "100.00", f.document(t, inv2.ID).Outstanding)
		assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentSettled)
	})
}

func TestRecordPayment_SingleCandidateOverpayment(t *testing.T) {
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "250.00", nil)
	cash := f.source(t, "Cash", finance.FundingCash, "1000.00")

	resp, err := f.settlements.RecordPayment(context.Background(), RecordPaymentRequest{
		CounterpartyID: &supplier,
		Kind:           string(finance.KindBill),
		Legs:           []FundingLegInput{leg(cash, "300")},
	})
	require.NoError(t, err)

	assert.Equal(t, "50.00", resp.Settlement.ExcessAmount)
	assert.Equal(t, "50.00", resp.CreditBalance)
	assert.Equal(t, string(finance.PaymentPaid), f.document(t, bill.ID).PaymentStatus)
	assert.Equal(t, "700.00", f.balance(t, cash))
}

func TestRecordPayment_UsesCreditBeforeAskingForMore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "500.00", nil)
	cash := f.source(t, "Cash", finance.FundingCash, "1000.00")
	_, err := f.credits.Grant(ctx, supplier, GrantCreditRequest{Amount: amount("200"), Reference: "RMA-7"}, "alice")
	require.NoError(t, err)

	t.Run("credit is ignored unless requested", func(t *testing.T) {
		_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &bill.ID,
			Legs:       []FundingLegInput{leg(cash, "100")},
		})
		require.NoError(t, err)
		assert.Equal(t, "200.00", f.creditBalance(t, supplier))
		assert.Equal(t, "400.00", f.document(t, bill.ID).Outstanding)
	})

	t.Run("direct money first, then credit", func(t *testing.T) {
		resp, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &bill.ID,
			Legs:       []FundingLegInput{leg(cash, "200")},
			UseCredit:  true,
		})
		require.NoError(t, err)

		assert.Equal(t, "200.00", resp.Settlement.CreditConsumed)
		assert.Equal(t, "0.00", resp.CreditBalance)
		doc := f.document(t, bill.ID)
		assert.Equal(t, "0.00", doc.Outstanding)
		assert.Equal(t, "300.00", doc.PaidAmount)
		assert.Equal(t, "200.00", doc.CreditApplied)
		assert.Equal(t, string(finance.PaymentPaid), doc.PaymentStatus)
		assert.Equal(t, "700.00", f.balance(t, cash))
	})
}

func TestRecordPayment_CreditOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customer := uuid.New()
	invoice := f.approved(t, finance.KindSalesInvoice, customer, "120.00", nil)
	_, err := f.credits.Grant(ctx, customer, GrantCreditRequest{Amount: amount("150")}, "alice")
	require.NoError(t, err)

	resp, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
		DocumentID: &invoice.ID,
		UseCredit:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "0.00", resp.Settlement.TotalAmount)
	assert.Equal(t, "120.00", resp.Settlement.CreditConsumed)
	assert.Equal(t, "30.00", resp.CreditBalance)
	doc := f.document(t, invoice.ID)
	require.Len(t, doc.Payments, 1)
	assert.Equal(t, string(finance.PaymentMethodCredit), doc.Payments[0].Method)
	assert.Nil(t, doc.Payments[0].FundingSourceID)
}

func TestRecordPayment_MultipleFundingSources(t *testing.T) {
	ctx := context.Background()

	t.Run("legs are drawn in order", func(t *testing.T) {
		f := newFixture(t)
		supplier := uuid.New()
		bill := f.approved(t, finance.KindBill, supplier, "250.00", nil)
		cash := f.source(t, "Cash", finance.FundingCash, "100.00")
		bank := f.source(t, "Bank", finance.FundingBankAccount, "1000.00")

		resp, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &bill.ID,
			Legs:       []FundingLegInput{leg(cash, "100"), leg(bank, "150")},
		})
		require.NoError(t, err)
		require.Len(t, resp.Settlement.Legs, 2)

		doc := f.document(t, bill.ID)
		require.Len(t, doc.Payments, 2)
		assert.Equal(t, string(finance.PaymentMethodCash), doc.Payments[0].Method)
		assert.Equal(t, "100.00", doc.Payments[0].Amount)
		assert.Equal(t, string(finance.PaymentMethodBankTransfer), doc.Payments[1].Method)
		assert.Equal(t, "150.00", doc.Payments[1].Amount)
		assert.Equal(t, "0.00", f.balance(t, cash))
		assert.Equal(t, "850.00", f.balance(t, bank))
	})

	t.Run("one short leg rejects the whole payment", func(t *testing.T) {
		f := newFixture(t)
		supplier := uuid.New()
		bill := f.approved(t, finance.KindBill, supplier, "250.00", nil)
		cash := f.source(t, "Cash", finance.FundingCash, "100.00")
		bank := f.source(t, "Bank", finance.FundingBankAccount, "10.00")

		_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &bill.ID,
			Legs:       []FundingLegInput{leg(cash, "100"), leg(bank, "150")},
		})
		var insufficient *finance.InsufficientFundsError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, bank, insufficient.FundingSourceID)
		assert.Equal(t, "100.00", f.balance(t, cash))
		assert.Equal(t, "10.00", f.balance(t, bank))
	})

	t.Run("owner funds are never short", func(t *testing.T) {
		f := newFixture(t)
		supplier := uuid.New()
		bill := f.approved(t, finance.KindBill, supplier, "9000.00", nil)
		owner := f.source(t, "Owner", finance.FundingOwnerPersonalFunds, "0")

		_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &bill.ID,
			Legs:       []FundingLegInput{leg(owner, "9000")},
		})
		require.NoError(t, err)
		assert.Equal(t, string(finance.PaymentMethodOwnerFunds), f.document(t, bill.ID).Payments[0].Method)
	})
}

func TestRecordPayment_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "400.00", nil)
	draft := f.draft(t, finance.KindBill, supplier, "80.00", nil)
	note := f.approved(t, finance.KindCreditNote, supplier, "50.00", nil)
	cash := f.source(t, "Cash", finance.FundingCash, "5000.00")

	tests := []struct {
		name      string
		req       RecordPaymentRequest
		wantKind  shared.ErrorKind
		wantCode  string
		auditedOn *uuid.UUID
	}{
		{
			name:     "no money and no credit",
			req:      RecordPaymentRequest{DocumentID: &bill.ID},
			wantKind: shared.KindValidation,
			wantCode: finance.CodeValidation,
		},
		{
			name:     "non-positive leg",
			req:      RecordPaymentRequest{DocumentID: &bill.ID, Legs: []FundingLegInput{leg(cash, "0")}},
			wantKind: shared.KindValidation,
			wantCode: finance.CodeValidation,
		},
		{
			name:     "no counterparty",
			req:      RecordPaymentRequest{Kind: string(finance.KindBill), Legs: []FundingLegInput{leg(cash, "10")}},
			wantKind: shared.KindValidation,
			wantCode: finance.CodeValidation,
		},
		{
			name: "allocation above outstanding",
			req: RecordPaymentRequest{
				CounterpartyID: &supplier,
				Kind:           string(finance.KindBill),
				Legs:           []FundingLegInput{leg(cash, "500")},
				Allocations:    []AllocationInput{{DocumentID: bill.ID, Amount: amount("500")}},
			},
			wantKind:  shared.KindBusiness,
			wantCode:  finance.CodeOverAllocation,
			auditedOn: &bill.ID,
		},
		{
			name:      "draft document",
			req:       RecordPaymentRequest{DocumentID: &draft.ID, Legs: []FundingLegInput{leg(cash, "10")}},
			wantKind:  shared.KindIllegalState,
			wantCode:  finance.CodeIllegalTransition,
			auditedOn: &draft.ID,
		},
		{
			name:      "credit note",
			req:       RecordPaymentRequest{DocumentID: &note.ID, Legs: []FundingLegInput{leg(cash, "10")}},
			wantKind:  shared.KindIllegalState,
			wantCode:  finance.CodeIllegalTransition,
			auditedOn: &note.ID,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var before int
			if tc.auditedOn != nil {
				before = len(f.document(t, *tc.auditedOn).AuditLog)
			}

			_, err := f.settlements.RecordPayment(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, shared.KindOf(err))
			assert.Equal(t, tc.wantCode, errorCode(err))

			if tc.auditedOn != nil {
				doc := f.document(t, *tc.auditedOn)
				require.Len(t, doc.AuditLog, before+1)
				assert.Equal(t, string(finance.AuditPaymentRejected), doc.AuditLog[before].Action)
			}
		})
	}

	// validation failures leave no audit trail
	rejections := 0
	for        _, action := range auditActions(f.document(t, bill.ID)) {
		if action == string(finance.AuditPaymentRejected) {
			rejections++
		}
	}
	assert.Equal(t, 1, rejections)
	assert.Equal(t, "5000.00", f.balance(t, cash))
}

func TestRecordPayment_ConcurrentDrawsNeverOverspend(t *testing.T) {
	f := newFixture(t)
	supplier := uuid.New()
	bill := f.approved(t, finance.KindBill, supplier, "1000.00", nil)
	cash := f.source(t, "Cash", finance.FundingCash, "500.00")

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.settlements.RecordPayment(context.Background(), RecordPaymentRequest{
				DocumentID: &bill.ID,
				Legs:       []FundingLegInput{leg(cash, "100")},
			})
			mu.Lock()
			defer mu.Unlock()
			var insufficient *finance.InsufficientFundsError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &insufficient):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 5, short)
	assert.Equal(t, "0.00", f.balance(t, cash))
	doc := f.document(t, bill.ID)
	assert.Equal(t, "500.00", doc.PaidAmount)
	assert.Len(t, doc.Payments, 5)

	page, err := f.settlements.ListSettlements(context.Background(), supplier, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
}

func TestRecordPayment_PaymentLogReplays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customer := uuid.New()
	invoice := f.approved(t, finance.KindSalesInvoice, customer, "900.00", ptr(f.now.AddDate(0, 1, 0)))
	bank := f.source(t, "Bank", finance.FundingBankAccount, "0")
	_, err := f.credits.Grant(ctx, customer, GrantCreditRequest{Amount: amount("100")}, "alice")
	require.NoError(t, err)

	for _, req := range []RecordPaymentRequest{
		{DocumentID: &invoice.ID, Legs: []FundingLegInput{leg(bank, "250")}},
		{DocumentID: &invoice.ID, Legs: []FundingLegInput{leg(bank, "150.50")}, UseCredit: true},
	} {
		_, err := f.settlements.RecordPayment(ctx, req)
		require.NoError(t, err)
	}

	stored, err := f.store.Repositories().Documents.FindByID(ctx, invoice.ID)
	require.NoError(t, err)
	replayed, err := finance.ReplayPayments(stored.TotalAmount, stored.Payments, stored.DueDate, f.now)
	require.NoError(t, err)
	assert.True(t, replayed.PaidAmount.Equal(stored.PaidAmount))
	assert.True(t, replayed.CreditApplied.Equal(stored.CreditApplied))
	assert.True(t, replayed.Outstanding.Equal(stored.OutstandingAmount()))
	assert.Equal(t, stored.PaymentStatus(f.now), replayed.Status)
}
