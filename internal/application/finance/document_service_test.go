package finance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	t.Run("draft with generated number", func(t *testing.T) {
		doc, err := f.documents.Create(ctx, CreateDocumentRequest{
			Kind:           string(finance.KindBill),
			CounterpartyID: uuid.New(),
			LineItems: []LineItemInput{{
				Description: "Flour",
				Quantity:    decimal.NewFromInt(4),
				UnitRate:    amount("25"),
				Discount:    amount("10"),
				Taxes:       []TaxInput{{Kind: "VAT", Rate: decimal.NewFromInt(10)}},
			}},
		}, "alice")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(doc.DocumentNumber, "BILL-"))
		assert.Equal(t, string(finance.ApprovalDraft), doc.ApprovalStatus)
		assert.Equal(t, "100.00", doc.Subtotal)
		assert.Equal(t, "10.00", doc.LineItemDiscounts)
		assert.Equal(t, "9.00", doc.TaxAmount)
		assert.Equal(t, "99.00", doc.TotalAmount)
		assert.Equal(t, "99.00", doc.Outstanding)
		assert.Equal(t, []string{string(finance.AuditCreated)}, auditActions(doc))
		assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentCreated)

		byNumber, err := f.documents.GetByNumber(ctx, doc.DocumentNumber)
		require.NoError(t, err)
		assert.Equal(t, doc.ID, byNumber.ID)
	})

	tests := []struct {
		name string
		req  CreateDocumentRequest
	}{
		{
			name: "unknown kind",
			req:  CreateDocumentRequest{Kind: "RECEIPT", CounterpartyID: uuid.New(), LineItems: lines("10")},
		},
		{
			name: "no line items",
			req:  CreateDocumentRequest{Kind: string(finance.KindBill), CounterpartyID: uuid.New()},
		},
		{
			name: "due before issue",
			req: CreateDocumentRequest{
				Kind:           string(finance.KindBill),
				CounterpartyID: uuid.New(),
				IssueDate:      ptr(f.now),
				DueDate:        ptr(f.now.AddDate(0, 0, -2)),
				LineItems:      lines("10"),
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.documents.Create(ctx, tc.req, "alice")
			var verr *finance.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestDocumentService_ApprovalWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("without workflow submit approves", func(t *testing.T) {
		f := newFixture(t)
		doc := f.draft(t, finance.KindBill, uuid.New(), "100", nil)

		submitted, err := f.documents.Submit(ctx, doc.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, string(finance.ApprovalApproved), submitted.ApprovalStatus)
		assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentApproved)
	})

	t.Run("with workflow submit waits for approval", func(t *testing.T) {
		f := newFixture(t, WithApprovalWorkflow(true))
		doc := f.draft(t, finance.KindBill, uuid.New(), "100", nil)

		submitted, err := f.documents.Submit(ctx, doc.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, string(finance.ApprovalPendingApproval), submitted.ApprovalStatus)
		assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentSubmitted)

		_, err = f.documents.Approve(ctx, doc.ID, "")
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))

		approved, err := f.documents.Approve(ctx, doc.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, string(finance.ApprovalApproved), approved.ApprovalStatus)

		_, err = f.documents.Submit(ctx, doc.ID, "alice")
		var illegal *finance.IllegalStateTransitionError
		assert.True(t, errors.As(err, &illegal))
	})
}

func TestDocumentService_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.draft(t, finance.KindBill, uuid.New(), "100", nil)

	t.Run("blank reason changes nothing", func(t *testing.T) {
		for _, reason := range []string{"", "   "} {
			_, err := f.documents.Reject(ctx, doc.ID, "bob", reason)
			var verr *finance.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "reason", verr.Field)
		}

		current := f.document(t, doc.ID)
		assert.Equal(t, string(finance.ApprovalDraft), current.ApprovalStatus)
		assert.Equal(t, doc.Version, current.Version)
		assert.Equal(t, []string{string(finance.AuditCreated)}, auditActions(current))
	})

	t.Run("reason is recorded", func(t *testing.T) {
		rejected, err := f.documents.Reject(ctx, doc.ID, "bob", "wrong supplier")
		require.NoError(t, err)
		assert.Equal(t, string(finance.ApprovalRejected), rejected.ApprovalStatus)
		assert.Equal(t, "wrong supplier", rejected.RejectReason)
		assert.Contains(t, f.publisher.types(), finance.EventTypeDocumentRejected)
	})

	t.Run("rejected documents resubmit as a new draft", func(t *testing.T) {
		clone, err := f.documents.Resubmit(ctx, doc.ID, "alice")
		require.NoError(t, err)
		assert.NotEqual(t, doc.ID, clone.ID)
		assert.Equal(t, &doc.ID, clone.SourceDocumentID)
		assert.Equal(t, string(finance.ApprovalDraft), clone.ApprovalStatus)
		assert.Equal(t, doc.TotalAmount, clone.TotalAmount)
		assert.Contains(t, auditActions(clone), string(finance.AuditResubmitted))

		assert.Equal(t, string(finance.ApprovalRejected), f.document(t, doc.ID).ApprovalStatus)
	})
}

func TestDocumentService_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	cash := f.source(t, "Cash", finance.FundingCash, "1000")

	t.Run("unpaid document needs no reason", func(t *testing.T) {
		doc := f.approved(t, finance.KindBill, supplier, "100", nil)
		cancelled, err := f.documents.Cancel(ctx, doc.ID, "bob", "")
		require.NoError(t, err)
		assert.Equal(t, string(finance.ApprovalCancelled), cancelled.ApprovalStatus)
	})

	t.Run("paid document needs a reversal reason", func(t *testing.T) {
		doc := f.approved(t, finance.KindBill, supplier, "100", nil)
		_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &doc.ID,
			Legs:       []FundingLegInput{leg(cash, "40")},
		})
		require.NoError(t, err)

		_, err = f.documents.Cancel(ctx, doc.ID, "bob", "")
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))

		cancelled, err := f.documents.Cancel(ctx, doc.ID, "bob", "duplicate bill")
		require.NoError(t, err)
		assert.Equal(t, string(finance.AuditCancelledWithReversal), auditActions(cancelled)[len(cancelled.AuditLog)-1])
		// refunds are manual; the payment stays on record
		assert.Equal(t, "40.00", cancelled.PaidAmount)
		assert.Equal(t, "960.00", f.balance(t, cash))
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		doc := f.draft(t, finance.KindBill, supplier, "100", nil)
		_, err := f.documents.Cancel(ctx, doc.ID, "bob", "")
		require.NoError(t, err)
		_, err = f.documents.Approve(ctx, doc.ID, "bob")
		assert.Equal(t, shared.KindIllegalState, shared.KindOf(err))
	})
}

func TestDocumentService_EditAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	cash := f.source(t, "Cash", finance.FundingCash, "1000")

	t.Run("drafts can be edited and deleted", func(t *testing.T) {
		doc := f.draft(t, finance.KindBill, supplier, "100", nil)
		updated, err := f.documents.UpdateLineItems(ctx, doc.ID, UpdateLineItemsRequest{LineItems: lines("250")}, "alice")
		require.NoError(t, err)
		assert.Equal(t, "250.00", updated.TotalAmount)
		assert.Greater(t, updated.Version, doc.Version)

		require.NoError(t, f.documents.Delete(ctx, doc.ID))
		_, err = f.documents.Get(ctx, doc.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("approved documents are not deletable", func(t *testing.T) {
		doc := f.approved(t, finance.KindBill, supplier, "100", nil)
		err := f.documents.Delete(ctx, doc.ID)
		assert.Equal(t, shared.KindIllegalState, shared.KindOf(err))
	})

	t.Run("payments lock the document", func(t *testing.T) {
		doc := f.approved(t, finance.KindBill, supplier, "100", nil)
		_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
			DocumentID: &doc.ID,
			Legs:       []FundingLegInput{leg(cash, "10")},
		})
		require.NoError(t, err)

		_, err = f.documents.UpdateLineItems(ctx, doc.ID, UpdateLineItemsRequest{LineItems: lines("5")}, "alice")
		assert.Equal(t, finance.CodeDocumentLocked, errorCode(err))
		assert.Equal(t, "100.00", f.document(t, doc.ID).TotalAmount)

		_, err = f.documents.Cancel(ctx, doc.ID, "bob", "ordered twice")
		require.NoError(t, err)
		err = f.documents.Delete(ctx, doc.ID)
		assert.Equal(t, finance.CodeDocumentLocked, errorCode(err))
	})
}

func TestDocumentService_ApplyCreditNote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	customer := uuid.New()

	t.Run("drafts cannot be applied", func(t *testing.T) {
		note := f.draft(t, finance.KindCreditNote, customer, "80", nil)
		_, err := f.documents.ApplyCreditNote(ctx, note.ID, "alice")
		assert.Equal(t, shared.KindIllegalState, shared.KindOf(err))
		assert.Equal(t, "0.00", f.creditBalance(t, customer))
	})

	t.Run("approved note moves to the ledger once", func(t *testing.T) {
		note := f.approved(t, finance.KindCreditNote, customer, "80", nil)

		resp, err := f.documents.ApplyCreditNote(ctx, note.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, "80.00", resp.CreditedAmount)
		assert.Equal(t, "80.00", resp.CreditBalance)
		assert.Equal(t, "0.00", resp.Document.Outstanding)
		assert.True(t, resp.Document.IsLocked)

		history, err := f.credits.Transactions(ctx, customer, shared.DefaultFilter())
		require.NoError(t, err)
		require.Len(t, history.Items, 1)
		assert.Equal(t, string(finance.CreditSourceCreditNote), history.Items[0].SourceType)
		assert.Equal(t, &note.ID, history.Items[0].SourceID)

		_, err = f.documents.ApplyCreditNote(ctx, note.ID, "alice")
		assert.Equal(t, shared.KindIllegalState, shared.KindOf(err))
		assert.Equal(t, "80.00", f.creditBalance(t, customer))
	})

	t.Run("bills are not credit notes", func(t *testing.T) {
		bill := f.approved(t, finance.KindBill, customer, "80", nil)
		_, err := f.documents.ApplyCreditNote(ctx, bill.ID, "alice")
		assert.Equal(t, shared.KindIllegalState, shared.KindOf(err))
	})
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	customer := uuid.New()
	f.approved(t, finance.KindBill, supplier, "100", nil)
	f.draft(t, finance.KindBill, supplier, "200", nil)
	f.approved(t, finance.KindSalesInvoice, customer, "300", nil)

	tests := []struct {
		name   string
		filter DocumentListFilter
		want   int64
	}{
		{"everything", DocumentListFilter{}, 3},
		{"by kind", DocumentListFilter{Kind: string(finance.KindBill)}, 2},
		{"by counterparty", DocumentListFilter{CounterpartyID: customer.String()}, 1},
		{"by status", DocumentListFilter{Kind: string(finance.KindBill), ApprovalStatus: string(finance.ApprovalDraft)}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.documents.List(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, tc.want, page.Total)
			assert.Len(t, page.Items, int(tc.want))
		})
	}

	t.Run("paging", func(t *testing.T) {
		page, err := f.documents.List(ctx, DocumentListFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Len(t, page.Items, 1)
	})

	t.Run("bad filters", func(t *testing.T) {
		_, err := f.documents.List(ctx, DocumentListFilter{CounterpartyID: "nope"})
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		_, err = f.documents.List(ctx, DocumentListFilter{ApprovalStatus: "ARCHIVED"})
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})
}
