package finance

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgingService_Report(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	supplier := uuid.New()
	day := func(month time.Month, d int) *time.Time {
		v := time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
		return &v
	}

	overdue45 := f.approved(t, finance.KindBill, supplier, "1500", day(time.May, 1))
	notDue := f.approved(t, finance.KindBill, supplier, "2000", day(time.June, 25))
	dueToday := f.approved(t, finance.KindBill, supplier, "300", day(time.June, 15))
	overdue87 := f.approved(t, finance.KindBill, supplier, "100", day(time.March, 20))
	paid := f.approved(t, finance.KindBill, supplier, "50", day(time.March, 20))
	f.draft(t, finance.KindBill, supplier, "999", day(time.April, 1))
	f.approved(t, finance.KindSalesInvoice, supplier, "777", day(time.April, 1))

	owner := f.source(t, "Owner", finance.FundingOwnerPersonalFunds, "0")
	_, err := f.settlements.RecordPayment(ctx, RecordPaymentRequest{
		DocumentID: &paid.ID,
		Legs:       []FundingLegInput{leg(owner, "50")},
	})
	require.NoError(t, err)

	report, err := f.aging.Report(ctx, AgingQuery{Kind: finance.KindBill})
	require.NoError(t, err)

	require.Len(t, report.Rows, 4)
	want := []struct {
		id     uuid.UUID
		days   int
		bucket finance.AgingBucket
	}{
		{overdue87.ID, 87, finance.BucketOver60},
		{overdue45.ID, 45, finance.Bucket31To60},
		{dueToday.ID, 0, finance.BucketDueToday},
		{notDue.ID, 0, finance.BucketNotDue},
	}
	for i, w := range want {
		assert.Equal(t, w.id, report.Rows[i].DocumentID)
		assert.Equal(t, w.days, report.Rows[i].DaysOverdue)
		assert.Equal(t, w.bucket, report.Rows[i].Bucket)
	}

	require.Len(t, report.Buckets, len(finance.AgingBuckets))
	for _, b := range report.Buckets {
		assert.Equal(t, 1, b.Count, b.Bucket)
	}
	assert.Equal(t, "1500.00", report.Buckets[3].Amount)
	assert.Equal(t, "1,500.00", report.Buckets[3].Display)
	assert.Equal(t, "3900.00", report.Total)
	assert.Equal(t, "3,900.00", report.TotalDisplay)

	t.Run("as of a later date", func(t *testing.T) {
		later, err := f.aging.Report(ctx, AgingQuery{Kind: finance.KindBill, AsOf: time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)})
		require.NoError(t, err)
		assert.Equal(t, finance.Bucket1To30, later.Rows[3].Bucket)
		assert.Equal(t, 6, later.Rows[3].DaysOverdue)
	})

	t.Run("counterparty filter", func(t *testing.T) {
		other := uuid.New()
		empty, err := f.aging.Report(ctx, AgingQuery{Kind: finance.KindBill, CounterpartyID: &other})
		require.NoError(t, err)
		assert.Empty(t, empty.Rows)
		assert.Equal(t, "0.00", empty.Total)
	})

	t.Run("credit notes do not age", func(t *testing.T) {
		_, err := f.aging.Report(ctx, AgingQuery{Kind: finance.KindCreditNote})
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})
}
