package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewSettlementMetrics_NilMeter(t *testing.T) {
	_, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{})
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestSettlementMetrics_NoopMeter(t *testing.T) {
	m, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordSettlement(ctx, "PAYABLE", decimal.RequireFromString("10.50"), time.Millisecond)
		m.RecordRejection(ctx, "PAYABLE", "INSUFFICIENT_FUNDS")
		m.RecordTransition(ctx, "BILL", "approved")
	})

	var nilMetrics *telemetry.SettlementMetrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordSettlement(ctx, "PAYABLE", decimal.Zero, 0)
	})
}

func TestSettlementMetrics_AmountInMinorUnits(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{Meter: provider.Meter("test")})
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSettlement(ctx, "RECEIVABLE", decimal.RequireFromString("500.25"), 3*time.Millisecond)
	m.RecordSettlement(ctx, "RECEIVABLE", decimal.RequireFromString("0.75"), time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if data, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key("direction"))
					assert.Equal(t, "RECEIVABLE", v.AsString())
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["settlement_recorded_total"])
	assert.Equal(t, int64(50100), sums["settlement_amount_total"])
}
