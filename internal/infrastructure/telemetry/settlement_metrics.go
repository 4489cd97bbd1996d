package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when a metrics constructor is given no meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// SettlementMetrics tracks settlement throughput, rejections and document
// lifecycle transitions.
type SettlementMetrics struct {
	logger *zap.Logger

	recordedTotal   *Counter
	rejectedTotal   *Counter
	amountTotal     *Counter
	transitionTotal *Counter
	duration        *Histogram
}

// SettlementMetricsConfig holds configuration for settlement metrics.
type SettlementMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSettlementMetrics registers the settlement instruments on cfg.Meter.
func NewSettlementMetrics(cfg SettlementMetricsConfig) (*SettlementMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sm := &SettlementMetrics{logger: logger}

	var err error
	if sm.recordedTotal, err = NewCounter(cfg.Meter, "settlement_recorded_total",
		"Total number of settlements recorded", "{settlements}"); err != nil {
		return nil, err
	}
	if sm.rejectedTotal, err = NewCounter(cfg.Meter, "settlement_rejected_total",
		"Total number of payments rejected", "{payments}"); err != nil {
		return nil, err
	}
	if sm.amountTotal, err = NewCounter(cfg.Meter, "settlement_amount_total",
		"Total settled amount in minor units", "{cents}"); err != nil {
		return nil, err
	}
	if sm.transitionTotal, err = NewCounter(cfg.Meter, "document_transition_total",
		"Total number of document lifecycle transitions", "{transitions}"); err != nil {
		return nil, err
	}
	if sm.duration, err = NewHistogram(cfg.Meter, "settlement_duration_seconds",
		"Time taken to record a settlement", "s", SettlementDurationBuckets...); err != nil {
		return nil, err
	}
	return sm, nil
}

// RecordSettlement counts a recorded settlement and its amount.
func (m *SettlementMetrics) RecordSettlement(ctx context.Context, direction string, amount decimal.Decimal, elapsed time.Duration) {
	if m == nil {
		return
	}
	attr := AttrDirection.String(direction)
	m.recordedTotal.Inc(ctx, attr)
	m.amountTotal.Add(ctx, amount.Shift(2).Round(0).IntPart(), attr)
	m.duration.RecordDuration(ctx, elapsed, attr)
}

// RecordRejection counts a rejected payment by error code.
func (m *SettlementMetrics) RecordRejection(ctx context.Context, direction, reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc(ctx, AttrDirection.String(direction), AttrRejectReason.String(reason))
}

// RecordTransition counts a document lifecycle transition.
func (m *SettlementMetrics) RecordTransition(ctx context.Context, kind, transition string) {
	if m == nil {
		return
	}
	m.transitionTotal.Inc(ctx, AttrDocumentKind.String(kind), AttrTransition.String(transition))
}
