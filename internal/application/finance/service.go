package finance

import (
	"context"
	"errors"
	"time"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is a unit of work that also hands out repositories for reads
// outside any transaction.
type Store interface {
	finance.UnitOfWork
	Repositories() finance.Repositories
}

// deps are the collaborators every service in this package shares
type deps struct {
	store     Store
	publisher shared.EventPublisher
	metrics   *telemetry.SettlementMetrics
	logger    *zap.Logger
	now       func() time.Time

	workflowRequired bool
}

// Option configures a service
type Option func(*deps)

// WithEventPublisher publishes domain events after each commit
func WithEventPublisher(publisher shared.EventPublisher) Option {
	return func(d *deps) { d.publisher = publisher }
}

// WithMetrics records settlement and transition metrics
func WithMetrics(metrics *telemetry.SettlementMetrics) Option {
	return func(d *deps) { d.metrics = metrics }
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *deps) { d.logger = logger }
}

// WithApprovalWorkflow makes Submit move drafts to PENDING_APPROVAL instead
// of approving them directly
func WithApprovalWorkflow(required bool) Option {
	return func(d *deps) { d.workflowRequired = required }
}

// WithClock overrides the clock used for payment status and aging
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

func newDeps(store Store, opts []Option) deps {
	d := deps{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// publish hands the aggregates' pending events to the publisher. Delivery
// failures are logged and never undo the committed change.
func (d *deps) publish(ctx context.Context, aggregates ...shared.AggregateRoot) {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		events = append(events, agg.GetDomainEvents()...)
		agg.ClearDomainEvents()
	}
	if d.publisher == nil || len(events) == 0 {
		return
	}
	if err := d.publisher.Publish(ctx, events...); err != nil {
		d.logger.Warn("failed to publish domain events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func (d *deps) recordTransition(ctx context.Context, kind finance.DocumentKind, transition string) {
	if d.metrics != nil {
		d.metrics.RecordTransition(ctx, string(kind), transition)
	}
}

// errorCode returns the DomainError code in err's chain, if any
func errorCode(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "INTERNAL"
}

func lockKeyCounterparty(id uuid.UUID) string {
	return "counterparty:" + id.String()
}

func lockKeyFundingSource(id uuid.UUID) string {
	return "funding-source:" + id.String()
}

func parseKind(kind string) (finance.DocumentKind, error) {
	k := finance.DocumentKind(kind)
	if !k.IsValid() {
		return "", &finance.ValidationError{Field: "kind", Message: "unknown document kind " + kind}
	}
	return k, nil
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
