package event

import (
	"context"
	"fmt"
	"reflect"

	"github.com/erp/settlement/internal/domain/finance"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func handlerName(h shared.EventHandler) string {
	t := reflect.TypeOf(h)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// NotificationHandler tells people about workflow decisions on documents
type NotificationHandler struct {
	notifier finance.Notifier
	logger   *zap.Logger
}

// NewNotificationHandler creates a NotificationHandler
func NewNotificationHandler(notifier finance.Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// EventTypes returns the events that trigger a notification
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		finance.EventTypeDocumentSubmitted,
		finance.EventTypeDocumentApproved,
		finance.EventTypeDocumentRejected,
		finance.EventTypeDocumentSettled,
	}
}

// Handle builds and sends the notification
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	var n finance.Notification
	switch e := event.(type) {
	case *finance.DocumentSubmittedEvent:
		n = notificationFor(e.DocumentRef, event, e.Actor,
			fmt.Sprintf("%s %s is awaiting approval", e.Kind, e.DocumentNumber))
	case *finance.DocumentApprovedEvent:
		n = notificationFor(e.DocumentRef, event, e.Actor,
			fmt.Sprintf("%s %s was approved", e.Kind, e.DocumentNumber))
	case *finance.DocumentRejectedEvent:
		n = notificationFor(e.DocumentRef, event, e.Actor,
			fmt.Sprintf("%s %s was rejected: %s", e.Kind, e.DocumentNumber, e.Reason))
	case *finance.DocumentSettledEvent:
		n = notificationFor(e.DocumentRef, event, "system",
			fmt.Sprintf("%s %s is fully settled", e.Kind, e.DocumentNumber))
	default:
		return nil
	}
	return h.notifier.Notify(ctx, n)
}

func notificationFor(ref finance.DocumentRef, event shared.DomainEvent, actor, message string) finance.Notification {
	return finance.Notification{
		DocumentID:     ref.DocumentID,
		DocumentNumber: ref.DocumentNumber,
		Kind:           ref.Kind,
		Event:          event.EventType(),
		Actor:          actor,
		Message:        message,
	}
}

// InventoryHandler reserves stock when a sales invoice is approved and
// releases it when an approved one is cancelled
type InventoryHandler struct {
	gateway finance.InventoryGateway
	logger  *zap.Logger
}

// NewInventoryHandler creates an InventoryHandler
func NewInventoryHandler(gateway finance.InventoryGateway, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{gateway: gateway, logger: logger}
}

// EventTypes returns the events that move stock
func (h *InventoryHandler) EventTypes() []string {
	return []string{finance.EventTypeDocumentApproved, finance.EventTypeDocumentCancelled}
}

// Handle calls the gateway for sales invoices only
func (h *InventoryHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *finance.DocumentApprovedEvent:
		if e.Kind != finance.KindSalesInvoice {
			return nil
		}
		if err := h.gateway.Reserve(ctx, e.DocumentID, e.LineItems); err != nil {
			return fmt.Errorf("reserve stock for %s: %w", e.DocumentNumber, err)
		}
	case *finance.DocumentCancelledEvent:
		if e.Kind != finance.KindSalesInvoice || !e.WasApproved {
			return nil
		}
		if err := h.gateway.Release(ctx, e.DocumentID); err != nil {
			return fmt.Errorf("release stock for %s: %w", e.DocumentNumber, err)
		}
	}
	return nil
}

// SettlementLogHandler writes one structured line per recorded settlement
type SettlementLogHandler struct {
	logger *zap.Logger
}

// NewSettlementLogHandler creates a SettlementLogHandler
func NewSettlementLogHandler(logger *zap.Logger) *SettlementLogHandler {
	return &SettlementLogHandler{logger: logger}
}

// EventTypes returns the settlement events
func (h *SettlementLogHandler) EventTypes() []string {
	return []string{finance.EventTypeSettlementRecorded, finance.EventTypeDocumentPaymentRecorded}
}

// Handle logs the event
func (h *SettlementLogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *finance.SettlementRecordedEvent:
		h.logger.Info("settlement recorded",
			zap.String("settlement_id", e.AggregateID().String()),
			zap.String("number", e.SettlementNumber),
			zap.String("direction", string(e.Direction)),
			zap.String("total", e.TotalAmount.StringFixed(2)),
			zap.String("credit_consumed", e.CreditConsumed.StringFixed(2)),
			zap.Int("documents", len(e.DocumentIDs)),
		)
	case *finance.DocumentPaymentRecordedEvent:
		h.logger.Info("document payment recorded",
			zap.String("document_number", e.DocumentNumber),
			zap.String("amount", e.Amount.StringFixed(2)),
			zap.String("method", string(e.Method)),
			zap.String("outstanding", e.Outstanding.StringFixed(2)),
		)
	}
	return nil
}

// LogNotifier is the default finance.Notifier: it only logs
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs msg
func (n *LogNotifier) Notify(_ context.Context, msg finance.Notification) error {
	n.logger.Info("notification",
		zap.String("event", msg.Event),
		zap.String("document_number", msg.DocumentNumber),
		zap.String("kind", string(msg.Kind)),
		zap.String("actor", msg.Actor),
		zap.String("message", msg.Message),
	)
	return nil
}

// LogInventoryGateway is the default finance.InventoryGateway: it only logs
type LogInventoryGateway struct {
	logger *zap.Logger
}

// NewLogInventoryGateway creates a LogInventoryGateway
func NewLogInventoryGateway(logger *zap.Logger) *LogInventoryGateway {
	return &LogInventoryGateway{logger: logger}
}

// Reserve logs the lines that would be reserved
func (g *LogInventoryGateway) Reserve(_ context.Context, documentID uuid.UUID, lines []finance.LineItem) error {
	g.logger.Info("inventory reserve", zap.Stringer("document_id", documentID), zap.Int("lines", len(lines)))
	return nil
}

// Release logs the release
func (g *LogInventoryGateway) Release(_ context.Context, documentID uuid.UUID) error {
	g.logger.Info("inventory release", zap.Stringer("document_id", documentID))
	return nil
}

// Ensure the handlers and adapters implement their interfaces
var (
	_ shared.EventHandler      = (*NotificationHandler)(nil)
	_ shared.EventHandler      = (*InventoryHandler)(nil)
	_ shared.EventHandler      = (*SettlementLogHandler)(nil)
	_ finance.Notifier         = (*LogNotifier)(nil)
	_ finance.InventoryGateway = (*LogInventoryGateway)(nil)
)
