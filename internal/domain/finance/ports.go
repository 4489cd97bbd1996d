package finance

import (
	"context"

	"github.com/google/uuid"
)

// InventoryGateway reserves and releases stock for sales invoices.
// Calls are best effort and must not block settlement.
type InventoryGateway interface {
	Reserve(ctx context.Context, documentID uuid.UUID, lines []LineItem) error
	Release(ctx context.Context, documentID uuid.UUID) error
}

// Notification is a message about a document's workflow
type Notification struct {
	DocumentID     uuid.UUID
	DocumentNumber string
	Kind           DocumentKind
	Event          string
	Actor          string
	Message        string
}

// Notifier delivers workflow notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
