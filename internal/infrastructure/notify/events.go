// Package notify turns ledger notifications into outbox events and delivers
// relayed events to a webhook.
package notify

import (
	"context"

	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/infrastructure/storage/postgres"
)

// Event types written to the outbox.
const (
	EventInvoiceReady    = "invoice.ready"
	EventInvoiceReminder = "invoice.reminder"
	EventStockAlert      = "stock.alert"
)

// ReminderPayload is the body of an invoice.reminder event.
type ReminderPayload struct {
	Notice   domain.InvoiceNotice `json:"notice"`
	Customer domain.Customer      `json:"customer"`
}

// ReadyPayload is the body of an invoice.ready event.
type ReadyPayload struct {
	Notice     domain.InvoiceNotice `json:"notice"`
	PaymentURL string               `json:"paymentUrl,omitempty"`
}

// Publisher stores an event for later delivery.
type Publisher interface {
	Publish(ctx context.Context, event postgres.DomainEvent) error
}

var (
	_ domain.Notifier     = (*Notifier)(nil)
	_ inventory.AlertSink = (*Notifier)(nil)
)

// Notifier implements the ledger's notification ports by publishing events.
// Delivery happens later, so a slow or failing webhook never holds a request.
type Notifier struct {
	publisher Publisher
}

// NewNotifier creates a notifier over publisher.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

func (n *Notifier) SendReminder(ctx context.Context, notice domain.InvoiceNotice, customer domain.Customer) error {
	return n.publisher.Publish(ctx, postgres.DomainEvent{
		AggregateType: "invoice",
		AggregateID:   notice.InvoiceID,
		EventType:     EventInvoiceReminder,
		Payload:       ReminderPayload{Notice: notice, Customer: customer},
	})
}

func (n *Notifier) SendInvoiceReady(ctx context.Context, notice domain.InvoiceNotice, paymentURL string) error {
	return n.publisher.Publish(ctx, postgres.DomainEvent{
		AggregateType: "invoice",
		AggregateID:   notice.InvoiceID,
		EventType:     EventInvoiceReady,
		Payload:       ReadyPayload{Notice: notice, PaymentURL: paymentURL},
	})
}

func (n *Notifier) StockAlert(ctx context.Context, alert inventory.StockAlert) error {
	return n.publisher.Publish(ctx, postgres.DomainEvent{
		AggregateType: "product",
		AggregateID:   alert.ProductID,
		EventType:     EventStockAlert,
		Payload:       alert,
	})
}
