package invoice

import (
	"context"
	"time"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/numerator"
)

// NumberConfig numbers invoices INV-{year}-{NNNN}, per calendar year.
var NumberConfig = numerator.Config{
	Prefix:     "INV",
	PadWidth:   4,
	SeedTable:  "invoices",
	SeedColumn: "invoice_number",
}

// Repository defines persistence for invoices, their items and payments.
type Repository interface {
	// Create inserts the header and all items.
	Create(ctx context.Context, inv *Invoice) error

	// Get loads the invoice with items and payments.
	Get(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// GetForUpdate is Get with the header row locked until the transaction ends.
	GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error)

	// Update stores header fields. The stored row must still be at
	// inv.ExpectedVersion(), otherwise a concurrent modification error is returned.
	Update(ctx context.Context, inv *Invoice) error

	// ReplaceItems deletes all lines and inserts items. Callers hold the header lock.
	ReplaceItems(ctx context.Context, invoiceID id.ID, items []Item) error

	// AddPayment appends a payment row.
	AddPayment(ctx context.Context, p *Payment) error

	// SetPaymentURL stores a hosted payment link without touching the version.
	SetPaymentURL(ctx context.Context, invoiceID id.ID, url string) error

	// Delete removes the invoice and its items.
	Delete(ctx context.Context, invoiceID id.ID) error

	List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error)

	// ListOverdue returns issued invoices with a balance whose due date is before asOf's day.
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)

	// ListRecurringDue returns recurring templates whose next invoice date is not after asOf.
	ListRecurringDue(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)
}
