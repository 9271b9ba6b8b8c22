package reports

import (
	"context"
	"time"
)

// Repository reads the source rows of every report.
type Repository interface {
	// InvoicesIssued returns invoices issued in [from, to] (DRAFT excluded) with
	// Paid summed from payments dated up to to.
	InvoicesIssued(ctx context.Context, from, to time.Time) ([]InvoiceRow, error)

	// Payments returns payments dated in [from, to].
	Payments(ctx context.Context, from, to time.Time) ([]PaymentRow, error)

	Products(ctx context.Context) ([]ProductRow, error)

	// MovementTotals groups movements created in [from, to] by type.
	MovementTotals(ctx context.Context, from, to time.Time) ([]MovementTotal, error)
}
