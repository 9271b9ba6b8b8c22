package subscription

import (
	"context"
	"time"

	"ledgerd/internal/core/id"
)

// Repository defines persistence for subscriptions and their invoice links.
type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subscriptionID id.ID) (*Subscription, error)

	// GetForUpdate returns the subscription with its row locked until the transaction ends.
	GetForUpdate(ctx context.Context, subscriptionID id.ID) (*Subscription, error)

	// Update stores the subscription if the row is still at s.ExpectedVersion().
	Update(ctx context.Context, s *Subscription) error

	List(ctx context.Context, filter ListFilter) ([]Subscription, int64, error)

	// ListDue returns ACTIVE subscriptions with next billing date and trial end not after asOf.
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]Subscription, error)

	// LinkInvoice records a billed period. A second link for the same period start is a duplicate.
	LinkInvoice(ctx context.Context, link *Invoice) error

	ListInvoices(ctx context.Context, subscriptionID id.ID) ([]Invoice, error)
}
