package memory

import (
	"context"
	"slices"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/subscription"
)

var _ subscription.Repository = (*SubscriptionRepo)(nil)

// SubscriptionRepo implements subscription.Repository.
type SubscriptionRepo struct {
	store *Store
}

// Subscriptions returns the subscription repository.
func (s *Store) Subscriptions() *SubscriptionRepo {
	return &SubscriptionRepo{store: s}
}

func (r *SubscriptionRepo) Create(ctx context.Context, sub *subscription.Subscription) error {
	return r.store.with(ctx, func(st *state) error {
		st.subscriptions[sub.ID] = *sub
		return nil
	})
}

func (r *SubscriptionRepo) Get(ctx context.Context, subscriptionID id.ID) (*subscription.Subscription, error) {
	var out *subscription.Subscription
	err := r.store.with(ctx, func(st *state) error {
		sub, ok := st.subscriptions[subscriptionID]
		if !ok {
			return apperror.NewNotFound("subscription", subscriptionID)
		}
		out = &sub
		return nil
	})
	return out, err
}

func (r *SubscriptionRepo) GetForUpdate(ctx context.Context, subscriptionID id.ID) (*subscription.Subscription, error) {
	return r.Get(ctx, subscriptionID)
}

func (r *SubscriptionRepo) Update(ctx context.Context, sub *subscription.Subscription) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.subscriptions[sub.ID]
		if !ok {
			return apperror.NewNotFound("subscription", sub.ID)
		}
		if stored.Version != sub.ExpectedVersion() {
			return apperror.NewConcurrentModification("subscription", sub.ID)
		}
		st.subscriptions[sub.ID] = *sub
		return nil
	})
}

func (r *SubscriptionRepo) List(ctx context.Context, filter subscription.ListFilter) ([]subscription.Subscription, int64, error) {
	var (
		out   []subscription.Subscription
		total int64
	)
	err := r.store.with(ctx, func(st *state) error {
		for _, sub := range st.subscriptions {
			if filter.CustomerID != nil && sub.CustomerID != *filter.CustomerID {
				continue
			}
			if filter.Status != nil && sub.Status != *filter.Status {
				continue
			}
			out = append(out, sub)
		}
		slices.SortFunc(out, func(a, b subscription.Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
		total = int64(len(out))
		out = page(out, filter.Limit, filter.Offset)
		return nil
	})
	return out, total, err
}

func (r *SubscriptionRepo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]subscription.Subscription, error) {
	var out []subscription.Subscription
	err := r.store.with(ctx, func(st *state) error {
		for _, sub := range st.subscriptions {
			if sub.IsDue(asOf) {
				out = append(out, sub)
			}
		}
		slices.SortFunc(out, func(a, b subscription.Subscription) int {
			return a.NextBillingDate.Compare(b.NextBillingDate)
		})
		out = page(out, limit, 0)
		return nil
	})
	return out, err
}

func (r *SubscriptionRepo) LinkInvoice(ctx context.Context, link *subscription.Invoice) error {
	return r.store.with(ctx, func(st *state) error {
		for _, existing := range st.links {
			if existing.SubscriptionID == link.SubscriptionID && existing.PeriodStart.Equal(link.PeriodStart) {
				return apperror.NewDuplicate("subscription invoice", "period_start", link.PeriodStart.Format(time.DateOnly))
			}
		}
		st.links = append(st.links, *link)
		return nil
	})
}

func (r *SubscriptionRepo) ListInvoices(ctx context.Context, subscriptionID id.ID) ([]subscription.Invoice, error) {
	var out []subscription.Invoice
	err := r.store.with(ctx, func(st *state) error {
		for _, l := range st.links {
			if l.SubscriptionID == subscriptionID {
				out = append(out, l)
			}
		}
		return nil
	})
	return out, err
}
