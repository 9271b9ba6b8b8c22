// Package subscription_repo provides PostgreSQL persistence for subscriptions
// and the invoices they generated.
package subscription_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/storage/postgres"
)

const (
	subscriptionsTable = "subscriptions"
	linksTable         = "subscription_invoices"
)

var _ subscription.Repository = (*Repo)(nil)

// Repo implements subscription.Repository.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
	cols      []string
	linkCols  []string
}

// NewRepo creates the subscription repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		cols:      postgres.ExtractDBColumns[subscription.Subscription](),
		linkCols:  postgres.ExtractDBColumns[subscription.Invoice](),
	}
}

func (r *Repo) selectSubscriptions() squirrel.SelectBuilder {
	return r.builder.Select(r.cols...).From(subscriptionsTable)
}

func (r *Repo) Create(ctx context.Context, s *subscription.Subscription) error {
	sql, args, err := r.builder.Insert(subscriptionsTable).SetMap(postgres.StructToMap(s)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert subscription: %w", err), nil)
	}
	return nil
}

func (r *Repo) get(ctx context.Context, q squirrel.SelectBuilder, subscriptionID id.ID) (*subscription.Subscription, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var s subscription.Subscription
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("subscription", subscriptionID)
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &s, nil
}

func (r *Repo) Get(ctx context.Context, subscriptionID id.ID) (*subscription.Subscription, error) {
	return r.get(ctx, r.selectSubscriptions().Where(squirrel.Eq{"id": subscriptionID}), subscriptionID)
}

func (r *Repo) GetForUpdate(ctx context.Context, subscriptionID id.ID) (*subscription.Subscription, error) {
	q := r.selectSubscriptions().Where(squirrel.Eq{"id": subscriptionID}).Suffix("FOR UPDATE")
	return r.get(ctx, q, subscriptionID)
}

func (r *Repo) Update(ctx context.Context, s *subscription.Subscription) error {
	sql, args, err := r.builder.Update(subscriptionsTable).
		SetMap(postgres.Without(postgres.StructToMap(s), "id", "version", "created_at")).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": s.ID}).
		Where(squirrel.Eq{"version": s.ExpectedVersion()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update subscription: %w", err), nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("subscription", s.ID)
	}
	return nil
}

func listFilter(q squirrel.SelectBuilder, filter subscription.ListFilter) squirrel.SelectBuilder {
	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
	}
	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	return q
}

func (r *Repo) List(ctx context.Context, filter subscription.ListFilter) ([]subscription.Subscription, int64, error) {
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := listFilter(r.builder.Select("COUNT(*)").From(subscriptionsTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}

	q := listFilter(r.selectSubscriptions(), filter).OrderBy("created_at", "id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}

	var subs []subscription.Subscription
	if err := pgxscan.Select(ctx, querier, &subs, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, total, nil
}

func (r *Repo) dueQuery(asOf time.Time, limit int) squirrel.SelectBuilder {
	q := r.selectSubscriptions().
		Where(squirrel.Eq{"status": subscription.StatusActive}).
		Where(squirrel.LtOrEq{"next_billing_date": asOf}).
		Where(squirrel.Or{
			squirrel.Eq{"trial_end_date": nil},
			squirrel.LtOrEq{"trial_end_date": asOf},
		}).
		OrderBy("next_billing_date", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (r *Repo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]subscription.Subscription, error) {
	sql, args, err := r.dueQuery(asOf, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var subs []subscription.Subscription
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &subs, sql, args...); err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return subs, nil
}

// LinkInvoice relies on the (subscription_id, period_start) unique key to
// refuse billing a period twice.
func (r *Repo) LinkInvoice(ctx context.Context, link *subscription.Invoice) error {
	sql, args, err := r.builder.Insert(linksTable).SetMap(postgres.StructToMap(link)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("link subscription invoice: %w", err), map[string]postgres.UniqueField{
			"subscription_invoices_period_key": {
				Entity: "subscription invoice",
				Field:  "period_start",
				Value:  link.PeriodStart.Format(time.DateOnly),
			},
		})
	}
	return nil
}

func (r *Repo) ListInvoices(ctx context.Context, subscriptionID id.ID) ([]subscription.Invoice, error) {
	sql, args, err := r.builder.Select(r.linkCols...).
		From(linksTable).
		Where(squirrel.Eq{"subscription_id": subscriptionID}).
		OrderBy("period_start").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var links []subscription.Invoice
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &links, sql, args...); err != nil {
		return nil, fmt.Errorf("list subscription invoices: %w", err)
	}
	return links, nil
}
