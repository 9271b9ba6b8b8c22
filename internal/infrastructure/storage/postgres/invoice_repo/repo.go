// Package invoice_repo provides PostgreSQL persistence for invoices, their lines and payments.
package invoice_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/infrastructure/storage/postgres"
)

const (
	invoicesTable = "invoices"
	itemsTable    = "invoice_items"
	paymentsTable = "invoice_payments"
)

var _ invoice.Repository = (*Repo)(nil)

// Repo implements invoice.Repository.
type Repo struct {
	txManager   *postgres.TxManager
	executor    *postgres.BatchExecutor
	builder     squirrel.StatementBuilderType
	headerCols  []string
	itemCols    []string
	paymentCols []string
}

// NewRepo creates the invoice repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager:   txManager,
		executor:    postgres.NewBatchExecutor(txManager),
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		headerCols:  postgres.ExtractDBColumns[invoice.Invoice](),
		itemCols:    postgres.ExtractDBColumns[invoice.Item](),
		paymentCols: postgres.ExtractDBColumns[invoice.Payment](),
	}
}

func (r *Repo) selectHeaders() squirrel.SelectBuilder {
	return r.builder.Select(r.headerCols...).From(invoicesTable)
}

func (r *Repo) Create(ctx context.Context, inv *invoice.Invoice) error {
	sql, args, err := r.builder.Insert(invoicesTable).SetMap(postgres.StructToMap(inv)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert invoice: %w", err), map[string]postgres.UniqueField{
			"invoices_invoice_number_key": {Entity: "invoice", Field: "invoice_number", Value: inv.InvoiceNumber},
		})
	}
	return r.insertItems(ctx, inv.Items)
}

func (r *Repo) insertItemsQuery(items []invoice.Item) squirrel.InsertBuilder {
	q := r.builder.Insert(itemsTable).Columns(r.itemCols...)
	for i := range items {
		q = q.Values(postgres.RowValues(&items[i], r.itemCols)...)
	}
	return q
}

func (r *Repo) insertItems(ctx context.Context, items []invoice.Item) error {
	if len(items) == 0 {
		return nil
	}
	sql, args, err := r.insertItemsQuery(items).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert invoice items: %w", err), nil)
	}
	return nil
}

func (r *Repo) get(ctx context.Context, q squirrel.SelectBuilder, invoiceID id.ID) (*invoice.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var inv invoice.Invoice
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &inv, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("invoice", invoiceID)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	invoices := []invoice.Invoice{inv}
	if err := r.loadChildren(ctx, invoices); err != nil {
		return nil, err
	}
	return &invoices[0], nil
}

func (r *Repo) Get(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.get(ctx, r.selectHeaders().Where(squirrel.Eq{"id": invoiceID}), invoiceID)
}

// GetForUpdate locks the header only; lines and payments are changed
// exclusively by holders of that lock.
func (r *Repo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.get(ctx, r.selectHeaders().Where(squirrel.Eq{"id": invoiceID}).Suffix("FOR UPDATE"), invoiceID)
}

// loadChildren fills Items and Payments of invoices with one query each.
func (r *Repo) loadChildren(ctx context.Context, invoices []invoice.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	ids := make([]id.ID, len(invoices))
	index := make(map[id.ID]int, len(invoices))
	for i := range invoices {
		ids[i] = invoices[i].ID
		index[invoices[i].ID] = i
		invoices[i].Items = []invoice.Item{}
	}
	querier := r.txManager.GetQuerier(ctx)

	sql, args, err := r.builder.Select(r.itemCols...).From(itemsTable).
		Where(squirrel.Eq{"invoice_id": ids}).
		OrderBy("invoice_id", "line_no").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	var items []invoice.Item
	if err := pgxscan.Select(ctx, querier, &items, sql, args...); err != nil {
		return fmt.Errorf("load invoice items: %w", err)
	}
	for _, it := range items {
		i := index[it.InvoiceID]
		invoices[i].Items = append(invoices[i].Items, it)
	}

	sql, args, err = r.builder.Select(r.paymentCols...).From(paymentsTable).
		Where(squirrel.Eq{"invoice_id": ids}).
		OrderBy("payment_date", "created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	var payments []invoice.Payment
	if err := pgxscan.Select(ctx, querier, &payments, sql, args...); err != nil {
		return fmt.Errorf("load invoice payments: %w", err)
	}
	for _, p := range payments {
		i := index[p.InvoiceID]
		invoices[i].Payments = append(invoices[i].Payments, p)
	}
	return nil
}

func (r *Repo) updateQuery(inv *invoice.Invoice) squirrel.UpdateBuilder {
	data := postgres.Without(postgres.StructToMap(inv), "id", "version", "created_at")
	return r.builder.Update(invoicesTable).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": inv.ID}).
		Where(squirrel.Eq{"version": inv.ExpectedVersion()})
}

func (r *Repo) Update(ctx context.Context, inv *invoice.Invoice) error {
	sql, args, err := r.updateQuery(inv).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update invoice: %w", err), nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("invoice", inv.ID)
	}
	return nil
}

// ReplaceItems swaps all lines in one round-trip.
func (r *Repo) ReplaceItems(ctx context.Context, invoiceID id.ID, items []invoice.Item) error {
	deleteSQL, deleteArgs, err := r.builder.Delete(itemsTable).Where(squirrel.Eq{"invoice_id": invoiceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	queries := []postgres.BatchQuery{{SQL: deleteSQL, Args: deleteArgs}}

	if len(items) > 0 {
		insertSQL, insertArgs, err := r.insertItemsQuery(items).ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: insertSQL, Args: insertArgs})
	}

	if err := r.executor.ExecuteBatch(ctx, queries); err != nil {
		return postgres.MapError(fmt.Errorf("replace invoice items: %w", err), nil)
	}
	return nil
}

func (r *Repo) AddPayment(ctx context.Context, p *invoice.Payment) error {
	sql, args, err := r.builder.Insert(paymentsTable).SetMap(postgres.StructToMap(p)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(fmt.Errorf("insert payment: %w", err), nil)
	}
	return nil
}

func (r *Repo) SetPaymentURL(ctx context.Context, invoiceID id.ID, url string) error {
	sql, args, err := r.builder.Update(invoicesTable).
		Set("payment_url", url).
		Where(squirrel.Eq{"id": invoiceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("store payment url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID)
	}
	return nil
}

// Delete removes the header; lines go with it through ON DELETE CASCADE.
func (r *Repo) Delete(ctx context.Context, invoiceID id.ID) error {
	sql, args, err := r.builder.Delete(invoicesTable).Where(squirrel.Eq{"id": invoiceID}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("delete invoice: %w", err), nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID)
	}
	return nil
}

func listFilter(q squirrel.SelectBuilder, filter invoice.ListFilter) squirrel.SelectBuilder {
	if filter.CustomerID != nil {
		q = q.Where(squirrel.Eq{"customer_id": *filter.CustomerID})
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(squirrel.Eq{"status": filter.Statuses})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"issue_date": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"issue_date": *filter.ToDate})
	}
	return q
}

func (r *Repo) listQuery(filter invoice.ListFilter) squirrel.SelectBuilder {
	q := listFilter(r.selectHeaders(), filter).OrderBy("invoice_number DESC")
	return page(q, filter.Limit, filter.Offset)
}

func page(q squirrel.SelectBuilder, limit, offset int) squirrel.SelectBuilder {
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}

func (r *Repo) List(ctx context.Context, filter invoice.ListFilter) ([]invoice.Invoice, int64, error) {
	countSQL, countArgs, err := listFilter(r.builder.Select("COUNT(*)").From(invoicesTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	invoices, err := r.selectMany(ctx, r.listQuery(filter))
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *Repo) overdueQuery(asOf time.Time, limit int) squirrel.SelectBuilder {
	q := r.selectHeaders().
		Where(squirrel.Eq{"status": []invoice.Status{invoice.StatusSent, invoice.StatusViewed, invoice.StatusOverdue}}).
		Where("total_amount > paid_amount").
		Where(squirrel.Lt{"due_date": clock.Date(asOf)}).
		OrderBy("due_date", "invoice_number")
	return page(q, limit, 0)
}

func (r *Repo) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]invoice.Invoice, error) {
	return r.selectMany(ctx, r.overdueQuery(asOf, limit))
}

func (r *Repo) recurringDueQuery(asOf time.Time, limit int) squirrel.SelectBuilder {
	q := r.selectHeaders().
		Where(squirrel.Eq{"is_recurring": true}).
		Where(squirrel.NotEq{"next_invoice_date": nil}).
		Where(squirrel.LtOrEq{"next_invoice_date": asOf}).
		OrderBy("next_invoice_date", "invoice_number")
	return page(q, limit, 0)
}

func (r *Repo) ListRecurringDue(ctx context.Context, asOf time.Time, limit int) ([]invoice.Invoice, error) {
	return r.selectMany(ctx, r.recurringDueQuery(asOf, limit))
}

func (r *Repo) selectMany(ctx context.Context, q squirrel.SelectBuilder) ([]invoice.Invoice, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var invoices []invoice.Invoice
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &invoices, sql, args...); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	if err := r.loadChildren(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}
