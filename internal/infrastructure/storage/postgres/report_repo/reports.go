// Package report_repo reads the source rows of the reconciliation and inventory reports.
package report_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reports"
	"ledgerd/internal/infrastructure/storage/postgres"
)

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo implements reports.Repository. Callers wrap the calls of one
// report in a read-only transaction so all rows come from one snapshot.
type ReportRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewReportRepo creates a new report repository.
func NewReportRepo(txManager *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ReportRepo) selectRows(ctx context.Context, q squirrel.Sqlizer, dst any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}
	return pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...)
}

func (r *ReportRepo) invoicesIssuedQuery(from, to time.Time) squirrel.SelectBuilder {
	return r.builder.
		Select("i.id", "i.invoice_number", "i.customer_id", "i.issue_date", "i.due_date",
			"i.status", "i.total_amount", "i.tax_amount").
		Column(squirrel.Expr(
			"COALESCE((SELECT SUM(p.amount) FROM invoice_payments p WHERE p.invoice_id = i.id AND p.payment_date <= ?), 0) AS paid", to)).
		From("invoices i").
		Where(squirrel.NotEq{"i.status": invoice.StatusDraft}).
		Where(squirrel.GtOrEq{"i.issue_date": from}).
		Where(squirrel.LtOrEq{"i.issue_date": to}).
		OrderBy("i.invoice_number")
}

func (r *ReportRepo) InvoicesIssued(ctx context.Context, from, to time.Time) ([]reports.InvoiceRow, error) {
	var rows []reports.InvoiceRow
	if err := r.selectRows(ctx, r.invoicesIssuedQuery(from, to), &rows); err != nil {
		return nil, fmt.Errorf("query issued invoices: %w", err)
	}
	return rows, nil
}

func (r *ReportRepo) Payments(ctx context.Context, from, to time.Time) ([]reports.PaymentRow, error) {
	q := r.builder.Select("invoice_id", "method", "amount", "payment_date").
		From("invoice_payments").
		Where(squirrel.GtOrEq{"payment_date": from}).
		Where(squirrel.LtOrEq{"payment_date": to}).
		OrderBy("payment_date")

	var rows []reports.PaymentRow
	if err := r.selectRows(ctx, q, &rows); err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	return rows, nil
}

func (r *ReportRepo) Products(ctx context.Context) ([]reports.ProductRow, error) {
	q := r.builder.Select("id", "sku", "name", "stock_level", "min_stock_level", "cost_price", "selling_price").
		From("products").
		OrderBy("sku")

	var rows []reports.ProductRow
	if err := r.selectRows(ctx, q, &rows); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return rows, nil
}

func (r *ReportRepo) movementTotalsQuery(from, to time.Time) squirrel.SelectBuilder {
	return r.builder.
		Select("movement_type",
			"COUNT(*) AS movements",
			"SUM(quantity)::bigint AS quantity",
			"SUM(new_stock - previous_stock)::bigint AS net_change").
		From("stock_movements").
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.LtOrEq{"created_at": to}).
		GroupBy("movement_type").
		OrderBy("movement_type")
}

func (r *ReportRepo) MovementTotals(ctx context.Context, from, to time.Time) ([]reports.MovementTotal, error) {
	var rows []reports.MovementTotal
	if err := r.selectRows(ctx, r.movementTotalsQuery(from, to), &rows); err != nil {
		return nil, fmt.Errorf("query movement totals: %w", err)
	}
	return rows, nil
}
