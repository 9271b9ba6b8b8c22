package report_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/domain/invoice"
)

var (
	from = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)
)

func TestInvoicesIssuedQuery_SumsPaymentsUpToRangeEnd(t *testing.T) {
	sql, args, err := NewReportRepo(nil).invoicesIssuedQuery(from, to).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT i.id, i.invoice_number, i.customer_id, i.issue_date, i.due_date, i.status,"+
		" i.total_amount, i.tax_amount,"+
		" COALESCE((SELECT SUM(p.amount) FROM invoice_payments p WHERE p.invoice_id = i.id AND p.payment_date <= $1), 0) AS paid"+
		" FROM invoices i WHERE i.status <> $2 AND i.issue_date >= $3 AND i.issue_date <= $4"+
		" ORDER BY i.invoice_number", sql)
	assert.Equal(t, []any{to, invoice.StatusDraft, from, to}, args)
}

func TestMovementTotalsQuery(t *testing.T) {
	sql, args, err := NewReportRepo(nil).movementTotalsQuery(from, to).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT movement_type, COUNT(*) AS movements, SUM(quantity)::bigint AS quantity,"+
		" SUM(new_stock - previous_stock)::bigint AS net_change FROM stock_movements"+
		" WHERE created_at >= $1 AND created_at <= $2 GROUP BY movement_type ORDER BY movement_type", sql)
	assert.Equal(t, []any{from, to}, args)
}
