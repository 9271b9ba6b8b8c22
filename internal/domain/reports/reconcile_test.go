package reports

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
)

func m(s string) types.Money { return types.MustMoney(s) }

func TestReconcile(t *testing.T) {
	due := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	later := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 6, 30, 23, 59, 59, 0, time.UTC)

	invoices := []InvoiceRow{
		{ID: id.New(), InvoiceNumber: "INV-2025-0001", DueDate: due, TotalAmount: m("100"), TaxAmount: m("8"), Paid: m("100")},
		{ID: id.New(), InvoiceNumber: "INV-2025-0002", DueDate: due, TotalAmount: m("50"), TaxAmount: m("0"), Paid: m("20")},
		{ID: id.New(), InvoiceNumber: "INV-2025-0003", DueDate: later, TotalAmount: m("80"), TaxAmount: m("4"), Paid: m("0")},
	}
	payments := []PaymentRow{
		{Method: "CARD", Amount: m("100")},
		{Method: "CASH", Amount: m("20")},
		{Method: "CASH", Amount: m("5")},
	}

	r := Reconcile(invoices, payments, asOf)

	assert.Equal(t, 3, r.InvoiceCount)
	assert.True(t, r.TotalInvoiced.Equal(m("230")))
	assert.True(t, r.TotalTax.Equal(m("12")))
	assert.True(t, r.TotalPaid.Equal(m("120")))
	assert.True(t, r.TotalOutstanding.Equal(m("110")))

	assert.Equal(t, 1, r.FullyPaid.Count)
	assert.Equal(t, 1, r.PartiallyPaid.Count)
	assert.True(t, r.PartiallyPaid.Outstanding.Equal(m("30")))
	assert.Equal(t, 1, r.Unpaid.Count)
	assert.True(t, r.Unpaid.Total.Equal(m("80")))

	assert.Equal(t, 1, r.OverdueCount, "only the partially paid invoice is past due")
	assert.True(t, r.OverdueExposure.Equal(m("30")))

	assert.Equal(t, 3, r.PaymentCount)
	assert.True(t, r.PaymentsTotal.Equal(m("125")))
	require.Len(t, r.PaymentsByMethod, 2)
	assert.Equal(t, "CARD", r.PaymentsByMethod[0].Method)
	assert.Equal(t, "CASH", r.PaymentsByMethod[1].Method)
	assert.Equal(t, 2, r.PaymentsByMethod[1].Count)
	assert.True(t, r.PaymentsByMethod[1].Amount.Equal(m("25")))
}

func TestReconcile_Empty(t *testing.T) {
	r := Reconcile(nil, nil, time.Now())
	assert.Zero(t, r.InvoiceCount)
	assert.True(t, r.TotalInvoiced.IsZero())
	assert.NotNil(t, r.PaymentsByMethod)
}
