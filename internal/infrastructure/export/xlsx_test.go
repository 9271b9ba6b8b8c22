package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ledgerd/internal/domain"
	"ledgerd/internal/domain/reports"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestWriteReconciliation(t *testing.T) {
	report := &reports.ReconciliationReport{
		Range: domain.DateRange{
			From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		GeneratedAt:      time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC),
		InvoiceCount:     3,
		TotalInvoiced:    money("300"),
		TotalPaid:        money("150"),
		TotalOutstanding: money("150"),
		FullyPaid:        reports.Bucket{Count: 1, Total: money("100"), Paid: money("100")},
		PaymentCount:     2,
		PaymentsTotal:    money("150"),
		PaymentsByMethod: []reports.MethodTotal{
			{Method: "CARD", Count: 1, Amount: money("100")},
			{Method: "CASH", Count: 1, Amount: money("50")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReconciliation(&buf, report))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetPayments}, f.GetSheetList())

	rows, err := f.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Reconciliation", "2025-06-01", "2025-06-30"}, rows[0])
	assert.Equal(t, []string{"Invoices", "3"}, rows[3])
	assert.Equal(t, []string{"Total invoiced", "300"}, rows[4])

	payments, err := f.GetRows(sheetPayments)
	require.NoError(t, err)
	require.Len(t, payments, 4)
	assert.Equal(t, []string{"CARD", "1", "100"}, payments[1])
	assert.Equal(t, []string{"Total", "2", "150"}, payments[3])
}

func TestWriteInventory(t *testing.T) {
	snapshot := &reports.InventorySnapshot{
		TotalUnits:  12,
		CostValue:   money("24"),
		RetailValue: money("36.5"),
		Lines: []reports.InventoryLine{
			{SKU: "MILK", Name: "Milk", StockLevel: 12, Tier: "OK", CostValue: money("24"), RetailValue: money("36.5")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteInventory(&buf, snapshot))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetStock)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"MILK", "Milk", "12", "OK", "24", "36.5"}, rows[1])
	assert.Equal(t, "Total", rows[2][0])
}
