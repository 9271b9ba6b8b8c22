// Package export renders reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"ledgerd/internal/core/types"
	"ledgerd/internal/domain/reports"
)

// ContentTypeXLSX is the MIME type of the generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetSummary  = "Summary"
	sheetPayments = "Payments"
	sheetStock    = "Stock"
	dateLayout    = "2006-01-02"
)

type sheetWriter struct {
	f      *excelize.File
	sheet  string
	row    int
	header int
	err    error
}

func (w *sheetWriter) put(values ...any) {
	if w.err != nil {
		return
	}
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(w.sheet, cell, &values)
}

// heading writes a bold row.
func (w *sheetWriter) heading(values ...any) {
	w.put(values...)
	if w.err != nil {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(values), w.row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellStyle(w.sheet, fmt.Sprintf("A%d", w.row), last, w.header)
}

func (w *sheetWriter) blank() {
	w.row++
}

func newWorkbook() (*excelize.File, int, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, bold, nil
}

func amount(m types.Money) float64 {
	return m.Round(2).InexactFloat64()
}

// WriteReconciliation writes the report as a two-sheet workbook.
func WriteReconciliation(out io.Writer, r *reports.ReconciliationReport) error {
	f, bold, err := newWorkbook()
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := &sheetWriter{f: f, sheet: sheetSummary, header: bold}
	summary.heading("Reconciliation", r.Range.From.Format(dateLayout), r.Range.To.Format(dateLayout))
	summary.put("Generated at", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	summary.blank()
	summary.put("Invoices", r.InvoiceCount)
	summary.put("Total invoiced", amount(r.TotalInvoiced))
	summary.put("Total tax", amount(r.TotalTax))
	summary.put("Total paid", amount(r.TotalPaid))
	summary.put("Outstanding", amount(r.TotalOutstanding))
	summary.put("Overdue invoices", r.OverdueCount)
	summary.put("Overdue exposure", amount(r.OverdueExposure))
	summary.blank()
	summary.heading("Status", "Count", "Total", "Paid", "Outstanding")
	for _, b := range []struct {
		name string
		b    reports.Bucket
	}{
		{"Fully paid", r.FullyPaid},
		{"Partially paid", r.PartiallyPaid},
		{"Unpaid", r.Unpaid},
	} {
		summary.put(b.name, b.b.Count, amount(b.b.Total), amount(b.b.Paid), amount(b.b.Outstanding))
	}
	if summary.err != nil {
		return fmt.Errorf("write summary: %w", summary.err)
	}

	if _, err := f.NewSheet(sheetPayments); err != nil {
		return fmt.Errorf("add payments sheet: %w", err)
	}
	payments := &sheetWriter{f: f, sheet: sheetPayments, header: bold}
	payments.heading("Method", "Count", "Amount")
	for _, m := range r.PaymentsByMethod {
		payments.put(m.Method, m.Count, amount(m.Amount))
	}
	payments.put("Total", r.PaymentCount, amount(r.PaymentsTotal))
	if payments.err != nil {
		return fmt.Errorf("write payments: %w", payments.err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteInventory writes the stock valuation snapshot.
func WriteInventory(out io.Writer, s *reports.InventorySnapshot) error {
	f, bold, err := newWorkbook()
	if err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetStock); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	w := &sheetWriter{f: f, sheet: sheetStock, header: bold}
	w.heading("SKU", "Name", "Stock", "Tier", "Cost value", "Retail value")
	for _, l := range s.Lines {
		w.put(l.SKU, l.Name, l.StockLevel, l.Tier, amount(l.CostValue), amount(l.RetailValue))
	}
	w.put("Total", "", s.TotalUnits, "", amount(s.CostValue), amount(s.RetailValue))
	if w.err != nil {
		return fmt.Errorf("write stock: %w", w.err)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
