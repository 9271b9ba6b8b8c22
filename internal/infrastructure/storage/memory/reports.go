package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"ledgerd/internal/core/types"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reports"
)

var _ reports.Repository = (*ReportRepo)(nil)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	store *Store
}

// Reports returns the report repository.
func (s *Store) Reports() *ReportRepo {
	return &ReportRepo{store: s}
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (r *ReportRepo) InvoicesIssued(ctx context.Context, from, to time.Time) ([]reports.InvoiceRow, error) {
	var out []reports.InvoiceRow
	err := r.store.with(ctx, func(st *state) error {
		for _, inv := range st.invoices {
			if inv.Status == invoice.StatusDraft || !within(inv.IssueDate, from, to) {
				continue
			}
			paid := types.Zero()
			for _, p := range inv.Payments {
				if !p.PaymentDate.After(to) {
					paid = paid.Add(p.Amount)
				}
			}
			out = append(out, reports.InvoiceRow{
				ID:            inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				CustomerID:    inv.CustomerID,
				IssueDate:     inv.IssueDate,
				DueDate:       inv.DueDate,
				Status:        string(inv.Status),
				TotalAmount:   inv.TotalAmount,
				TaxAmount:     inv.TaxAmount,
				Paid:          paid,
			})
		}
		slices.SortFunc(out, func(a, b reports.InvoiceRow) int { return strings.Compare(a.InvoiceNumber, b.InvoiceNumber) })
		return nil
	})
	return out, err
}

func (r *ReportRepo) Payments(ctx context.Context, from, to time.Time) ([]reports.PaymentRow, error) {
	var out []reports.PaymentRow
	err := r.store.with(ctx, func(st *state) error {
		for _, inv := range st.invoices {
			for _, p := range inv.Payments {
				if within(p.PaymentDate, from, to) {
					out = append(out, reports.PaymentRow{
						InvoiceID:   p.InvoiceID,
						Method:      string(p.Method),
						Amount:      p.Amount,
						PaymentDate: p.PaymentDate,
					})
				}
			}
		}
		return nil
	})
	return out, err
}

func (r *ReportRepo) Products(ctx context.Context) ([]reports.ProductRow, error) {
	var out []reports.ProductRow
	err := r.store.with(ctx, func(st *state) error {
		for _, p := range st.products {
			out = append(out, reports.ProductRow{
				ID:            p.ID,
				SKU:           p.SKU,
				Name:          p.Name,
				StockLevel:    p.StockLevel,
				MinStockLevel: p.MinStockLevel,
				CostPrice:     p.CostPrice,
				SellingPrice:  p.SellingPrice,
			})
		}
		slices.SortFunc(out, func(a, b reports.ProductRow) int { return strings.Compare(a.SKU, b.SKU) })
		return nil
	})
	return out, err
}

func (r *ReportRepo) MovementTotals(ctx context.Context, from, to time.Time) ([]reports.MovementTotal, error) {
	var out []reports.MovementTotal
	err := r.store.with(ctx, func(st *state) error {
		byType := map[string]*reports.MovementTotal{}
		for _, m := range st.movements {
			if !within(m.CreatedAt, from, to) {
				continue
			}
			t, ok := byType[string(m.Type)]
			if !ok {
				t = &reports.MovementTotal{Type: string(m.Type)}
				byType[string(m.Type)] = t
			}
			t.Movements++
			t.Quantity += m.Quantity
			t.NetChange += m.Delta()
		}
		for _, t := range byType {
			out = append(out, *t)
		}
		slices.SortFunc(out, func(a, b reports.MovementTotal) int { return strings.Compare(a.Type, b.Type) })
		return nil
	})
	return out, err
}
