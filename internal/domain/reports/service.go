package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/tx"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
)

// Service provides report generation operations.
type Service struct {
	repo      Repository
	txManager tx.ReadOnlyManager
	clock     clock.Clock
}

// NewService creates a new reports service.
func NewService(repo Repository, txManager tx.ReadOnlyManager, clk clock.Clock) *Service {
	return &Service{repo: repo, txManager: txManager, clock: clk}
}

// normalizeRange validates r and widens it to whole days.
func normalizeRange(r domain.DateRange) (domain.DateRange, error) {
	if err := r.Validate(); err != nil {
		return r, err
	}
	return domain.DateRange{
		From: clock.Date(r.From),
		To:   clock.Date(r.To).Add(24*time.Hour - time.Nanosecond),
	}, nil
}

// Generate builds the reconciliation report for invoices issued in r.
// Overdue exposure is evaluated at the end of the range.
func (s *Service) Generate(ctx context.Context, r domain.DateRange) (*ReconciliationReport, error) {
	rng, err := normalizeRange(r)
	if err != nil {
		return nil, err
	}

	var (
		invoices []InvoiceRow
		payments []PaymentRow
	)
	err = s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		var err error
		if invoices, err = s.repo.InvoicesIssued(ctx, rng.From, rng.To); err != nil {
			return fmt.Errorf("load invoices: %w", err)
		}
		if payments, err = s.repo.Payments(ctx, rng.From, rng.To); err != nil {
			return fmt.Errorf("load payments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report := Reconcile(invoices, payments, rng.To)
	report.Range = rng
	report.GeneratedAt = s.clock.Now()
	return report, nil
}

// Reconcile aggregates invoice and payment rows. asOf decides which unpaid
// invoices count as overdue.
func Reconcile(invoices []InvoiceRow, payments []PaymentRow, asOf time.Time) *ReconciliationReport {
	report := &ReconciliationReport{
		TotalInvoiced:    types.Zero(),
		TotalTax:         types.Zero(),
		TotalPaid:        types.Zero(),
		TotalOutstanding: types.Zero(),
		OverdueExposure:  types.Zero(),
		PaymentsTotal:    types.Zero(),
		FullyPaid:        newBucket(),
		PartiallyPaid:    newBucket(),
		Unpaid:           newBucket(),
	}

	for _, inv := range invoices {
		outstanding := types.NonNegative(inv.TotalAmount.Sub(inv.Paid))
		report.InvoiceCount++
		report.TotalInvoiced = report.TotalInvoiced.Add(inv.TotalAmount)
		report.TotalTax = report.TotalTax.Add(inv.TaxAmount)
		report.TotalPaid = report.TotalPaid.Add(inv.Paid)
		report.TotalOutstanding = report.TotalOutstanding.Add(outstanding)

		switch {
		case outstanding.IsZero():
			report.FullyPaid.add(inv.TotalAmount, inv.Paid)
		case inv.Paid.IsPositive():
			report.PartiallyPaid.add(inv.TotalAmount, inv.Paid)
		default:
			report.Unpaid.add(inv.TotalAmount, inv.Paid)
		}

		if outstanding.IsPositive() && clock.Date(asOf).After(clock.Date(inv.DueDate)) {
			report.OverdueCount++
			report.OverdueExposure = report.OverdueExposure.Add(outstanding)
		}
	}

	byMethod := make(map[string]*MethodTotal)
	for _, p := range payments {
		m, ok := byMethod[p.Method]
		if !ok {
			m = &MethodTotal{Method: p.Method, Amount: types.Zero()}
			byMethod[p.Method] = m
		}
		m.Count++
		m.Amount = m.Amount.Add(p.Amount)
		report.PaymentCount++
		report.PaymentsTotal = report.PaymentsTotal.Add(p.Amount)
	}
	report.PaymentsByMethod = make([]MethodTotal, 0, len(byMethod))
	for _, m := range byMethod {
		report.PaymentsByMethod = append(report.PaymentsByMethod, *m)
	}
	sort.Slice(report.PaymentsByMethod, func(i, j int) bool {
		return report.PaymentsByMethod[i].Method < report.PaymentsByMethod[j].Method
	})

	return report
}

func newBucket() Bucket {
	return Bucket{Total: types.Zero(), Paid: types.Zero(), Outstanding: types.Zero()}
}

// InventorySnapshot values the current stock of every product.
func (s *Service) InventorySnapshot(ctx context.Context) (*InventorySnapshot, error) {
	products, err := s.repo.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	snap := &InventorySnapshot{
		GeneratedAt: s.clock.Now(),
		CostValue:   types.Zero(),
		RetailValue: types.Zero(),
		Lines:       make([]InventoryLine, 0, len(products)),
	}
	for _, p := range products {
		units := types.NewMoneyFromInt(p.StockLevel)
		line := InventoryLine{
			ProductID:   p.ID,
			SKU:         p.SKU,
			Name:        p.Name,
			StockLevel:  p.StockLevel,
			Tier:        string(inventory.ClassifyStock(p.StockLevel, p.MinStockLevel)),
			CostValue:   p.CostPrice.Mul(units),
			RetailValue: p.SellingPrice.Mul(units),
		}
		snap.ProductCount++
		snap.TotalUnits += p.StockLevel
		snap.CostValue = snap.CostValue.Add(line.CostValue)
		snap.RetailValue = snap.RetailValue.Add(line.RetailValue)
		switch inventory.StockTier(line.Tier) {
		case inventory.TierOutOfStock:
			snap.OutOfStock++
			snap.LowStockCount++
		case inventory.TierLow, inventory.TierCritical:
			snap.LowStockCount++
		}
		snap.Lines = append(snap.Lines, line)
	}
	return snap, nil
}

// StockTurnover totals movements per type over r.
func (s *Service) StockTurnover(ctx context.Context, r domain.DateRange) (*StockTurnover, error) {
	rng, err := normalizeRange(r)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.MovementTotals(ctx, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("load movement totals: %w", err)
	}

	report := &StockTurnover{Range: rng, Rows: rows}
	for _, row := range rows {
		if row.NetChange >= 0 {
			report.Inbound += row.NetChange
		} else {
			report.Outbound -= row.NetChange
		}
		report.Net += row.NetChange
	}
	return report, nil
}
