package reports_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reports"
	"ledgerd/internal/infrastructure/storage/memory"
)

type fixture struct {
	reports   *reports.Service
	invoices  *invoice.Service
	inventory *inventory.Service
	customer  id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	customer := id.New()
	require.NoError(t, store.AddCustomer(context.Background(), domain.Customer{ID: customer, Name: "Initech"}))

	return &fixture{
		reports: reports.NewService(store.Reports(), store, clk),
		invoices: invoice.NewService(invoice.Deps{
			Repo: store.Invoices(), TxManager: store, Numerator: store, Customers: store, Clock: clk,
		}),
		inventory: inventory.NewService(store.Inventory(), store, nil, clk),
		customer:  customer,
	}
}

func (f *fixture) invoice(t *testing.T, send bool) *invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Create(context.Background(), invoice.CreateRequest{
		CustomerID: f.customer,
		Items: []invoice.ItemInput{
			{Description: "Widget", Quantity: types.MustMoney("2"), UnitPrice: types.MustMoney("12.50"), TaxRate: types.MustMoney("8")},
		},
		DueDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Send:    send,
	})
	require.NoError(t, err)
	return inv
}

func june() domain.DateRange {
	return domain.DateRange{
		From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.invoice(t, true)
	partial := f.invoice(t, true)
	f.invoice(t, false)

	_, err := f.invoices.RecordPayment(ctx, paid.ID, invoice.PaymentRequest{Amount: types.MustMoney("27"), Method: invoice.MethodCard})
	require.NoError(t, err)
	_, err = f.invoices.RecordPayment(ctx, partial.ID, invoice.PaymentRequest{Amount: types.MustMoney("15"), Method: invoice.MethodCash})
	require.NoError(t, err)

	r, err := f.reports.Generate(ctx, june())
	require.NoError(t, err)

	assert.Equal(t, 2, r.InvoiceCount, "drafts are not reconciled")
	assert.True(t, r.TotalInvoiced.Equal(types.MustMoney("54")))
	assert.True(t, r.TotalPaid.Equal(types.MustMoney("42")))
	assert.True(t, r.TotalOutstanding.Equal(types.MustMoney("12")))
	assert.Equal(t, 1, r.FullyPaid.Count)
	assert.Equal(t, 1, r.PartiallyPaid.Count)
	assert.Equal(t, 1, r.OverdueCount)
	assert.True(t, r.OverdueExposure.Equal(types.MustMoney("12")))
	assert.True(t, r.PaymentsTotal.Equal(r.TotalPaid))
	require.Len(t, r.PaymentsByMethod, 2)

	assert.Equal(t, time.Date(2025, 6, 30, 23, 59, 59, 999999999, time.UTC), r.Range.To)
}

func TestGenerate_InvalidRange(t *testing.T) {
	f := newFixture(t)
	rng := june()
	rng.From, rng.To = rng.To, rng.From

	_, err := f.reports.Generate(context.Background(), rng)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestInventorySnapshotAndTurnover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	create := func(sku string, min int64) *inventory.Product {
		p, err := f.inventory.CreateProduct(ctx, inventory.CreateProductRequest{
			SKU: sku, Name: sku, CostPrice: types.MustMoney("2.50"), SellingPrice: types.MustMoney("4"), MinStockLevel: min,
		})
		require.NoError(t, err)
		return p
	}
	move := func(p *inventory.Product, t2 inventory.MovementType, q int64) {
		_, err := f.inventory.ApplyMovement(ctx, inventory.MovementRequest{ProductID: p.ID, Quantity: q, Type: t2})
		require.NoError(t, err)
	}

	a := create("A-100", 2)
	b := create("B-200", 1)
	move(a, inventory.MovementPurchase, 10)
	move(b, inventory.MovementPurchase, 3)
	move(b, inventory.MovementSale, 3)

	snap, err := f.reports.InventorySnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.ProductCount)
	assert.Equal(t, int64(10), snap.TotalUnits)
	assert.True(t, snap.CostValue.Equal(types.MustMoney("25")))
	assert.True(t, snap.RetailValue.Equal(types.MustMoney("40")))
	assert.Equal(t, 1, snap.OutOfStock)
	assert.Equal(t, 1, snap.LowStockCount)
	require.Len(t, snap.Lines, 2)
	assert.Equal(t, "OUT_OF_STOCK", snap.Lines[1].Tier)

	turnover, err := f.reports.StockTurnover(ctx, june())
	require.NoError(t, err)
	require.Len(t, turnover.Rows, 2)
	assert.Equal(t, "PURCHASE", turnover.Rows[0].Type)
	assert.Equal(t, int64(13), turnover.Rows[0].NetChange)
	assert.Equal(t, int64(13), turnover.Inbound)
	assert.Equal(t, int64(3), turnover.Outbound)
	assert.Equal(t, int64(10), turnover.Net)
}
