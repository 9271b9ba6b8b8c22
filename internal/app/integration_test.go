//go:build integration

package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ledgerd/internal/app"
	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/schedule"
	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/migration"
	"ledgerd/internal/infrastructure/notify"
	"ledgerd/internal/infrastructure/storage/postgres"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, msg.EventType)
	return nil
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledgerd_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migration.New(dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, m.Close())

	return dsn
}

func TestPostgresLedger(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	cfg := &config.Config{
		App:      config.AppConfig{Storage: config.DriverPostgres},
		Database: config.DatabaseConfig{URL: dsn, MaxConns: 5, MinConns: 1},
		HTTP:     config.HTTPConfig{IdempotencyTTL: time.Hour},
	}
	a, err := app.Build(ctx, cfg, clk)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	customer := domain.Customer{ID: id.New(), Name: "Acme", Email: "billing@acme.test"}
	require.NoError(t, a.Customers.Upsert(ctx, customer))

	t.Run("pool sessions run in UTC", func(t *testing.T) {
		var tz, appName string
		require.NoError(t, a.Pool.QueryRow(ctx, "SELECT current_setting('timezone'), current_setting('application_name')").Scan(&tz, &appName))
		assert.Equal(t, "UTC", tz)
		assert.Equal(t, "ledgerd", appName)
		assert.NotPanics(t, func() { a.Pool.LogStats(ctx) })
	})

	t.Run("stock ledger", func(t *testing.T) {
		product, err := a.Inventory.CreateProduct(ctx, inventory.CreateProductRequest{
			SKU: "SKU-1", Name: "Bolt", CostPrice: types.MustMoney("1"), SellingPrice: types.MustMoney("2.5"), MinStockLevel: 5,
		})
		require.NoError(t, err)

		_, err = a.Inventory.CreateProduct(ctx, inventory.CreateProductRequest{SKU: "SKU-1", Name: "Other"})
		assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate), "duplicate sku: %v", err)

		_, err = a.Inventory.ApplyMovement(ctx, inventory.MovementRequest{
			ProductID: product.ID, Type: inventory.MovementPurchase, Quantity: 20, Reason: "restock",
		})
		require.NoError(t, err)

		_, err = a.Inventory.ApplyMovement(ctx, inventory.MovementRequest{
			ProductID: product.ID, Type: inventory.MovementSale, Quantity: 25,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

		_, err = a.Inventory.AdjustToLevel(ctx, product.ID, 12, "count")
		require.NoError(t, err)

		check, err := a.Inventory.VerifyLedger(ctx, product.ID)
		require.NoError(t, err)
		assert.True(t, check.Consistent)
		assert.Equal(t, int64(12), check.CachedStock)
		assert.Equal(t, 2, check.Movements)
	})

	t.Run("invoice lifecycle with outbox", func(t *testing.T) {
		inv, err := a.Invoices.Create(ctx, invoice.CreateRequest{
			CustomerID: customer.ID,
			Items: []invoice.ItemInput{
				{Description: "Widget", Quantity: types.MustMoney("2"), UnitPrice: types.MustMoney("12.50"), TaxRate: types.MustMoney("8")},
			},
			DueDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
			Send:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "INV-2025-0001", inv.InvoiceNumber)
		assert.True(t, inv.TotalAmount.Equal(types.MustMoney("27")))

		_, err = a.Invoices.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: types.MustMoney("15"), Method: invoice.MethodCard})
		require.NoError(t, err)
		_, err = a.Invoices.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: types.MustMoney("15"), Method: invoice.MethodCard})
		assert.True(t, apperror.HasCode(err, apperror.CodeOverpayment))
		paid, err := a.Invoices.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: types.MustMoney("12"), Method: invoice.MethodBankTransfer})
		require.NoError(t, err)
		assert.Equal(t, invoice.StatusPaid, paid.Status)

		history, err := a.Audit.GetEntityHistory(ctx, "invoice", inv.ID, 10)
		require.NoError(t, err)
		assert.NotEmpty(t, history)

		report, err := a.Reports.Generate(ctx, domain.DateRange{
			From: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, report.InvoiceCount)
		assert.True(t, report.TotalPaid.Equal(types.MustMoney("27")), report.TotalPaid.String())

		handler := &recordingHandler{}
		relay := postgres.NewOutboxRelay(a.TxManager, postgres.DefaultRelayConfig(), handler)
		stats, err := relay.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Published, 1)
		assert.Contains(t, handler.events, notify.EventInvoiceReady)
	})

	t.Run("subscription billing", func(t *testing.T) {
		sub, err := a.Subscriptions.Create(ctx, subscription.CreateRequest{
			CustomerID: customer.ID,
			PlanName:   "Support",
			Amount:     types.MustMoney("49.99"),
			Currency:   "USD",
			Interval:   schedule.Monthly,
		})
		require.NoError(t, err)

		first := a.Subscriptions.RunBillingCycle(ctx, clk.Now())
		assert.Equal(t, 1, first.Processed)
		again := a.Subscriptions.RunBillingCycle(ctx, clk.Now())
		assert.Zero(t, again.Processed, "a period is billed once")

		history, err := a.Subscriptions.Invoices(ctx, sub.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("idempotency keys", func(t *testing.T) {
		replay, err := a.Idempotency.AcquireKey(ctx, "key-1", "clerk", "POST /api/v1/invoices", "hash")
		require.NoError(t, err)
		assert.Nil(t, replay)
		require.NoError(t, a.Idempotency.CompleteKey(ctx, "key-1", 201, "application/json", []byte(`{"ok":true}`)))

		replay, err = a.Idempotency.AcquireKey(ctx, "key-1", "clerk", "POST /api/v1/invoices", "hash")
		require.NoError(t, err)
		require.NotNil(t, replay)
		assert.Equal(t, 201, replay.StatusCode)
		assert.JSONEq(t, `{"ok":true}`, string(replay.Body))

		_, err = a.Idempotency.AcquireKey(ctx, "key-1", "clerk", "POST /api/v1/invoices", "other-hash")
		assert.Error(t, err)
	})
}
