// Package app assembles the ledger services over the configured storage
// driver. The server, the worker and the seed command share this wiring.
package app

import (
	"context"
	"fmt"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/numerator"
	"ledgerd/internal/core/tx"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reminder"
	"ledgerd/internal/domain/reports"
	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/gateway"
	"ledgerd/internal/infrastructure/notify"
	numeratorpg "ledgerd/internal/infrastructure/numerator"
	"ledgerd/internal/infrastructure/storage/memory"
	"ledgerd/internal/infrastructure/storage/postgres"
	"ledgerd/internal/infrastructure/storage/postgres/customer_repo"
	"ledgerd/internal/infrastructure/storage/postgres/inventory_repo"
	"ledgerd/internal/infrastructure/storage/postgres/invoice_repo"
	"ledgerd/internal/infrastructure/storage/postgres/report_repo"
	"ledgerd/internal/infrastructure/storage/postgres/subscription_repo"
	"ledgerd/pkg/logger"
)

// CustomerStore reads and writes the customer catalog.
type CustomerStore interface {
	domain.CustomerDirectory
	Upsert(ctx context.Context, c domain.Customer) error
}

// App holds the services and the storage-specific infrastructure.
// The Postgres-only fields are nil with the memory driver.
type App struct {
	Inventory     *inventory.Service
	Invoices      *invoice.Service
	Subscriptions *subscription.Service
	Reminders     *reminder.Service
	Reports       *reports.Service
	Customers     CustomerStore

	Storage     string
	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Idempotency *postgres.IdempotencyStore
	Audit       *postgres.AuditService

	// Delivery receives relayed outbox messages.
	Delivery postgres.OutboxHandler
}

type storage struct {
	inventory     inventory.Repository
	invoices      invoice.Repository
	subscriptions subscription.Repository
	reports       reports.Repository
	customers     CustomerStore
	txManager     tx.ReadOnlyManager
	numerator     numerator.Generator
	auditor       domain.Auditor
	publisher     notify.Publisher
}

// Build opens the storage named by cfg.App.Storage and wires the services.
func Build(ctx context.Context, cfg *config.Config, clk clock.Clock) (*App, error) {
	a := &App{Storage: cfg.App.Storage, Delivery: delivery(cfg.Notify)}

	var st storage
	switch cfg.App.Storage {
	case config.DriverMemory:
		store := memory.New()
		st = storage{
			inventory:     store.Inventory(),
			invoices:      store.Invoices(),
			subscriptions: store.Subscriptions(),
			reports:       store.Reports(),
			customers:     store,
			txManager:     store,
			numerator:     store,
			auditor:       store,
			publisher:     notify.NewDirect(a.Delivery),
		}
		logger.Warn(ctx, "using in-memory storage, data is lost on exit")

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.Database.DSN(),
			AppName:         cfg.App.Name,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.RegisterMetrics(); err != nil {
			logger.Warn(ctx, "database pool metrics unavailable", "error", err)
		}
		txm := postgres.NewTxManager(pool)
		auditor, err := postgres.NewAuditService(txm)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("create audit service: %w", err)
		}

		a.Pool = pool
		a.TxManager = txm
		a.Audit = auditor
		a.Idempotency = postgres.NewIdempotencyStore(txm, cfg.HTTP.IdempotencyTTL)
		st = storage{
			inventory:     inventory_repo.NewRepo(txm),
			invoices:      invoice_repo.NewRepo(txm),
			subscriptions: subscription_repo.NewRepo(txm),
			reports:       report_repo.NewReportRepo(txm),
			customers:     customer_repo.NewRepo(txm),
			txManager:     txm,
			numerator:     numeratorpg.New(txm),
			auditor:       auditor,
			publisher:     postgres.NewOutboxPublisher(txm),
		}

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.App.Storage)
	}

	notifier := notify.NewNotifier(st.publisher)
	var links domain.PaymentLinker
	if cfg.Gateway.BaseURL != "" {
		links = gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	}

	a.Customers = st.customers
	a.Inventory = inventory.NewService(st.inventory, st.txManager, notifier, clk)
	a.Invoices = invoice.NewService(invoice.Deps{
		Repo:      st.invoices,
		TxManager: st.txManager,
		Numerator: st.numerator,
		Customers: st.customers,
		Notifier:  notifier,
		Links:     links,
		Auditor:   st.auditor,
		Clock:     clk,
	})
	a.Subscriptions = subscription.NewService(st.subscriptions, st.txManager, a.Invoices, st.customers, st.auditor, clk)
	a.Reminders = reminder.NewService(a.Invoices, st.customers, notifier)
	a.Reports = reports.NewService(st.reports, st.txManager, clk)
	return a, nil
}

func delivery(cfg config.NotifyConfig) postgres.OutboxHandler {
	if cfg.WebhookURL == "" {
		return notify.LogHandler{}
	}
	return notify.NewWebhookHandler(cfg.WebhookURL, cfg.Secret, cfg.Timeout)
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
