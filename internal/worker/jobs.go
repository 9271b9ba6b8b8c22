package worker

import (
	"context"
	"time"

	"ledgerd/internal/app"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/storage/postgres"
	"ledgerd/pkg/logger"
)

// Job names double as lock keys.
const (
	JobBilling     = "subscription-billing"
	JobRecurring   = "recurring-invoices"
	JobOverdue     = "overdue-sweep"
	JobReminders   = "payment-reminders"
	JobOutbox      = "outbox-relay"
	JobMaintenance = "maintenance"
)

// RegisterJobs adds the ledger jobs for a. Outbox delivery and maintenance
// only exist with Postgres storage; the memory driver delivers inline.
func RegisterJobs(s *Scheduler, a *app.App, cfg config.WorkerConfig) {
	s.Add(Job{
		Name:     JobBilling,
		Interval: cfg.BillingInterval,
		Run: func(ctx context.Context, now time.Time) (Result, error) {
			return FromSweep(a.Subscriptions.RunBillingCycle(ctx, now)), nil
		},
	})
	s.Add(Job{
		Name:     JobRecurring,
		Interval: cfg.BillingInterval,
		Run: func(ctx context.Context, now time.Time) (Result, error) {
			return FromSweep(a.Invoices.RunRecurring(ctx, now)), nil
		},
	})
	s.Add(Job{
		Name:     JobOverdue,
		Interval: cfg.OverdueInterval,
		Run: func(ctx context.Context, now time.Time) (Result, error) {
			return FromSweep(a.Invoices.SweepOverdue(ctx, now)), nil
		},
	})
	s.Add(Job{
		Name:     JobReminders,
		Interval: cfg.ReminderInterval,
		Run: func(ctx context.Context, now time.Time) (Result, error) {
			return FromSweep(a.Reminders.Run(ctx, now)), nil
		},
	})

	if a.TxManager == nil {
		return
	}

	relay := postgres.NewOutboxRelay(a.TxManager, postgres.RelayConfig{
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxRetries,
		BaseBackoff: cfg.OutboxBackoff,
	}, a.Delivery)

	s.Add(Job{
		Name:     JobOutbox,
		Interval: cfg.OutboxInterval,
		Run: func(ctx context.Context, _ time.Time) (Result, error) {
			stats, err := relay.ProcessBatch(ctx)
			if err != nil {
				return Result{}, err
			}
			return Result{Processed: stats.Published, Failed: stats.Failed, Skipped: stats.Retried}, nil
		},
	})
	s.Add(Job{
		Name:     JobMaintenance,
		Interval: time.Hour,
		Run: func(ctx context.Context, _ time.Time) (Result, error) {
			moved, err := relay.MoveToDLQ(ctx)
			if err != nil {
				return Result{}, err
			}
			purged, err := relay.PurgePublished(ctx, cfg.OutboxRetention)
			if err != nil {
				return Result{}, err
			}
			var expired int64
			if a.Idempotency != nil {
				if expired, err = a.Idempotency.CleanupExpired(ctx); err != nil {
					return Result{}, err
				}
			}
			if a.Pool != nil {
				a.Pool.LogStats(ctx)
			}
			logger.Info(ctx, "maintenance done",
				"dead_lettered", moved,
				"outbox_purged", purged,
				"idempotency_expired", expired,
			)
			return Result{Processed: int(purged + expired), Failed: int(moved)}, nil
		},
	})
}
