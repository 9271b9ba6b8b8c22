// Package worker runs the periodic ledger jobs: subscription billing,
// recurring invoices, overdue sweeps, reminders and outbox delivery.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ledgerd/internal/core/clock"
	appctx "ledgerd/internal/core/context"
	"ledgerd/internal/domain"
	"ledgerd/internal/infrastructure/lock"
	"ledgerd/pkg/logger"
)

const instrumentationName = "ledgerd/worker"

// Result counts what one job run touched.
type Result struct {
	Processed int
	Failed    int
	Skipped   int
}

// FromSweep converts a domain sweep summary.
func FromSweep(r domain.SweepResult) Result {
	return Result{Processed: r.Processed, Failed: r.Failed, Skipped: r.Skipped}
}

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) (Result, error)
}

// Scheduler runs jobs whose interval has elapsed on every tick. Each run
// holds a lock named after the job, so replicas never overlap.
type Scheduler struct {
	locker lock.Locker
	clock  clock.Clock
	tick   time.Duration

	mu      sync.Mutex
	jobs    []Job
	lastRun map[string]time.Time

	tracer trace.Tracer
	runs   metric.Int64Counter
	items  metric.Int64Counter
	timing metric.Float64Histogram
}

// NewScheduler creates a scheduler. Instruments come from the global
// meter provider and are no-ops until telemetry is set up.
func NewScheduler(locker lock.Locker, clk clock.Clock, tick time.Duration) (*Scheduler, error) {
	if locker == nil {
		locker = lock.Local{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if tick <= 0 {
		tick = 30 * time.Second
	}

	meter := otel.Meter(instrumentationName)
	runs, err := meter.Int64Counter("ledger.worker.runs",
		metric.WithDescription("Job runs by outcome"))
	if err != nil {
		return nil, err
	}
	items, err := meter.Int64Counter("ledger.worker.items",
		metric.WithDescription("Items handled by jobs, by result"))
	if err != nil {
		return nil, err
	}
	timing, err := meter.Float64Histogram("ledger.worker.duration",
		metric.WithDescription("Job run duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		locker:  locker,
		clock:   clk,
		tick:    tick,
		lastRun: make(map[string]time.Time),
		tracer:  otel.Tracer(instrumentationName),
		runs:    runs,
		items:   items,
		timing:  timing,
	}, nil
}

// Add registers a job. Jobs run in registration order.
func (s *Scheduler) Add(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Run ticks until ctx is cancelled. The first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.RunDue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue runs every job whose interval has elapsed and returns the names
// of the jobs it started.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	now := s.clock.Now()

	s.mu.Lock()
	var due []Job
	for _, job := range s.jobs {
		last, ok := s.lastRun[job.Name]
		if !ok || now.Sub(last) >= job.Interval {
			due = append(due, job)
			s.lastRun[job.Name] = now
		}
	}
	s.mu.Unlock()

	names := make([]string, 0, len(due))
	for _, job := range due {
		if ctx.Err() != nil {
			break
		}
		s.execute(ctx, job, now)
		names = append(names, job.Name)
	}
	return names
}

func (s *Scheduler) execute(ctx context.Context, job Job, now time.Time) {
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "worker:" + job.Name, Source: "worker"})
	ctx = appctx.WithTrace(ctx, appctx.Trace{RequestID: appctx.NewRequestID(), Origin: "job:" + job.Name})
	ctx, span := s.tracer.Start(ctx, "job "+job.Name,
		trace.WithAttributes(attribute.String("job", job.Name)))
	defer span.End()

	start := time.Now()
	var result Result
	err := s.locker.WithLock(ctx, "job:"+job.Name, func(ctx context.Context) error {
		var err error
		result, err = job.Run(ctx, now)
		return err
	})
	elapsed := time.Since(start)

	jobAttr := attribute.String("job", job.Name)
	outcome := "ok"
	switch {
	case errors.Is(err, lock.ErrNotObtained):
		outcome = "locked"
		logger.Debug(ctx, "job skipped, lock held elsewhere", "job", job.Name)
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error(ctx, "job failed", "job", job.Name, "error", err, "elapsed", elapsed)
	default:
		if result != (Result{}) {
			logger.Info(ctx, "job finished",
				"job", job.Name,
				"processed", result.Processed,
				"failed", result.Failed,
				"skipped", result.Skipped,
				"elapsed", elapsed,
			)
		}
	}

	s.runs.Add(ctx, 1, metric.WithAttributes(jobAttr, attribute.String("outcome", outcome)))
	s.timing.Record(ctx, elapsed.Seconds(), metric.WithAttributes(jobAttr))
	s.count(ctx, jobAttr, "processed", result.Processed)
	s.count(ctx, jobAttr, "failed", result.Failed)
	s.count(ctx, jobAttr, "skipped", result.Skipped)
	span.SetAttributes(
		attribute.Int("processed", result.Processed),
		attribute.Int("failed", result.Failed),
	)
}

func (s *Scheduler) count(ctx context.Context, job attribute.KeyValue, result string, n int) {
	if n > 0 {
		s.items.Add(ctx, int64(n), metric.WithAttributes(job, attribute.String("result", result)))
	}
}
