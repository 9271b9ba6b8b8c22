package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/app"
	"ledgerd/internal/core/clock"
	appctx "ledgerd/internal/core/context"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/lock"
	"ledgerd/internal/worker"
)

type busyLocker struct{ keys []string }

func (b *busyLocker) WithLock(_ context.Context, key string, _ func(context.Context) error) error {
	b.keys = append(b.keys, key)
	return lock.ErrNotObtained
}

func newScheduler(t *testing.T, locker lock.Locker, clk clock.Clock) *worker.Scheduler {
	t.Helper()
	s, err := worker.NewScheduler(locker, clk, time.Second)
	require.NoError(t, err)
	return s
}

func TestScheduler_RunsDueJobsOnly(t *testing.T) {
	clk := clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, lock.Local{}, clk)

	var hourly, daily int
	s.Add(worker.Job{Name: "hourly", Interval: time.Hour, Run: func(context.Context, time.Time) (worker.Result, error) {
		hourly++
		return worker.Result{Processed: 1}, nil
	}})
	s.Add(worker.Job{Name: "daily", Interval: 24 * time.Hour, Run: func(context.Context, time.Time) (worker.Result, error) {
		daily++
		return worker.Result{}, nil
	}})

	assert.Equal(t, []string{"hourly", "daily"}, s.RunDue(context.Background()))

	clk.Advance(30 * time.Minute)
	assert.Empty(t, s.RunDue(context.Background()))

	clk.Advance(30 * time.Minute)
	assert.Equal(t, []string{"hourly"}, s.RunDue(context.Background()))

	assert.Equal(t, 2, hourly)
	assert.Equal(t, 1, daily)
}

func TestScheduler_JobContext(t *testing.T) {
	clk := clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := newScheduler(t, lock.Local{}, clk)

	var (
		actor  string
		trace  appctx.Trace
		traced bool
		at     time.Time
	)
	s.Add(worker.Job{Name: "inspect", Interval: time.Minute, Run: func(ctx context.Context, now time.Time) (worker.Result, error) {
		actor = appctx.GetActorID(ctx)
		trace, traced = appctx.TraceFrom(ctx)
		at = now
		return worker.Result{}, errors.New("boom")
	}})

	s.RunDue(context.Background())

	assert.Equal(t, "worker:inspect", actor)
	require.True(t, traced)
	assert.NotEmpty(t, trace.RequestID)
	assert.Equal(t, "job:inspect", trace.Origin)
	assert.Equal(t, clk.Now(), at)
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	locker := &busyLocker{}
	s := newScheduler(t, locker, clock.NewFixed(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))

	ran := false
	s.Add(worker.Job{Name: worker.JobBilling, Interval: time.Hour, Run: func(context.Context, time.Time) (worker.Result, error) {
		ran = true
		return worker.Result{}, nil
	}})

	s.RunDue(context.Background())

	assert.False(t, ran)
	assert.Equal(t, []string{"job:" + worker.JobBilling}, locker.keys)
}

func TestRegisterJobs_MemoryStorage(t *testing.T) {
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	a, err := app.Build(context.Background(), &config.Config{App: config.AppConfig{Storage: config.DriverMemory}}, clk)
	require.NoError(t, err)

	s := newScheduler(t, lock.Local{}, clk)
	worker.RegisterJobs(s, a, config.WorkerConfig{
		BillingInterval:  time.Hour,
		OverdueInterval:  time.Hour,
		ReminderInterval: time.Hour,
		OutboxInterval:   time.Minute,
	})

	assert.Equal(t, []string{
		worker.JobBilling,
		worker.JobRecurring,
		worker.JobOverdue,
		worker.JobReminders,
	}, s.RunDue(context.Background()))
}
