// Package postgres provides PostgreSQL infrastructure components.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"ledgerd/pkg/logger"
)

// PoolConfig sizes the connection pool. Zero values keep the pgx defaults.
type PoolConfig struct {
	DSN             string
	AppName         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the ledger's connection pool. Sessions run in UTC so DATE columns
// such as due and billing dates round-trip unshifted.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	appName := cfg.AppName
	if appName == "" {
		appName = "ledgerd"
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// RegisterMetrics reports connection usage as an observable gauge
// partitioned by state.
func (p *Pool) RegisterMetrics() error {
	meter := otel.Meter("ledgerd/postgres")
	conns, err := meter.Int64ObservableGauge("ledger.db.pool.connections",
		metric.WithDescription("Database connections by state"))
	if err != nil {
		return err
	}

	acquired := metric.WithAttributes(attribute.String("state", "acquired"))
	idle := metric.WithAttributes(attribute.String("state", "idle"))
	limit := metric.WithAttributes(attribute.String("state", "max"))
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := p.Stat()
		o.ObserveInt64(conns, int64(stat.AcquiredConns()), acquired)
		o.ObserveInt64(conns, int64(stat.IdleConns()), idle)
		o.ObserveInt64(conns, int64(stat.MaxConns()), limit)
		return nil
	}, conns)
	return err
}

// LogStats logs pool usage. The maintenance job calls it hourly; a growing
// empty_acquires count means callers waited for a connection.
func (p *Pool) LogStats(ctx context.Context) {
	stat := p.Stat()
	logger.Info(ctx, "database pool stats",
		"total", stat.TotalConns(),
		"acquired", stat.AcquiredConns(),
		"idle", stat.IdleConns(),
		"max", stat.MaxConns(),
		"empty_acquires", stat.EmptyAcquireCount(),
	)
}
