package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/id"
	"ledgerd/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // "invoice", "product"
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"` // "invoice.ready", "stock.alert"
	Payload       []byte       `db:"payload"`    // JSON
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// DomainEvent represents an event to be published via outbox.
type DomainEvent struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, 0, $7)`

// OutboxPublisher writes events to the outbox table.
type OutboxPublisher struct {
	txManager *TxManager
	executor  *BatchExecutor
}

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, executor: NewBatchExecutor(txManager)}
}

// Publish writes an event to the outbox. Inside a transaction the event
// commits or rolls back with it; otherwise it is written on its own.
func (p *OutboxPublisher) Publish(ctx context.Context, event DomainEvent) error {
	return p.PublishBatch(ctx, []DomainEvent{event})
}

// PublishBatch writes multiple events in one round-trip.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC()
	queries := make([]BatchQuery, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		queries = append(queries, BatchQuery{
			SQL:  insertOutboxSQL,
			Args: []any{id.New(), event.AggregateType, event.AggregateID, event.EventType, payload, OutboxStatusPending, now},
		})
	}

	return p.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := p.executor.ExecuteBatch(ctx, queries); err != nil {
			return fmt.Errorf("insert outbox messages: %w", err)
		}
		return nil
	})
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle delivers a message and returns error if it should be retried.
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// RelayConfig tunes retries of the relay.
type RelayConfig struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
}

// DefaultRelayConfig retries five times starting one minute apart.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{BatchSize: 100, MaxAttempts: 5, BaseBackoff: time.Minute}
}

// OutboxRelay reads pending messages and hands them to a handler.
// Run by the worker; several workers may relay concurrently because rows are
// claimed with FOR UPDATE SKIP LOCKED.
type OutboxRelay struct {
	txManager *TxManager
	cfg       RelayConfig
	handler   OutboxHandler
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(txManager *TxManager, cfg RelayConfig, handler OutboxHandler) *OutboxRelay {
	def := DefaultRelayConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	return &OutboxRelay{txManager: txManager, cfg: cfg, handler: handler}
}

// RelayStats counts what one ProcessBatch call did.
type RelayStats struct {
	Published int
	Retried   int
	Failed    int
}

// ProcessBatch claims due messages, delivers them and records the outcome.
// The claim and the status updates share one transaction.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (RelayStats, error) {
	var stats RelayStats
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		stats = RelayStats{}
		querier := r.txManager.GetQuerier(ctx)

		var messages []*OutboxMessage
		err := pgxscan.Select(ctx, querier, &messages, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload, status,
			       retry_count, last_error, next_retry_at, created_at, published_at
			FROM sys_outbox
			WHERE status = $1
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, OutboxStatusPending, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("fetch outbox messages: %w", err)
		}

		for _, msg := range messages {
			outcome, err := r.processMessage(ctx, querier, msg)
			if err != nil {
				return err
			}
			switch outcome {
			case OutboxStatusPublished:
				stats.Published++
			case OutboxStatusFailed:
				stats.Failed++
			default:
				stats.Retried++
			}
		}
		return nil
	})
	return stats, err
}

// processMessage delivers one message. Delivery errors are recorded on the
// row; only database errors are returned.
func (r *OutboxRelay) processMessage(ctx context.Context, querier Querier, msg *OutboxMessage) (OutboxStatus, error) {
	if err := r.handler.Handle(ctx, msg); err != nil {
		attempts := msg.RetryCount + 1
		status := OutboxStatusPending
		if attempts >= r.cfg.MaxAttempts {
			status = OutboxStatusFailed
		}
		nextRetry := time.Now().UTC().Add(r.backoff(attempts))

		logger.Warn(ctx, "outbox delivery failed",
			"message_id", msg.ID,
			"event_type", msg.EventType,
			"attempt", attempts,
			"error", err)

		_, updateErr := querier.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4
			WHERE id = $5
		`, attempts, err.Error(), nextRetry, status, msg.ID)
		if updateErr != nil {
			return "", fmt.Errorf("update failed message: %w", updateErr)
		}
		return status, nil
	}

	_, err := querier.Exec(ctx, `
		UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3
	`, OutboxStatusPublished, time.Now().UTC(), msg.ID)
	if err != nil {
		return "", fmt.Errorf("mark message published: %w", err)
	}
	return OutboxStatusPublished, nil
}

// backoff doubles per attempt: 1m, 2m, 4m, ...
func (r *OutboxRelay) backoff(attempts int) time.Duration {
	return time.Duration(float64(r.cfg.BaseBackoff) * math.Pow(2, float64(attempts-1)))
}

// MoveToDLQ moves messages that exhausted their retries to the dead letter queue.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	var moved int64
	err := r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
			WITH moved AS (
				DELETE FROM sys_outbox
				WHERE status = $1
				RETURNING id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at
			)
			INSERT INTO sys_outbox_dlq (id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, failed_at, failure_reason)
			SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at, NOW(), last_error FROM moved
		`, OutboxStatusFailed)
		if err != nil {
			return fmt.Errorf("move to DLQ: %w", err)
		}
		moved = tag.RowsAffected()
		return nil
	})
	return moved, err
}

// PurgePublished deletes published messages older than retention.
func (r *OutboxRelay) PurgePublished(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_outbox WHERE status = $1 AND published_at < $2
	`, OutboxStatusPublished, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge published outbox messages: %w", err)
	}
	return tag.RowsAffected(), nil
}
