package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgerd/internal/core/id"
	"ledgerd/internal/infrastructure/storage/postgres"
)

// Direct hands events straight to a handler. Used with the in-memory store,
// where there is no outbox table to relay from.
type Direct struct {
	handler postgres.OutboxHandler
}

// NewDirect creates a publisher that delivers synchronously.
func NewDirect(handler postgres.OutboxHandler) *Direct {
	return &Direct{handler: handler}
}

func (d *Direct) Publish(ctx context.Context, event postgres.DomainEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return d.handler.Handle(ctx, &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		Status:        postgres.OutboxStatusPending,
		CreatedAt:     time.Now().UTC(),
	})
}
