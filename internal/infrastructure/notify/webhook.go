package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ledgerd/internal/core/id"
	"ledgerd/internal/infrastructure/storage/postgres"
	"ledgerd/pkg/logger"
)

// Webhook headers.
const (
	HeaderEvent     = "X-Ledger-Event"
	HeaderDelivery  = "X-Ledger-Delivery"
	HeaderSignature = "X-Ledger-Signature"
)

// Envelope is the JSON body posted for every event.
type Envelope struct {
	ID          id.ID           `json:"id"`
	Type        string          `json:"type"`
	AggregateID id.ID           `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Attempt     int             `json:"attempt"`
	Payload     json.RawMessage `json:"payload"`
}

var _ postgres.OutboxHandler = (*WebhookHandler)(nil)

// WebhookHandler posts relayed outbox messages to one endpoint. Any non-2xx
// answer is an error so the relay retries the message.
type WebhookHandler struct {
	client *resty.Client
	url    string
	secret []byte
}

// NewWebhookHandler creates a webhook delivery handler.
func NewWebhookHandler(url, secret string, timeout time.Duration) *WebhookHandler {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "ledgerd-webhook/1")
	return &WebhookHandler{client: client, url: url, secret: []byte(secret)}
}

func (h *WebhookHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	body, err := json.Marshal(Envelope{
		ID:          msg.ID,
		Type:        msg.EventType,
		AggregateID: msg.AggregateID,
		OccurredAt:  msg.CreatedAt,
		Attempt:     msg.RetryCount + 1,
		Payload:     msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	req := h.client.R().
		SetContext(ctx).
		SetHeader(HeaderEvent, msg.EventType).
		SetHeader(HeaderDelivery, msg.ID.String()).
		SetBody(body)
	if len(h.secret) > 0 {
		req.SetHeader(HeaderSignature, Sign(h.secret, body))
	}

	resp, err := req.Post(h.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook answered %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, prefixed with the algorithm.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

var _ postgres.OutboxHandler = LogHandler{}

// LogHandler writes messages to the log. Used when no webhook is configured.
type LogHandler struct{}

func (LogHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	logger.Info(ctx, "notification",
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload))
	return nil
}
