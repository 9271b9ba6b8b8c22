package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/id"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/infrastructure/storage/postgres"
)

type recordingHandler struct {
	mu       sync.Mutex
	messages []*postgres.OutboxMessage
	err      error
}

func (h *recordingHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return h.err
}

func notice() domain.InvoiceNotice {
	return domain.InvoiceNotice{
		InvoiceID:     id.New(),
		InvoiceNumber: "INV-2025-0001",
		TotalAmount:   decimal.RequireFromString("27"),
		Balance:       decimal.RequireFromString("12"),
		DueDate:       time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		ReminderCount: 2,
	}
}

func TestNotifier_PublishesTypedEvents(t *testing.T) {
	handler := &recordingHandler{}
	n := NewNotifier(NewDirect(handler))
	ctx := context.Background()
	nt := notice()

	require.NoError(t, n.SendReminder(ctx, nt, domain.Customer{ID: nt.CustomerID, Name: "Acme", Email: "billing@acme.test"}))
	require.NoError(t, n.SendInvoiceReady(ctx, nt, "https://pay.test/1"))
	require.NoError(t, n.StockAlert(ctx, inventory.StockAlert{ProductID: id.New(), SKU: "MILK", Tier: inventory.TierLow}))

	require.Len(t, handler.messages, 3)
	assert.Equal(t, EventInvoiceReminder, handler.messages[0].EventType)
	assert.Equal(t, nt.InvoiceID, handler.messages[0].AggregateID)
	assert.Equal(t, EventInvoiceReady, handler.messages[1].EventType)
	assert.Equal(t, EventStockAlert, handler.messages[2].EventType)
	assert.Equal(t, "product", handler.messages[2].AggregateType)

	var reminder ReminderPayload
	require.NoError(t, json.Unmarshal(handler.messages[0].Payload, &reminder))
	assert.Equal(t, 2, reminder.Notice.ReminderCount)
	assert.Equal(t, "billing@acme.test", reminder.Customer.Email)
	assert.True(t, reminder.Notice.Balance.Equal(decimal.RequireFromString("12")))
}

func TestNotifier_PropagatesDeliveryError(t *testing.T) {
	handler := &recordingHandler{err: errors.New("smtp down")}
	n := NewNotifier(NewDirect(handler))

	err := n.SendInvoiceReady(context.Background(), notice(), "")
	assert.ErrorContains(t, err, "smtp down")
}

func TestWebhookHandler_PostsSignedEnvelope(t *testing.T) {
	var (
		gotBody   []byte
		gotHeader http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.URL+"/hooks/ledger", "s3cret", 5*time.Second)
	msg := &postgres.OutboxMessage{
		ID:          id.New(),
		AggregateID: id.New(),
		EventType:   EventInvoiceReady,
		Payload:     json.RawMessage(`{"paymentUrl":"https://pay.test/1"}`),
		RetryCount:  1,
		CreatedAt:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, EventInvoiceReady, gotHeader.Get(HeaderEvent))
	assert.Equal(t, msg.ID.String(), gotHeader.Get(HeaderDelivery))
	assert.Equal(t, Sign([]byte("s3cret"), gotBody), gotHeader.Get(HeaderSignature))

	var env Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, 2, env.Attempt)
	assert.Equal(t, msg.AggregateID, env.AggregateID)
	assert.JSONEq(t, `{"paymentUrl":"https://pay.test/1"}`, string(env.Payload))
}

func TestWebhookHandler_ErrorStatusIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := NewWebhookHandler(srv.URL, "", time.Second)
	err := h.Handle(context.Background(), &postgres.OutboxMessage{ID: id.New(), EventType: EventStockAlert, Payload: json.RawMessage(`{}`)})

	assert.ErrorContains(t, err, "503")
}
