package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reminder"
	"ledgerd/internal/infrastructure/storage/memory"
)

type recordingNotifier struct {
	sent []domain.InvoiceNotice
	err  error
}

func (n *recordingNotifier) SendReminder(_ context.Context, notice domain.InvoiceNotice, _ domain.Customer) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notice)
	return nil
}

func (n *recordingNotifier) SendInvoiceReady(context.Context, domain.InvoiceNotice, string) error {
	return nil
}

type fixture struct {
	invoices *invoice.Service
	svc      *reminder.Service
	store    *memory.Store
	clock    *clock.Fixed
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	invoices := invoice.NewService(invoice.Deps{
		Repo:      store.Invoices(),
		TxManager: store,
		Numerator: store,
		Customers: store,
		Clock:     clk,
	})
	return &fixture{
		invoices: invoices,
		svc:      reminder.NewService(invoices, store, notifier),
		store:    store,
		clock:    clk,
		notifier: notifier,
	}
}

// sentInvoice issues a 100.00 invoice due 2025-06-15.
func (f *fixture) sentInvoice(t *testing.T, customer domain.Customer) *invoice.Invoice {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.AddCustomer(ctx, customer))
	inv, err := f.invoices.Create(ctx, invoice.CreateRequest{
		CustomerID: customer.ID,
		Items: []invoice.ItemInput{
			{Description: "Consulting", Quantity: types.MustMoney("1"), UnitPrice: types.MustMoney("100"), TaxRate: types.Zero()},
		},
		DueDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Send:    true,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) runAt(y int, m time.Month, d int) domain.SweepResult {
	f.clock.Set(time.Date(y, m, d, 8, 0, 0, 0, time.UTC))
	return f.svc.Run(context.Background(), f.clock.Now())
}

func (f *fixture) reload(t *testing.T, invoiceID id.ID) *invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Get(context.Background(), invoiceID)
	require.NoError(t, err)
	return inv
}

func TestRun_WalksTheLadder(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t, domain.Customer{ID: id.New(), Name: "Acme", Email: "ap@acme.test"})

	res := f.runAt(2025, 6, 17)
	assert.Zero(t, res.Processed, "2 days overdue")

	res = f.runAt(2025, 6, 18)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.reload(t, inv.ID).ReminderCount)

	res = f.runAt(2025, 6, 19)
	assert.Zero(t, res.Processed, "second reminder waits for 7 days overdue")

	res = f.runAt(2025, 6, 22)
	assert.Equal(t, 1, res.Processed)
	current := f.reload(t, inv.ID)
	assert.Equal(t, 2, current.ReminderCount)
	assert.Equal(t, invoice.StatusSent, current.Status)

	res = f.runAt(2025, 6, 28)
	assert.Zero(t, res.Processed, "third reminder needs 14 days overdue")

	res = f.runAt(2025, 6, 29)
	assert.Equal(t, 1, res.Processed)
	current = f.reload(t, inv.ID)
	assert.Equal(t, 3, current.ReminderCount)
	assert.Equal(t, invoice.StatusOverdue, current.Status, "third reminder escalates")

	res = f.runAt(2025, 7, 30)
	assert.Zero(t, res.Processed, "ladder exhausted")

	require.Len(t, f.notifier.sent, 3)
	for i, n := range f.notifier.sent {
		assert.Equal(t, i+1, n.ReminderCount)
		assert.Equal(t, inv.InvoiceNumber, n.InvoiceNumber)
	}
}

func TestRun_SkipsCustomersWithoutContact(t *testing.T) {
	f := newFixture(t)
	silent := f.sentInvoice(t, domain.Customer{ID: id.New(), Name: "No Contact Ltd"})
	reachable := f.sentInvoice(t, domain.Customer{ID: id.New(), Name: "Reachable", Phone: "+100200300"})

	res := f.runAt(2025, 6, 20)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Failed)

	assert.Zero(t, f.reload(t, silent.ID).ReminderCount)
	assert.Equal(t, 1, f.reload(t, reachable.ID).ReminderCount)
}

func TestRun_DeliveryFailureIsNotCounted(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t, domain.Customer{ID: id.New(), Name: "Acme", Email: "ap@acme.test"})
	f.notifier.err = errors.New("smtp timeout")

	res := f.runAt(2025, 6, 20)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, f.reload(t, inv.ID).ReminderCount)

	f.notifier.err = nil
	res = f.runAt(2025, 6, 21)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, f.reload(t, inv.ID).ReminderCount)
}

func TestRun_PaidInvoicesGetNoReminders(t *testing.T) {
	f := newFixture(t)
	inv := f.sentInvoice(t, domain.Customer{ID: id.New(), Name: "Acme", Email: "ap@acme.test"})

	_, err := f.invoices.RecordPayment(context.Background(), inv.ID, invoice.PaymentRequest{Amount: types.MustMoney("100")})
	require.NoError(t, err)

	res := f.runAt(2025, 6, 30)
	assert.Zero(t, res.Processed)
	assert.Empty(t, f.notifier.sent)
}
