package invoice_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/schedule"
	"ledgerd/internal/infrastructure/storage/memory"
)

type fakeNotifier struct {
	mu        sync.Mutex
	ready     []domain.InvoiceNotice
	urls      []string
	reminders []domain.InvoiceNotice
}

func (n *fakeNotifier) SendReminder(_ context.Context, notice domain.InvoiceNotice, _ domain.Customer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, notice)
	return nil
}

func (n *fakeNotifier) SendInvoiceReady(_ context.Context, notice domain.InvoiceNotice, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ready = append(n.ready, notice)
	n.urls = append(n.urls, url)
	return nil
}

type fakeLinker struct {
	err error
}

func (l *fakeLinker) CreateLink(_ context.Context, invoiceID id.ID, _ types.Money) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return "https://pay.test/" + invoiceID.String(), nil
}

type fixture struct {
	svc      *invoice.Service
	store    *memory.Store
	clock    *clock.Fixed
	notifier *fakeNotifier
	linker   *fakeLinker
	customer id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	clk := clock.NewFixed(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	notifier := &fakeNotifier{}
	linker := &fakeLinker{}

	customer := id.New()
	require.NoError(t, store.AddCustomer(context.Background(), domain.Customer{
		ID: customer, Name: "Acme Corp", Email: "billing@acme.test",
	}))

	svc := invoice.NewService(invoice.Deps{
		Repo:      store.Invoices(),
		TxManager: store,
		Numerator: store,
		Customers: store,
		Notifier:  notifier,
		Links:     linker,
		Auditor:   store,
		Clock:     clk,
	})
	return &fixture{svc: svc, store: store, clock: clk, notifier: notifier, linker: linker, customer: customer}
}

func money(s string) types.Money { return types.MustMoney(s) }

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.Truef(t, money(want).Equal(got), "want %s, got %s", want, got.String())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// widgetRequest totals 25.00 + 2.00 tax = 27.00.
func (f *fixture) widgetRequest() invoice.CreateRequest {
	return invoice.CreateRequest{
		CustomerID: f.customer,
		Items: []invoice.ItemInput{
			{Description: "Widget", Quantity: money("2"), UnitPrice: money("12.50"), TaxRate: money("8")},
		},
		DueDate: day(2025, 6, 15),
	}
}

func (f *fixture) create(t *testing.T, send bool) *invoice.Invoice {
	t.Helper()
	req := f.widgetRequest()
	req.Send = send
	inv, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return inv
}

func TestCreate_ComputesTotalsAndNumbers(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, false)
	assert.Equal(t, "INV-2025-0001", first.InvoiceNumber)
	assert.Equal(t, invoice.StatusDraft, first.Status)
	assertMoney(t, "25", first.Subtotal)
	assertMoney(t, "2", first.TaxAmount)
	assertMoney(t, "27", first.TotalAmount)
	assertMoney(t, "0", first.PaidAmount)
	require.Len(t, first.Items, 1)
	assert.Equal(t, first.ID, first.Items[0].InvoiceID)

	second := f.create(t, false)
	assert.Equal(t, "INV-2025-0002", second.InvoiceNumber)

	assert.Empty(t, f.notifier.ready, "drafts are not announced")
}

func TestCreate_NumberingContinuesFromExistingInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	imported := &invoice.Invoice{
		Base:          entity.NewBase(f.clock.Now()),
		InvoiceNumber: "INV-2025-0041",
		CustomerID:    f.customer,
		Status:        invoice.StatusPaid,
		IssueDate:     day(2025, 3, 1),
		DueDate:       day(2025, 3, 15),
	}
	require.NoError(t, f.store.Invoices().Create(ctx, imported))

	inv := f.create(t, false)
	assert.Equal(t, "INV-2025-0042", inv.InvoiceNumber)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.widgetRequest()
	req.DueDate = day(2025, 5, 31)
	_, err := f.svc.Create(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "due date in the past")

	req = f.widgetRequest()
	req.Items = nil
	_, err = f.svc.Create(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	req = f.widgetRequest()
	req.IsRecurring = true
	_, err = f.svc.Create(ctx, req)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "recurring needs an interval")

	req = f.widgetRequest()
	req.CustomerID = id.New()
	_, err = f.svc.Create(ctx, req)
	assert.True(t, apperror.IsNotFound(err))

	list, err := f.svc.List(ctx, invoice.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)
}

func TestCreate_SendAnnouncesWithPaymentLink(t *testing.T) {
	f := newFixture(t)

	inv := f.create(t, true)
	assert.Equal(t, invoice.StatusSent, inv.Status)

	require.Len(t, f.notifier.ready, 1)
	assert.Equal(t, inv.InvoiceNumber, f.notifier.ready[0].InvoiceNumber)
	assert.Equal(t, "https://pay.test/"+inv.ID.String(), f.notifier.urls[0])

	stored, err := f.svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentURL)
	assert.Equal(t, f.notifier.urls[0], *stored.PaymentURL)
}

func TestCreate_PaymentLinkFailureStillCreates(t *testing.T) {
	f := newFixture(t)
	f.linker.err = errors.New("gateway unavailable")

	inv := f.create(t, true)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	require.Len(t, f.notifier.ready, 1)
	assert.Empty(t, f.notifier.urls[0])
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	inv, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("15"), Method: invoice.MethodCard})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	assertMoney(t, "15", inv.PaidAmount)
	assertMoney(t, "12", inv.Balance())
	assert.Nil(t, inv.PaidDate)

	inv, err = f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("12"), Method: invoice.MethodCash})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assertMoney(t, "27", inv.PaidAmount)
	require.NotNil(t, inv.PaidDate)

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payments, 2)
	sum := types.Zero()
	for _, p := range stored.Payments {
		sum = sum.Add(p.Amount)
	}
	assertMoney(t, "27", sum)

	_, err = f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("0.01")})
	assert.True(t, apperror.HasCode(err, apperror.CodeOverpayment), "paid invoices have no balance left")
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	_, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("30")})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeOverpayment))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, "27", appErr.Details["remaining"])

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, stored.Status)
	assert.Empty(t, stored.Payments)
	assertMoney(t, "0", stored.PaidAmount)
}

func TestRecordPayment_DraftPartialSendsInvoice(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, false)

	inv, err := f.svc.RecordPayment(context.Background(), inv.ID, invoice.PaymentRequest{Amount: money("10")})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, inv.Status)
	assert.Equal(t, invoice.MethodOther, inv.Payments[0].Method)
}

func TestRecordPayment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	_, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("0")})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("-5")})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("5"), Method: "CHEQUE"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = f.svc.RecordPayment(ctx, id.New(), invoice.PaymentRequest{Amount: money("5")})
	assert.True(t, apperror.IsNotFound(err))
}

func TestUpdate_RecomputesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, false)

	discount := money("5")
	updated, err := f.svc.Update(ctx, inv.ID, invoice.UpdateRequest{
		Version: inv.Version,
		Items: []invoice.ItemInput{
			{Description: "Widget", Quantity: money("4"), UnitPrice: money("12.50"), TaxRate: money("0")},
		},
		DiscountAmount: &discount,
	})
	require.NoError(t, err)
	assertMoney(t, "50", updated.Subtotal)
	assertMoney(t, "45", updated.TotalAmount)
	assert.Equal(t, inv.Version+1, updated.Version)

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assertMoney(t, "4", stored.Items[0].Quantity)

	_, err = f.svc.Update(ctx, inv.ID, invoice.UpdateRequest{Version: inv.Version, Notes: ptr("stale")})
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestUpdate_RejectedOncePaymentsExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	_, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("1")})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, inv.ID, invoice.UpdateRequest{Notes: ptr("late edit")})
	assert.True(t, apperror.HasCode(err, apperror.CodeImmutableState))

	err = f.svc.Delete(ctx, inv.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeImmutableState))
}

func TestUpdate_RecurringSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, false)

	monthly := schedule.Monthly
	updated, err := f.svc.Update(ctx, inv.ID, invoice.UpdateRequest{IsRecurring: ptr(true), RecurringInterval: &monthly})
	require.NoError(t, err)
	require.NotNil(t, updated.NextInvoiceDate)
	assert.Equal(t, schedule.Advance(inv.IssueDate, schedule.Monthly), *updated.NextInvoiceDate)

	updated, err = f.svc.Update(ctx, inv.ID, invoice.UpdateRequest{IsRecurring: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsRecurring)
	assert.Nil(t, updated.NextInvoiceDate)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, false)

	require.NoError(t, f.svc.Delete(ctx, inv.ID))
	_, err := f.svc.Get(ctx, inv.ID)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMarkSentAndViewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, false)

	sent, err := f.svc.MarkSent(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSent, sent.Status)
	assert.Len(t, f.notifier.ready, 1)

	viewed, err := f.svc.MarkViewed(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusViewed, viewed.Status)

	again, err := f.svc.MarkSent(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusViewed, again.Status, "resending keeps VIEWED")
	assert.Len(t, f.notifier.ready, 1, "only the first send announces")

	_, err = f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("27")})
	require.NoError(t, err)
	_, err = f.svc.MarkSent(ctx, inv.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodeImmutableState))
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sent := f.create(t, true)
	draft := f.create(t, false)
	paid := f.create(t, true)
	_, err := f.svc.RecordPayment(ctx, paid.ID, invoice.PaymentRequest{Amount: money("27")})
	require.NoError(t, err)

	res := f.svc.SweepOverdue(ctx, day(2025, 6, 15))
	assert.Zero(t, res.Processed, "due today is not overdue yet")

	f.clock.Set(day(2025, 6, 16))
	res = f.svc.SweepOverdue(ctx, f.clock.Now())
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)

	for invoiceID, want := range map[id.ID]invoice.Status{
		sent.ID:  invoice.StatusOverdue,
		draft.ID: invoice.StatusDraft,
		paid.ID:  invoice.StatusPaid,
	} {
		got, err := f.svc.Get(ctx, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	res = f.svc.SweepOverdue(ctx, f.clock.Now())
	assert.Zero(t, res.Processed, "already overdue")

	overdue, err := f.svc.GetOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, sent.ID, overdue[0].ID)
	assert.Equal(t, 1, overdue[0].DaysOverdue(f.clock.Now()))

	inv, err := f.svc.RecordPayment(ctx, sent.ID, invoice.PaymentRequest{Amount: money("27")})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status, "overdue invoices can still be settled")
}

func TestRecordReminder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	updated, err := f.svc.RecordReminder(ctx, inv.ID, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReminderCount)
	assert.Equal(t, invoice.StatusSent, updated.Status)
	require.NotNil(t, updated.LastReminderDate)

	_, err = f.svc.RecordReminder(ctx, inv.ID, 0, 3)
	assert.True(t, apperror.IsConcurrentModification(err))

	_, err = f.svc.RecordReminder(ctx, inv.ID, 1, 3)
	require.NoError(t, err)
	updated, err = f.svc.RecordReminder(ctx, inv.ID, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.ReminderCount)
	assert.Equal(t, invoice.StatusOverdue, updated.Status)
}

func TestRunRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(day(2025, 1, 31))

	monthly := schedule.Monthly
	req := f.widgetRequest()
	req.DueDate = day(2025, 2, 14)
	req.IsRecurring = true
	req.RecurringInterval = &monthly
	req.Send = true
	tmpl, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, tmpl.NextInvoiceDate)
	assert.Equal(t, day(2025, 2, 28), *tmpl.NextInvoiceDate)

	res := f.svc.RunRecurring(ctx, day(2025, 2, 27))
	assert.Zero(t, res.Processed)

	res = f.svc.RunRecurring(ctx, day(2025, 2, 28))
	require.Equal(t, 1, res.Processed)
	require.NotNil(t, res.Details[0].ResultID)

	issued, err := f.svc.Get(ctx, *res.Details[0].ResultID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-0002", issued.InvoiceNumber)
	assert.Equal(t, invoice.StatusSent, issued.Status)
	assert.Equal(t, day(2025, 2, 28), issued.IssueDate)
	assert.Equal(t, day(2025, 3, 14), issued.DueDate, "payment terms are carried over")
	assertMoney(t, "27", issued.TotalAmount)
	assert.False(t, issued.IsRecurring)

	tmpl, err = f.svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, day(2025, 3, 28), *tmpl.NextInvoiceDate)

	res = f.svc.RunRecurring(ctx, day(2025, 2, 28))
	assert.Zero(t, res.Processed, "a second run on the same day issues nothing")
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)
	_, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("27")})
	require.NoError(t, err)

	var actions []domain.AuditAction
	for _, rec := range f.store.AuditLog() {
		if rec.EntityID == inv.ID {
			actions = append(actions, rec.Action)
		}
	}
	assert.Equal(t, []domain.AuditAction{domain.AuditActionCreate, domain.AuditActionPayment}, actions)
}

func ptr[T any](v T) *T { return &v }

func TestZeroTotalInvoiceIsPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.widgetRequest()
	req.DiscountAmount = money("27")
	inv, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assertMoney(t, "0", inv.TotalAmount)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	require.NotNil(t, inv.PaidDate)
	assert.Empty(t, f.notifier.ready, "paid invoices are not announced")

	open := f.create(t, true)
	discount := money("27")
	updated, err := f.svc.Update(ctx, open.ID, invoice.UpdateRequest{Version: open.Version, DiscountAmount: &discount})
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, updated.Status)
	require.NotNil(t, updated.PaidDate)

	overdue, err := f.svc.GetOverdue(ctx, day(2025, 7, 1))
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestRecordPayment_ConcurrentPaymentsNeverExceedTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, true)

	const workers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		toPaid   int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RecordPayment(ctx, inv.ID, invoice.PaymentRequest{Amount: money("9"), Method: invoice.MethodCard})
			if err != nil {
				assert.True(t, apperror.HasCode(err, apperror.CodeOverpayment), "got %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			accepted++
			if res.Status == invoice.StatusPaid {
				toPaid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted, "27 covers exactly three payments of 9")
	assert.Equal(t, 1, toPaid, "one payment settles the invoice")

	stored, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, stored.Status)
	require.Len(t, stored.Payments, 3)
	sum := types.Zero()
	for _, p := range stored.Payments {
		sum = sum.Add(p.Amount)
	}
	assertMoney(t, "27", sum)
	assertMoney(t, "27", stored.PaidAmount)
}
