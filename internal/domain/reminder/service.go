// Package reminder escalates overdue invoices through a fixed reminder ladder.
package reminder

import (
	"context"
	"errors"
	"time"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/invoice"
	"ledgerd/pkg/logger"
)

// Step is one rung of the ladder: the reminder is due once the invoice is at
// least DaysOverdue late, PriorCount reminders were sent, and the last one is
// at least DaysSinceLast old.
type Step struct {
	PriorCount    int
	DaysOverdue   int
	DaysSinceLast int
}

// Ladder is the default escalation: 3, 7 and 14 days overdue.
var Ladder = []Step{
	{PriorCount: 0, DaysOverdue: 3, DaysSinceLast: 0},
	{PriorCount: 1, DaysOverdue: 7, DaysSinceLast: 3},
	{PriorCount: 2, DaysOverdue: 14, DaysSinceLast: 7},
}

// EscalateAt is the reminder count that forces OVERDUE.
const EscalateAt = 3

// Due reports whether inv needs its next reminder at now.
func Due(inv *invoice.Invoice, now time.Time) bool {
	if inv.ReminderCount >= len(Ladder) {
		return false
	}
	if !inv.IsPastDue(now) || !inv.Status.IsIssued() {
		return false
	}
	step := Ladder[inv.ReminderCount]
	if inv.DaysOverdue(now) < step.DaysOverdue {
		return false
	}
	if step.DaysSinceLast > 0 {
		if inv.LastReminderDate == nil {
			return true
		}
		return clock.DaysBetween(*inv.LastReminderDate, now) >= step.DaysSinceLast
	}
	return true
}

// Invoices is the slice of the invoice lifecycle the scheduler needs.
type Invoices interface {
	GetOverdue(ctx context.Context, now time.Time) ([]invoice.Invoice, error)
	RecordReminder(ctx context.Context, invoiceID id.ID, expectedCount, escalateAt int) (*invoice.Invoice, error)
}

// Service sends due reminders.
type Service struct {
	invoices  Invoices
	customers domain.CustomerDirectory
	notifier  domain.Notifier
}

// NewService creates a new reminder scheduler.
func NewService(invoices Invoices, customers domain.CustomerDirectory, notifier domain.Notifier) *Service {
	return &Service{
		invoices:  invoices,
		customers: customers,
		notifier:  notifier,
	}
}

var errNoContact = errors.New("customer has no contact details")

// Run sends every reminder due at now. Missing contacts and delivery failures
// are logged and skipped; a reminder is only counted once it was delivered.
func (s *Service) Run(ctx context.Context, now time.Time) domain.SweepResult {
	var result domain.SweepResult

	candidates, err := s.invoices.GetOverdue(ctx, now)
	if err != nil {
		logger.Error(ctx, "reminder run: list overdue failed", "error", err)
		return result
	}

	for i := range candidates {
		inv := &candidates[i]
		if !Due(inv, now) {
			continue
		}
		if err := s.remind(ctx, inv); err != nil {
			logger.Warn(ctx, "reminder skipped",
				"invoice_id", inv.ID,
				"number", inv.InvoiceNumber,
				"reminder", inv.ReminderCount+1,
				"error", err,
			)
			result.Fail(inv.ID, inv.InvoiceNumber, err)
			continue
		}
		result.Succeed(inv.ID, inv.InvoiceNumber, nil)
	}

	logger.Info(ctx, "reminder run finished",
		"sent", result.Processed,
		"failed", result.Failed,
	)
	return result
}

func (s *Service) remind(ctx context.Context, inv *invoice.Invoice) error {
	customer, err := s.customers.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return err
	}
	if !customer.HasContact() {
		return errNoContact
	}

	notice := inv.Notice()
	notice.ReminderCount = inv.ReminderCount + 1
	if err := s.notifier.SendReminder(ctx, notice, *customer); err != nil {
		return err
	}

	updated, err := s.invoices.RecordReminder(ctx, inv.ID, inv.ReminderCount, EscalateAt)
	if err != nil {
		return err
	}
	*inv = *updated
	return nil
}
