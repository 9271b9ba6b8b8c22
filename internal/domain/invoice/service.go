package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/numerator"
	"ledgerd/internal/core/tx"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/schedule"
	"ledgerd/pkg/logger"
)

const entityName = "invoice"

// Service drives the invoice lifecycle. RecordPayment is the only path that
// changes an invoice balance.
type Service struct {
	repo      Repository
	txManager tx.Manager
	numerator numerator.Generator
	customers domain.CustomerDirectory
	notifier  domain.Notifier
	links     domain.PaymentLinker
	auditor   domain.Auditor
	clock     clock.Clock
}

// Deps groups the collaborators of Service. Notifier, Links and Auditor are optional.
type Deps struct {
	Repo      Repository
	TxManager tx.Manager
	Numerator numerator.Generator
	Customers domain.CustomerDirectory
	Notifier  domain.Notifier
	Links     domain.PaymentLinker
	Auditor   domain.Auditor
	Clock     clock.Clock
}

// NewService creates a new invoice service.
func NewService(d Deps) *Service {
	return &Service{
		repo:      d.Repo,
		txManager: d.TxManager,
		numerator: d.Numerator,
		customers: d.Customers,
		notifier:  d.Notifier,
		links:     d.Links,
		auditor:   d.Auditor,
		clock:     d.Clock,
	}
}

// --- Commands ---

// Create validates and issues a new invoice, numbered in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Invoice, error) {
	now := s.clock.Now()
	if clock.Date(req.DueDate).Before(clock.Date(now)) {
		return nil, apperror.NewFieldValidation("dueDate", "due date must not be in the past")
	}
	if err := validateRecurring(req.IsRecurring, req.RecurringInterval); err != nil {
		return nil, err
	}

	issueDate := now
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}
	if req.DueDate.Before(clock.Date(issueDate)) {
		return nil, apperror.NewFieldValidation("dueDate", "due date must not be before the issue date")
	}

	status := StatusDraft
	if req.Send {
		status = StatusSent
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		created, err := s.issue(ctx, IssueRequest{
			CustomerID: req.CustomerID,
			Items:      req.Items,
			IssueDate:  issueDate,
			DueDate:    req.DueDate,
			Notes:      req.Notes,
		}, req.DiscountAmount, status, func(inv *Invoice) {
			inv.IsRecurring = req.IsRecurring
			if req.IsRecurring {
				interval := *req.RecurringInterval
				next := schedule.Advance(issueDate, interval)
				inv.RecurringInterval = &interval
				inv.NextInvoiceDate = &next
			}
		})
		inv = created
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice created",
		"invoice_id", inv.ID,
		"number", inv.InvoiceNumber,
		"total", inv.TotalAmount.String(),
		"status", inv.Status,
	)
	if inv.Status == StatusSent {
		s.Announce(ctx, inv)
	}
	return inv, nil
}

// Issue creates a SENT invoice on behalf of the system (subscription billing,
// recurring invoices). It joins the caller's transaction; the caller runs
// Announce after commit.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		created, err := s.issue(ctx, req, types.Zero(), StatusSent, nil)
		inv = created
		return err
	})
	return inv, err
}

func (s *Service) issue(ctx context.Context, req IssueRequest, discount types.Money, status Status, decorate func(*Invoice)) (*Invoice, error) {
	if id.IsNil(req.CustomerID) {
		return nil, apperror.NewFieldValidation("customerId", "customer is required")
	}
	items, totals, err := ComputeTotals(req.Items, discount)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	number, err := s.numerator.Next(ctx, NumberConfig, req.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("allocate invoice number: %w", err)
	}

	inv := &Invoice{
		Base:          entity.NewBase(s.clock.Now()),
		InvoiceNumber: number,
		CustomerID:    req.CustomerID,
		PaidAmount:    types.Zero(),
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		Status:        status,
		Notes:         req.Notes,
	}
	totals.apply(inv, items)
	if decorate != nil {
		decorate(inv)
	}
	if err := settleZeroTotal(inv, inv.CreatedAt); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.audit(ctx, inv.ID, domain.AuditActionCreate, map[string]any{
		"number": inv.InvoiceNumber,
		"total":  inv.TotalAmount.String(),
		"status": inv.Status,
	})
	return inv, nil
}

// settleZeroTotal marks an invoice with nothing to collect as paid.
func settleZeroTotal(inv *Invoice, now time.Time) error {
	if !inv.TotalAmount.IsZero() || inv.Status == StatusPaid {
		return nil
	}
	next, err := Transition(inv.Status, EventFullPayment)
	if err != nil {
		return err
	}
	inv.Status = next
	inv.PaidDate = &now
	return nil
}

// Announce creates a payment link and tells the customer the invoice is ready.
// Runs after commit; failures are logged and never surface to the caller.
func (s *Service) Announce(ctx context.Context, inv *Invoice) {
	url := ""
	if s.links != nil {
		link, err := s.links.CreateLink(ctx, inv.ID, inv.Balance())
		if err != nil {
			logger.Warn(ctx, "payment link creation failed", "invoice_id", inv.ID, "error", err)
		} else if link != "" {
			url = link
			inv.PaymentURL = &link
			if err := s.repo.SetPaymentURL(ctx, inv.ID, link); err != nil {
				logger.Warn(ctx, "payment link not stored", "invoice_id", inv.ID, "error", err)
			}
		}
	}

	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendInvoiceReady(ctx, inv.Notice(), url); err != nil {
		logger.Warn(ctx, "invoice ready notification failed", "invoice_id", inv.ID, "error", err)
	}
}

// Update edits an invoice that is unpaid and has no payments.
func (s *Service) Update(ctx context.Context, invoiceID id.ID, req UpdateRequest) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if req.Version != 0 && req.Version != current.Version {
			return apperror.NewConcurrentModification(entityName, invoiceID)
		}
		if current.Status == StatusPaid {
			return apperror.NewImmutableState(entityName, invoiceID, "paid invoices cannot be edited")
		}
		if current.HasPayments() {
			return apperror.NewImmutableState(entityName, invoiceID, "invoices with payments cannot be edited")
		}

		now := s.clock.Now()
		if req.DueDate != nil {
			if clock.Date(*req.DueDate).Before(clock.Date(now)) {
				return apperror.NewFieldValidation("dueDate", "due date must not be in the past")
			}
			current.DueDate = *req.DueDate
		}
		if req.Notes != nil {
			current.Notes = *req.Notes
		}
		if err := applyRecurring(current, req); err != nil {
			return err
		}

		if req.Items != nil || req.DiscountAmount != nil {
			if !current.Status.IsEditable() {
				return apperror.NewImmutableState(entityName, invoiceID, "lines can only change while the invoice is unpaid")
			}
			discount := current.DiscountAmount
			if req.DiscountAmount != nil {
				discount = *req.DiscountAmount
			}
			inputs := req.Items
			if inputs == nil {
				inputs = inputsOf(current.Items)
			}
			items, totals, err := ComputeTotals(inputs, discount)
			if err != nil {
				return err
			}
			totals.apply(current, items)
			if err := settleZeroTotal(current, now); err != nil {
				return err
			}
			if err := s.repo.ReplaceItems(ctx, current.ID, current.Items); err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
		}

		current.Touch(now)
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		s.audit(ctx, current.ID, domain.AuditActionUpdate, map[string]any{
			"total":   current.TotalAmount.String(),
			"dueDate": current.DueDate,
			"version": current.Version,
		})
		inv = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// RecordPayment appends a payment and moves the invoice through the state machine.
func (s *Service) RecordPayment(ctx context.Context, invoiceID id.ID, req PaymentRequest) (*Invoice, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.NewFieldValidation("amount", "payment amount must be positive")
	}
	if req.Method == "" {
		req.Method = MethodOther
	}
	if !req.Method.IsValid() {
		return nil, apperror.NewFieldValidation("method", "unknown payment method").WithDetail("value", string(req.Method))
	}

	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		remaining := current.Balance()
		if req.Amount.GreaterThan(remaining) {
			return apperror.NewOverpayment(invoiceID.String(), req.Amount, remaining)
		}

		now := s.clock.Now()
		paymentDate := now
		if req.PaymentDate != nil {
			paymentDate = *req.PaymentDate
		}
		payment := Payment{
			ID:          id.New(),
			InvoiceID:   current.ID,
			Amount:      req.Amount,
			Method:      req.Method,
			PaymentDate: paymentDate,
			CreatedAt:   now,
		}
		if ref := strings.TrimSpace(req.Reference); ref != "" {
			payment.Reference = &ref
		}

		current.PaidAmount = current.PaidAmount.Add(req.Amount)
		event := EventPartialPayment
		if !current.PaidAmount.LessThan(current.TotalAmount) {
			event = EventFullPayment
		}
		previous := current.Status
		next, err := Transition(current.Status, event)
		if err != nil {
			return err
		}
		current.Status = next
		if next == StatusPaid {
			current.PaidDate = &now
		}

		if err := s.repo.AddPayment(ctx, &payment); err != nil {
			return fmt.Errorf("add payment: %w", err)
		}
		current.Payments = append(current.Payments, payment)
		current.Touch(now)
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		s.audit(ctx, current.ID, domain.AuditActionPayment, map[string]any{
			"amount":     req.Amount.String(),
			"method":     req.Method,
			"paidAmount": current.PaidAmount.String(),
			"status":     map[string]any{"old": previous, "new": next},
		})
		inv = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment recorded",
		"invoice_id", inv.ID,
		"amount", req.Amount.String(),
		"paid", inv.PaidAmount.String(),
		"status", inv.Status,
	)
	return inv, nil
}

// Delete removes an invoice that has never been paid against.
func (s *Service) Delete(ctx context.Context, invoiceID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if current.Status == StatusPaid {
			return apperror.NewImmutableState(entityName, invoiceID, "paid invoices cannot be deleted")
		}
		if current.HasPayments() {
			return apperror.NewImmutableState(entityName, invoiceID, "invoices with payments cannot be deleted")
		}
		if err := s.repo.Delete(ctx, invoiceID); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		s.audit(ctx, invoiceID, domain.AuditActionDelete, map[string]any{"number": current.InvoiceNumber})
		return nil
	})
}

// MarkSent applies SEND and announces the invoice when it leaves DRAFT.
func (s *Service) MarkSent(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, previous, err := s.applyEvent(ctx, invoiceID, EventSend)
	if err != nil {
		return nil, err
	}
	if previous == StatusDraft {
		s.Announce(ctx, inv)
	}
	return inv, nil
}

// MarkViewed applies VIEW when the customer opens the invoice.
func (s *Service) MarkViewed(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	inv, _, err := s.applyEvent(ctx, invoiceID, EventView)
	return inv, err
}

// applyEvent runs a metadata-only transition in its own transaction.
func (s *Service) applyEvent(ctx context.Context, invoiceID id.ID, ev Event) (*Invoice, Status, error) {
	var (
		inv      *Invoice
		previous Status
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		previous = current.Status
		next, err := Transition(current.Status, ev)
		if err != nil {
			return err
		}
		inv = current
		if next == current.Status {
			return nil
		}
		current.Status = next
		current.Touch(s.clock.Now())
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		s.audit(ctx, current.ID, domain.AuditActionStatusChange, map[string]any{
			"event":  ev,
			"status": map[string]any{"old": previous, "new": next},
		})
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return inv, previous, nil
}

// RecordReminder counts a delivered reminder. expectedCount guards against a
// concurrent sweep having already counted it. Reaching escalateAt reminders
// forces the invoice OVERDUE.
func (s *Service) RecordReminder(ctx context.Context, invoiceID id.ID, expectedCount, escalateAt int) (*Invoice, error) {
	var inv *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if current.ReminderCount != expectedCount {
			return apperror.NewConcurrentModification(entityName, invoiceID).
				WithDetail("reminderCount", current.ReminderCount)
		}
		if current.Status == StatusPaid {
			return apperror.NewImmutableState(entityName, invoiceID, "paid invoices do not take reminders")
		}

		now := s.clock.Now()
		current.ReminderCount++
		current.LastReminderDate = &now
		if current.ReminderCount >= escalateAt {
			next, err := Transition(current.Status, EventReminderEscalation)
			if err != nil {
				return err
			}
			if next != current.Status {
				s.audit(ctx, current.ID, domain.AuditActionStatusChange, map[string]any{
					"event":  EventReminderEscalation,
					"status": map[string]any{"old": current.Status, "new": next},
				})
			}
			current.Status = next
		}
		current.Touch(now)
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		inv = current
		return nil
	})
	return inv, err
}

// --- Sweeps ---

// SweepOverdue applies DUE_DATE_PASSED to every issued invoice past due at now.
// Each invoice is handled in its own transaction; failures are recorded and skipped.
func (s *Service) SweepOverdue(ctx context.Context, now time.Time) domain.SweepResult {
	var result domain.SweepResult

	candidates, err := s.repo.ListOverdue(ctx, now, 0)
	if err != nil {
		logger.Error(ctx, "overdue sweep: list candidates failed", "error", err)
		return result
	}

	for _, c := range candidates {
		if c.Status == StatusOverdue {
			continue
		}
		changed, err := s.markOverdue(ctx, c.ID, now)
		switch {
		case err != nil:
			logger.Warn(ctx, "overdue sweep: invoice failed", "invoice_id", c.ID, "error", err)
			result.Fail(c.ID, c.InvoiceNumber, err)
		case !changed:
			result.Skip(c.ID, c.InvoiceNumber, "no longer past due")
		default:
			result.Succeed(c.ID, c.InvoiceNumber, nil)
		}
	}

	logger.Info(ctx, "overdue sweep finished",
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result
}

func (s *Service) markOverdue(ctx context.Context, invoiceID id.ID, now time.Time) (bool, error) {
	changed := false
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if !current.IsPastDue(now) || !current.Status.IsIssued() {
			return nil
		}
		next, err := Transition(current.Status, EventDueDatePassed)
		if err != nil || next == current.Status {
			return err
		}
		previous := current.Status
		current.Status = next
		current.Touch(s.clock.Now())
		if err := s.repo.Update(ctx, current); err != nil {
			return err
		}
		s.audit(ctx, current.ID, domain.AuditActionStatusChange, map[string]any{
			"event":  EventDueDatePassed,
			"status": map[string]any{"old": previous, "new": next},
		})
		changed = true
		return nil
	})
	return changed, err
}

// RunRecurring issues the next invoice for every recurring template due at now
// and advances the template's next invoice date.
func (s *Service) RunRecurring(ctx context.Context, now time.Time) domain.SweepResult {
	var result domain.SweepResult

	templates, err := s.repo.ListRecurringDue(ctx, now, 0)
	if err != nil {
		logger.Error(ctx, "recurring run: list templates failed", "error", err)
		return result
	}

	for _, t := range templates {
		issued, err := s.issueRecurring(ctx, t.ID, now)
		switch {
		case err != nil:
			logger.Warn(ctx, "recurring run: template failed", "invoice_id", t.ID, "error", err)
			result.Fail(t.ID, t.InvoiceNumber, err)
		case issued == nil:
			result.Skip(t.ID, t.InvoiceNumber, "not due")
		default:
			result.Succeed(t.ID, t.InvoiceNumber, &issued.ID)
			s.Announce(ctx, issued)
		}
	}

	logger.Info(ctx, "recurring run finished",
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result
}

func (s *Service) issueRecurring(ctx context.Context, templateID id.ID, now time.Time) (*Invoice, error) {
	var issued *Invoice
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		tmpl, err := s.repo.GetForUpdate(ctx, templateID)
		if err != nil {
			return err
		}
		if !tmpl.IsRecurring || tmpl.RecurringInterval == nil || tmpl.NextInvoiceDate == nil ||
			tmpl.NextInvoiceDate.After(now) {
			return nil
		}

		issueDate := *tmpl.NextInvoiceDate
		terms := clock.DaysBetween(tmpl.IssueDate, tmpl.DueDate)
		inv, err := s.issue(ctx, IssueRequest{
			CustomerID: tmpl.CustomerID,
			Items:      inputsOf(tmpl.Items),
			IssueDate:  issueDate,
			DueDate:    clock.Date(issueDate).AddDate(0, 0, terms),
			Notes:      tmpl.Notes,
		}, tmpl.DiscountAmount, StatusSent, nil)
		if err != nil {
			return err
		}

		next := schedule.Advance(issueDate, *tmpl.RecurringInterval)
		tmpl.NextInvoiceDate = &next
		tmpl.Touch(s.clock.Now())
		if err := s.repo.Update(ctx, tmpl); err != nil {
			return err
		}
		issued = inv
		return nil
	})
	return issued, err
}

// --- Queries ---

// Get returns an invoice with items and payments.
func (s *Service) Get(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	return s.repo.Get(ctx, invoiceID)
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Invoice], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[Invoice]{}, fmt.Errorf("list invoices: %w", err)
	}
	return domain.ListResult[Invoice]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// GetOverdue returns issued, unpaid invoices past due at now.
func (s *Service) GetOverdue(ctx context.Context, now time.Time) ([]Invoice, error) {
	invoices, err := s.repo.ListOverdue(ctx, now, 0)
	if err != nil {
		return nil, fmt.Errorf("list overdue invoices: %w", err)
	}
	return invoices, nil
}

// --- helpers ---

func (s *Service) audit(ctx context.Context, invoiceID id.ID, action domain.AuditAction, changes map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogChange(ctx, entityName, invoiceID, action, changes); err != nil {
		logger.Warn(ctx, "audit write failed", "invoice_id", invoiceID, "action", action, "error", err)
	}
}

func validateRecurring(isRecurring bool, interval *schedule.Interval) error {
	if !isRecurring {
		return nil
	}
	if interval == nil {
		return apperror.NewFieldValidation("recurringInterval", "recurring invoices need an interval")
	}
	if !interval.IsValid() {
		return apperror.NewFieldValidation("recurringInterval", "unknown recurring interval").
			WithDetail("value", string(*interval))
	}
	return nil
}

func applyRecurring(inv *Invoice, req UpdateRequest) error {
	if req.IsRecurring == nil && req.RecurringInterval == nil {
		return nil
	}
	isRecurring := inv.IsRecurring
	if req.IsRecurring != nil {
		isRecurring = *req.IsRecurring
	}
	interval := inv.RecurringInterval
	if req.RecurringInterval != nil {
		interval = req.RecurringInterval
	}
	if err := validateRecurring(isRecurring, interval); err != nil {
		return err
	}

	if !isRecurring {
		inv.IsRecurring = false
		inv.RecurringInterval = nil
		inv.NextInvoiceDate = nil
		return nil
	}
	changed := inv.RecurringInterval == nil || *inv.RecurringInterval != *interval
	inv.IsRecurring = true
	inv.RecurringInterval = interval
	if changed || inv.NextInvoiceDate == nil {
		next := schedule.Advance(inv.IssueDate, *interval)
		inv.NextInvoiceDate = &next
	}
	return nil
}

func inputsOf(items []Item) []ItemInput {
	inputs := make([]ItemInput, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, ItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		})
	}
	return inputs
}
