package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/tx"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/schedule"
	"ledgerd/pkg/logger"
)

var tracer = otel.Tracer("ledgerd/subscription")

const (
	entityName = "subscription"

	// PaymentTermDays is the gap between a billing date and the invoice due date.
	PaymentTermDays = 7

	// maxCatchUp bounds how many missed periods one run bills per subscription.
	maxCatchUp = 24
)

// Advance moves a billing date forward by one interval, clamping to month end.
func Advance(date time.Time, interval schedule.Interval) time.Time {
	return schedule.Advance(date, interval)
}

// InvoiceIssuer is the part of the invoice lifecycle the billing engine drives.
type InvoiceIssuer interface {
	Issue(ctx context.Context, req invoice.IssueRequest) (*invoice.Invoice, error)
	Announce(ctx context.Context, inv *invoice.Invoice)
}

// Service is the subscription billing engine.
type Service struct {
	repo      Repository
	txManager tx.Manager
	invoices  InvoiceIssuer
	customers domain.CustomerDirectory
	auditor   domain.Auditor
	clock     clock.Clock
}

// NewService creates a new subscription service. auditor may be nil.
func NewService(
	repo Repository,
	txManager tx.Manager,
	invoices InvoiceIssuer,
	customers domain.CustomerDirectory,
	auditor domain.Auditor,
	clk clock.Clock,
) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		invoices:  invoices,
		customers: customers,
		auditor:   auditor,
		clock:     clk,
	}
}

// --- Commands ---

// Create starts a subscription. The first period is billed on the start date,
// or on the trial end date when a trial is given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Subscription, error) {
	now := s.clock.Now()
	if id.IsNil(req.CustomerID) {
		return nil, apperror.NewFieldValidation("customerId", "customer is required")
	}
	plan := strings.TrimSpace(req.PlanName)
	if plan == "" {
		return nil, apperror.NewFieldValidation("planName", "plan name is required")
	}
	if !req.Amount.IsPositive() {
		return nil, apperror.NewFieldValidation("amount", "amount must be positive")
	}
	if !req.Interval.IsValid() {
		return nil, apperror.NewFieldValidation("interval", "interval must be MONTHLY, QUARTERLY or YEARLY").
			WithDetail("value", string(req.Interval))
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, apperror.NewFieldValidation("currency", "currency must be a 3-letter code")
	}

	start := clock.Date(now)
	if req.StartDate != nil {
		start = *req.StartDate
	}
	next := start
	if req.TrialEndDate != nil {
		if req.TrialEndDate.Before(start) {
			return nil, apperror.NewFieldValidation("trialEndDate", "trial must end after the start date")
		}
		next = *req.TrialEndDate
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, apperror.NewFieldValidation("endDate", "end date must not be before the start date")
	}

	if _, err := s.customers.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, err
	}

	sub := &Subscription{
		Base:            entity.NewBase(now),
		CustomerID:      req.CustomerID,
		PlanName:        plan,
		Amount:          req.Amount,
		Currency:        currency,
		Interval:        req.Interval,
		StartDate:       start,
		NextBillingDate: next,
		TrialEndDate:    req.TrialEndDate,
		EndDate:         req.EndDate,
		Status:          StatusActive,
	}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, sub); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		s.audit(ctx, sub.ID, domain.AuditActionCreate, map[string]any{
			"plan":     sub.PlanName,
			"amount":   sub.Amount.String(),
			"interval": sub.Interval,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "subscription created",
		"subscription_id", sub.ID,
		"customer_id", sub.CustomerID,
		"next_billing", sub.NextBillingDate,
	)
	return sub, nil
}

// Update changes plan name, amount, interval or end date. An interval change
// recomputes the next billing date from the last billing date.
func (s *Service) Update(ctx context.Context, subscriptionID id.ID, req UpdateRequest) (*Subscription, error) {
	var sub *Subscription
	err := s.mutate(ctx, subscriptionID, req.Version, func(ctx context.Context, current *Subscription) error {
		if current.Status.IsFinal() {
			return apperror.NewImmutableState(entityName, subscriptionID, "cancelled or expired subscriptions cannot change")
		}
		changes := map[string]any{}
		if req.PlanName != nil {
			plan := strings.TrimSpace(*req.PlanName)
			if plan == "" {
				return apperror.NewFieldValidation("planName", "plan name is required")
			}
			current.PlanName = plan
			changes["plan"] = plan
		}
		if req.Amount != nil {
			if !req.Amount.IsPositive() {
				return apperror.NewFieldValidation("amount", "amount must be positive")
			}
			current.Amount = *req.Amount
			changes["amount"] = req.Amount.String()
		}
		if req.Interval != nil && *req.Interval != current.Interval {
			if !req.Interval.IsValid() {
				return apperror.NewFieldValidation("interval", "interval must be MONTHLY, QUARTERLY or YEARLY")
			}
			current.Interval = *req.Interval
			if current.LastBillingDate != nil {
				current.NextBillingDate = Advance(*current.LastBillingDate, current.Interval)
			}
			changes["interval"] = current.Interval
			changes["nextBillingDate"] = current.NextBillingDate
		}
		if req.EndDate != nil {
			if req.EndDate.Before(current.StartDate) {
				return apperror.NewFieldValidation("endDate", "end date must not be before the start date")
			}
			end := *req.EndDate
			current.EndDate = &end
			changes["endDate"] = end
		}
		s.audit(ctx, current.ID, domain.AuditActionUpdate, changes)
		sub = current
		return nil
	})
	return sub, err
}

// Cancel stops all future billing. Invoices already generated stay untouched.
func (s *Service) Cancel(ctx context.Context, subscriptionID id.ID, reason string) (*Subscription, error) {
	var sub *Subscription
	err := s.mutate(ctx, subscriptionID, 0, func(ctx context.Context, current *Subscription) error {
		if current.Status.IsFinal() {
			return apperror.NewImmutableState(entityName, subscriptionID, "subscription is already "+strings.ToLower(string(current.Status)))
		}
		now := s.clock.Now()
		current.Status = StatusCancelled
		current.CancelledAt = &now
		if r := strings.TrimSpace(reason); r != "" {
			current.CancelReason = &r
		}
		s.audit(ctx, current.ID, domain.AuditActionCancel, map[string]any{"reason": reason})
		sub = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "subscription cancelled", "subscription_id", subscriptionID, "reason", reason)
	return sub, nil
}

// Pause suspends billing of an active subscription.
func (s *Service) Pause(ctx context.Context, subscriptionID id.ID) (*Subscription, error) {
	var sub *Subscription
	err := s.mutate(ctx, subscriptionID, 0, func(ctx context.Context, current *Subscription) error {
		if current.Status != StatusActive {
			return apperror.NewBusinessRule(apperror.CodeSubscriptionInvalid, "only active subscriptions can be paused").
				WithDetail("status", string(current.Status))
		}
		current.Status = StatusPaused
		s.audit(ctx, current.ID, domain.AuditActionStatusChange, map[string]any{"status": StatusPaused})
		sub = current
		return nil
	})
	return sub, err
}

// Resume reactivates a paused subscription. Periods that elapsed while paused
// are skipped, not billed.
func (s *Service) Resume(ctx context.Context, subscriptionID id.ID) (*Subscription, error) {
	var sub *Subscription
	err := s.mutate(ctx, subscriptionID, 0, func(ctx context.Context, current *Subscription) error {
		if current.Status != StatusPaused {
			return apperror.NewBusinessRule(apperror.CodeSubscriptionInvalid, "only paused subscriptions can be resumed").
				WithDetail("status", string(current.Status))
		}
		today := clock.Date(s.clock.Now())
		for current.NextBillingDate.Before(today) {
			current.NextBillingDate = Advance(current.NextBillingDate, current.Interval)
		}
		current.Status = StatusActive
		s.audit(ctx, current.ID, domain.AuditActionStatusChange, map[string]any{
			"status":          StatusActive,
			"nextBillingDate": current.NextBillingDate,
		})
		sub = current
		return nil
	})
	return sub, err
}

// mutate locks the subscription, applies fn and stores the result with a version check.
func (s *Service) mutate(ctx context.Context, subscriptionID id.ID, version int, fn func(context.Context, *Subscription) error) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if version != 0 && version != current.Version {
			return apperror.NewConcurrentModification(entityName, subscriptionID)
		}
		if err := fn(ctx, current); err != nil {
			return err
		}
		current.Touch(s.clock.Now())
		return s.repo.Update(ctx, current)
	})
}

// --- Billing ---

// RunBillingCycle bills every subscription due at now. Each period is billed
// in its own transaction that re-checks eligibility under a row lock, so a
// repeated run on the same tick finds nothing left to bill.
func (s *Service) RunBillingCycle(ctx context.Context, now time.Time) CycleResult {
	ctx, span := tracer.Start(ctx, "subscription.RunBillingCycle")
	defer span.End()

	var result CycleResult
	due, err := s.repo.ListDue(ctx, now, 0)
	if err != nil {
		logger.Error(ctx, "billing cycle: list due subscriptions failed", "error", err)
		span.RecordError(err)
		return result
	}

	for _, candidate := range due {
		for i := 0; i < maxCatchUp; i++ {
			inv, more, err := s.billPeriod(ctx, candidate.ID, now)
			if err != nil {
				logger.Warn(ctx, "billing cycle: subscription failed",
					"subscription_id", candidate.ID,
					"error", err,
				)
				result.Fail(candidate.ID, candidate.PlanName, err)
				break
			}
			if inv == nil {
				if i == 0 {
					result.Skip(candidate.ID, candidate.PlanName, "not billable")
				}
				break
			}
			result.Succeed(candidate.ID, inv.InvoiceNumber, &inv.ID)
			s.invoices.Announce(ctx, inv)
			if !more {
				break
			}
		}
	}

	span.SetAttributes(
		attribute.Int("billing.processed", result.Processed),
		attribute.Int("billing.failed", result.Failed),
	)
	logger.Info(ctx, "billing cycle finished",
		"candidates", len(due),
		"processed", result.Processed,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result
}

// billPeriod bills one period of a subscription. It returns the invoice (nil
// when nothing was billable) and whether another period is still due.
func (s *Service) billPeriod(ctx context.Context, subscriptionID id.ID, now time.Time) (*invoice.Invoice, bool, error) {
	var (
		issued *invoice.Invoice
		more   bool
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sub, err := s.repo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.IsDue(now) {
			return nil
		}

		if sub.PastEnd() {
			sub.Status = StatusExpired
			sub.Touch(s.clock.Now())
			s.audit(ctx, sub.ID, domain.AuditActionStatusChange, map[string]any{"status": StatusExpired})
			return s.repo.Update(ctx, sub)
		}

		periodStart := sub.NextBillingDate
		periodEnd := schedule.PeriodEnd(periodStart, sub.Interval)
		inv, err := s.invoices.Issue(ctx, invoice.IssueRequest{
			CustomerID: sub.CustomerID,
			Items: []invoice.ItemInput{{
				Description: fmt.Sprintf("%s subscription %s to %s",
					sub.PlanName, periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly)),
				Quantity:  types.NewMoneyFromInt(1),
				UnitPrice: sub.Amount,
				TaxRate:   types.Zero(),
			}},
			IssueDate: periodStart,
			DueDate:   clock.Date(periodStart).AddDate(0, 0, PaymentTermDays),
			Notes:     fmt.Sprintf("Subscription %s", sub.ID),
		})
		if err != nil {
			return fmt.Errorf("issue invoice: %w", err)
		}

		if err := s.repo.LinkInvoice(ctx, &Invoice{
			ID:             id.New(),
			SubscriptionID: sub.ID,
			InvoiceID:      inv.ID,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			CreatedAt:      s.clock.Now(),
		}); err != nil {
			return fmt.Errorf("link invoice: %w", err)
		}

		last := periodStart
		sub.LastBillingDate = &last
		sub.NextBillingDate = Advance(periodStart, sub.Interval)
		sub.Touch(s.clock.Now())
		if err := s.repo.Update(ctx, sub); err != nil {
			return err
		}

		issued = inv
		more = sub.IsDue(now)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return issued, more, nil
}

// --- Queries ---

// Get returns a subscription by id.
func (s *Service) Get(ctx context.Context, subscriptionID id.ID) (*Subscription, error) {
	return s.repo.Get(ctx, subscriptionID)
}

// List returns a page of subscriptions.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[Subscription], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.ListResult[Subscription]{}, fmt.Errorf("list subscriptions: %w", err)
	}
	return domain.ListResult[Subscription]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}

// Invoices returns the billing history of a subscription.
func (s *Service) Invoices(ctx context.Context, subscriptionID id.ID) ([]Invoice, error) {
	if _, err := s.repo.Get(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return s.repo.ListInvoices(ctx, subscriptionID)
}

func (s *Service) audit(ctx context.Context, subscriptionID id.ID, action domain.AuditAction, changes map[string]any) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogChange(ctx, entityName, subscriptionID, action, changes); err != nil {
		logger.Warn(ctx, "audit write failed", "subscription_id", subscriptionID, "action", action, "error", err)
	}
}
