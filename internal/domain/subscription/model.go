// Package subscription implements recurring billing: calendar advance of
// billing dates and one invoice per elapsed period.
package subscription

import (
	"time"

	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/schedule"
)

// Status of a subscription.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsFinal reports whether the subscription can never bill again.
func (s Status) IsFinal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Subscription bills a customer Amount every Interval.
type Subscription struct {
	entity.Base

	CustomerID      id.ID             `db:"customer_id" json:"customerId"`
	PlanName        string            `db:"plan_name" json:"planName"`
	Amount          types.Money       `db:"amount" json:"amount"`
	Currency        string            `db:"currency" json:"currency"`
	Interval        schedule.Interval `db:"billing_interval" json:"interval"`
	StartDate       time.Time         `db:"start_date" json:"startDate"`
	LastBillingDate *time.Time        `db:"last_billing_date" json:"lastBillingDate,omitempty"`
	NextBillingDate time.Time         `db:"next_billing_date" json:"nextBillingDate"`
	TrialEndDate    *time.Time        `db:"trial_end_date" json:"trialEndDate,omitempty"`
	EndDate         *time.Time        `db:"end_date" json:"endDate,omitempty"`
	Status          Status            `db:"status" json:"status"`
	CancelledAt     *time.Time        `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CancelReason    *string           `db:"cancel_reason" json:"cancelReason,omitempty"`
}

// InTrial reports whether the trial is still running at now.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.TrialEndDate != nil && s.TrialEndDate.After(now)
}

// IsDue reports whether a billing period has elapsed at now.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == StatusActive && !s.NextBillingDate.After(now) && !s.InTrial(now)
}

// PastEnd reports whether the next period would start after the end date.
func (s *Subscription) PastEnd() bool {
	return s.EndDate != nil && s.NextBillingDate.After(*s.EndDate)
}

// Invoice links a generated invoice to the period it bills.
type Invoice struct {
	ID             id.ID     `db:"id" json:"id"`
	SubscriptionID id.ID     `db:"subscription_id" json:"subscriptionId"`
	InvoiceID      id.ID     `db:"invoice_id" json:"invoiceId"`
	PeriodStart    time.Time `db:"period_start" json:"periodStart"`
	PeriodEnd      time.Time `db:"period_end" json:"periodEnd"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// CreateRequest starts a subscription.
type CreateRequest struct {
	CustomerID   id.ID
	PlanName     string
	Amount       types.Money
	Currency     string
	Interval     schedule.Interval
	StartDate    *time.Time
	TrialEndDate *time.Time
	EndDate      *time.Time
}

// UpdateRequest changes plan terms. Nil fields are left unchanged.
type UpdateRequest struct {
	Version  int
	PlanName *string
	Amount   *types.Money
	Interval *schedule.Interval
	EndDate  *time.Time
}

// ListFilter for subscription listings.
type ListFilter struct {
	domain.ListFilter
	CustomerID *id.ID
	Status     *Status
}

// CycleResult is the partial-failure result of a billing run.
type CycleResult = domain.SweepResult
