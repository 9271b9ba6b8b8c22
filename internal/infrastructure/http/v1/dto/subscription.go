package dto

import (
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain/schedule"
	"ledgerd/internal/domain/subscription"
)

// CreateSubscriptionRequest starts a subscription.
type CreateSubscriptionRequest struct {
	CustomerID   id.ID       `json:"customerId"`
	PlanName     string      `json:"planName" binding:"required"`
	Amount       types.Money `json:"amount"`
	Currency     string      `json:"currency" binding:"omitempty,len=3"`
	Interval     string      `json:"interval" binding:"required"`
	StartDate    *Date       `json:"startDate"`
	TrialEndDate *Date       `json:"trialEndDate"`
	EndDate      *Date       `json:"endDate"`
}

func (r CreateSubscriptionRequest) ToDomain() (subscription.CreateRequest, error) {
	interval, err := schedule.Parse(r.Interval)
	if err != nil {
		return subscription.CreateRequest{}, err
	}
	return subscription.CreateRequest{
		CustomerID:   r.CustomerID,
		PlanName:     r.PlanName,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Interval:     interval,
		StartDate:    r.StartDate.TimePtr(),
		TrialEndDate: r.TrialEndDate.TimePtr(),
		EndDate:      r.EndDate.TimePtr(),
	}, nil
}

// UpdateSubscriptionRequest changes plan terms.
type UpdateSubscriptionRequest struct {
	Version  int          `json:"version" binding:"required,min=1"`
	PlanName *string      `json:"planName"`
	Amount   *types.Money `json:"amount"`
	Interval *string      `json:"interval"`
	EndDate  *Date        `json:"endDate"`
}

func (r UpdateSubscriptionRequest) ToDomain() (subscription.UpdateRequest, error) {
	interval, err := IntervalPtr(r.Interval)
	if err != nil {
		return subscription.UpdateRequest{}, err
	}
	return subscription.UpdateRequest{
		Version:  r.Version,
		PlanName: r.PlanName,
		Amount:   r.Amount,
		Interval: interval,
		EndDate:  r.EndDate.TimePtr(),
	}, nil
}

// CancelRequest cancels a subscription.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// BillingRunRequest runs the billing cycle as of a date, today by default.
type BillingRunRequest struct {
	AsOf *Date `json:"asOf"`
}

// SubscriptionQuery filters subscription listings.
type SubscriptionQuery struct {
	Pagination
	CustomerID string `form:"customerId"`
	Status     string `form:"status"`
}

func (q SubscriptionQuery) ToDomain() (subscription.ListFilter, error) {
	f := subscription.ListFilter{ListFilter: q.ListFilter()}
	if q.CustomerID != "" {
		customerID, err := id.Parse(q.CustomerID)
		if err != nil {
			return f, err
		}
		f.CustomerID = &customerID
	}
	if q.Status != "" {
		s := subscription.Status(q.Status)
		f.Status = &s
	}
	return f, nil
}
