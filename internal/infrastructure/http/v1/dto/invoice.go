package dto

import (
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain/invoice"
)

// ItemRequest is one invoice line.
type ItemRequest struct {
	Description string         `json:"description" binding:"required"`
	Quantity    types.Quantity `json:"quantity"`
	UnitPrice   types.Money    `json:"unitPrice"`
	TaxRate     types.Money    `json:"taxRate"`
}

func itemsToDomain(items []ItemRequest) []invoice.ItemInput {
	if items == nil {
		return nil
	}
	out := make([]invoice.ItemInput, len(items))
	for i, it := range items {
		out[i] = invoice.ItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
		}
	}
	return out
}

// CreateInvoiceRequest creates an invoice.
type CreateInvoiceRequest struct {
	CustomerID        id.ID         `json:"customerId"`
	Items             []ItemRequest `json:"items" binding:"required,min=1,dive"`
	DiscountAmount    types.Money   `json:"discountAmount"`
	IssueDate         *Date         `json:"issueDate"`
	DueDate           Date          `json:"dueDate"`
	Notes             string        `json:"notes"`
	IsRecurring       bool          `json:"isRecurring"`
	RecurringInterval *string       `json:"recurringInterval"`
	Send              bool          `json:"send"`
}

func (r CreateInvoiceRequest) ToDomain() (invoice.CreateRequest, error) {
	interval, err := IntervalPtr(r.RecurringInterval)
	if err != nil {
		return invoice.CreateRequest{}, err
	}
	return invoice.CreateRequest{
		CustomerID:        r.CustomerID,
		Items:             itemsToDomain(r.Items),
		DiscountAmount:    r.DiscountAmount,
		IssueDate:         r.IssueDate.TimePtr(),
		DueDate:           r.DueDate.Time,
		Notes:             r.Notes,
		IsRecurring:       r.IsRecurring,
		RecurringInterval: interval,
		Send:              r.Send,
	}, nil
}

// UpdateInvoiceRequest edits an unpaid invoice. Omitted fields are kept.
type UpdateInvoiceRequest struct {
	Version           int           `json:"version" binding:"required,min=1"`
	Items             []ItemRequest `json:"items" binding:"omitempty,dive"`
	DiscountAmount    *types.Money  `json:"discountAmount"`
	DueDate           *Date         `json:"dueDate"`
	Notes             *string       `json:"notes"`
	IsRecurring       *bool         `json:"isRecurring"`
	RecurringInterval *string       `json:"recurringInterval"`
}

func (r UpdateInvoiceRequest) ToDomain() (invoice.UpdateRequest, error) {
	interval, err := IntervalPtr(r.RecurringInterval)
	if err != nil {
		return invoice.UpdateRequest{}, err
	}
	return invoice.UpdateRequest{
		Version:           r.Version,
		Items:             itemsToDomain(r.Items),
		DiscountAmount:    r.DiscountAmount,
		DueDate:           r.DueDate.TimePtr(),
		Notes:             r.Notes,
		IsRecurring:       r.IsRecurring,
		RecurringInterval: interval,
	}, nil
}

// PaymentRequest records a payment against an invoice.
type PaymentRequest struct {
	Amount      types.Money `json:"amount"`
	Method      string      `json:"method" binding:"required"`
	Reference   string      `json:"reference"`
	PaymentDate *Date       `json:"paymentDate"`
}

func (r PaymentRequest) ToDomain() invoice.PaymentRequest {
	return invoice.PaymentRequest{
		Amount:      r.Amount,
		Method:      invoice.PaymentMethod(r.Method),
		Reference:   r.Reference,
		PaymentDate: r.PaymentDate.TimePtr(),
	}
}

// InvoiceQuery filters invoice listings.
type InvoiceQuery struct {
	Pagination
	CustomerID string   `form:"customerId"`
	Status     []string `form:"status"`
	From       string   `form:"from"`
	To         string   `form:"to"`
}

func (q InvoiceQuery) ToDomain() (invoice.ListFilter, error) {
	f := invoice.ListFilter{ListFilter: q.ListFilter()}
	if q.CustomerID != "" {
		customerID, err := id.Parse(q.CustomerID)
		if err != nil {
			return f, err
		}
		f.CustomerID = &customerID
	}
	for _, s := range q.Status {
		f.Statuses = append(f.Statuses, invoice.Status(s))
	}
	if q.From != "" {
		from, err := ParseDate(q.From)
		if err != nil {
			return f, err
		}
		f.FromDate = &from
	}
	if q.To != "" {
		to, err := ParseDate(q.To)
		if err != nil {
			return f, err
		}
		f.ToDate = &to
	}
	return f, nil
}

// OverdueResponse lists invoices past due.
type OverdueResponse struct {
	AsOf  Date              `json:"asOf"`
	Items []invoice.Invoice `json:"items"`
}
