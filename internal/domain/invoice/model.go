// Package invoice implements the invoice lifecycle: totals, payments and status transitions.
package invoice

import (
	"time"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/schedule"
)

// PaymentMethod is how a payment was settled.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodOnline       PaymentMethod = "ONLINE"
	MethodOther        PaymentMethod = "OTHER"
)

var paymentMethods = map[PaymentMethod]struct{}{
	MethodCash: {}, MethodCard: {}, MethodBankTransfer: {}, MethodOnline: {}, MethodOther: {},
}

// IsValid reports whether m is a known method.
func (m PaymentMethod) IsValid() bool {
	_, ok := paymentMethods[m]
	return ok
}

// Invoice is a bill owned by a customer. PaidAmount caches the sum of Payments.
type Invoice struct {
	entity.Base

	InvoiceNumber  string      `db:"invoice_number" json:"invoiceNumber"`
	CustomerID     id.ID       `db:"customer_id" json:"customerId"`
	Subtotal       types.Money `db:"subtotal" json:"subtotal"`
	TaxAmount      types.Money `db:"tax_amount" json:"taxAmount"`
	DiscountAmount types.Money `db:"discount_amount" json:"discountAmount"`
	TotalAmount    types.Money `db:"total_amount" json:"totalAmount"`
	PaidAmount     types.Money `db:"paid_amount" json:"paidAmount"`
	IssueDate      time.Time   `db:"issue_date" json:"issueDate"`
	DueDate        time.Time   `db:"due_date" json:"dueDate"`
	Status         Status      `db:"status" json:"status"`
	PaidDate       *time.Time  `db:"paid_date" json:"paidDate,omitempty"`

	ReminderCount    int        `db:"reminder_count" json:"reminderCount"`
	LastReminderDate *time.Time `db:"last_reminder_date" json:"lastReminderDate,omitempty"`

	IsRecurring       bool               `db:"is_recurring" json:"isRecurring"`
	RecurringInterval *schedule.Interval `db:"recurring_interval" json:"recurringInterval,omitempty"`
	NextInvoiceDate   *time.Time         `db:"next_invoice_date" json:"nextInvoiceDate,omitempty"`

	PaymentURL *string `db:"payment_url" json:"paymentUrl,omitempty"`
	Notes      string  `db:"notes" json:"notes,omitempty"`

	Items    []Item    `db:"-" json:"items"`
	Payments []Payment `db:"-" json:"payments,omitempty"`
}

// Item is an invoice line. TotalPrice = Quantity × UnitPrice.
type Item struct {
	ID          id.ID          `db:"id" json:"id"`
	InvoiceID   id.ID          `db:"invoice_id" json:"invoiceId"`
	LineNo      int            `db:"line_no" json:"lineNo"`
	Description string         `db:"description" json:"description"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	TaxRate     types.Money    `db:"tax_rate" json:"taxRate"`
	TotalPrice  types.Money    `db:"total_price" json:"totalPrice"`
	TaxAmount   types.Money    `db:"tax_amount" json:"taxAmount"`
}

// Payment is an append-only settlement against an invoice.
type Payment struct {
	ID          id.ID         `db:"id" json:"id"`
	InvoiceID   id.ID         `db:"invoice_id" json:"invoiceId"`
	Amount      types.Money   `db:"amount" json:"amount"`
	Method      PaymentMethod `db:"method" json:"method"`
	PaymentDate time.Time     `db:"payment_date" json:"paymentDate"`
	Reference   *string       `db:"reference" json:"reference,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"createdAt"`
}

// Balance is the amount still owed.
func (inv *Invoice) Balance() types.Money {
	return types.NonNegative(inv.TotalAmount.Sub(inv.PaidAmount))
}

// HasPayments reports whether any payment was recorded.
func (inv *Invoice) HasPayments() bool {
	return len(inv.Payments) > 0 || inv.PaidAmount.IsPositive()
}

// IsPastDue reports whether the due date has passed at now with money outstanding.
func (inv *Invoice) IsPastDue(now time.Time) bool {
	return inv.Status != StatusPaid &&
		inv.Balance().IsPositive() &&
		clock.Date(now).After(clock.Date(inv.DueDate))
}

// DaysOverdue counts whole days since the due date.
func (inv *Invoice) DaysOverdue(now time.Time) int {
	return clock.DaysBetween(inv.DueDate, now)
}

// Notice builds the notification payload.
func (inv *Invoice) Notice() domain.InvoiceNotice {
	n := domain.InvoiceNotice{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		CustomerID:    inv.CustomerID,
		TotalAmount:   inv.TotalAmount,
		Balance:       inv.Balance(),
		DueDate:       inv.DueDate,
		ReminderCount: inv.ReminderCount,
	}
	if inv.PaymentURL != nil {
		n.PaymentURL = *inv.PaymentURL
	}
	return n
}

// ItemInput is a caller-supplied line.
type ItemInput struct {
	Description string
	Quantity    types.Quantity
	UnitPrice   types.Money
	TaxRate     types.Money
}

// CreateRequest issues a new invoice.
type CreateRequest struct {
	CustomerID        id.ID
	Items             []ItemInput
	DiscountAmount    types.Money
	IssueDate         *time.Time
	DueDate           time.Time
	Notes             string
	IsRecurring       bool
	RecurringInterval *schedule.Interval
	// Send issues the invoice directly as SENT instead of DRAFT.
	Send bool
}

// UpdateRequest edits an unpaid invoice. Nil fields are left unchanged;
// a non-nil Items replaces all lines.
type UpdateRequest struct {
	Version           int
	Items             []ItemInput
	DiscountAmount    *types.Money
	DueDate           *time.Time
	Notes             *string
	IsRecurring       *bool
	RecurringInterval *schedule.Interval
}

// PaymentRequest records a payment.
type PaymentRequest struct {
	Amount      types.Money
	Method      PaymentMethod
	Reference   string
	PaymentDate *time.Time
}

// IssueRequest is used by system issuers (subscription billing, recurring
// invoices). The due date may already be in the past relative to now.
type IssueRequest struct {
	CustomerID id.ID
	Items      []ItemInput
	IssueDate  time.Time
	DueDate    time.Time
	Notes      string
}

// ListFilter for invoice listings.
type ListFilter struct {
	domain.ListFilter
	CustomerID *id.ID
	Statuses   []Status
	FromDate   *time.Time
	ToDate     *time.Time
}
