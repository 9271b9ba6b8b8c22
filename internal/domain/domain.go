// Package domain provides types and collaborator ports shared by the ledger services.
package domain

import (
	"context"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
)

// --- Pagination ---

// ListFilter contains common pagination options for list operations.
type ListFilter struct {
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{Limit: 50}
}

// Normalize clamps pagination to accepted bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Date ranges ---

// DateRange is an inclusive [From, To] window.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects empty or inverted ranges.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return apperror.NewValidation("date range requires from and to")
	}
	if r.To.Before(r.From) {
		return apperror.NewValidation("date range end is before its start").
			WithDetail("from", r.From).
			WithDetail("to", r.To)
	}
	return nil
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// --- Customers ---

// Customer is read from the customer catalog; the ledger never mutates it.
type Customer struct {
	ID    id.ID  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email,omitempty"`
	Phone string `db:"phone" json:"phone,omitempty"`
}

// HasContact reports whether the customer can be reached by any channel.
func (c Customer) HasContact() bool {
	return c.Email != "" || c.Phone != ""
}

// CustomerDirectory resolves customers by id.
type CustomerDirectory interface {
	GetCustomer(ctx context.Context, customerID id.ID) (*Customer, error)
}

// --- Notifications ---

// InvoiceNotice is the payload handed to notification delivery.
type InvoiceNotice struct {
	InvoiceID     id.ID       `json:"invoiceId"`
	InvoiceNumber string      `json:"invoiceNumber"`
	CustomerID    id.ID       `json:"customerId"`
	TotalAmount   types.Money `json:"totalAmount"`
	Balance       types.Money `json:"balance"`
	DueDate       time.Time   `json:"dueDate"`
	ReminderCount int         `json:"reminderCount"`
	PaymentURL    string      `json:"paymentUrl,omitempty"`
}

// Notifier delivers customer-facing messages. Failures are logged by callers
// and never roll back a ledger mutation.
type Notifier interface {
	SendReminder(ctx context.Context, notice InvoiceNotice, customer Customer) error
	SendInvoiceReady(ctx context.Context, notice InvoiceNotice, paymentURL string) error
}

// PaymentLinker creates hosted payment links. Optional: a nil linker disables links.
type PaymentLinker interface {
	CreateLink(ctx context.Context, invoiceID id.ID, amount types.Money) (string, error)
}

// --- Audit ---

// AuditAction names an audited change.
type AuditAction string

const (
	AuditActionCreate       AuditAction = "create"
	AuditActionUpdate       AuditAction = "update"
	AuditActionDelete       AuditAction = "delete"
	AuditActionStatusChange AuditAction = "status_change"
	AuditActionPayment      AuditAction = "payment"
	AuditActionCancel       AuditAction = "cancel"
)

// Auditor records entity changes inside the caller's transaction.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action AuditAction, changes map[string]any) error
}

// --- Sweeps ---

// Outcome records what happened to one item of a sweep or batch.
type Outcome struct {
	ID       id.ID  `json:"id"`
	Ref      string `json:"ref,omitempty"`
	Status   string `json:"status"`
	ResultID *id.ID `json:"resultId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Outcome statuses.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// SweepResult is the partial-failure result of a periodic job: every item is
// processed independently and reported here.
type SweepResult struct {
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Details   []Outcome `json:"details"`
}

// Succeed records a processed item.
func (r *SweepResult) Succeed(itemID id.ID, ref string, resultID *id.ID) {
	r.Processed++
	r.Details = append(r.Details, Outcome{ID: itemID, Ref: ref, Status: OutcomeSucceeded, ResultID: resultID})
}

// Fail records a failed item.
func (r *SweepResult) Fail(itemID id.ID, ref string, err error) {
	r.Failed++
	r.Details = append(r.Details, Outcome{ID: itemID, Ref: ref, Status: OutcomeFailed, Error: err.Error()})
}

// Skip records an item that no longer qualified once locked.
func (r *SweepResult) Skip(itemID id.ID, ref, reason string) {
	r.Skipped++
	r.Details = append(r.Details, Outcome{ID: itemID, Ref: ref, Status: OutcomeSkipped, Error: reason})
}
