package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/invoice"
)

var _ invoice.Repository = (*InvoiceRepo)(nil)

// InvoiceRepo implements invoice.Repository.
type InvoiceRepo struct {
	store *Store
}

// Invoices returns the invoice repository.
func (s *Store) Invoices() *InvoiceRepo {
	return &InvoiceRepo{store: s}
}

func (r *InvoiceRepo) Create(ctx context.Context, inv *invoice.Invoice) error {
	return r.store.with(ctx, func(st *state) error {
		for _, existing := range st.invoices {
			if existing.InvoiceNumber == inv.InvoiceNumber {
				return apperror.NewDuplicate("invoice", "invoice_number", inv.InvoiceNumber)
			}
		}
		st.invoices[inv.ID] = copyInvoice(*inv)
		return nil
	})
}

func (r *InvoiceRepo) Get(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := r.store.with(ctx, func(st *state) error {
		inv, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		c := copyInvoice(inv)
		out = &c
		return nil
	})
	return out, err
}

func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoice.Invoice, error) {
	return r.Get(ctx, invoiceID)
}

func (r *InvoiceRepo) Update(ctx context.Context, inv *invoice.Invoice) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.invoices[inv.ID]
		if !ok {
			return apperror.NewNotFound("invoice", inv.ID)
		}
		if stored.Version != inv.ExpectedVersion() {
			return apperror.NewConcurrentModification("invoice", inv.ID)
		}
		updated := *inv
		updated.Items = stored.Items
		updated.Payments = stored.Payments
		st.invoices[inv.ID] = updated
		return nil
	})
}

func (r *InvoiceRepo) ReplaceItems(ctx context.Context, invoiceID id.ID, items []invoice.Item) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		stored.Items = slices.Clone(items)
		st.invoices[invoiceID] = stored
		return nil
	})
}

func (r *InvoiceRepo) AddPayment(ctx context.Context, p *invoice.Payment) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.invoices[p.InvoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", p.InvoiceID)
		}
		stored.Payments = append(slices.Clone(stored.Payments), *p)
		st.invoices[p.InvoiceID] = stored
		return nil
	})
}

func (r *InvoiceRepo) SetPaymentURL(ctx context.Context, invoiceID id.ID, url string) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.invoices[invoiceID]
		if !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		stored.PaymentURL = &url
		st.invoices[invoiceID] = stored
		return nil
	})
}

func (r *InvoiceRepo) Delete(ctx context.Context, invoiceID id.ID) error {
	return r.store.with(ctx, func(st *state) error {
		if _, ok := st.invoices[invoiceID]; !ok {
			return apperror.NewNotFound("invoice", invoiceID)
		}
		delete(st.invoices, invoiceID)
		return nil
	})
}

func (r *InvoiceRepo) List(ctx context.Context, filter invoice.ListFilter) ([]invoice.Invoice, int64, error) {
	var (
		out   []invoice.Invoice
		total int64
	)
	err := r.store.with(ctx, func(st *state) error {
		for _, inv := range st.invoices {
			if filter.CustomerID != nil && inv.CustomerID != *filter.CustomerID {
				continue
			}
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, inv.Status) {
				continue
			}
			if filter.FromDate != nil && inv.IssueDate.Before(*filter.FromDate) {
				continue
			}
			if filter.ToDate != nil && inv.IssueDate.After(*filter.ToDate) {
				continue
			}
			out = append(out, copyInvoice(inv))
		}
		slices.SortFunc(out, func(a, b invoice.Invoice) int { return strings.Compare(b.InvoiceNumber, a.InvoiceNumber) })
		total = int64(len(out))
		out = page(out, filter.Limit, filter.Offset)
		return nil
	})
	return out, total, err
}

func (r *InvoiceRepo) ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]invoice.Invoice, error) {
	return r.collect(ctx, limit, func(inv invoice.Invoice) bool {
		return inv.Status.IsIssued() && inv.Balance().IsPositive() &&
			clock.Date(asOf).After(clock.Date(inv.DueDate))
	}, func(a, b invoice.Invoice) int { return a.DueDate.Compare(b.DueDate) })
}

func (r *InvoiceRepo) ListRecurringDue(ctx context.Context, asOf time.Time, limit int) ([]invoice.Invoice, error) {
	return r.collect(ctx, limit, func(inv invoice.Invoice) bool {
		return inv.IsRecurring && inv.NextInvoiceDate != nil && !inv.NextInvoiceDate.After(asOf)
	}, func(a, b invoice.Invoice) int { return a.NextInvoiceDate.Compare(*b.NextInvoiceDate) })
}

func (r *InvoiceRepo) collect(ctx context.Context, limit int, keep func(invoice.Invoice) bool, cmp func(a, b invoice.Invoice) int) ([]invoice.Invoice, error) {
	var out []invoice.Invoice
	err := r.store.with(ctx, func(st *state) error {
		for _, inv := range st.invoices {
			if keep(inv) {
				out = append(out, copyInvoice(inv))
			}
		}
		slices.SortFunc(out, cmp)
		out = page(out, limit, 0)
		return nil
	})
	return out, err
}
