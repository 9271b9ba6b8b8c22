// Package memory is an in-process implementation of every ledger repository.
// It backs the demo mode of the server and the service tests. Transactions
// serialize on one mutex and roll back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/tx"
	"ledgerd/internal/domain"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/subscription"
)

var (
	_ tx.Manager         = (*Store)(nil)
	_ tx.ReadOnlyManager = (*Store)(nil)
)

// AuditRecord is one audited change.
type AuditRecord struct {
	EntityType string
	EntityID   id.ID
	Action     domain.AuditAction
	Changes    map[string]any
}

type state struct {
	products      map[id.ID]inventory.Product
	movements     []inventory.StockMovement
	invoices      map[id.ID]invoice.Invoice
	subscriptions map[id.ID]subscription.Subscription
	links         []subscription.Invoice
	sequences     map[string]int64
	customers     map[id.ID]domain.Customer
	audit         []AuditRecord
}

func newState() *state {
	return &state{
		products:      make(map[id.ID]inventory.Product),
		invoices:      make(map[id.ID]invoice.Invoice),
		subscriptions: make(map[id.ID]subscription.Subscription),
		sequences:     make(map[string]int64),
		customers:     make(map[id.ID]domain.Customer),
	}
}

func (s *state) clone() *state {
	c := &state{
		products:      maps.Clone(s.products),
		movements:     slices.Clone(s.movements),
		invoices:      make(map[id.ID]invoice.Invoice, len(s.invoices)),
		subscriptions: maps.Clone(s.subscriptions),
		links:         slices.Clone(s.links),
		sequences:     maps.Clone(s.sequences),
		customers:     maps.Clone(s.customers),
		audit:         slices.Clone(s.audit),
	}
	for k, v := range s.invoices {
		c.invoices[k] = copyInvoice(v)
	}
	return c
}

func copyInvoice(inv invoice.Invoice) invoice.Invoice {
	inv.Items = slices.Clone(inv.Items)
	inv.Payments = slices.Clone(inv.Payments)
	return inv
}

// Store holds all ledger state.
type Store struct {
	mu   sync.Mutex
	data *state
}

// New creates an empty store.
func New() *Store {
	return &Store{data: newState()}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// RunInTransaction executes fn with the store locked. Nested calls reuse the
// outer transaction; an error restores the state seen at the start.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// ReadOnly executes fn under the store lock.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.RunInTransaction(ctx, fn)
}

// with runs fn against the state, taking the lock unless a transaction holds it.
func (s *Store) with(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// AuditLog returns a copy of audited changes.
func (s *Store) AuditLog() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.audit)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
