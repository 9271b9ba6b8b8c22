package memory

import (
	"context"
	"strings"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/numerator"
	"ledgerd/internal/domain"
)

var (
	_ numerator.Generator      = (*Store)(nil)
	_ domain.CustomerDirectory = (*Store)(nil)
	_ domain.Auditor           = (*Store)(nil)
)

// Next implements numerator.Generator. A new yearly sequence starts after the
// highest invoice number already stored for that year.
func (s *Store) Next(ctx context.Context, cfg numerator.Config, period time.Time) (string, error) {
	var number string
	err := s.with(ctx, func(st *state) error {
		key := numerator.Key(cfg, period)
		current, ok := st.sequences[key]
		if !ok && cfg.SeedTable != "" {
			prefix := cfg.Prefix + "-"
			for _, inv := range st.invoices {
				if !strings.HasPrefix(inv.InvoiceNumber, prefix) {
					continue
				}
				if year, n, ok := numerator.Parse(inv.InvoiceNumber); ok && year == period.Year() && n > current {
					current = n
				}
			}
		}
		current++
		st.sequences[key] = current
		number = numerator.Format(cfg, period, current)
		return nil
	})
	return number, err
}

// AddCustomer registers a customer in the directory.
func (s *Store) AddCustomer(ctx context.Context, c domain.Customer) error {
	return s.with(ctx, func(st *state) error {
		if id.IsNil(c.ID) {
			c.ID = id.New()
		}
		st.customers[c.ID] = c
		return nil
	})
}

// RemoveCustomer deletes a customer from the directory.
func (s *Store) RemoveCustomer(ctx context.Context, customerID id.ID) {
	_ = s.with(ctx, func(st *state) error {
		delete(st.customers, customerID)
		return nil
	})
}

// GetCustomer implements domain.CustomerDirectory.
func (s *Store) GetCustomer(ctx context.Context, customerID id.ID) (*domain.Customer, error) {
	var out *domain.Customer
	err := s.with(ctx, func(st *state) error {
		c, ok := st.customers[customerID]
		if !ok {
			return apperror.NewNotFound("customer", customerID)
		}
		out = &c
		return nil
	})
	return out, err
}

// LogChange implements domain.Auditor.
func (s *Store) LogChange(ctx context.Context, entityType string, entityID id.ID, action domain.AuditAction, changes map[string]any) error {
	return s.with(ctx, func(st *state) error {
		st.audit = append(st.audit, AuditRecord{
			EntityType: entityType,
			EntityID:   entityID,
			Action:     action,
			Changes:    changes,
		})
		return nil
	})
}

// Upsert stores a customer, replacing an existing one with the same id.
func (s *Store) Upsert(ctx context.Context, c domain.Customer) error {
	return s.AddCustomer(ctx, c)
}
