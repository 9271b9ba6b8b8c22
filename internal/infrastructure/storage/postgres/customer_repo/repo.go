// Package customer_repo reads the customer catalog.
package customer_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain"
	"ledgerd/internal/infrastructure/storage/postgres"
)

const customersTable = "customers"

var _ domain.CustomerDirectory = (*Repo)(nil)

// Repo implements domain.CustomerDirectory.
type Repo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewRepo creates the customer repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) GetCustomer(ctx context.Context, customerID id.ID) (*domain.Customer, error) {
	sql, args, err := r.builder.
		Select("id", "name", "COALESCE(email, '') AS email", "COALESCE(phone, '') AS phone").
		From(customersTable).
		Where(squirrel.Eq{"id": customerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var c domain.Customer
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("customer", customerID)
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// Upsert stores a customer. Used by the seed command; the API never writes customers.
func (r *Repo) Upsert(ctx context.Context, c domain.Customer) error {
	sql, args, err := r.builder.Insert(customersTable).
		Columns("id", "name", "email", "phone", "created_at").
		Values(c.ID, c.Name, nullable(c.Email), nullable(c.Phone), time.Now().UTC()).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, phone = EXCLUDED.phone").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert customer: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
