package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"ledgerd/internal/core/apperror"
)

// PostgreSQL error codes the repositories translate.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
)

// UniqueField maps a unique constraint name to the entity field it guards
// and the value that was being written.
type UniqueField struct {
	Entity string
	Field  string
	Value  string
}

// MapError converts driver errors into application errors. Constraint names
// in uniques resolve to duplicate errors naming the field.
func MapError(err error, uniques map[string]UniqueField) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		if f, ok := uniques[pgErr.ConstraintName]; ok {
			return apperror.NewDuplicate(f.Entity, f.Field, f.Value).WithCause(err)
		}
		return apperror.NewConflict("record already exists").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewConflict("referenced record does not exist or is still referenced").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgCheckViolation:
		return apperror.NewValidation("value violates a database constraint").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgSerializationFail, pgDeadlockDetected:
		return apperror.NewConflict("transaction conflicted with a concurrent update, retry").
			WithCause(err)
	}
	return err
}
