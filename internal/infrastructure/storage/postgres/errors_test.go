package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"ledgerd/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	uniques := map[string]UniqueField{"products_sku_key": {Entity: "product", Field: "sku", Value: "SKU-1"}}

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"known unique constraint", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "products_sku_key"}, apperror.CodeDuplicate},
		{"unknown unique constraint", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "other"}, apperror.CodeConflict},
		{"foreign key", fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgForeignKeyViolation}), apperror.CodeConflict},
		{"check", &pgconn.PgError{Code: pgCheckViolation}, apperror.CodeValidation},
		{"deadlock", &pgconn.PgError{Code: pgDeadlockDetected}, apperror.CodeConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := apperror.AsAppError(MapError(tt.err, uniques))
			if assert.True(t, ok) {
				assert.Equal(t, tt.code, appErr.Code)
			}
		})
	}

	plain := errors.New("connection reset")
	assert.Same(t, plain, MapError(plain, uniques))
	assert.NoError(t, MapError(nil, uniques))
}
