// Package numerator provides the PostgreSQL implementation of invoice numbering.
package numerator

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "ledgerd/internal/core/numerator"
	"ledgerd/internal/infrastructure/storage/postgres"
)

// Ensure compile-time interface compliance.
var _ corenumerator.Generator = (*Service)(nil)

// Service hands out gapless numbers from sys_sequences.
// Every call runs in the caller's transaction: the row lock taken by the
// UPSERT serializes concurrent issuers and a rollback returns the number.
type Service struct {
	txManager *postgres.TxManager
}

// New creates a numerator service.
func New(txManager *postgres.TxManager) *Service {
	return &Service{txManager: txManager}
}

// Next returns the next formatted number for cfg in the year of period.
func (s *Service) Next(ctx context.Context, cfg corenumerator.Config, period time.Time) (string, error) {
	key := corenumerator.Key(cfg, period)

	args := []any{key}
	if seeded(cfg) {
		args = append(args, seedPattern(cfg, period))
	}

	var num int64
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, nextSQL(cfg), args...).Scan(&num)
	if err != nil {
		return "", fmt.Errorf("next number for %s: %w", key, err)
	}
	return corenumerator.Format(cfg, period, num), nil
}

// nextSQL increments the yearly sequence. A sequence created for the first
// time starts after the highest number already stored in the seed table, so
// numbering survives a lost or restored sys_sequences row.
func nextSQL(cfg corenumerator.Config) string {
	seed := "0"
	if seeded(cfg) {
		column := pgx.Identifier{cfg.SeedColumn}.Sanitize()
		seed = fmt.Sprintf(
			"COALESCE((SELECT MAX(split_part(%s, '-', 3)::bigint) FROM %s WHERE %s LIKE $2), 0)",
			column, pgx.Identifier{cfg.SeedTable}.Sanitize(), column)
	}
	return fmt.Sprintf(`
		INSERT INTO sys_sequences (key, current_val)
		VALUES ($1, %s + 1)
		ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + 1
		RETURNING current_val`, seed)
}

// seedPattern matches numbers issued in period's year.
func seedPattern(cfg corenumerator.Config, period time.Time) string {
	return fmt.Sprintf("%s-%04d-%%", cfg.Prefix, period.Year())
}

func seeded(cfg corenumerator.Config) bool {
	return cfg.SeedTable != "" && cfg.SeedColumn != ""
}
