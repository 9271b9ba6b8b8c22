package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/infrastructure/storage/postgres"
)

// AppendMovements writes ledger rows with COPY. Movements are append-only:
// there is no update or delete path.
func (r *Repo) AppendMovements(ctx context.Context, movements []inventory.StockMovement) error {
	rows := make([][]any, 0, len(movements))
	for i := range movements {
		rows = append(rows, postgres.RowValues(&movements[i], r.movementCols))
	}

	if _, err := r.inserter.CopyFromSlice(ctx, movementsTable, r.movementCols, rows); err != nil {
		return postgres.MapError(fmt.Errorf("copy movements: %w", err), nil)
	}
	return nil
}

func (r *Repo) listMovementsQuery(productID id.ID, filter inventory.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(r.movementCols...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	// UUIDv7 ids break ties between movements of the same batch.
	q = q.OrderBy("created_at", "id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func (r *Repo) ListMovements(ctx context.Context, productID id.ID, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	sql, args, err := r.listMovementsQuery(productID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var movements []inventory.StockMovement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}
