// Package inventory_repo provides the PostgreSQL product and movement ledger.
package inventory_repo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/infrastructure/storage/postgres"
)

const (
	productsTable  = "products"
	movementsTable = "stock_movements"
)

var _ inventory.Repository = (*Repo)(nil)

// Repo implements inventory.Repository.
type Repo struct {
	txManager    *postgres.TxManager
	inserter     *postgres.BatchInserter
	builder      squirrel.StatementBuilderType
	productCols  []string
	movementCols []string
}

// NewRepo creates the inventory repository.
func NewRepo(txManager *postgres.TxManager) *Repo {
	return &Repo{
		txManager:    txManager,
		inserter:     postgres.NewBatchInserter(txManager),
		builder:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		productCols:  postgres.ExtractDBColumns[inventory.Product](),
		movementCols: postgres.ExtractDBColumns[inventory.StockMovement](),
	}
}

func (r *Repo) selectProducts() squirrel.SelectBuilder {
	return r.builder.Select(r.productCols...).From(productsTable)
}

func (r *Repo) CreateProduct(ctx context.Context, p *inventory.Product) error {
	sql, args, err := r.builder.Insert(productsTable).SetMap(postgres.StructToMap(p)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		uniques := map[string]postgres.UniqueField{
			"products_sku_key": {Entity: "product", Field: "sku", Value: p.SKU},
		}
		if p.Barcode != nil {
			uniques["products_barcode_key"] = postgres.UniqueField{Entity: "product", Field: "barcode", Value: *p.Barcode}
		}
		return postgres.MapError(fmt.Errorf("insert product: %w", err), uniques)
	}
	return nil
}

func (r *Repo) getProduct(ctx context.Context, q squirrel.SelectBuilder, productID id.ID) (*inventory.Product, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p inventory.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *Repo) GetProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	return r.getProduct(ctx, r.selectProducts().Where(squirrel.Eq{"id": productID}), productID)
}

func (r *Repo) GetProductForUpdate(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	q := r.selectProducts().Where(squirrel.Eq{"id": productID}).Suffix("FOR UPDATE")
	return r.getProduct(ctx, q, productID)
}

// lockProductsQuery locks rows in id order so concurrent batches cannot deadlock.
func (r *Repo) lockProductsQuery(productIDs []id.ID) squirrel.SelectBuilder {
	ids := slices.Clone(productIDs)
	slices.SortFunc(ids, func(a, b id.ID) int {
		switch {
		case id.Less(a, b):
			return -1
		case id.Less(b, a):
			return 1
		}
		return 0
	})
	return r.selectProducts().
		Where(squirrel.Eq{"id": ids}).
		OrderBy("id").
		Suffix("FOR UPDATE")
}

func (r *Repo) GetProductsForUpdate(ctx context.Context, productIDs []id.ID) ([]*inventory.Product, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	sql, args, err := r.lockProductsQuery(productIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var products []*inventory.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return products, nil
}

func (r *Repo) updateStockQuery(p *inventory.Product) squirrel.UpdateBuilder {
	return r.builder.Update(productsTable).
		Set("stock_level", p.StockLevel).
		Set("updated_at", p.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": p.ID}).
		Where(squirrel.Eq{"version": p.ExpectedVersion()})
}

func (r *Repo) UpdateStock(ctx context.Context, p *inventory.Product) error {
	sql, args, err := r.updateStockQuery(p).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(fmt.Errorf("update stock: %w", err), nil)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("product", p.ID)
	}
	return nil
}

// productFilter applies search and low-stock conditions shared by list and count.
func productFilter(q squirrel.SelectBuilder, filter inventory.ProductFilter) squirrel.SelectBuilder {
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}
	if filter.LowStockOnly {
		q = q.Where("stock_level <= GREATEST(min_stock_level, (min_stock_level * 3 + 1) / 2)")
	}
	return q
}

func (r *Repo) listProductsQuery(filter inventory.ProductFilter) squirrel.SelectBuilder {
	q := productFilter(r.selectProducts(), filter).OrderBy("sku")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

func (r *Repo) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]inventory.Product, int64, error) {
	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := productFilter(r.builder.Select("COUNT(*)").From(productsTable), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	sql, args, err := r.listProductsQuery(filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build select: %w", err)
	}
	var products []inventory.Product
	if err := pgxscan.Select(ctx, querier, &products, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}
