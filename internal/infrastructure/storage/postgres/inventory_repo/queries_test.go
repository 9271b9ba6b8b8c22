package inventory_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/inventory"
)

const productColumns = "id, version, created_at, updated_at, sku, barcode, name, cost_price, selling_price, stock_level, min_stock_level"

func TestLockProductsQuery_SortsIDsAndLocks(t *testing.T) {
	repo := NewRepo(nil)
	a := id.MustParse("00000000-0000-7000-8000-000000000001")
	b := id.MustParse("00000000-0000-7000-8000-000000000002")

	sql, args, err := repo.lockProductsQuery([]id.ID{b, a}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+productColumns+" FROM products WHERE id IN ($1,$2) ORDER BY id FOR UPDATE", sql)
	assert.Equal(t, []any{a, b}, args)
}

func TestUpdateStockQuery_ChecksVersion(t *testing.T) {
	repo := NewRepo(nil)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	p := &inventory.Product{Base: entity.NewBase(now), StockLevel: 7}
	p.Touch(now)

	sql, args, err := repo.updateStockQuery(p).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE products SET stock_level = $1, updated_at = $2, version = version + 1 WHERE id = $3 AND version = $4", sql)
	assert.Equal(t, []any{int64(7), now, p.ID, 1}, args)
}

func TestListProductsQuery(t *testing.T) {
	repo := NewRepo(nil)

	sql, args, err := repo.listProductsQuery(inventory.ProductFilter{Search: "milk", LowStockOnly: true, Limit: 10, Offset: 20}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT "+productColumns+" FROM products"+
		" WHERE (name ILIKE $1 OR sku ILIKE $2)"+
		" AND stock_level <= GREATEST(min_stock_level, (min_stock_level * 3 + 1) / 2)"+
		" ORDER BY sku LIMIT 10 OFFSET 20", sql)
	assert.Equal(t, []any{"%milk%", "%milk%"}, args)
}

func TestListMovementsQuery(t *testing.T) {
	repo := NewRepo(nil)
	productID := id.New()
	sale := inventory.MovementSale
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	sql, args, err := repo.listMovementsQuery(productID, inventory.MovementFilter{Type: &sale, FromDate: &from}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, product_id, movement_type, quantity, previous_stock, new_stock, reason, reference, created_at"+
		" FROM stock_movements WHERE product_id = $1 AND movement_type = $2 AND created_at >= $3"+
		" ORDER BY created_at, id", sql)
	assert.Equal(t, []any{productID, sale, from}, args)
}
