package inventory

import (
	"context"

	"ledgerd/internal/core/id"
)

// Repository defines persistence for products and their movement ledger.
type Repository interface {
	// Products

	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ID) (*Product, error)

	// GetProductForUpdate returns the product with a row lock held until the transaction ends.
	GetProductForUpdate(ctx context.Context, productID id.ID) (*Product, error)

	// GetProductsForUpdate locks several products in ascending id order.
	GetProductsForUpdate(ctx context.Context, productIDs []id.ID) ([]*Product, error)

	// UpdateStock stores the new cached level. The product must still be at
	// p.ExpectedVersion(), otherwise a concurrent modification error is returned.
	UpdateStock(ctx context.Context, p *Product) error

	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int64, error)

	// Movements (append-only)

	AppendMovements(ctx context.Context, movements []StockMovement) error

	// ListMovements returns movements in creation order.
	ListMovements(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error)
}
