// Package inventory implements the stock movement ledger.
// A product's stock level is a cache of the sum of its signed movements.
package inventory

import (
	"context"
	"strings"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
)

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementSale       MovementType = "SALE"
	MovementPurchase   MovementType = "PURCHASE"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementReturn     MovementType = "RETURN"
	MovementDamage     MovementType = "DAMAGE"
)

// direction tells how a movement quantity affects stock.
type direction int

const (
	directionAdd direction = iota + 1
	directionSubtract
	directionSigned
)

// movementDirections is the single source of sign semantics.
var movementDirections = map[MovementType]direction{
	MovementPurchase:   directionAdd,
	MovementReturn:     directionAdd,
	MovementSale:       directionSubtract,
	MovementDamage:     directionSubtract,
	MovementAdjustment: directionSigned,
}

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	_, ok := movementDirections[t]
	return ok
}

// Quantity limits. Stock arithmetic stays far from int64 overflow.
const (
	MaxMovementQuantity int64 = 1_000_000_000
	MaxStockLevel       int64 = 1_000_000_000_000_000
)

// signedDelta converts a requested quantity into the signed stock change.
func signedDelta(t MovementType, quantity int64) (int64, error) {
	dir, ok := movementDirections[t]
	if !ok {
		return 0, apperror.NewFieldValidation("type", "unknown movement type").WithDetail("value", string(t))
	}
	if quantity > MaxMovementQuantity || quantity < -MaxMovementQuantity {
		return 0, apperror.NewFieldValidation("quantity", "quantity exceeds the movement limit").
			WithDetail("limit", MaxMovementQuantity)
	}
	switch dir {
	case directionAdd:
		if quantity <= 0 {
			return 0, apperror.NewFieldValidation("quantity", "quantity must be positive")
		}
		return quantity, nil
	case directionSubtract:
		if quantity <= 0 {
			return 0, apperror.NewFieldValidation("quantity", "quantity must be positive")
		}
		return -quantity, nil
	default:
		if quantity == 0 {
			return 0, apperror.NewFieldValidation("quantity", "adjustment must change the stock level")
		}
		return quantity, nil
	}
}

// addQuantity adds a and b, reporting false on int64 overflow.
func addQuantity(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// nextStock applies delta to level. It fails when the result is negative
// (a shortage) or above MaxStockLevel.
func nextStock(level, delta int64) (int64, error) {
	sum, ok := addQuantity(level, delta)
	if !ok || sum > MaxStockLevel {
		return 0, apperror.NewFieldValidation("quantity", "stock level would exceed the limit").
			WithDetail("limit", MaxStockLevel).
			WithDetail("stockLevel", level)
	}
	return sum, nil
}

// Product is a stocked item. StockLevel is mutated only through the movement ledger.
type Product struct {
	entity.Base

	SKU           string      `db:"sku" json:"sku"`
	Barcode       *string     `db:"barcode" json:"barcode,omitempty"`
	Name          string      `db:"name" json:"name"`
	CostPrice     types.Money `db:"cost_price" json:"costPrice"`
	SellingPrice  types.Money `db:"selling_price" json:"sellingPrice"`
	StockLevel    int64       `db:"stock_level" json:"stockLevel"`
	MinStockLevel int64       `db:"min_stock_level" json:"minStockLevel"`
}

// Validate checks product invariants.
func (p *Product) Validate(_ context.Context) error {
	if strings.TrimSpace(p.SKU) == "" {
		return apperror.NewFieldValidation("sku", "sku is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperror.NewFieldValidation("name", "name is required")
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return apperror.NewFieldValidation("price", "prices must not be negative")
	}
	if p.MinStockLevel < 0 {
		return apperror.NewFieldValidation("minStockLevel", "minimum stock level must not be negative")
	}
	if p.StockLevel < 0 {
		return apperror.NewFieldValidation("stockLevel", "stock level must not be negative")
	}
	return nil
}

// StockMovement is an immutable ledger entry. Quantity is the unsigned magnitude;
// PreviousStock and NewStock chain with the product's running total.
type StockMovement struct {
	ID            id.ID        `db:"id" json:"id"`
	ProductID     id.ID        `db:"product_id" json:"productId"`
	Type          MovementType `db:"movement_type" json:"type"`
	Quantity      int64        `db:"quantity" json:"quantity"`
	PreviousStock int64        `db:"previous_stock" json:"previousStock"`
	NewStock      int64        `db:"new_stock" json:"newStock"`
	Reason        string       `db:"reason" json:"reason"`
	Reference     *string      `db:"reference" json:"reference,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// Delta is the signed effect of the movement on stock.
func (m StockMovement) Delta() int64 {
	return m.NewStock - m.PreviousStock
}

// MovementRequest asks the ledger to apply one movement.
// For ADJUSTMENT Quantity is a signed delta, otherwise a positive magnitude.
type MovementRequest struct {
	ProductID id.ID
	Quantity  int64
	Type      MovementType
	Reason    string
	Reference string
}

// BatchLine is one line of a multi-line movement.
type BatchLine struct {
	ProductID id.ID `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// BatchRequest applies lines of the same movement type atomically. Type defaults to SALE.
type BatchRequest struct {
	Type      MovementType
	Reason    string
	Reference string
	Lines     []BatchLine
}

// BatchResult lists the movements committed by a batch.
type BatchResult struct {
	Reference string          `json:"reference,omitempty"`
	Movements []StockMovement `json:"movements"`
}

// CreateProductRequest registers a product with zero stock.
type CreateProductRequest struct {
	SKU           string
	Barcode       string
	Name          string
	CostPrice     types.Money
	SellingPrice  types.Money
	MinStockLevel int64
}

// MovementFilter for movement history.
type MovementFilter struct {
	Type     *MovementType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// ProductFilter for product listings.
type ProductFilter struct {
	Search       string
	LowStockOnly bool
	Limit        int
	Offset       int
}

// LedgerCheck is the result of replaying a product's movements from zero.
type LedgerCheck struct {
	ProductID     id.ID  `json:"productId"`
	CachedStock   int64  `json:"cachedStock"`
	ReplayedStock int64  `json:"replayedStock"`
	Movements     int    `json:"movements"`
	ChainBreaks   int    `json:"chainBreaks"`
	Consistent    bool   `json:"consistent"`
	FirstBreakAt  *id.ID `json:"firstBreakAt,omitempty"`
}
