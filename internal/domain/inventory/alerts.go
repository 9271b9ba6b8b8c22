package inventory

import (
	"context"

	"ledgerd/internal/core/id"
)

// StockTier grades a stock level against the product minimum.
type StockTier string

const (
	TierOK         StockTier = "OK"
	TierLow        StockTier = "LOW"
	TierCritical   StockTier = "CRITICAL"
	TierOutOfStock StockTier = "OUT_OF_STOCK"
)

func (t StockTier) severity() int {
	switch t {
	case TierLow:
		return 1
	case TierCritical:
		return 2
	case TierOutOfStock:
		return 3
	default:
		return 0
	}
}

// LowStockThreshold is max(min, ceil(min × 1.5)).
func LowStockThreshold(minStock int64) int64 {
	threshold := (minStock*3 + 1) / 2
	if threshold < minStock {
		return minStock
	}
	return threshold
}

// ClassifyStock maps a level to its tier.
func ClassifyStock(level, minStock int64) StockTier {
	switch {
	case level <= 0:
		return TierOutOfStock
	case level <= minStock:
		return TierCritical
	case level <= LowStockThreshold(minStock):
		return TierLow
	default:
		return TierOK
	}
}

// crossedInto returns the new tier when moving from previous to current makes things worse.
func crossedInto(previous, current, minStock int64) (StockTier, bool) {
	before := ClassifyStock(previous, minStock)
	after := ClassifyStock(current, minStock)
	return after, after.severity() > before.severity()
}

// StockAlert is raised after commit when a product drops into a worse tier.
type StockAlert struct {
	ProductID     id.ID     `json:"productId"`
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	Tier          StockTier `json:"tier"`
	StockLevel    int64     `json:"stockLevel"`
	MinStockLevel int64     `json:"minStockLevel"`
	Threshold     int64     `json:"threshold"`
}

// AlertSink receives low-stock alerts. Its failures never affect the movement.
type AlertSink interface {
	StockAlert(ctx context.Context, alert StockAlert) error
}
