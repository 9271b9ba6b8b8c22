package dto

import (
	"time"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain/inventory"
)

// CreateProductRequest registers a product.
type CreateProductRequest struct {
	SKU           string      `json:"sku" binding:"required,max=64"`
	Barcode       string      `json:"barcode" binding:"max=64"`
	Name          string      `json:"name" binding:"required,max=255"`
	CostPrice     types.Money `json:"costPrice"`
	SellingPrice  types.Money `json:"sellingPrice"`
	MinStockLevel int64       `json:"minStockLevel" binding:"min=0"`
}

func (r CreateProductRequest) ToDomain() inventory.CreateProductRequest {
	return inventory.CreateProductRequest{
		SKU:           r.SKU,
		Barcode:       r.Barcode,
		Name:          r.Name,
		CostPrice:     r.CostPrice,
		SellingPrice:  r.SellingPrice,
		MinStockLevel: r.MinStockLevel,
	}
}

// MovementRequest applies one stock movement.
type MovementRequest struct {
	ProductID id.ID  `json:"productId"`
	Type      string `json:"type" binding:"required"`
	Quantity  int64  `json:"quantity"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
}

func (r MovementRequest) ToDomain() inventory.MovementRequest {
	return inventory.MovementRequest{
		ProductID: r.ProductID,
		Quantity:  r.Quantity,
		Type:      inventory.MovementType(r.Type),
		Reason:    r.Reason,
		Reference: r.Reference,
	}
}

// AdjustmentRequest sets a product's stock to an absolute level.
type AdjustmentRequest struct {
	ProductID   id.ID  `json:"productId"`
	TargetLevel int64  `json:"targetLevel"`
	Reason      string `json:"reason" binding:"required"`
}

// BatchRequest applies several lines atomically.
type BatchRequest struct {
	Type      string                `json:"type"`
	Reason    string                `json:"reason"`
	Reference string                `json:"reference"`
	Lines     []inventory.BatchLine `json:"lines" binding:"required,min=1"`
}

func (r BatchRequest) ToDomain() inventory.BatchRequest {
	return inventory.BatchRequest{
		Type:      inventory.MovementType(r.Type),
		Reason:    r.Reason,
		Reference: r.Reference,
		Lines:     r.Lines,
	}
}

// MovementQuery filters movement history.
type MovementQuery struct {
	Pagination
	Type string `form:"type"`
	From string `form:"from"`
	To   string `form:"to"`
}

// ToDomain converts the query; To covers the whole day.
func (q MovementQuery) ToDomain() (inventory.MovementFilter, error) {
	f := inventory.MovementFilter{Limit: q.Limit, Offset: q.Offset}
	if f.Limit == 0 {
		f.Limit = 100
	}
	if q.Type != "" {
		t := inventory.MovementType(q.Type)
		f.Type = &t
	}
	if q.From != "" {
		from, err := ParseDate(q.From)
		if err != nil {
			return f, err
		}
		f.FromDate = &from
	}
	if q.To != "" {
		to, err := ParseDate(q.To)
		if err != nil {
			return f, err
		}
		if to.Equal(to.Truncate(24 * time.Hour)) {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		f.ToDate = &to
	}
	return f, nil
}

// ProductQuery filters product listings.
type ProductQuery struct {
	Pagination
	Search   string `form:"search"`
	LowStock bool   `form:"lowStock"`
}

func (q ProductQuery) ToDomain() inventory.ProductFilter {
	f := q.ListFilter()
	return inventory.ProductFilter{
		Search:       q.Search,
		LowStockOnly: q.LowStock,
		Limit:        f.Limit,
		Offset:       f.Offset,
	}
}

// ProductListResponse is a page of products.
type ProductListResponse struct {
	Items      []inventory.Product `json:"items"`
	TotalCount int64               `json:"totalCount"`
}
