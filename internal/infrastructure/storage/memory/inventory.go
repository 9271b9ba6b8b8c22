package memory

import (
	"context"
	"slices"
	"strings"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/id"
	"ledgerd/internal/domain/inventory"
)

var _ inventory.Repository = (*InventoryRepo)(nil)

// InventoryRepo implements inventory.Repository.
type InventoryRepo struct {
	store *Store
}

// Inventory returns the product and movement repository.
func (s *Store) Inventory() *InventoryRepo {
	return &InventoryRepo{store: s}
}

func (r *InventoryRepo) CreateProduct(ctx context.Context, p *inventory.Product) error {
	return r.store.with(ctx, func(st *state) error {
		for _, existing := range st.products {
			if existing.SKU == p.SKU {
				return apperror.NewDuplicate("product", "sku", p.SKU)
			}
			if p.Barcode != nil && existing.Barcode != nil && *existing.Barcode == *p.Barcode {
				return apperror.NewDuplicate("product", "barcode", *p.Barcode)
			}
		}
		st.products[p.ID] = *p
		return nil
	})
}

func (r *InventoryRepo) GetProduct(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	var out *inventory.Product
	err := r.store.with(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return apperror.NewNotFound("product", productID)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *InventoryRepo) GetProductForUpdate(ctx context.Context, productID id.ID) (*inventory.Product, error) {
	return r.GetProduct(ctx, productID)
}

func (r *InventoryRepo) GetProductsForUpdate(ctx context.Context, productIDs []id.ID) ([]*inventory.Product, error) {
	var out []*inventory.Product
	err := r.store.with(ctx, func(st *state) error {
		for _, productID := range productIDs {
			if p, ok := st.products[productID]; ok {
				out = append(out, &p)
			}
		}
		return nil
	})
	return out, err
}

func (r *InventoryRepo) UpdateStock(ctx context.Context, p *inventory.Product) error {
	return r.store.with(ctx, func(st *state) error {
		stored, ok := st.products[p.ID]
		if !ok {
			return apperror.NewNotFound("product", p.ID)
		}
		if stored.Version != p.ExpectedVersion() {
			return apperror.NewConcurrentModification("product", p.ID)
		}
		stored.StockLevel = p.StockLevel
		stored.Version = p.Version
		stored.UpdatedAt = p.UpdatedAt
		st.products[p.ID] = stored
		return nil
	})
}

func (r *InventoryRepo) ListProducts(ctx context.Context, filter inventory.ProductFilter) ([]inventory.Product, int64, error) {
	var (
		out   []inventory.Product
		total int64
	)
	err := r.store.with(ctx, func(st *state) error {
		search := strings.ToLower(strings.TrimSpace(filter.Search))
		for _, p := range st.products {
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.SKU), search) {
				continue
			}
			if filter.LowStockOnly && p.StockLevel > inventory.LowStockThreshold(p.MinStockLevel) {
				continue
			}
			out = append(out, p)
		}
		slices.SortFunc(out, func(a, b inventory.Product) int { return strings.Compare(a.SKU, b.SKU) })
		total = int64(len(out))
		out = page(out, filter.Limit, filter.Offset)
		return nil
	})
	return out, total, err
}

func (r *InventoryRepo) AppendMovements(ctx context.Context, movements []inventory.StockMovement) error {
	return r.store.with(ctx, func(st *state) error {
		st.movements = append(st.movements, movements...)
		return nil
	})
}

func (r *InventoryRepo) ListMovements(ctx context.Context, productID id.ID, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	err := r.store.with(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID != productID {
				continue
			}
			if filter.Type != nil && m.Type != *filter.Type {
				continue
			}
			if filter.FromDate != nil && m.CreatedAt.Before(*filter.FromDate) {
				continue
			}
			if filter.ToDate != nil && m.CreatedAt.After(*filter.ToDate) {
				continue
			}
			out = append(out, m)
		}
		out = page(out, filter.Limit, filter.Offset)
		return nil
	})
	return out, err
}
