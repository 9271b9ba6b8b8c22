package inventory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"ledgerd/internal/core/apperror"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/core/entity"
	"ledgerd/internal/core/id"
	"ledgerd/internal/core/tx"
	"ledgerd/pkg/logger"
)

// Service is the movement ledger. It is the only writer of Product.StockLevel.
type Service struct {
	repo      Repository
	txManager tx.Manager
	alerts    AlertSink
	clock     clock.Clock
}

// NewService creates a new movement ledger service. alerts may be nil.
func NewService(repo Repository, txManager tx.Manager, alerts AlertSink, clk clock.Clock) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		alerts:    alerts,
		clock:     clk,
	}
}

// CreateProduct registers a catalog product with zero stock.
// Opening stock is booked afterwards as a PURCHASE or ADJUSTMENT movement.
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	p := &Product{
		Base:          entity.NewBase(s.clock.Now()),
		SKU:           strings.TrimSpace(req.SKU),
		Name:          strings.TrimSpace(req.Name),
		CostPrice:     req.CostPrice,
		SellingPrice:  req.SellingPrice,
		MinStockLevel: req.MinStockLevel,
	}
	if b := strings.TrimSpace(req.Barcode); b != "" {
		p.Barcode = &b
	}
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

// ApplyMovement appends one movement and updates the cached stock level atomically.
func (s *Service) ApplyMovement(ctx context.Context, req MovementRequest) (*StockMovement, error) {
	if id.IsNil(req.ProductID) {
		return nil, apperror.NewFieldValidation("productId", "product id is required")
	}
	delta, err := signedDelta(req.Type, req.Quantity)
	if err != nil {
		return nil, err
	}

	var (
		movement StockMovement
		product  *Product
	)
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return err
		}
		movement, err = s.applyLocked(ctx, p, req.Type, delta, req.Reason, req.Reference)
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock movement applied",
		"product_id", movement.ProductID,
		"type", movement.Type,
		"previous", movement.PreviousStock,
		"new", movement.NewStock,
	)
	s.evaluateLowStock(ctx, *product, movement.PreviousStock)

	return &movement, nil
}

// AdjustToLevel books an ADJUSTMENT that brings the product to target.
// A zero delta is rejected instead of producing an empty movement.
func (s *Service) AdjustToLevel(ctx context.Context, productID id.ID, target int64, reason string) (*StockMovement, error) {
	if target < 0 || target > MaxStockLevel {
		return nil, apperror.NewFieldValidation("targetLevel", "target level must be between 0 and the stock limit").
			WithDetail("limit", MaxStockLevel)
	}

	var (
		movement StockMovement
		product  *Product
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		delta := target - p.StockLevel
		if delta == 0 {
			return apperror.NewFieldValidation("targetLevel", "stock is already at the target level").
				WithDetail("stockLevel", p.StockLevel)
		}
		movement, err = s.applyLocked(ctx, p, MovementAdjustment, delta, reason, "")
		if err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.evaluateLowStock(ctx, *product, movement.PreviousStock)
	return &movement, nil
}

// ProcessBatch applies every line in one transaction. All lines are checked
// before anything is written; a shortage reports every short product.
func (s *Service) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Lines) == 0 {
		return nil, apperror.NewFieldValidation("lines", "batch must contain at least one line")
	}
	movementType := req.Type
	if movementType == "" {
		movementType = MovementSale
	}
	if movementType == MovementAdjustment {
		return nil, apperror.NewFieldValidation("type", "adjustments cannot be batched")
	}

	// Validate lines and aggregate per product, keeping first-seen order for reporting.
	required := make(map[id.ID]int64, len(req.Lines))
	order := make([]id.ID, 0, len(req.Lines))
	deltas := make([]int64, len(req.Lines))
	for i, line := range req.Lines {
		if id.IsNil(line.ProductID) {
			return nil, apperror.NewFieldValidation("lines", "product id is required").WithDetail("line", i+1)
		}
		delta, err := signedDelta(movementType, line.Quantity)
		if err != nil {
			return nil, err
		}
		deltas[i] = delta
		if _, seen := required[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		total, ok := addQuantity(required[line.ProductID], delta)
		if !ok {
			return nil, apperror.NewFieldValidation("lines", "total quantity for a product exceeds the limit").
				WithDetail("line", i+1)
		}
		required[line.ProductID] = total
	}

	result := &BatchResult{Reference: req.Reference}
	before := make(map[id.ID]int64, len(order))
	var locked []*Product

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		lockIDs := slices.Clone(order)
		slices.SortFunc(lockIDs, func(a, b id.ID) int {
			switch {
			case id.Less(a, b):
				return -1
			case id.Less(b, a):
				return 1
			}
			return 0
		})

		products, err := s.repo.GetProductsForUpdate(ctx, lockIDs)
		if err != nil {
			return err
		}
		byID := make(map[id.ID]*Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var shortages []apperror.StockShortage
		for _, productID := range order {
			p, ok := byID[productID]
			if !ok {
				return apperror.NewNotFound("product", productID)
			}
			if required[productID] > 0 {
				if _, err := nextStock(p.StockLevel, required[productID]); err != nil {
					return err
				}
			} else if p.StockLevel+required[productID] < 0 {
				shortages = append(shortages, apperror.StockShortage{
					ProductID: p.ID.String(),
					SKU:       p.SKU,
					Name:      p.Name,
					Requested: -required[productID],
					Available: p.StockLevel,
				})
			}
			before[productID] = p.StockLevel
		}
		if len(shortages) > 0 {
			return apperror.NewInsufficientStockBatch(shortages)
		}

		movements := make([]StockMovement, 0, len(req.Lines))
		now := s.clock.Now()
		for i, line := range req.Lines {
			p := byID[line.ProductID]
			movements = append(movements, newMovement(p, movementType, deltas[i], req.Reason, req.Reference, now))
			p.StockLevel += deltas[i]
		}
		for _, p := range products {
			p.Touch(now)
			if err := s.repo.UpdateStock(ctx, p); err != nil {
				return err
			}
		}
		if err := s.repo.AppendMovements(ctx, movements); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}

		result.Movements = movements
		locked = products
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock batch applied",
		"reference", req.Reference,
		"lines", len(req.Lines),
		"products", len(order),
	)
	for _, p := range locked {
		s.evaluateLowStock(ctx, *p, before[p.ID])
	}

	return result, nil
}

// applyLocked computes and persists one movement against a locked product.
func (s *Service) applyLocked(ctx context.Context, p *Product, t MovementType, delta int64, reason, reference string) (StockMovement, error) {
	if delta > 0 {
		if _, err := nextStock(p.StockLevel, delta); err != nil {
			return StockMovement{}, err
		}
	} else if p.StockLevel+delta < 0 {
		return StockMovement{}, apperror.NewInsufficientStockBatch([]apperror.StockShortage{{
			ProductID: p.ID.String(),
			SKU:       p.SKU,
			Name:      p.Name,
			Requested: -delta,
			Available: p.StockLevel,
		}})
	}

	now := s.clock.Now()
	movement := newMovement(p, t, delta, reason, reference, now)
	p.StockLevel = movement.NewStock
	p.Touch(now)

	if err := s.repo.UpdateStock(ctx, p); err != nil {
		return StockMovement{}, err
	}
	if err := s.repo.AppendMovements(ctx, []StockMovement{movement}); err != nil {
		return StockMovement{}, fmt.Errorf("append movement: %w", err)
	}
	return movement, nil
}

func newMovement(p *Product, t MovementType, delta int64, reason, reference string, now time.Time) StockMovement {
	quantity := delta
	if quantity < 0 {
		quantity = -quantity
	}
	if strings.TrimSpace(reason) == "" {
		reason = strings.ToLower(string(t))
	}
	m := StockMovement{
		ID:            id.New(),
		ProductID:     p.ID,
		Type:          t,
		Quantity:      quantity,
		PreviousStock: p.StockLevel,
		NewStock:      p.StockLevel + delta,
		Reason:        reason,
		CreatedAt:     now,
	}
	if reference != "" {
		m.Reference = &reference
	}
	return m
}

// evaluateLowStock runs after commit; alert delivery problems are only logged.
func (s *Service) evaluateLowStock(ctx context.Context, p Product, previous int64) {
	if s.alerts == nil {
		return
	}
	tier, crossed := crossedInto(previous, p.StockLevel, p.MinStockLevel)
	if !crossed {
		return
	}

	alert := StockAlert{
		ProductID:     p.ID,
		SKU:           p.SKU,
		Name:          p.Name,
		Tier:          tier,
		StockLevel:    p.StockLevel,
		MinStockLevel: p.MinStockLevel,
		Threshold:     LowStockThreshold(p.MinStockLevel),
	}
	if err := s.alerts.StockAlert(ctx, alert); err != nil {
		logger.Warn(ctx, "stock alert delivery failed",
			"product_id", p.ID,
			"tier", tier,
			"error", err,
		)
	}
}

// --- Queries ---

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, productID id.ID) (*Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int64, error) {
	return s.repo.ListProducts(ctx, filter)
}

// ListMovements returns the movement history of a product.
func (s *Service) ListMovements(ctx context.Context, productID id.ID, filter MovementFilter) ([]StockMovement, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, productID, filter)
}

// VerifyLedger replays all movements of a product from zero and compares the
// result with the cached stock level.
func (s *Service) VerifyLedger(ctx context.Context, productID id.ID) (*LedgerCheck, error) {
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	movements, err := s.repo.ListMovements(ctx, productID, MovementFilter{})
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	check := &LedgerCheck{
		ProductID:   p.ID,
		CachedStock: p.StockLevel,
		Movements:   len(movements),
	}
	var running int64
	for _, m := range movements {
		if m.PreviousStock != running {
			check.ChainBreaks++
			if check.FirstBreakAt == nil {
				brk := m.ID
				check.FirstBreakAt = &brk
			}
		}
		running += m.Delta()
	}
	check.ReplayedStock = running
	check.Consistent = check.ChainBreaks == 0 && running == p.StockLevel

	if !check.Consistent {
		logger.Warn(ctx, "stock ledger mismatch",
			"product_id", p.ID,
			"cached", p.StockLevel,
			"replayed", running,
			"chain_breaks", check.ChainBreaks,
		)
	}
	return check, nil
}

// ProductStock pairs a product with its current tier.
type ProductStock struct {
	Product
	Tier      StockTier `json:"tier"`
	Threshold int64     `json:"threshold"`
}

// LowStockProducts lists products at or below their low-stock threshold.
func (s *Service) LowStockProducts(ctx context.Context) ([]ProductStock, error) {
	products, _, err := s.repo.ListProducts(ctx, ProductFilter{LowStockOnly: true, Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("list low stock products: %w", err)
	}
	out := make([]ProductStock, 0, len(products))
	for _, p := range products {
		out = append(out, ProductStock{
			Product:   p,
			Tier:      ClassifyStock(p.StockLevel, p.MinStockLevel),
			Threshold: LowStockThreshold(p.MinStockLevel),
		})
	}
	return out, nil
}
