package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/infrastructure/http/v1/dto"
)

// StockHandler serves products and the movement ledger.
type StockHandler struct {
	*BaseHandler
	service *inventory.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *inventory.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// CreateProduct handles POST /stock/products
func (h *StockHandler) CreateProduct(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}
	product, err := h.service.CreateProduct(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, product)
}

// ListProducts handles GET /stock/products
func (h *StockHandler) ListProducts(c *gin.Context) {
	var q dto.ProductQuery
	if !h.BindQuery(c, &q) {
		return
	}
	items, total, err := h.service.ListProducts(c.Request.Context(), q.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []inventory.Product{}
	}
	h.OK(c, dto.ProductListResponse{Items: items, TotalCount: total})
}

// GetProduct handles GET /stock/products/:id
func (h *StockHandler) GetProduct(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, product)
}

// ApplyMovement handles POST /stock/movements
func (h *StockHandler) ApplyMovement(c *gin.Context) {
	var req dto.MovementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	movement, err := h.service.ApplyMovement(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, movement)
}

// Adjust handles POST /stock/adjustments
func (h *StockHandler) Adjust(c *gin.Context) {
	var req dto.AdjustmentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	movement, err := h.service.AdjustToLevel(c.Request.Context(), req.ProductID, req.TargetLevel, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, movement)
}

// ProcessBatch handles POST /stock/batches
func (h *StockHandler) ProcessBatch(c *gin.Context) {
	var req dto.BatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.ProcessBatch(c.Request.Context(), req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// ListMovements handles GET /stock/products/:id/movements
func (h *StockHandler) ListMovements(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	movements, err := h.service.ListMovements(c.Request.Context(), productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if movements == nil {
		movements = []inventory.StockMovement{}
	}
	h.OK(c, gin.H{"items": movements})
}

// Verify handles GET /stock/products/:id/verify
func (h *StockHandler) Verify(c *gin.Context) {
	productID, ok := h.ParamID(c)
	if !ok {
		return
	}
	check, err := h.service.VerifyLedger(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, check)
}
