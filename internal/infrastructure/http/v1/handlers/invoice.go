package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler serves the invoice lifecycle.
type InvoiceHandler struct {
	*BaseHandler
	service *invoice.Service
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(base *BaseHandler, service *invoice.Service) *InvoiceHandler {
	return &InvoiceHandler{BaseHandler: base, service: service}
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	inv, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, inv)
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var q dto.InvoiceQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter, err := q.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if result.Items == nil {
		result.Items = []invoice.Invoice{}
	}
	h.OK(c, result)
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	inv, err := h.service.Get(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, inv)
}

// Update handles PUT /invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	inv, err := h.service.Update(c.Request.Context(), invoiceID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, inv)
}

// Delete handles DELETE /invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// RecordPayment handles POST /invoices/:id/payments
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	inv, err := h.service.RecordPayment(c.Request.Context(), invoiceID, req.ToDomain())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, inv)
}

// Send handles POST /invoices/:id/send
func (h *InvoiceHandler) Send(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	inv, err := h.service.MarkSent(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, inv)
}

// View handles POST /invoices/:id/view
func (h *InvoiceHandler) View(c *gin.Context) {
	invoiceID, ok := h.ParamID(c)
	if !ok {
		return
	}
	inv, err := h.service.MarkViewed(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, inv)
}

// Overdue handles GET /invoices/overdue
func (h *InvoiceHandler) Overdue(c *gin.Context) {
	asOf := h.clock.Now()
	if raw := c.Query("asOf"); raw != "" {
		parsed, err := dto.ParseDate(raw)
		if err != nil {
			h.Invalid(c, err)
			return
		}
		asOf = parsed
	}
	items, err := h.service.GetOverdue(c.Request.Context(), asOf)
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []invoice.Invoice{}
	}
	h.OK(c, dto.OverdueResponse{AsOf: dto.Date{Time: clock.Date(asOf)}, Items: items})
}
