package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgerd/internal/domain/reports"
	"ledgerd/internal/infrastructure/export"
	"ledgerd/internal/infrastructure/http/v1/dto"
)

// ReportsHandler serves read-only reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

func (h *ReportsHandler) reconciliation(c *gin.Context) (*reports.ReconciliationReport, bool) {
	var q dto.RangeQuery
	if !h.BindQuery(c, &q) {
		return nil, false
	}
	r, err := q.DateRange()
	if err != nil {
		h.Invalid(c, err)
		return nil, false
	}
	report, err := h.service.Generate(c.Request.Context(), r)
	if err != nil {
		h.Error(c, err)
		return nil, false
	}
	return report, true
}

// Reconciliation handles GET /reports/reconciliation
func (h *ReportsHandler) Reconciliation(c *gin.Context) {
	if report, ok := h.reconciliation(c); ok {
		h.OK(c, report)
	}
}

// ReconciliationXLSX handles GET /reports/reconciliation.xlsx
func (h *ReportsHandler) ReconciliationXLSX(c *gin.Context) {
	report, ok := h.reconciliation(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteReconciliation(&buf, report); err != nil {
		h.Error(c, err)
		return
	}
	name := fmt.Sprintf("reconciliation_%s_%s.xlsx",
		report.Range.From.Format(dto.DateLayout), report.Range.To.Format(dto.DateLayout))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

// Inventory handles GET /reports/inventory
func (h *ReportsHandler) Inventory(c *gin.Context) {
	snapshot, err := h.service.InventorySnapshot(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, snapshot)
}

// StockTurnover handles GET /reports/stock-turnover
func (h *ReportsHandler) StockTurnover(c *gin.Context) {
	var q dto.RangeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	r, err := q.DateRange()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	turnover, err := h.service.StockTurnover(c.Request.Context(), r)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, turnover)
}
