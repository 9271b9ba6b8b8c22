package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/http/v1/dto"
)

// SubscriptionHandler serves subscriptions and billing runs.
type SubscriptionHandler struct {
	*BaseHandler
	service *subscription.Service
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(base *BaseHandler, service *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{BaseHandler: base, service: service}
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	sub, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, sub)
}

// List handles GET /subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	var q dto.SubscriptionQuery
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
		result.Items = []subscription.Subscription{}
	}
	h.OK(c, result)
}

// Get handles GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	sub, err := h.service.Get(c.Request.Context(), subscriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// Invoices handles GET /subscriptions/:id/invoices
func (h *SubscriptionHandler) Invoices(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	items, err := h.service.Invoices(c.Request.Context(), subscriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if items == nil {
		items = []subscription.Invoice{}
	}
	h.OK(c, gin.H{"items": items})
}

// Update handles PUT /subscriptions/:id
func (h *SubscriptionHandler) Update(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.UpdateSubscriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToDomain()
	if err != nil {
		h.Invalid(c, err)
		return
	}
	sub, err := h.service.Update(c.Request.Context(), subscriptionID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// Cancel handles POST /subscriptions/:id/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	var req dto.CancelRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	sub, err := h.service.Cancel(c.Request.Context(), subscriptionID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// Pause handles POST /subscriptions/:id/pause
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	sub, err := h.service.Pause(c.Request.Context(), subscriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// Resume handles POST /subscriptions/:id/resume
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	subscriptionID, ok := h.ParamID(c)
	if !ok {
		return
	}
	sub, err := h.service.Resume(c.Request.Context(), subscriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, sub)
}

// RunBilling handles POST /subscriptions/billing-runs
func (h *SubscriptionHandler) RunBilling(c *gin.Context) {
	var req dto.BillingRunRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	now := h.clock.Now()
	if t := req.AsOf.TimePtr(); t != nil {
		now = *t
	}
	h.OK(c, h.service.RunBillingCycle(c.Request.Context(), now))
}
