// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"ledgerd/internal/core/clock"
	"ledgerd/internal/domain/inventory"
	"ledgerd/internal/domain/invoice"
	"ledgerd/internal/domain/reports"
	"ledgerd/internal/domain/subscription"
	"ledgerd/internal/infrastructure/http/v1/handlers"
	"ledgerd/internal/infrastructure/http/v1/middleware"
	"ledgerd/pkg/logger"
)

// RouterConfig holds the services behind the API.
type RouterConfig struct {
	Inventory     *inventory.Service
	Invoices      *invoice.Service
	Subscriptions *subscription.Service
	Reports       *reports.Service

	// Idempotency stores Idempotency-Key responses. Nil disables replay.
	Idempotency middleware.IdempotencyStore

	// Storage names the active driver for /health; DB is pinged when set.
	Storage string
	DB      handlers.Pinger

	// ServiceName labels request spans.
	ServiceName string

	Logger *logger.Logger
	Clock  clock.Clock
	Debug  bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ledgerd"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))

	health := handlers.NewHealthHandler(cfg.Storage, cfg.DB)
	router.GET("/health", health.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	api.Use(middleware.Idempotency(cfg.Idempotency))
	api.Use(middleware.ErrorHandler())

	base := handlers.NewBaseHandler(cfg.Clock)
	registerStockRoutes(api.Group("/stock"), handlers.NewStockHandler(base, cfg.Inventory))
	registerInvoiceRoutes(api.Group("/invoices"), handlers.NewInvoiceHandler(base, cfg.Invoices))
	registerSubscriptionRoutes(api.Group("/subscriptions"), handlers.NewSubscriptionHandler(base, cfg.Subscriptions))
	registerReportRoutes(api.Group("/reports"), handlers.NewReportsHandler(base, cfg.Reports))

	return router
}

func registerStockRoutes(rg *gin.RouterGroup, h *handlers.StockHandler) {
	rg.POST("/products", h.CreateProduct)
	rg.GET("/products", h.ListProducts)
	rg.GET("/products/:id", h.GetProduct)
	rg.GET("/products/:id/movements", h.ListMovements)
	rg.GET("/products/:id/verify", h.Verify)
	rg.POST("/movements", h.ApplyMovement)
	rg.POST("/adjustments", h.Adjust)
	rg.POST("/batches", h.ProcessBatch)
}

func registerInvoiceRoutes(rg *gin.RouterGroup, h *handlers.InvoiceHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/overdue", h.Overdue)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/payments", h.RecordPayment)
	rg.POST("/:id/send", h.Send)
	rg.POST("/:id/view", h.View)
}

func registerSubscriptionRoutes(rg *gin.RouterGroup, h *handlers.SubscriptionHandler) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.POST("/billing-runs", h.RunBilling)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.GET("/:id/invoices", h.Invoices)
	rg.POST("/:id/cancel", h.Cancel)
	rg.POST("/:id/pause", h.Pause)
	rg.POST("/:id/resume", h.Resume)
}

func registerReportRoutes(rg *gin.RouterGroup, h *handlers.ReportsHandler) {
	rg.GET("/reconciliation", h.Reconciliation)
	rg.GET("/reconciliation.xlsx", h.ReconciliationXLSX)
	rg.GET("/inventory", h.Inventory)
	rg.GET("/stock-turnover", h.StockTurnover)
}
