// Package handlers exposes the storefront services over HTTP with gin.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/admin"
	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// HandlerConfig groups the services the routes are served from.
type HandlerConfig struct {
	Catalog      *catalog.Service
	Auth         *auth.Service
	Tokens       middleware.TokenVerifier
	Orders       *orders.Service
	Payments     *payments.Service
	Applications *applications.Service
	Admin        *admin.Service
	Audit        *audit.Store
	Idempotency  *idempotency.Store
	Logger       *zap.Logger
}

type Handler struct {
	catalog      *catalog.Service
	auth         *auth.Service
	orders       *orders.Service
	payments     *payments.Service
	applications *applications.Service
	admin        *admin.Service
	audit        *audit.Store
	idem         *idempotency.Store
	validate     *validatorv10.Validate
	logger       *zap.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		catalog:      cfg.Catalog,
		auth:         cfg.Auth,
		orders:       cfg.Orders,
		payments:     cfg.Payments,
		applications: cfg.Applications,
		admin:        cfg.Admin,
		audit:        cfg.Audit,
		idem:         cfg.Idempotency,
		validate:     validation.New(),
		logger:       logger,
	}
}

// NewRouter builds the engine with the shared middleware and every route.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	h := NewHandler(cfg)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(h.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRoutes(r, h, cfg.Tokens)
	return r
}

// RegisterRoutes mounts the public, authenticated and admin route groups.
func RegisterRoutes(r *gin.Engine, h *Handler, tokens middleware.TokenVerifier) {
	api := r.Group("/api")

	api.GET("/products", h.listProducts)
	api.GET("/products/:id", h.getProduct)
	api.POST("/auth/register", h.register)
	api.POST("/auth/login", h.login)
	api.POST("/admin/login", h.adminLogin)

	authed := api.Group("", middleware.RequireAuth(tokens))
	authed.GET("/auth/me", h.me)
	authed.POST("/orders", h.createOrder)
	authed.GET("/orders/my-orders", h.myOrders)
	authed.GET("/orders/:id", h.getOrder)
	authed.PATCH("/orders/:id/status", h.updateOwnOrderStatus)
	authed.POST("/payments/verify", h.verifyPayment)
	authed.POST("/applications", h.submitApplication)
	authed.GET("/applications/my-applications", h.myApplications)
	authed.GET("/applications/:id", h.getApplication)

	adm := authed.Group("/admin", middleware.RequireAdmin())
	adm.GET("/dashboard", h.dashboard)
	adm.GET("/orders", h.adminListOrders)
	adm.GET("/orders/:id", h.adminGetOrder)
	adm.PATCH("/orders/:id/status", h.adminSetOrderStatus)
	adm.GET("/applications", h.adminListApplications)
	adm.PATCH("/applications/:id/status", h.adminSetApplicationStatus)
	adm.GET("/products", h.adminListProducts)
	adm.POST("/products", h.createProduct)
	adm.PUT("/products/:id", h.updateProduct)
	adm.DELETE("/products/:id", h.deleteProduct)
	adm.GET("/audit/:entityType/:id", h.auditTrail)
}
