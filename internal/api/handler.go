package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-checkout/internal/access"
	"pos-checkout/internal/checkout"
	"pos-checkout/internal/models"
	"pos-checkout/internal/pricing"
	"pos-checkout/internal/service"
	"pos-checkout/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"

	ctxUserID = "user_id"
	ctxRole   = "role"
)

// Catalog serves the shared product listing
type Catalog interface {
	CachedProducts(ctx context.Context) ([]models.Product, error)
}

// RoleResolver maps a staff id to its role
type RoleResolver interface {
	Role(ctx context.Context, userID string) (access.Role, error)
}

// CommitGuard deduplicates commit retries
type CommitGuard interface {
	Commit(ctx context.Context, key string, fn func(context.Context) (*checkout.Transaction, error)) (*checkout.Transaction, bool, error)
}

// Deps are the collaborators of the HTTP surface
type Deps struct {
	Backend checkout.Backend
	Catalog Catalog
	Staff   RoleResolver
	Guard   CommitGuard
	Events  checkout.EventSink
	Config  checkout.Config
	// Checks run on /ready, keyed by dependency name
	Checks map[string]func(context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	deps     Deps
	sessions *SessionRegistry
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:     deps,
		sessions: NewSessionRegistry(),
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1", h.requireStaff())
	{
		v1.GET("/modules", h.listModules)
		v1.GET("/products", h.listProducts)
		v1.GET("/customers", h.listCustomers)
		v1.POST("/customers", h.createCustomer)

		v1.POST("/sessions", h.openSession)
		s := v1.Group("/sessions/:id")
		{
			s.GET("", h.getSession)
			s.DELETE("", h.closeSession)
			s.POST("/items", h.addItem)
			s.PATCH("/items/:productId", h.changeQuantity)
			s.DELETE("/items/:productId", h.removeItem)
			s.PUT("/discount", h.setDiscount)
			s.PUT("/customer", h.selectCustomer)
			s.DELETE("/customer", h.clearCustomer)
			s.POST("/customers", h.createSessionCustomer)
			s.POST("/payment", h.processPayment)
			s.POST("/cancel", h.cancelPayment)
			s.POST("/commit", h.commit)
			s.POST("/acknowledge", h.acknowledge)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.deps.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
			"time":    time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireStaff resolves X-User-ID to an active staff member and role
func (h *Handler) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing " + headerUserID + " header",
			})
			return
		}

		role, err := h.deps.Staff.Role(c.Request.Context(), userID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrUnknownStaff) || errors.Is(err, access.ErrUnknownRole) {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":   "Unable to identify staff member",
				"details": err.Error(),
			})
			return
		}

		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func staffFrom(c *gin.Context) (string, access.Role) {
	return c.GetString(ctxUserID), c.MustGet(ctxRole).(access.Role)
}

// moduleGroup is one dashboard category
type moduleGroup struct {
	Category string          `json:"category"`
	Modules  []access.Module `json:"modules"`
}

// listModules returns the dashboard modules the caller can open
func (h *Handler) listModules(c *gin.Context) {
	_, role := staffFrom(c)
	order, groups := access.GroupByCategory(access.Modules(role))

	out := make([]moduleGroup, 0, len(order))
	for _, cat := range order {
		out = append(out, moduleGroup{Category: cat, Modules: groups[cat]})
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "groups": out})
}

// listProducts returns the catalog, optionally filtered by ?q=
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.deps.Catalog.CachedProducts(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load catalog", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load products",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": checkout.FilterProducts(products, c.Query("q"))})
}

func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.deps.Backend.FetchCustomers(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load customers", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to load customers",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (h *Handler) createCustomer(c *gin.Context) {
	var req models.NewCustomer
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		writeError(c, checkout.ErrInvalidCustomer, nil)
		return
	}

	customer, err := h.deps.Backend.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Failed to create customer", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to create customer",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

// statusFor maps checkout errors to HTTP statuses
func statusFor(err error) int {
	var pf *checkout.PersistenceFailure
	switch {
	case errors.As(err, &pf):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrCustomerRequired),
		errors.Is(err, checkout.ErrInsufficientPayment),
		errors.Is(err, checkout.ErrInvalidCustomer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, checkout.ErrProductNotFound),
		errors.Is(err, checkout.ErrCustomerNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrOutOfStock),
		errors.Is(err, service.ErrRequestInProgress):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrUnknownPaymentMethod),
		errors.Is(err, pricing.ErrUnknownDiscountKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the session view when there is one
func writeError(c *gin.Context, err error, view *checkout.View) {
	body := gin.H{
		"error":   err.Error(),
		"details": checkout.FailureCode(err),
	}
	if view != nil {
		body["session"] = view
	}
	c.JSON(statusFor(err), body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
