package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"configurator-service/internal/breakdown"
	"configurator-service/internal/globalid"
	"configurator-service/internal/models"
	"configurator-service/internal/service"
	"configurator-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Catalog serves category configurations and breakdown evaluation
type Catalog interface {
	GetProductConfiguration(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error)
	EvaluateBreakdown(ctx context.Context, ident models.CategoryIdentifier, b models.Breakdown) (breakdown.Result, error)
}

// Inventory serves storefront availability and session reservations
type Inventory interface {
	GetSessionInventoryForProductOptions(ctx context.Context, ident models.CategoryIdentifier, maxUnits int) (map[int64]int, error)
	GetSessionReservations(ctx context.Context, sessionID string) ([]models.InventoryReservation, error)
}

// Orders serves session orders
type Orders interface {
	GetSessionOrder(ctx context.Context, sessionID, customerID string) (*models.SessionOrder, error)
}

// Checkout adds configurations to session orders
type Checkout interface {
	AddConfigurationToSessionOrder(ctx context.Context, req *service.CheckoutRequest) (*service.CheckoutResult, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	catalog   Catalog
	inventory Inventory
	orders    Orders
	checkout  Checkout
	sessions  SessionEvents
	readiness map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(catalog Catalog, inventory Inventory, orders Orders, checkout Checkout, sessions SessionEvents, readiness map[string]Pinger) *Handler {
	return &Handler{
		catalog:   catalog,
		inventory: inventory,
		orders:    orders,
		checkout:  checkout,
		sessions:  sessions,
		readiness: readiness,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	shop := router.Group("/api/v1/shop")
	{
		shop.GET("/configurations/:productName", h.getConfiguration)
		shop.POST("/configurations/:categoryId/evaluate", h.evaluateBreakdown)
		shop.GET("/inventory/:productName", h.getInventory)

		shop.POST("/currentSession", h.createSession)
		shop.DELETE("/currentSession", h.deleteSession)

		session := shop.Group("", requireSession())
		{
			session.POST("/order/configurations", h.addConfigurationToOrder)
			session.GET("/order", h.getSessionOrder)
			session.GET("/reservations", h.getReservations)
		}
	}
}

func apiErrors(code, description string) []service.CheckoutError {
	return []service.CheckoutError{{Code: code, Description: description}}
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"is_success": true,
		"data":       data,
		"errors":     []service.CheckoutError{},
		"warnings":   []string{},
	})
}

func failure(c *gin.Context, status int, errs []service.CheckoutError) {
	c.JSON(status, gin.H{
		"is_success": false,
		"data":       nil,
		"errors":     errs,
		"warnings":   []string{},
	})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, pinger := range h.readiness {
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, state := http.StatusOK, "ready"
	if !ready {
		status, state = http.StatusServiceUnavailable, "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// getConfiguration returns the configuration of a category by name
func (h *Handler) getConfiguration(c *gin.Context) {
	cfg, err := h.catalog.GetProductConfiguration(c.Request.Context(), models.CategoryIdentifier{Name: c.Param("productName")})
	if err != nil {
		h.internalError(c, "Failed to load configuration", err)
		return
	}
	if cfg == nil {
		failure(c, http.StatusNotFound, apiErrors("404", service.MessageConfigurationNotFound))
		return
	}

	success(c, http.StatusOK, newConfigurationView(cfg))
}

type evaluateRequest struct {
	ComponentBreakdown componentBreakdown `json:"component_breakdown" binding:"required"`
}

// evaluateBreakdown validates and prices a breakdown without reserving stock
func (h *Handler) evaluateBreakdown(c *gin.Context) {
	categoryID, err := globalid.DecodeAs(globalid.KindCategory, c.Param("categoryId"))
	if err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", "Invalid category id"))
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", "Invalid request body: "+err.Error()))
		return
	}

	b, err := req.ComponentBreakdown.toBreakdown()
	if err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", err.Error()))
		return
	}

	result, err := h.catalog.EvaluateBreakdown(c.Request.Context(), models.CategoryIdentifier{ID: categoryID}, b)
	if err != nil {
		h.internalError(c, "Failed to evaluate breakdown", err)
		return
	}

	success(c, http.StatusOK, result)
}

// getInventory returns the clamped session availability of a category
func (h *Handler) getInventory(c *gin.Context) {
	maxUnits := 0
	if raw := c.Query("max_units"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			failure(c, http.StatusBadRequest, apiErrors("400", "max_units must be a positive integer"))
			return
		}
		maxUnits = parsed
	}

	available, err := h.inventory.GetSessionInventoryForProductOptions(c.Request.Context(),
		models.CategoryIdentifier{Name: c.Param("productName")}, maxUnits)
	if err != nil {
		h.internalError(c, "Failed to load inventory", err)
		return
	}

	success(c, http.StatusOK, newInventoryView(available))
}

type addConfigurationRequest struct {
	ProductCategoryID  string             `json:"product_category_id" binding:"required"`
	ComponentBreakdown componentBreakdown `json:"component_breakdown" binding:"required"`
	PurchasedCount     int                `json:"purchased_count"`
	IdempotencyKey     string             `json:"idempotency_key,omitempty"`
}

// addConfigurationToOrder validates a breakdown, reserves it and attaches it
// to the session order
func (h *Handler) addConfigurationToOrder(c *gin.Context) {
	var req addConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", "Invalid request body: "+err.Error()))
		return
	}

	categoryID, err := globalid.DecodeAs(globalid.KindCategory, req.ProductCategoryID)
	if err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", "Invalid category id"))
		return
	}

	b, err := req.ComponentBreakdown.toBreakdown()
	if err != nil {
		failure(c, http.StatusBadRequest, apiErrors("400", err.Error()))
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	sessionID, customerID := sessionFrom(c)
	result, err := h.checkout.AddConfigurationToSessionOrder(c.Request.Context(), &service.CheckoutRequest{
		SessionID:      sessionID,
		CustomerID:     customerID,
		CategoryID:     categoryID,
		Breakdown:      b,
		PurchasedCount: req.PurchasedCount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.internalError(c, "Failed to add configuration", err)
		return
	}

	if !result.IsSuccess {
		status := http.StatusOK
		if len(result.Errors) > 0 && result.Errors[0].Code == service.CodeInvalidConfiguration {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"is_success": false,
			"data":       gin.H{"shortfalls": shortfallViews(result.Shortfalls)},
			"errors":     result.Errors,
			"warnings":   []string{},
		})
		return
	}

	success(c, http.StatusOK, gin.H{
		"order_id":         globalid.Encode(globalid.KindOrder, result.OrderID),
		"configuration_id": globalid.Encode(globalid.KindConfiguration, result.ConfigurationID),
		"unit_price":       result.UnitPrice,
	})
}

func shortfallViews(shortfalls []models.Shortfall) []gin.H {
	views := make([]gin.H, len(shortfalls))
	for i, s := range shortfalls {
		views[i] = gin.H{
			"option_id": globalid.Encode(globalid.KindOption, s.OptionID),
			"requested": s.Requested,
			"available": s.Available,
		}
	}
	return views
}

// getSessionOrder returns the open order of the current session
func (h *Handler) getSessionOrder(c *gin.Context) {
	sessionID, customerID := sessionFrom(c)

	order, err := h.orders.GetSessionOrder(c.Request.Context(), sessionID, customerID)
	if err != nil {
		h.internalError(c, "Failed to load order", err)
		return
	}
	if order == nil {
		success(c, http.StatusOK, nil)
		return
	}

	success(c, http.StatusOK, newSessionOrderView(order))
}

// getReservations lists the active reservations of the current session
func (h *Handler) getReservations(c *gin.Context) {
	sessionID, _ := sessionFrom(c)

	reservations, err := h.inventory.GetSessionReservations(c.Request.Context(), sessionID)
	if err != nil {
		h.internalError(c, "Failed to load reservations", err)
		return
	}

	success(c, http.StatusOK, newReservationViews(reservations))
}

func (h *Handler) internalError(c *gin.Context, description string, err error) {
	if errors.Is(err, service.ErrInvalidIdentifier) || errors.Is(err, service.ErrMissingSession) {
		failure(c, http.StatusBadRequest, apiErrors("400", err.Error()))
		return
	}

	util.WithTrace(c.Request.Context(), h.logger).Error(description,
		zap.String("path", c.FullPath()),
		zap.Error(err))
	failure(c, http.StatusInternalServerError, apiErrors("500", description))
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
