package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id string, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type OrderCompleter interface {
	Complete(ctx context.Context, orderID string, amount float64, userName string) (*domain.OrderCompletion, error)
}

type NotificationFeed interface {
	ListAll(ctx context.Context) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	UnreadCount(ctx context.Context) (int, error)
	Healthy() bool
	State() service.ConsumerState
}

type HTTPHandler struct {
	catalog       Catalog
	orders        OrderCompleter
	notifications NotificationFeed
	log           *zap.Logger
}

type ProductRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	CategoryID  string   `json:"category_id"`
	Stock       int      `json:"stock"`
	Images      []string `json:"images"`
	IsActive    *bool    `json:"is_active"`
}

type CategoryRequest struct {
	Name     string `json:"name" binding:"required"`
	Slug     string `json:"slug"`
	Image    string `json:"image"`
	IsActive *bool  `json:"is_active"`
}

type CompleteOrderRequest struct {
	Amount   *float64 `json:"amount" binding:"required"`
	UserName string   `json:"user_name"`
}

func NewHTTPHandler(catalog Catalog, orders OrderCompleter, notifications NotificationFeed, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		catalog:       catalog,
		orders:        orders,
		notifications: notifications,
		log:           log.With(zap.String("component", "http_handler")),
	}
}

// Register mounts the API routes on r.
func (h *HTTPHandler) Register(r *gin.Engine) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		products := api.Group("/products")
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.POST("", h.CreateProduct)
		products.PUT("/:id", h.UpdateProduct)
		products.DELETE("/:id", h.DeleteProduct)

		categories := api.Group("/categories")
		categories.GET("", h.ListCategories)
		categories.GET("/:id", h.GetCategory)
		categories.POST("", h.CreateCategory)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)

		api.POST("/orders/:id/complete", h.CompleteOrder)

		notifications := api.Group("/notifications")
		notifications.GET("", h.ListNotifications)
		notifications.GET("/unread-count", h.UnreadCount)
		notifications.PUT("/read-all", h.MarkAllRead)
		notifications.PUT("/:id/read", h.MarkRead)
	}
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to fetch products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch product")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req.toProduct())
	if err != nil {
		h.writeError(c, err, "failed to create product")
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), req.toProduct())
	if err != nil {
		h.writeError(c, err, "failed to update product")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete product")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "failed to fetch categories")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories, "count": len(categories)})
}

func (h *HTTPHandler) GetCategory(c *gin.Context) {
	category, err := h.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to fetch category")
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *HTTPHandler) CreateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), req.toCategory())
	if err != nil {
		h.writeError(c, err, "failed to create category")
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *HTTPHandler) UpdateCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	category, err := h.catalog.UpdateCategory(c.Request.Context(), c.Param("id"), req.toCategory())
	if err != nil {
		h.writeError(c, err, "failed to update category")
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *HTTPHandler) DeleteCategory(c *gin.Context) {
	if err := h.catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete category")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) CompleteOrder(c *gin.Context) {
	var req CompleteOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount is required"})
		return
	}

	completion, err := h.orders.Complete(c.Request.Context(), c.Param("id"), *req.Amount, req.UserName)
	if err != nil {
		h.writeError(c, err, "failed to complete order")
		return
	}
	c.JSON(http.StatusOK, completion)
}

func (h *HTTPHandler) ListNotifications(c *gin.Context) {
	feed, err := h.notifications.ListAll(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "notifications unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": feed, "count": len(feed)})
}

func (h *HTTPHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "notifications unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *HTTPHandler) MarkRead(c *gin.Context) {
	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err, "notifications unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	if err := h.notifications.MarkAllRead(c.Request.Context()); err != nil {
		h.writeError(c, err, "notifications unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "consumer": h.notifications.State().String()}
	if !h.notifications.Healthy() {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// writeError maps service errors to status codes. Anything unrecognised on a
// notification route is a feed store failure.
func (h *HTTPHandler) writeError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, port.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrNotificationNotFound):
		status, message = http.StatusNotFound, "notification not found"
	case errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrUnknownCategory),
		errors.Is(err, service.ErrInvalidOrder):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrDuplicateCompletion):
		status, message = http.StatusConflict, "order already completed"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case strings.HasPrefix(c.FullPath(), "/api/notifications"):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.log.Error(message, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}

func (r ProductRequest) toProduct() domain.Product {
	return domain.Product{
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		CategoryID:  r.CategoryID,
		Stock:       r.Stock,
		Images:      r.Images,
		IsActive:    r.IsActive == nil || *r.IsActive,
	}
}

func (r CategoryRequest) toCategory() domain.Category {
	return domain.Category{
		Name:     r.Name,
		Slug:     r.Slug,
		Image:    r.Image,
		IsActive: r.IsActive == nil || *r.IsActive,
	}
}
