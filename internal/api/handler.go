package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"pos-ledger/internal/models"
	"pos-ledger/internal/service"
	"pos-ledger/internal/util"
)

// Handler contains HTTP handlers
type Handler struct {
	purchases *service.PurchaseService
	cashbox   *service.CashboxService
	audit     *service.AuditTrail
	ready     func(ctx context.Context) error
}

// NewHandler creates a new HTTP handler. ready backs the readiness probe and
// may be nil.
func NewHandler(
	purchases *service.PurchaseService,
	cashbox *service.CashboxService,
	audit *service.AuditTrail,
	ready func(ctx context.Context) error,
) *Handler {
	return &Handler{
		purchases: purchases,
		cashbox:   cashbox,
		audit:     audit,
		ready:     ready,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(identityMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/purchases", h.listCustomerPurchases)
		v1.GET("/purchases/recent", h.recentPurchases)
		v1.GET("/purchases/:id", h.getPurchase)
	}

	auth := v1.Group("", requireActor())
	{
		auth.POST("/products", h.createProduct)
		auth.POST("/products/:id/restock", h.restock)

		auth.POST("/purchases", h.createPurchase)
		auth.PUT("/purchases/:id/items", h.editPurchase)
		auth.POST("/purchases/:id/cancel", h.cancelPurchase)
		auth.POST("/purchases/:id/confirm-presale", h.confirmPreSale)
		auth.POST("/purchases/:id/pay", h.confirmPayment)
		auth.POST("/purchases/:id/deliver", h.deliverPurchase)
		auth.POST("/purchases/:id/returns", h.returnItem)
		auth.POST("/purchases/:id/notify", h.notify)

		auth.POST("/cashbox/sessions", h.openSession)
		auth.POST("/cashbox/sessions/:id/close", h.closeSession)
		auth.GET("/cashbox/sessions/active", h.activeSession)
		auth.GET("/cashbox/sessions", h.listSessions)

		auth.GET("/audit", h.listAudit)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"details": err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.purchases.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.purchases.CreateProduct(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) restock(c *gin.Context) {
	var req restockRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.purchases.Restock(c.Request.Context(), actorFrom(c), c.Param("id"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// createPurchase handles purchase creation
func (h *Handler) createPurchase(c *gin.Context) {
	var req service.CreatePurchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	actor := actorFrom(c)
	purchase, err := h.purchases.CreatePurchase(c.Request.Context(), &req, &actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}

func (h *Handler) getPurchase(c *gin.Context) {
	purchase, err := h.purchases.GetPurchase(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *Handler) listCustomerPurchases(c *gin.Context) {
	purchases, err := h.purchases.GetPurchasesByCustomer(c.Request.Context(), c.Query("customer"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

func (h *Handler) recentPurchases(c *gin.Context) {
	channel, ok := models.ParseChannel(c.DefaultQuery("channel", string(models.ChannelImmediate)))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid channel",
		})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	purchases, err := h.purchases.GetRecentPurchases(c.Request.Context(), channel, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

type editItemsRequest struct {
	Items []service.ItemRequest `json:"items"`
}

func (h *Handler) editPurchase(c *gin.Context) {
	var req editItemsRequest
	if !bindJSON(c, &req) {
		return
	}
	purchase, err := h.purchases.EditPurchase(c.Request.Context(), c.Param("id"), req.Items, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

type purchaseAction func(ctx context.Context, purchaseID string, actor models.Actor) (*models.Purchase, error)

func (h *Handler) runAction(c *gin.Context, action purchaseAction) {
	purchase, err := action(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *Handler) cancelPurchase(c *gin.Context)  { h.runAction(c, h.purchases.CancelPurchase) }
func (h *Handler) confirmPreSale(c *gin.Context)  { h.runAction(c, h.purchases.ConfirmPreSale) }
func (h *Handler) confirmPayment(c *gin.Context)  { h.runAction(c, h.purchases.ConfirmPayment) }
func (h *Handler) deliverPurchase(c *gin.Context) { h.runAction(c, h.purchases.DeliverPurchase) }

type returnRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handler) returnItem(c *gin.Context) {
	var req returnRequest
	if !bindJSON(c, &req) {
		return
	}
	purchase, err := h.purchases.ReturnItem(c.Request.Context(), c.Param("id"), req.ProductID, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

type notifyRequest struct {
	Phone string `json:"phone"`
}

func (h *Handler) notify(c *gin.Context) {
	var req notifyRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	sent, err := h.purchases.SendConfirmation(c.Request.Context(), c.Param("id"), req.Phone)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

type openSessionRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (h *Handler) openSession(c *gin.Context) {
	var req openSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.cashbox.Open(c.Request.Context(), actorFrom(c), req.OpeningBalance)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

type closeSessionRequest struct {
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

func (h *Handler) closeSession(c *gin.Context) {
	var req closeSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.cashbox.Close(c.Request.Context(), c.Param("id"), req.ClosingBalance, actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) activeSession(c *gin.Context) {
	operatorID := c.DefaultQuery("operator_id", actorFrom(c).ID)
	session, err := h.cashbox.GetActive(c.Request.Context(), operatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) listSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	sessions, err := h.cashbox.ListSessions(c.Request.Context(), c.Query("operator_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) listAudit(c *gin.Context) {
	if !actorFrom(c).IsAdmin() {
		respondError(c, service.ErrForbidden)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.audit.List(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
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
