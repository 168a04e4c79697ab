package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"phoneshop/internal/api/middleware"
	"phoneshop/internal/database"
	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/services/orders"
	"phoneshop/internal/vn"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orders  *orders.Service
	journal *database.Database
	logger  *logger.Logger
}

func NewOrderHandler(svc *orders.Service, journal *database.Database, logger *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders:  svc,
		journal: journal,
		logger:  logger,
	}
}

func (h *OrderHandler) bindCart(c *gin.Context) (models.Cart, bool) {
	var cart models.Cart
	if err := c.ShouldBindJSON(&cart); err != nil {
		badRequest(c, err)
		return cart, false
	}
	if cart.Staff == "" {
		cart.Staff = middleware.Staff(c)
	}
	return cart, true
}

// Quote prices a cart without writing anything.
func (h *OrderHandler) Quote(c *gin.Context) {
	cart, ok := h.bindCart(c)
	if !ok {
		return
	}
	order, err := h.orders.Quote(c.Request.Context(), cart)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// Create writes the order. When the order rows were written but a
// follow-up step failed, it answers 202 with the order and the failure.
func (h *OrderHandler) Create(c *gin.Context) {
	cart, ok := h.bindCart(c)
	if !ok {
		return
	}
	order, err := h.orders.Create(c.Request.Context(), cart)
	if errors.Is(err, orders.ErrOrderIncomplete) && order != nil {
		_ = c.Error(err)
		c.JSON(http.StatusAccepted, gin.H{
			"data":    order,
			"warning": err.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// List pages through the local order journal.
func (h *OrderHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}

	filter := database.OrderFilter{
		Staff:  c.Query("staff"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if phone := c.Query("phone"); phone != "" {
		filter.Phone = vn.NormalizePhone(phone)
	}

	records, total, err := h.journal.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": records,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// Get rebuilds an order from the orders sheet.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}
