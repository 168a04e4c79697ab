package handlers

import (
	"net/http"

	"phoneshop/internal/logger"
	"phoneshop/internal/services/customers"

	"github.com/gin-gonic/gin"
)

type CustomerHandler struct {
	customers *customers.Service
	logger    *logger.Logger
}

func NewCustomerHandler(svc *customers.Service, logger *logger.Logger) *CustomerHandler {
	return &CustomerHandler{
		customers: svc,
		logger:    logger,
	}
}

func (h *CustomerHandler) List(c *gin.Context) {
	list, err := h.customers.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"total": len(list),
	})
}

func (h *CustomerHandler) Get(c *gin.Context) {
	customer, err := h.customers.Get(c.Request.Context(), c.Param("phone"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": customer})
}
