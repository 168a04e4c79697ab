package handlers

import (
	"net/http"

	"phoneshop/internal/logger"
	"phoneshop/internal/services/warranty"

	"github.com/gin-gonic/gin"
)

type WarrantyHandler struct {
	warranty *warranty.Service
	logger   *logger.Logger
}

func NewWarrantyHandler(svc *warranty.Service, logger *logger.Logger) *WarrantyHandler {
	return &WarrantyHandler{
		warranty: svc,
		logger:   logger,
	}
}

func (h *WarrantyHandler) Packages(c *gin.Context) {
	packages, err := h.warranty.Packages(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": packages})
}

// Issue writes a contract outside of an order, e.g. a warranty bought later.
func (h *WarrantyHandler) Issue(c *gin.Context) {
	var req warranty.IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	contract, err := h.warranty.Issue(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": contract})
}

func (h *WarrantyHandler) ByDevice(c *gin.Context) {
	contracts, err := h.warranty.ByDevice(c.Request.Context(), c.Param("imei"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": contracts})
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *WarrantyHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	contracts, err := h.warranty.CancelByDevice(c.Request.Context(), c.Param("imei"), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      contracts,
		"cancelled": len(contracts),
	})
}
