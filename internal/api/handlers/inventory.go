package handlers

import (
	"errors"
	"net/http"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/services/inventory"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type InventoryHandler struct {
	inventory *inventory.Service
	logger    *logger.Logger
}

func NewInventoryHandler(inv *inventory.Service, logger *logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		inventory: inv,
		logger:    logger,
	}
}

// List returns devices, optionally filtered by ?status=.
func (h *InventoryHandler) List(c *gin.Context) {
	var status models.DeviceStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseDeviceStatus(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		status = parsed
	}

	devices, err := h.inventory.List(c.Request.Context(), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  devices,
		"total": len(devices),
	})
}

func (h *InventoryHandler) Get(c *gin.Context) {
	device, err := h.inventory.Get(c.Request.Context(), c.Param("imei"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": device})
}

type receiveRequest struct {
	IMEI     string          `json:"imei" binding:"required"`
	Model    string          `json:"model" binding:"required"`
	Capacity string          `json:"capacity"`
	Color    string          `json:"color"`
	Cost     decimal.Decimal `json:"cost"`
	Price    decimal.Decimal `json:"price"`
	Note     string          `json:"note"`
}

// Receive adds a device to stock.
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	device, err := h.inventory.Receive(c.Request.Context(), models.Device{
		IMEI:     req.IMEI,
		Model:    req.Model,
		Capacity: req.Capacity,
		Color:    req.Color,
		Cost:     req.Cost,
		Price:    req.Price,
		Note:     req.Note,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": device})
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *InventoryHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	to, err := models.ParseDeviceStatus(req.Status)
	if err != nil {
		badRequest(c, err)
		return
	}

	device, err := h.inventory.Transition(c.Request.Context(), c.Param("imei"), to, req.Note)
	if errors.Is(err, inventory.ErrWarrantyNotCancelled) && device != nil {
		_ = c.Error(err)
		c.JSON(http.StatusAccepted, gin.H{
			"data":    device,
			"warning": err.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": device})
}

func (h *InventoryHandler) History(c *gin.Context) {
	transitions, err := h.inventory.History(c.Request.Context(), c.Param("imei"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": transitions})
}

func (h *InventoryHandler) Accessories(c *gin.Context) {
	items, err := h.inventory.Accessories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
