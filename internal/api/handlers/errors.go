package handlers

import (
	"errors"
	"net/http"

	"phoneshop/internal/database"
	"phoneshop/internal/export"
	"phoneshop/internal/logger"
	"phoneshop/internal/services/customers"
	"phoneshop/internal/services/inventory"
	"phoneshop/internal/services/orders"
	"phoneshop/internal/services/warranty"
	"phoneshop/internal/sheets"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, inventory.ErrDeviceNotFound),
		errors.Is(err, inventory.ErrAccessoryNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, customers.ErrCustomerNotFound),
		errors.Is(err, warranty.ErrPackageNotFound),
		errors.Is(err, database.ErrRecordNotFound),
		errors.Is(err, sheets.ErrSheetNotFound),
		errors.Is(err, export.ErrUnknownSheet):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrDuplicateDevice),
		errors.Is(err, inventory.ErrDeviceUnavailable),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, inventory.ErrInvalidTransition),
		errors.Is(err, inventory.ErrRowMoved),
		errors.Is(err, orders.ErrDuplicateDevice):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrInvalidDevice),
		errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrInvalidCart),
		errors.Is(err, orders.ErrDiscountTooLarge),
		errors.Is(err, customers.ErrInvalidPhone),
		errors.Is(err, warranty.ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sheets.ErrRateLimited):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "10")
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
