package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"phoneshop/internal/export"
	"phoneshop/internal/logger"
	"phoneshop/internal/sheets"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SheetHandler struct {
	exporter *export.Exporter
	cache    *sheets.CachedGateway
	logger   *logger.Logger
}

func NewSheetHandler(exporter *export.Exporter, cache *sheets.CachedGateway, logger *logger.Logger) *SheetHandler {
	return &SheetHandler{
		exporter: exporter,
		cache:    cache,
		logger:   logger,
	}
}

// Export downloads one tab as an .xlsx file.
func (h *SheetHandler) Export(c *gin.Context) {
	name := c.Param("sheet")
	data, err := h.exporter.Export(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *SheetHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.cache.Stats()})
}

// ClearCache drops every cached read, or only ?sheet= when given.
func (h *SheetHandler) ClearCache(c *gin.Context) {
	if sheet := c.Query("sheet"); sheet != "" {
		h.cache.Invalidate(sheet)
		h.logger.Info("Cache cleared for %s", sheet)
	} else {
		h.cache.InvalidateAll()
		h.logger.Info("Cache cleared")
	}
	c.JSON(http.StatusOK, gin.H{"data": h.cache.Stats()})
}
