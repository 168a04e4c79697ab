package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"phoneshop/internal/api/handlers"
	"phoneshop/internal/api/middleware"
	"phoneshop/internal/app"
	"phoneshop/internal/auth"
	"phoneshop/internal/config"
	"phoneshop/internal/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	app    *app.App
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, a *app.App) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	// Initialize handlers
	inventoryHandler := handlers.NewInventoryHandler(a.Inventory, logger)
	orderHandler := handlers.NewOrderHandler(a.Orders, a.DB, logger)
	customerHandler := handlers.NewCustomerHandler(a.Customers, logger)
	warrantyHandler := handlers.NewWarrantyHandler(a.Warranty, logger)
	sheetHandler := handlers.NewSheetHandler(a.Exporter, a.Sheets, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": cfg.SheetsBackend})
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Authenticate(a.Auth))
	owner := middleware.RequireRole(auth.RoleOwner)
	{
		// Inventory
		inventory := v1.Group("/inventory")
		{
			inventory.GET("", inventoryHandler.List)
			inventory.POST("", inventoryHandler.Receive)
			inventory.GET("/:imei", inventoryHandler.Get)
			inventory.GET("/:imei/history", inventoryHandler.History)
			inventory.POST("/:imei/transition", inventoryHandler.Transition)
		}
		v1.GET("/accessories", inventoryHandler.Accessories)

		// Orders
		orders := v1.Group("/orders")
		{
			orders.POST("/quote", orderHandler.Quote)
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
		}

		// Customers
		customers := v1.Group("/customers")
		{
			customers.GET("", customerHandler.List)
			customers.GET("/:phone", customerHandler.Get)
		}

		// Warranty
		warranty := v1.Group("/warranty")
		{
			warranty.GET("/packages", warrantyHandler.Packages)
			warranty.POST("", warrantyHandler.Issue)
			warranty.GET("/device/:imei", warrantyHandler.ByDevice)
			warranty.POST("/device/:imei/cancel", owner, warrantyHandler.Cancel)
		}

		// Spreadsheet
		v1.GET("/sheets/:sheet/export", sheetHandler.Export)
		v1.GET("/cache", sheetHandler.CacheStats)
		v1.DELETE("/cache", owner, sheetHandler.ClearCache)
	}

	return &Server{
		config: cfg,
		logger: logger,
		app:    a,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// GetRouter returns the Gin router for the serverless handler.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
