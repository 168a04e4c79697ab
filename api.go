package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"phoneshop/internal/api"
	"phoneshop/internal/app"
	"phoneshop/internal/config"
)

var (
	initOnce sync.Once
	router   http.Handler
	initErr  error
)

// initRouter builds the application once per serverless instance.
func initRouter() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	logger := app.NewLogger(cfg)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize: %v", err)
		initErr = err
		return
	}
	router = api.New(cfg, logger, a).GetRouter()
}

// Handler is the serverless entry point.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(initRouter)
	if initErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "service unavailable: " + initErr.Error()})
		return
	}

	// Serve the request
	router.ServeHTTP(w, r)
}
