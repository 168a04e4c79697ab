// Package app wires configuration, storage and services together for the
// API server, the serverless handler and shopctl.
package app

import (
	"context"
	"errors"
	"fmt"

	"phoneshop/internal/auth"
	"phoneshop/internal/config"
	"phoneshop/internal/database"
	"phoneshop/internal/export"
	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/services/customers"
	"phoneshop/internal/services/inventory"
	"phoneshop/internal/services/orders"
	"phoneshop/internal/services/warranty"
	"phoneshop/internal/sheets"
)

type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *database.Database
	Sheets    *sheets.CachedGateway
	Formatter *notify.Formatter
	Notifier  notify.Notifier
	Publisher notify.Publisher
	Auth      *auth.Authenticator

	Inventory *inventory.Service
	Orders    *orders.Service
	Customers *customers.Service
	Warranty  *warranty.Service
	Exporter  *export.Exporter

	closers []func() error
}

// NewLogger builds the process logger: JSON in production, console otherwise.
func NewLogger(cfg *config.Config) *logger.Logger {
	if cfg.Env == "production" {
		return logger.NewProduction(cfg.LogLevel)
	}
	return logger.New(cfg.LogLevel)
}

// Layout maps every tab to its default header row.
func Layout() map[string][]string {
	return map[string][]string{
		models.SheetInventory:   inventory.DeviceSchema.Header(),
		models.SheetAccessories: inventory.AccessorySchema.Header(),
		models.SheetHistory:     inventory.HistorySchema.Header(),
		models.SheetOrders:      orders.Schema.Header(),
		models.SheetCustomers:   customers.Schema.Header(),
		models.SheetPackages:    warranty.PackageSchema.Header(),
		models.SheetWarranty:    warranty.ContractSchema.Header(),
	}
}

// NewNotifier returns the Telegram notifier, or a log notifier when no bot
// is configured.
func NewNotifier(cfg *config.Config, log *logger.Logger) (notify.Notifier, error) {
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		log.Warn("Telegram is not configured, notifications go to the log")
		return notify.NewLogNotifier(log), nil
	}
	return notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramThreadID, log)
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log, Auth: auth.New(cfg.JWTSecret)}

	upstream, err := a.openSheets(ctx)
	if err != nil {
		return nil, err
	}
	a.Sheets = sheets.NewCachedGateway(upstream, cfg.SheetsCacheTTL, cfg.SheetsMinInterval, log)

	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel == "debug")
	if err != nil {
		a.Close()
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	loc := cfg.Location()
	a.Formatter = notify.NewFormatter(cfg.ShopName, loc)
	a.Notifier, err = NewNotifier(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.Publisher = notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
	} else {
		a.Publisher = notify.NewDirectPublisher(a.Formatter, a.Notifier, db, log)
	}
	a.closers = append(a.closers, a.Publisher.Close)

	a.Warranty = warranty.NewService(a.Sheets, a.Publisher, loc, log)
	a.Inventory = inventory.NewService(a.Sheets, a.Warranty, a.Publisher, loc, log)
	a.Customers = customers.NewService(a.Sheets, loc, log)
	a.Orders = orders.NewService(a.Sheets, a.Inventory, a.Customers, a.Warranty, db, a.Publisher, loc, log)
	a.Exporter = export.New(a.Sheets, log)

	return a, nil
}

func (a *App) openSheets(ctx context.Context) (sheets.Gateway, error) {
	cfg := a.Config
	switch cfg.SheetsBackend {
	case "google":
		return sheets.NewGoogleGateway(ctx, cfg.SpreadsheetID, cfg.GoogleCredentialsFile, a.Logger)
	case "xlsx":
		wb, err := sheets.NewWorkbookGateway(cfg.WorkbookPath, Layout())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, wb.Close)
		return wb, nil
	case "memory":
		seed := make(map[string][][]string)
		for name, header := range Layout() {
			seed[name] = [][]string{header}
		}
		return sheets.NewMemoryGateway(seed), nil
	}
	return nil, fmt.Errorf("unknown sheets backend %q", cfg.SheetsBackend)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
