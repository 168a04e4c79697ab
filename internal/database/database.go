package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"phoneshop/internal/models"
)

var ErrRecordNotFound = errors.New("record not found")

type Database struct {
	DB *gorm.DB
}

// New opens the local journal. A sqlite:// URL selects SQLite, anything else
// is treated as a PostgreSQL DSN.
func New(databaseURL string, verbose bool) (*Database, error) {
	var db *gorm.DB
	var err error

	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(level)}

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development and single-till shops
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), cfg)
	} else {
		db, err = gorm.Open(postgres.Open(databaseURL), cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&models.OrderRecord{}, &models.NotificationLog{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordOrder journals an order. Recording the same order twice is a no-op.
func (d *Database) RecordOrder(ctx context.Context, order *models.Order) error {
	var existing int64
	if err := d.DB.WithContext(ctx).Model(&models.OrderRecord{}).
		Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
		return fmt.Errorf("failed to check order journal: %w", err)
	}
	if existing > 0 {
		return nil
	}

	if err := d.DB.WithContext(ctx).Create(models.NewOrderRecord(order)).Error; err != nil {
		return fmt.Errorf("failed to journal order %s: %w", order.ID, err)
	}
	return nil
}

type OrderFilter struct {
	Phone  string
	Staff  string
	Limit  int
	Offset int
}

// ListOrders returns journal entries, newest first, and the total match count.
func (d *Database) ListOrders(ctx context.Context, filter OrderFilter) ([]models.OrderRecord, int64, error) {
	query := d.DB.WithContext(ctx).Model(&models.OrderRecord{})
	if filter.Phone != "" {
		query = query.Where("customer_phone = ?", filter.Phone)
	}
	if filter.Staff != "" {
		query = query.Where("staff = ?", filter.Staff)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []models.OrderRecord
	if err := query.Order("ordered_at DESC").Limit(limit).Offset(filter.Offset).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return records, total, nil
}

func (d *Database) GetOrderRecord(ctx context.Context, orderID string) (*models.OrderRecord, error) {
	var record models.OrderRecord
	err := d.DB.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &record, nil
}

func (d *Database) LogNotification(ctx context.Context, entry *models.NotificationLog) error {
	if err := d.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}

// NotificationsForEvent returns the delivery attempts of one event, oldest first.
func (d *Database) NotificationsForEvent(ctx context.Context, eventID string) ([]models.NotificationLog, error) {
	var logs []models.NotificationLog
	if err := d.DB.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at ASC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return logs, nil
}
