package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderRecord is the local journal entry of an order written to the sheet.
type OrderRecord struct {
	ID            string          `json:"id" gorm:"primaryKey;size:36"`
	OrderID       string          `json:"order_id" gorm:"uniqueIndex;not null"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone" gorm:"index"`
	Staff         string          `json:"staff"`
	IMEIs         pq.StringArray  `json:"imeis" gorm:"type:text"`
	LineCount     int             `json:"line_count"`
	Total         decimal.Decimal `json:"total" gorm:"type:decimal(14,0)"`
	Cost          decimal.Decimal `json:"cost" gorm:"type:decimal(14,0)"`
	Margin        decimal.Decimal `json:"margin" gorm:"type:decimal(14,0)"`
	OrderedAt     time.Time       `json:"ordered_at" gorm:"index"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewOrderRecord builds the journal entry for an order.
func NewOrderRecord(order *Order) *OrderRecord {
	return &OrderRecord{
		OrderID:       order.ID,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		Staff:         order.Staff,
		IMEIs:         pq.StringArray(order.IMEIs()),
		LineCount:     len(order.Lines),
		Total:         order.Total,
		Cost:          order.Cost,
		Margin:        order.Margin,
		OrderedAt:     order.CreatedAt,
	}
}

func (r *OrderRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
