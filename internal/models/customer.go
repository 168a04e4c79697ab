package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	Phone        string          `json:"phone"`
	Name         string          `json:"name"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	OrderCount   int             `json:"order_count"`
	LastPurchase time.Time       `json:"last_purchase"`
}
