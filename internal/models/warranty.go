package models

import (
	"time"

	"github.com/shopspring/decimal"

	"phoneshop/internal/vn"
)

// WarrantyPackage is one rate-card entry.
type WarrantyPackage struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	ExchangeDays   int             `json:"exchange_days"`
	HardwareMonths int             `json:"hardware_months"`
	CNCMonths      int             `json:"cnc_months"`
	Price          decimal.Decimal `json:"price"`
}

// Coverage holds the end date of each warranty component. A zero time means
// the package does not include that component.
type Coverage struct {
	Start         time.Time `json:"start"`
	ExchangeUntil time.Time `json:"exchange_until,omitempty"`
	HardwareUntil time.Time `json:"hardware_until,omitempty"`
	CNCUntil      time.Time `json:"cnc_until,omitempty"`
}

// End is the latest end date of any component.
func (c Coverage) End() time.Time {
	end := c.ExchangeUntil
	for _, t := range []time.Time{c.HardwareUntil, c.CNCUntil} {
		if t.After(end) {
			end = t
		}
	}
	return end
}

type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractExpired   ContractStatus = "expired"
	ContractCancelled ContractStatus = "cancelled"
)

const (
	contractActiveLabel    = "Hiệu lực"
	contractCancelledLabel = "Đã hủy"
)

// Label is the cell text; expiry is derived from dates, so it stores as
// active.
func (s ContractStatus) Label() string {
	if s == ContractCancelled {
		return contractCancelledLabel
	}
	return contractActiveLabel
}

// ParseContractStatus reads a status cell. Anything that is not a
// cancellation counts as active.
func ParseContractStatus(raw string) ContractStatus {
	switch vn.Key(raw) {
	case "da huy", "huy", "cancelled", "canceled":
		return ContractCancelled
	}
	return ContractActive
}

type WarrantyContract struct {
	ID            string         `json:"id"`
	IMEI          string         `json:"imei"`
	DeviceName    string         `json:"device_name"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	PackageCode   string         `json:"package_code"`
	Coverage      Coverage       `json:"coverage"`
	Status        ContractStatus `json:"status"`
	OrderID       string         `json:"order_id,omitempty"`
	Note          string         `json:"note,omitempty"`
}

// StateAt derives the contract state at a moment: cancelled contracts stay
// cancelled, otherwise a contract expires after its last coverage date.
func (c *WarrantyContract) StateAt(now time.Time) ContractStatus {
	if c.Status == ContractCancelled {
		return ContractCancelled
	}
	end := c.Coverage.End()
	if end.IsZero() {
		return ContractExpired
	}
	y, m, d := end.Date()
	if now.After(time.Date(y, m, d, 23, 59, 59, 0, end.Location())) {
		return ContractExpired
	}
	return ContractActive
}
