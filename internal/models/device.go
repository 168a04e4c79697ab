package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"phoneshop/internal/vn"
)

type Device struct {
	IMEI       string          `json:"imei"`
	Model      string          `json:"model"`
	Capacity   string          `json:"capacity,omitempty"`
	Color      string          `json:"color,omitempty"`
	Cost       decimal.Decimal `json:"cost"`
	Price      decimal.Decimal `json:"price"`
	Status     DeviceStatus    `json:"status"`
	ReceivedAt time.Time       `json:"received_at,omitempty"`
	SoldAt     time.Time       `json:"sold_at,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// DisplayName is "iPhone 13 128GB Xanh", skipping empty parts.
func (d *Device) DisplayName() string {
	name := d.Model
	if d.Capacity != "" {
		name += " " + d.Capacity
	}
	if d.Color != "" {
		name += " " + d.Color
	}
	return name
}

type DeviceStatus string

const (
	DeviceInStock  DeviceStatus = "in_stock"
	DeviceCNC      DeviceStatus = "cnc"
	DeviceWarranty DeviceStatus = "warranty"
	DeviceSold     DeviceStatus = "sold"
	DeviceReturned DeviceStatus = "returned"
)

var deviceStatusLabels = map[DeviceStatus]string{
	DeviceInStock:  "Còn hàng",
	DeviceCNC:      "Đang CNC",
	DeviceWarranty: "Bảo hành",
	DeviceSold:     "Đã bán",
	DeviceReturned: "Đã trả",
}

var deviceStatusKeys = map[string]DeviceStatus{
	"":              DeviceInStock,
	"con hang":      DeviceInStock,
	"con":           DeviceInStock,
	"ton kho":       DeviceInStock,
	"in stock":      DeviceInStock,
	"in_stock":      DeviceInStock,
	"dang cnc":      DeviceCNC,
	"cnc":           DeviceCNC,
	"gui cnc":       DeviceCNC,
	"bao hanh":      DeviceWarranty,
	"dang bao hanh": DeviceWarranty,
	"warranty":      DeviceWarranty,
	"da ban":        DeviceSold,
	"ban":           DeviceSold,
	"sold":          DeviceSold,
	"da tra":        DeviceReturned,
	"tra hang":      DeviceReturned,
	"khach tra":     DeviceReturned,
	"returned":      DeviceReturned,
}

// Label is the Vietnamese cell text for a status.
func (s DeviceStatus) Label() string {
	if label, ok := deviceStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

func (s DeviceStatus) Valid() bool {
	_, ok := deviceStatusLabels[s]
	return ok
}

// ParseDeviceStatus reads a status cell; an empty cell means in stock.
func ParseDeviceStatus(raw string) (DeviceStatus, error) {
	key := vn.Key(raw)
	if status, ok := deviceStatusKeys[key]; ok {
		return status, nil
	}
	if status := DeviceStatus(raw); status.Valid() {
		return status, nil
	}
	return "", fmt.Errorf("unknown device status %q", raw)
}

var deviceTransitions = map[DeviceStatus][]DeviceStatus{
	DeviceInStock:  {DeviceCNC, DeviceSold},
	DeviceCNC:      {DeviceInStock, DeviceWarranty},
	DeviceSold:     {DeviceWarranty, DeviceReturned},
	DeviceWarranty: {DeviceSold, DeviceReturned, DeviceCNC},
	DeviceReturned: {DeviceInStock, DeviceCNC},
}

// CanTransition reports whether a device may move from s to next.
func (s DeviceStatus) CanTransition(next DeviceStatus) bool {
	for _, allowed := range deviceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Accessory struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Transition is one row of the inventory history sheet.
type Transition struct {
	IMEI string       `json:"imei"`
	From DeviceStatus `json:"from"`
	To   DeviceStatus `json:"to"`
	At   time.Time    `json:"at"`
	Note string       `json:"note,omitempty"`
}
