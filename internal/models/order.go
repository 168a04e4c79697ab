package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is what the counter sends to create or quote an order.
type Cart struct {
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	Devices       []CartDevice    `json:"devices"`
	Accessories   []CartAccessory `json:"accessories"`
	Discount      decimal.Decimal `json:"discount"`
	Staff         string          `json:"staff"`
	Note          string          `json:"note"`
}

type CartDevice struct {
	IMEI            string           `json:"imei" binding:"required"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	WarrantyPackage string           `json:"warranty_package,omitempty"`
}

type CartAccessory struct {
	SKU      string           `json:"sku" binding:"required"`
	Quantity int              `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

type LineKind string

const (
	LineDevice    LineKind = "device"
	LineAccessory LineKind = "accessory"
	LineWarranty  LineKind = "warranty"
	LineDiscount  LineKind = "discount"
)

var lineKindLabels = map[LineKind]string{
	LineDevice:    "Máy",
	LineAccessory: "Phụ kiện",
	LineWarranty:  "Bảo hành",
	LineDiscount:  "Giảm giá",
}

func (k LineKind) Label() string {
	if label, ok := lineKindLabels[k]; ok {
		return label
	}
	return string(k)
}

// ParseLineKind maps a sheet label back to its kind.
func ParseLineKind(label string) LineKind {
	for kind, l := range lineKindLabels {
		if l == label || string(kind) == label {
			return kind
		}
	}
	return LineKind(label)
}

// OrderLine is one row of the orders sheet. Cost and Price are line totals.
type OrderLine struct {
	Kind     LineKind        `json:"kind"`
	Product  string          `json:"product"`
	IMEI     string          `json:"imei,omitempty"`
	SKU      string          `json:"sku,omitempty"`
	Package  string          `json:"package,omitempty"`
	Quantity int             `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
	Price    decimal.Decimal `json:"price"`
	Margin   decimal.Decimal `json:"margin"`
}

type Order struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_phone"`
	Staff         string              `json:"staff,omitempty"`
	Note          string              `json:"note,omitempty"`
	Lines         []OrderLine         `json:"lines"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Discount      decimal.Decimal     `json:"discount"`
	Total         decimal.Decimal     `json:"total"`
	Cost          decimal.Decimal     `json:"cost"`
	Margin        decimal.Decimal     `json:"margin"`
	Contracts     []*WarrantyContract `json:"contracts,omitempty"`
}

// IMEIs lists the devices sold in the order.
func (o *Order) IMEIs() []string {
	var out []string
	for _, line := range o.Lines {
		if line.Kind == LineDevice && line.IMEI != "" {
			out = append(out, line.IMEI)
		}
	}
	return out
}

// Recalculate derives the order totals from its lines.
func (o *Order) Recalculate() {
	o.Subtotal = decimal.Zero
	o.Discount = decimal.Zero
	o.Cost = decimal.Zero
	o.Margin = decimal.Zero
	for _, line := range o.Lines {
		if line.Kind == LineDiscount {
			o.Discount = o.Discount.Add(line.Price.Neg())
		} else {
			o.Subtotal = o.Subtotal.Add(line.Price)
		}
		o.Cost = o.Cost.Add(line.Cost)
		o.Margin = o.Margin.Add(line.Margin)
	}
	o.Total = o.Subtotal.Sub(o.Discount)
}
