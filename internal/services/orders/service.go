// Package orders prices carts and writes sales orders, one sheet row per
// order line, then updates stock, customers and warranties.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/services/inventory"
	"phoneshop/internal/services/warranty"
	"phoneshop/internal/sheets"
	"phoneshop/internal/vn"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidCart       = errors.New("invalid cart")
	ErrDuplicateDevice   = errors.New("device listed twice in cart")
	ErrDiscountTooLarge  = errors.New("discount exceeds order subtotal")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderIncomplete   = errors.New("order written with follow-up failures")
	ErrDeviceNotFound    = inventory.ErrDeviceNotFound
	ErrDeviceUnavailable = inventory.ErrDeviceUnavailable
	ErrAccessoryNotFound = inventory.ErrAccessoryNotFound
	ErrInsufficientStock = inventory.ErrInsufficientStock
)

var Schema = sheets.Schema{
	{Name: "id", Aliases: []string{"Mã đơn", "Mã đơn hàng", "Order"}},
	{Name: "date", Aliases: []string{"Ngày", "Thời gian", "Ngày bán"}},
	{Name: "customer", Aliases: []string{"Khách hàng", "Tên khách"}},
	{Name: "phone", Aliases: []string{"SĐT", "Số điện thoại", "Điện thoại"}},
	{Name: "kind", Aliases: []string{"Loại", "Loại hàng"}},
	{Name: "product", Aliases: []string{"Sản phẩm", "Tên hàng", "Hàng"}},
	{Name: "imei", Aliases: []string{"IMEI/Serial", "IMEI", "Mã hàng"}},
	{Name: "qty", Aliases: []string{"SL", "Số lượng"}},
	{Name: "cost", Aliases: []string{"Giá vốn", "Giá nhập"}},
	{Name: "price", Aliases: []string{"Giá bán", "Thành tiền"}},
	{Name: "margin", Aliases: []string{"Lãi", "Lợi nhuận"}},
	{Name: "staff", Aliases: []string{"Nhân viên", "NV"}, Optional: true},
	{Name: "note", Aliases: []string{"Ghi chú"}, Optional: true},
}

const discountLabel = "Giảm giá"

type Inventory interface {
	Devices(ctx context.Context, imeis []string) (map[string]*models.Device, error)
	AccessoriesBySKU(ctx context.Context) (map[string]models.Accessory, error)
	MarkSold(ctx context.Context, imeis []string, orderID string, at time.Time) error
	DecrementAccessories(ctx context.Context, quantities map[string]int) error
}

type Customers interface {
	Upsert(ctx context.Context, name, phone string, amount decimal.Decimal, at time.Time) (*models.Customer, error)
}

type Warranty interface {
	Packages(ctx context.Context) ([]models.WarrantyPackage, error)
	IssueBatch(ctx context.Context, reqs []warranty.IssueRequest) ([]*models.WarrantyContract, error)
}

// Journal keeps a local copy of written orders for listing.
type Journal interface {
	RecordOrder(ctx context.Context, order *models.Order) error
}

type Service struct {
	gateway   sheets.Gateway
	inventory Inventory
	customers Customers
	warranty  Warranty
	journal   Journal
	publisher notify.Publisher
	logger    *logger.Logger
	loc       *time.Location
	now       func() time.Time

	// one order write at a time, so two tills cannot sell the same device
	mu sync.Mutex
}

func NewService(gateway sheets.Gateway, inv Inventory, customers Customers, warr Warranty, journal Journal, publisher notify.Publisher, loc *time.Location, logger *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		gateway:   gateway,
		inventory: inv,
		customers: customers,
		warranty:  warr,
		journal:   journal,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

type catalogue struct {
	devices     map[string]*models.Device
	accessories map[string]models.Accessory
	packages    []models.WarrantyPackage
}

func (s *Service) loadCatalogue(ctx context.Context, cart models.Cart) (*catalogue, error) {
	cat := &catalogue{}
	g, gctx := errgroup.WithContext(ctx)

	if len(cart.Devices) > 0 {
		imeis := make([]string, len(cart.Devices))
		for i, d := range cart.Devices {
			imeis[i] = d.IMEI
		}
		g.Go(func() error {
			devices, err := s.inventory.Devices(gctx, imeis)
			cat.devices = devices
			return err
		})
	}
	if len(cart.Accessories) > 0 {
		g.Go(func() error {
			items, err := s.inventory.AccessoriesBySKU(gctx)
			cat.accessories = items
			return err
		})
	}
	for _, d := range cart.Devices {
		if d.WarrantyPackage != "" {
			g.Go(func() error {
				packages, err := s.warranty.Packages(gctx)
				cat.packages = packages
				return err
			})
			break
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Quote prices a cart without writing anything.
func (s *Service) Quote(ctx context.Context, cart models.Cart) (*models.Order, error) {
	if len(cart.Devices) == 0 && len(cart.Accessories) == 0 {
		return nil, ErrEmptyCart
	}
	if cart.Discount.IsNegative() {
		return nil, fmt.Errorf("%w: negative discount", ErrInvalidCart)
	}

	cat, err := s.loadCatalogue(ctx, cart)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerName:  strings.TrimSpace(cart.CustomerName),
		CustomerPhone: vn.NormalizePhone(cart.CustomerPhone),
		Staff:         strings.TrimSpace(cart.Staff),
		Note:          strings.TrimSpace(cart.Note),
	}

	seen := make(map[string]bool, len(cart.Devices))
	for _, item := range cart.Devices {
		imei := vn.NormalizeIMEI(item.IMEI)
		if imei == "" {
			return nil, fmt.Errorf("%w: device without IMEI", ErrInvalidCart)
		}
		if seen[imei] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, imei)
		}
		seen[imei] = true

		device, ok := cat.devices[imei]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, imei)
		}
		if device.Status != models.DeviceInStock {
			return nil, fmt.Errorf("%w: %s is %s", ErrDeviceUnavailable, imei, device.Status.Label())
		}

		price := device.Price
		if item.Price != nil {
			if item.Price.IsNegative() {
				return nil, fmt.Errorf("%w: negative price for %s", ErrInvalidCart, imei)
			}
			price = *item.Price
		}
		order.Lines = append(order.Lines, models.OrderLine{
			Kind:     models.LineDevice,
			Product:  device.DisplayName(),
			IMEI:     imei,
			Quantity: 1,
			Cost:     device.Cost,
			Price:    price,
			Margin:   price.Sub(device.Cost),
		})

		if item.WarrantyPackage != "" {
			pkg, err := findPackage(cat.packages, item.WarrantyPackage)
			if err != nil {
				return nil, err
			}
			name := pkg.Name
			if name == "" {
				name = "Bảo hành " + pkg.Code
			}
			order.Lines = append(order.Lines, models.OrderLine{
				Kind:     models.LineWarranty,
				Product:  name,
				IMEI:     imei,
				Package:  pkg.Code,
				Quantity: 1,
				Cost:     decimal.Zero,
				Price:    pkg.Price,
				Margin:   pkg.Price,
			})
		}
	}

	lines, err := accessoryLines(cart.Accessories, cat.accessories)
	if err != nil {
		return nil, err
	}
	order.Lines = append(order.Lines, lines...)

	order.Recalculate()
	if cart.Discount.GreaterThan(order.Subtotal) {
		return nil, fmt.Errorf("%w: %s > %s", ErrDiscountTooLarge, vn.FormatVND(cart.Discount), vn.FormatVND(order.Subtotal))
	}
	if cart.Discount.IsPositive() {
		order.Lines = append(order.Lines, models.OrderLine{
			Kind:     models.LineDiscount,
			Product:  discountLabel,
			Quantity: 1,
			Cost:     decimal.Zero,
			Price:    cart.Discount.Neg(),
			Margin:   cart.Discount.Neg(),
		})
		order.Recalculate()
	}
	return order, nil
}

// accessoryLines merges cart entries of the same SKU into one line, in the
// order SKUs first appear.
func accessoryLines(items []models.CartAccessory, catalogue map[string]models.Accessory) ([]models.OrderLine, error) {
	type merged struct {
		accessory models.Accessory
		quantity  int
		price     *decimal.Decimal
	}
	var order []string
	bySKU := make(map[string]*merged)

	for _, item := range items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, fmt.Errorf("%w: negative quantity for %s", ErrInvalidCart, item.SKU)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: negative price for %s", ErrInvalidCart, item.SKU)
		}

		key := inventory.SKUKey(item.SKU)
		m, ok := bySKU[key]
		if !ok {
			accessory, found := catalogue[key]
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrAccessoryNotFound, item.SKU)
			}
			m = &merged{accessory: accessory}
			bySKU[key] = m
			order = append(order, key)
		}
		m.quantity += qty
		if m.price == nil && item.Price != nil {
			m.price = item.Price
		}
	}

	lines := make([]models.OrderLine, 0, len(order))
	for _, key := range order {
		m := bySKU[key]
		if m.quantity > m.accessory.Stock {
			return nil, fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, m.accessory.SKU, m.accessory.Stock, m.quantity)
		}
		unit := m.accessory.Price
		if m.price != nil {
			unit = *m.price
		}
		qty := decimal.NewFromInt(int64(m.quantity))
		cost := m.accessory.Cost.Mul(qty)
		price := unit.Mul(qty)
		lines = append(lines, models.OrderLine{
			Kind:     models.LineAccessory,
			Product:  m.accessory.Name,
			SKU:      m.accessory.SKU,
			Quantity: m.quantity,
			Cost:     cost,
			Price:    price,
			Margin:   price.Sub(cost),
		})
	}
	return lines, nil
}

func findPackage(packages []models.WarrantyPackage, code string) (*models.WarrantyPackage, error) {
	want := vn.Key(code)
	for i := range packages {
		if vn.Key(packages[i].Code) == want {
			return &packages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", warranty.ErrPackageNotFound, code)
}

// Create prices the cart and writes the order. Once the order rows are in
// the sheet, later failures are collected and returned with the order
// wrapped in ErrOrderIncomplete, since retrying would sell twice.
func (s *Service) Create(ctx context.Context, cart models.Cart) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.Quote(ctx, cart)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	order.ID = NewOrderID(now)
	order.CreatedAt = now

	_, cols, err := sheets.Load(ctx, s.gateway, models.SheetOrders, Schema)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(order.Lines))
	for i, line := range order.Lines {
		rows = append(rows, orderRow(cols, order, line, i == 0))
	}
	if err := s.gateway.AppendRows(ctx, models.SheetOrders, rows); err != nil {
		return nil, fmt.Errorf("failed to write order: %w", err)
	}
	s.logger.Info("Order %s written: %d line(s), total %s", order.ID, len(order.Lines), vn.FormatVND(order.Total))

	var errs []error
	if imeis := order.IMEIs(); len(imeis) > 0 {
		if err := s.inventory.MarkSold(ctx, imeis, order.ID, now); err != nil {
			errs = append(errs, fmt.Errorf("mark sold: %w", err))
		}
	}
	if quantities := accessoryQuantities(order); len(quantities) > 0 {
		if err := s.inventory.DecrementAccessories(ctx, quantities); err != nil {
			errs = append(errs, fmt.Errorf("accessory stock: %w", err))
		}
	}
	if order.CustomerPhone != "" && s.customers != nil {
		if _, err := s.customers.Upsert(ctx, order.CustomerName, order.CustomerPhone, order.Total, now); err != nil {
			errs = append(errs, fmt.Errorf("customer ledger: %w", err))
		}
	}
	if reqs := s.warrantyRequests(order, cart); len(reqs) > 0 {
		contracts, err := s.warranty.IssueBatch(ctx, reqs)
		if err != nil {
			errs = append(errs, fmt.Errorf("warranty: %w", err))
		}
		order.Contracts = contracts
	}
	if s.journal != nil {
		if err := s.journal.RecordOrder(ctx, order); err != nil {
			// the sheet already has the order; the journal is only a listing aid
			s.logger.Warn("Failed to journal order %s: %v", order.ID, err)
		}
	}

	event := models.NewEvent(models.EventOrderCreated, now)
	event.Order = order
	notify.Emit(ctx, s.publisher, event, s.logger)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.logger.Error("Order %s incomplete: %v", order.ID, err)
		return order, fmt.Errorf("%w: %s: %w", ErrOrderIncomplete, order.ID, err)
	}
	return order, nil
}

func (s *Service) warrantyRequests(order *models.Order, cart models.Cart) []warranty.IssueRequest {
	names := make(map[string]string)
	for _, line := range order.Lines {
		if line.Kind == models.LineDevice {
			names[line.IMEI] = line.Product
		}
	}

	var reqs []warranty.IssueRequest
	for _, line := range order.Lines {
		if line.Kind != models.LineWarranty {
			continue
		}
		reqs = append(reqs, warranty.IssueRequest{
			IMEI:          line.IMEI,
			DeviceName:    names[line.IMEI],
			CustomerName:  order.CustomerName,
			CustomerPhone: order.CustomerPhone,
			PackageCode:   line.Package,
			Start:         order.CreatedAt,
			OrderID:       order.ID,
		})
	}
	return reqs
}

func accessoryQuantities(order *models.Order) map[string]int {
	out := make(map[string]int)
	for _, line := range order.Lines {
		if line.Kind == models.LineAccessory {
			out[line.SKU] += line.Quantity
		}
	}
	return out
}

// orderRow renders one line. Accessory SKUs go in the IMEI/Serial column.
func orderRow(cols *sheets.Columns, order *models.Order, line models.OrderLine, first bool) []string {
	code := line.IMEI
	if line.Kind == models.LineAccessory {
		code = line.SKU
	}
	note := ""
	if first {
		note = order.Note
	}
	return cols.NewRow(map[string]string{
		"id":       order.ID,
		"date":     vn.FormatTimestamp(order.CreatedAt),
		"customer": order.CustomerName,
		"phone":    sheets.Literal(order.CustomerPhone),
		"kind":     line.Kind.Label(),
		"product":  line.Product,
		"imei":     sheets.Literal(code),
		"qty":      strconv.Itoa(line.Quantity),
		"cost":     vn.CellAmount(line.Cost),
		"price":    vn.CellAmount(line.Price),
		"margin":   vn.CellAmount(line.Margin),
		"staff":    order.Staff,
		"note":     note,
	})
}

// Get rebuilds an order from its sheet lines.
func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	table, cols, err := sheets.Load(ctx, s.gateway, models.SheetOrders, Schema)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	for _, row := range table.Rows {
		if !strings.EqualFold(cols.Get(row, "id"), id) {
			continue
		}
		if order == nil {
			order = &models.Order{
				ID:            cols.Get(row, "id"),
				CustomerName:  cols.Get(row, "customer"),
				CustomerPhone: vn.NormalizePhone(cols.Get(row, "phone")),
				Staff:         cols.Get(row, "staff"),
				Note:          cols.Get(row, "note"),
			}
			order.CreatedAt, _ = vn.ParseDate(cols.Get(row, "date"), s.loc)
		}

		line := models.OrderLine{
			Kind:    models.ParseLineKind(cols.Get(row, "kind")),
			Product: cols.Get(row, "product"),
			Cost:    vn.MoneyOrZero(cols.Get(row, "cost")),
			Price:   vn.MoneyOrZero(cols.Get(row, "price")),
			Margin:  vn.MoneyOrZero(cols.Get(row, "margin")),
		}
		line.Quantity, _ = strconv.Atoi(cols.Get(row, "qty"))
		code := cols.Get(row, "imei")
		if line.Kind == models.LineAccessory {
			line.SKU = code
		} else {
			line.IMEI = vn.NormalizeIMEI(code)
		}
		order.Lines = append(order.Lines, line)
	}

	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order.Recalculate()
	return order, nil
}

// NewOrderID returns an ID of the form DH-20240131-7F3A9C.
func NewOrderID(at time.Time) string {
	return "DH-" + at.Format("20060102") + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}
