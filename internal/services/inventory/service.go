// Package inventory tracks devices by IMEI through their shop states and
// keeps accessory stock counts.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/sheets"
	"phoneshop/internal/vn"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDuplicateDevice   = errors.New("device already in inventory")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidDevice     = errors.New("invalid device")
	ErrAccessoryNotFound = errors.New("accessory not found")
	ErrInsufficientStock = errors.New("insufficient accessory stock")
	ErrDeviceUnavailable = errors.New("device not available for sale")
	ErrRowMoved          = errors.New("sheet row no longer holds the device")

	// ErrWarrantyNotCancelled is returned with the device when a return was
	// recorded but the device's contracts could not be cancelled.
	ErrWarrantyNotCancelled = errors.New("device returned but warranty not cancelled")
)

var DeviceSchema = sheets.Schema{
	{Name: "imei", Aliases: []string{"IMEI/Serial", "IMEI", "Serial", "Số IMEI"}},
	{Name: "model", Aliases: []string{"Tên máy", "Máy", "Model", "Sản phẩm"}},
	{Name: "capacity", Aliases: []string{"Dung lượng", "Bộ nhớ", "ROM"}, Optional: true},
	{Name: "color", Aliases: []string{"Màu", "Màu sắc"}, Optional: true},
	{Name: "cost", Aliases: []string{"Giá nhập", "Giá vốn"}},
	{Name: "price", Aliases: []string{"Giá bán", "Giá niêm yết"}},
	{Name: "status", Aliases: []string{"Trạng thái", "Tình trạng", "Status"}},
	{Name: "received", Aliases: []string{"Ngày nhập"}, Optional: true},
	{Name: "sold", Aliases: []string{"Ngày bán"}, Optional: true},
	{Name: "order", Aliases: []string{"Mã đơn", "Đơn hàng"}, Optional: true},
	{Name: "note", Aliases: []string{"Ghi chú", "Note"}, Optional: true},
}

var AccessorySchema = sheets.Schema{
	{Name: "sku", Aliases: []string{"Mã", "Mã phụ kiện", "SKU"}},
	{Name: "name", Aliases: []string{"Tên phụ kiện", "Tên", "Phụ kiện"}},
	{Name: "cost", Aliases: []string{"Giá nhập", "Giá vốn"}},
	{Name: "price", Aliases: []string{"Giá bán"}},
	{Name: "stock", Aliases: []string{"Số lượng", "Tồn kho", "SL"}},
}

var HistorySchema = sheets.Schema{
	{Name: "at", Aliases: []string{"Thời gian", "Ngày"}},
	{Name: "imei", Aliases: []string{"IMEI/Serial", "IMEI"}},
	{Name: "from", Aliases: []string{"Từ"}},
	{Name: "to", Aliases: []string{"Sang"}},
	{Name: "note", Aliases: []string{"Ghi chú"}, Optional: true},
}

// WarrantyCanceller cancels a device's active contracts when it comes back.
type WarrantyCanceller interface {
	CancelByDevice(ctx context.Context, imei, reason string) ([]*models.WarrantyContract, error)
}

type Service struct {
	gateway   sheets.Gateway
	warranty  WarrantyCanceller
	publisher notify.Publisher
	logger    *logger.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(gateway sheets.Gateway, warranty WarrantyCanceller, publisher notify.Publisher, loc *time.Location, logger *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		gateway:   gateway,
		warranty:  warranty,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

type deviceRow struct {
	index  int
	device *models.Device
}

type deviceTable struct {
	table *sheets.Table
	cols  *sheets.Columns
	rows  []deviceRow
}

func (t *deviceTable) find(imei string) (int, *models.Device) {
	for _, r := range t.rows {
		if r.device.IMEI == imei {
			return r.index, r.device
		}
	}
	return -1, nil
}

// loadDevices reads the Kho tab. Callers that write rows back pass fresh.
func (s *Service) loadDevices(ctx context.Context, fresh bool) (*deviceTable, error) {
	load := sheets.Load
	if fresh {
		load = sheets.LoadFresh
	}
	table, cols, err := load(ctx, s.gateway, models.SheetInventory, DeviceSchema)
	if err != nil {
		return nil, err
	}

	dt := &deviceTable{table: table, cols: cols}
	for i, row := range table.Rows {
		imei := vn.NormalizeIMEI(cols.Get(row, "imei"))
		if imei == "" {
			continue
		}
		dt.rows = append(dt.rows, deviceRow{index: i, device: s.parseDevice(cols, row, table.SheetRow(i))})
	}
	return dt, nil
}

func (s *Service) parseDevice(cols *sheets.Columns, row []string, sheetRow int) *models.Device {
	d := &models.Device{
		IMEI:     vn.NormalizeIMEI(cols.Get(row, "imei")),
		Model:    cols.Get(row, "model"),
		Capacity: cols.Get(row, "capacity"),
		Color:    cols.Get(row, "color"),
		Cost:     s.money(cols.Get(row, "cost"), sheetRow),
		Price:    s.money(cols.Get(row, "price"), sheetRow),
		OrderID:  cols.Get(row, "order"),
		Note:     cols.Get(row, "note"),
	}

	raw := cols.Get(row, "status")
	status, err := models.ParseDeviceStatus(raw)
	if err != nil {
		s.logger.Warn("Row %d of %s: %v", sheetRow, models.SheetInventory, err)
		status = models.DeviceStatus(raw)
	}
	d.Status = status

	if raw := cols.Get(row, "received"); raw != "" {
		d.ReceivedAt, _ = vn.ParseDate(raw, s.loc)
	}
	if raw := cols.Get(row, "sold"); raw != "" {
		d.SoldAt, _ = vn.ParseDate(raw, s.loc)
	}
	return d
}

func (s *Service) money(raw string, sheetRow int) decimal.Decimal {
	amount, err := vn.ParseMoney(raw)
	if err != nil && !errors.Is(err, vn.ErrEmptyAmount) {
		s.logger.Warn("Row %d: unreadable amount %q", sheetRow, raw)
	}
	return amount
}

func writeDevice(cols *sheets.Columns, row []string, d *models.Device) []string {
	row = append([]string(nil), row...)
	row = cols.Set(row, "imei", sheets.Literal(d.IMEI))
	row = cols.Set(row, "model", d.Model)
	row = cols.Set(row, "capacity", d.Capacity)
	row = cols.Set(row, "color", d.Color)
	row = cols.Set(row, "cost", vn.CellAmount(d.Cost))
	row = cols.Set(row, "price", vn.CellAmount(d.Price))
	row = cols.Set(row, "status", d.Status.Label())
	row = cols.Set(row, "received", vn.FormatDate(d.ReceivedAt))
	row = cols.Set(row, "sold", vn.FormatDate(d.SoldAt))
	row = cols.Set(row, "order", d.OrderID)
	row = cols.Set(row, "note", d.Note)
	return row
}

// List returns devices in sheet order, filtered by status when one is given.
func (s *Service) List(ctx context.Context, status models.DeviceStatus) ([]*models.Device, error) {
	dt, err := s.loadDevices(ctx, false)
	if err != nil {
		return nil, err
	}

	devices := make([]*models.Device, 0, len(dt.rows))
	for _, r := range dt.rows {
		if status != "" && r.device.Status != status {
			continue
		}
		devices = append(devices, r.device)
	}
	return devices, nil
}

func (s *Service) Get(ctx context.Context, imei string) (*models.Device, error) {
	dt, err := s.loadDevices(ctx, false)
	if err != nil {
		return nil, err
	}
	key := vn.NormalizeIMEI(imei)
	if _, d := dt.find(key); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
}

// Devices returns the devices for the given IMEIs keyed by normalised IMEI.
// Unknown IMEIs are absent from the map.
func (s *Service) Devices(ctx context.Context, imeis []string) (map[string]*models.Device, error) {
	dt, err := s.loadDevices(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Device, len(imeis))
	for _, imei := range imeis {
		key := vn.NormalizeIMEI(imei)
		if _, d := dt.find(key); d != nil {
			out[key] = d
		}
	}
	return out, nil
}

// Receive adds a device as in stock.
func (s *Service) Receive(ctx context.Context, device models.Device) (*models.Device, error) {
	device.IMEI = vn.NormalizeIMEI(device.IMEI)
	device.Model = strings.TrimSpace(device.Model)
	if device.IMEI == "" || device.Model == "" {
		return nil, fmt.Errorf("%w: IMEI and model are required", ErrInvalidDevice)
	}
	if device.Cost.IsNegative() || device.Price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidDevice)
	}

	dt, err := s.loadDevices(ctx, true)
	if err != nil {
		return nil, err
	}
	if _, existing := dt.find(device.IMEI); existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, device.IMEI)
	}

	now := s.now().In(s.loc)
	device.Status = models.DeviceInStock
	if device.ReceivedAt.IsZero() {
		device.ReceivedAt = now
	}
	device.SoldAt = time.Time{}
	device.OrderID = ""

	row := writeDevice(dt.cols, make([]string, dt.cols.Width()), &device)
	if err := s.gateway.AppendRows(ctx, models.SheetInventory, [][]string{row}); err != nil {
		return nil, fmt.Errorf("failed to add device: %w", err)
	}

	event := models.NewEvent(models.EventDeviceReceived, now)
	event.Device = &device
	notify.Emit(ctx, s.publisher, event, s.logger)

	s.logger.Info("Received device %s (%s)", device.IMEI, device.DisplayName())
	return &device, nil
}

// Transition moves a device to another status, records it in the history
// tab and, for returns, cancels the device's active warranty.
func (s *Service) Transition(ctx context.Context, imei string, to models.DeviceStatus, note string) (*models.Device, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	dt, err := s.loadDevices(ctx, true)
	if err != nil {
		return nil, err
	}
	key := vn.NormalizeIMEI(imei)
	idx, device := dt.find(key)
	if device == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	from := device.Status
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	now := s.now().In(s.loc)
	device.Status = to
	switch to {
	case models.DeviceSold:
		if device.SoldAt.IsZero() {
			device.SoldAt = now
		}
	case models.DeviceInStock:
		device.SoldAt = time.Time{}
		device.OrderID = ""
	}

	if err := s.writeRow(ctx, dt, idx, device); err != nil {
		return nil, err
	}

	transition := models.Transition{IMEI: key, From: from, To: to, At: now, Note: note}
	s.appendHistory(ctx, transition)

	var cancelErr error
	if to == models.DeviceReturned && s.warranty != nil {
		reason := "Khách trả máy"
		if note != "" {
			reason += ": " + note
		}
		if _, err := s.warranty.CancelByDevice(ctx, key, reason); err != nil {
			s.logger.Error("Device %s returned, cancelling warranty failed: %v", key, err)
			cancelErr = fmt.Errorf("%w: %w", ErrWarrantyNotCancelled, err)
		}
	}

	event := models.NewEvent(models.EventInventoryTransitioned, now)
	event.Transition = &transition
	event.Device = device
	notify.Emit(ctx, s.publisher, event, s.logger)

	s.logger.Info("Device %s: %s -> %s", key, from, to)
	return device, cancelErr
}

// MarkSold flags devices as sold under an order. Every device must still be
// in stock.
func (s *Service) MarkSold(ctx context.Context, imeis []string, orderID string, at time.Time) error {
	if len(imeis) == 0 {
		return nil
	}

	dt, err := s.loadDevices(ctx, true)
	if err != nil {
		return err
	}

	var updates []deviceRow
	for _, imei := range imeis {
		key := vn.NormalizeIMEI(imei)
		idx, device := dt.find(key)
		if device == nil {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
		}
		if device.Status != models.DeviceInStock {
			return fmt.Errorf("%w: %s is %s", ErrDeviceUnavailable, key, device.Status.Label())
		}
		updates = append(updates, deviceRow{index: idx, device: device})
	}

	at = at.In(s.loc)
	history := make([]models.Transition, 0, len(updates))
	for _, u := range updates {
		u.device.Status = models.DeviceSold
		u.device.SoldAt = at
		u.device.OrderID = orderID
		if err := s.writeRow(ctx, dt, u.index, u.device); err != nil {
			return err
		}
		history = append(history, models.Transition{
			IMEI: u.device.IMEI, From: models.DeviceInStock, To: models.DeviceSold, At: at, Note: orderID,
		})
	}
	s.appendHistory(ctx, history...)
	return nil
}

func (s *Service) writeRow(ctx context.Context, dt *deviceTable, idx int, device *models.Device) error {
	if vn.NormalizeIMEI(dt.cols.Get(dt.table.Rows[idx], "imei")) != device.IMEI {
		return fmt.Errorf("%w: %s at row %d", ErrRowMoved, device.IMEI, dt.table.SheetRow(idx))
	}
	row := writeDevice(dt.cols, dt.table.Rows[idx], device)
	rng, err := sheets.RowRange(dt.table.SheetRow(idx), len(row))
	if err != nil {
		return err
	}
	if err := s.gateway.UpdateRange(ctx, models.SheetInventory, rng, [][]string{row}); err != nil {
		return fmt.Errorf("failed to update device %s: %w", device.IMEI, err)
	}
	dt.table.Rows[idx] = row
	return nil
}

// appendHistory is best effort: the device row is the source of truth.
func (s *Service) appendHistory(ctx context.Context, transitions ...models.Transition) {
	if len(transitions) == 0 {
		return
	}
	_, cols, err := sheets.Load(ctx, s.gateway, models.SheetHistory, HistorySchema)
	if err != nil {
		s.logger.Warn("Skipping inventory history: %v", err)
		return
	}

	rows := make([][]string, 0, len(transitions))
	for _, t := range transitions {
		rows = append(rows, cols.NewRow(map[string]string{
			"at":   vn.FormatTimestamp(t.At),
			"imei": sheets.Literal(t.IMEI),
			"from": t.From.Label(),
			"to":   t.To.Label(),
			"note": t.Note,
		}))
	}
	if err := s.gateway.AppendRows(ctx, models.SheetHistory, rows); err != nil {
		s.logger.Warn("Failed to write inventory history: %v", err)
	}
}

// History returns the recorded transitions of a device, oldest first.
func (s *Service) History(ctx context.Context, imei string) ([]models.Transition, error) {
	table, cols, err := sheets.Load(ctx, s.gateway, models.SheetHistory, HistorySchema)
	if err != nil {
		return nil, err
	}

	key := vn.NormalizeIMEI(imei)
	var out []models.Transition
	for _, row := range table.Rows {
		if vn.NormalizeIMEI(cols.Get(row, "imei")) != key {
			continue
		}
		t := models.Transition{IMEI: key, Note: cols.Get(row, "note")}
		t.From, _ = models.ParseDeviceStatus(cols.Get(row, "from"))
		t.To, _ = models.ParseDeviceStatus(cols.Get(row, "to"))
		t.At, _ = vn.ParseDate(cols.Get(row, "at"), s.loc)
		out = append(out, t)
	}
	return out, nil
}

type accessoryTable struct {
	table *sheets.Table
	cols  *sheets.Columns
	index map[string]int
	items []models.Accessory
}

func (s *Service) loadAccessories(ctx context.Context, fresh bool) (*accessoryTable, error) {
	load := sheets.Load
	if fresh {
		load = sheets.LoadFresh
	}
	table, cols, err := load(ctx, s.gateway, models.SheetAccessories, AccessorySchema)
	if err != nil {
		return nil, err
	}

	at := &accessoryTable{table: table, cols: cols, index: make(map[string]int)}
	for i, row := range table.Rows {
		sku := cols.Get(row, "sku")
		if sku == "" {
			continue
		}
		stock, err := strconv.Atoi(strings.ReplaceAll(cols.Get(row, "stock"), ".", ""))
		if err != nil {
			stock = 0
		}
		at.index[skuKey(sku)] = i
		at.items = append(at.items, models.Accessory{
			SKU:   sku,
			Name:  cols.Get(row, "name"),
			Cost:  s.money(cols.Get(row, "cost"), table.SheetRow(i)),
			Price: s.money(cols.Get(row, "price"), table.SheetRow(i)),
			Stock: stock,
		})
	}
	return at, nil
}

func skuKey(sku string) string {
	return strings.ToUpper(vn.Key(sku))
}

// Accessories lists the accessory catalogue with stock counts.
func (s *Service) Accessories(ctx context.Context) ([]models.Accessory, error) {
	at, err := s.loadAccessories(ctx, false)
	if err != nil {
		return nil, err
	}
	return at.items, nil
}

// AccessoriesBySKU returns the catalogue keyed by normalised SKU.
func (s *Service) AccessoriesBySKU(ctx context.Context) (map[string]models.Accessory, error) {
	items, err := s.Accessories(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Accessory, len(items))
	for _, item := range items {
		out[skuKey(item.SKU)] = item
	}
	return out, nil
}

// SKUKey is the lookup key for AccessoriesBySKU.
func SKUKey(sku string) string {
	return skuKey(sku)
}

// DecrementAccessories takes quantities out of stock. Nothing is written
// unless every SKU has enough stock.
func (s *Service) DecrementAccessories(ctx context.Context, quantities map[string]int) error {
	if len(quantities) == 0 {
		return nil
	}

	at, err := s.loadAccessories(ctx, true)
	if err != nil {
		return err
	}

	type change struct {
		row   int
		stock int
	}
	var changes []change
	for sku, qty := range quantities {
		idx, ok := at.index[skuKey(sku)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrAccessoryNotFound, sku)
		}
		current, _ := strconv.Atoi(strings.ReplaceAll(at.cols.Get(at.table.Rows[idx], "stock"), ".", ""))
		if current < qty {
			return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, sku, current, qty)
		}
		changes = append(changes, change{row: at.table.SheetRow(idx), stock: current - qty})
	}

	col := at.cols.Index("stock") + 1
	for _, c := range changes {
		cell, err := sheets.CellName(col, c.row)
		if err != nil {
			return err
		}
		if err := s.gateway.UpdateRange(ctx, models.SheetAccessories, cell, [][]string{{strconv.Itoa(c.stock)}}); err != nil {
			return fmt.Errorf("failed to update accessory stock: %w", err)
		}
	}
	return nil
}
