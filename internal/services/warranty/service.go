// Package warranty manages the warranty rate card and the contracts issued
// against sold devices.
package warranty

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/notify"
	"phoneshop/internal/sheets"
	"phoneshop/internal/vn"
)

var (
	ErrPackageNotFound = errors.New("warranty package not found")
	ErrInvalidRequest  = errors.New("invalid warranty request")
)

var PackageSchema = sheets.Schema{
	{Name: "code", Aliases: []string{"Mã gói", "Ma goi", "Code"}},
	{Name: "name", Aliases: []string{"Tên gói", "Ten goi", "Package"}},
	{Name: "exchange_days", Aliases: []string{"1 đổi 1 (ngày)", "1 đổi 1", "Đổi trả (ngày)"}},
	{Name: "hardware_months", Aliases: []string{"Phần cứng (tháng)", "Phần cứng", "BH phần cứng"}},
	{Name: "cnc_months", Aliases: []string{"CNC (tháng)", "CNC"}},
	{Name: "price", Aliases: []string{"Giá", "Giá bán", "Price"}},
}

var ContractSchema = sheets.Schema{
	{Name: "id", Aliases: []string{"Mã HĐ", "Mã hợp đồng", "Ma HD"}},
	{Name: "imei", Aliases: []string{"IMEI/Serial", "IMEI", "Serial"}},
	{Name: "device", Aliases: []string{"Tên máy", "Máy", "Model"}},
	{Name: "customer", Aliases: []string{"Khách hàng", "Tên khách"}},
	{Name: "phone", Aliases: []string{"SĐT", "Số điện thoại", "Điện thoại"}},
	{Name: "package", Aliases: []string{"Mã gói", "Gói"}},
	{Name: "start", Aliases: []string{"Ngày bắt đầu", "Ngày mua"}},
	{Name: "exchange_until", Aliases: []string{"Hết 1 đổi 1", "Hạn 1 đổi 1"}},
	{Name: "hardware_until", Aliases: []string{"Hết phần cứng", "Hạn phần cứng"}},
	{Name: "cnc_until", Aliases: []string{"Hết CNC", "Hạn CNC"}},
	{Name: "status", Aliases: []string{"Trạng thái", "Status"}},
	{Name: "order", Aliases: []string{"Mã đơn", "Đơn hàng"}, Optional: true},
	{Name: "note", Aliases: []string{"Ghi chú", "Note"}, Optional: true},
}

// IssueRequest describes one contract to write.
type IssueRequest struct {
	IMEI          string    `json:"imei" binding:"required"`
	DeviceName    string    `json:"device_name"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	PackageCode   string    `json:"package_code" binding:"required"`
	Start         time.Time `json:"start"`
	OrderID       string    `json:"order_id"`
	Note          string    `json:"note"`
}

type Service struct {
	gateway   sheets.Gateway
	publisher notify.Publisher
	logger    *logger.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(gateway sheets.Gateway, publisher notify.Publisher, loc *time.Location, logger *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
	}
}

// Packages returns the rate card in sheet order.
func (s *Service) Packages(ctx context.Context) ([]models.WarrantyPackage, error) {
	table, cols, err := sheets.Load(ctx, s.gateway, models.SheetPackages, PackageSchema)
	if err != nil {
		return nil, err
	}

	var packages []models.WarrantyPackage
	for i, row := range table.Rows {
		code := cols.Get(row, "code")
		if code == "" {
			continue
		}
		price, err := vn.ParseMoney(cols.Get(row, "price"))
		if err != nil && !errors.Is(err, vn.ErrEmptyAmount) {
			s.logger.Warn("Skipping package %s on row %d: %v", code, table.SheetRow(i), err)
			continue
		}
		packages = append(packages, models.WarrantyPackage{
			Code:           code,
			Name:           cols.Get(row, "name"),
			ExchangeDays:   leadingInt(cols.Get(row, "exchange_days")),
			HardwareMonths: leadingInt(cols.Get(row, "hardware_months")),
			CNCMonths:      leadingInt(cols.Get(row, "cnc_months")),
			Price:          price,
		})
	}
	return packages, nil
}

// Package looks a package up by code, ignoring case and diacritics.
func (s *Service) Package(ctx context.Context, code string) (*models.WarrantyPackage, error) {
	packages, err := s.Packages(ctx)
	if err != nil {
		return nil, err
	}
	return findPackage(packages, code)
}

func findPackage(packages []models.WarrantyPackage, code string) (*models.WarrantyPackage, error) {
	want := vn.Key(code)
	for i := range packages {
		if vn.Key(packages[i].Code) == want {
			return &packages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, code)
}

// Coverage computes the end date of each component from the start day.
// Month offsets clamp to the end of the month, so Jan 31 plus one month is
// the last day of February.
func Coverage(pkg models.WarrantyPackage, start time.Time) models.Coverage {
	y, m, d := start.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, start.Location())

	c := models.Coverage{Start: day}
	if pkg.ExchangeDays > 0 {
		c.ExchangeUntil = day.AddDate(0, 0, pkg.ExchangeDays)
	}
	if pkg.HardwareMonths > 0 {
		c.HardwareUntil = vn.AddMonths(day, pkg.HardwareMonths)
	}
	if pkg.CNCMonths > 0 {
		c.CNCUntil = vn.AddMonths(day, pkg.CNCMonths)
	}
	return c
}

// Issue writes one contract.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.WarrantyContract, error) {
	contracts, err := s.IssueBatch(ctx, []IssueRequest{req})
	if err != nil {
		return nil, err
	}
	return contracts[0], nil
}

// IssueBatch writes all contracts with a single append and publishes one
// warranty.issued event.
func (s *Service) IssueBatch(ctx context.Context, reqs []IssueRequest) ([]*models.WarrantyContract, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	packages, err := s.Packages(ctx)
	if err != nil {
		return nil, err
	}
	_, cols, err := sheets.Load(ctx, s.gateway, models.SheetWarranty, ContractSchema)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	contracts := make([]*models.WarrantyContract, 0, len(reqs))
	rows := make([][]string, 0, len(reqs))
	for _, req := range reqs {
		imei := vn.NormalizeIMEI(req.IMEI)
		if imei == "" {
			return nil, fmt.Errorf("%w: missing IMEI", ErrInvalidRequest)
		}
		pkg, err := findPackage(packages, req.PackageCode)
		if err != nil {
			return nil, err
		}
		start := req.Start
		if start.IsZero() {
			start = now
		}

		contract := &models.WarrantyContract{
			ID:            NewContractID(start.In(s.loc)),
			IMEI:          imei,
			DeviceName:    req.DeviceName,
			CustomerName:  strings.TrimSpace(req.CustomerName),
			CustomerPhone: vn.NormalizePhone(req.CustomerPhone),
			PackageCode:   pkg.Code,
			Coverage:      Coverage(*pkg, start.In(s.loc)),
			Status:        models.ContractActive,
			OrderID:       req.OrderID,
			Note:          req.Note,
		}
		contracts = append(contracts, contract)
		rows = append(rows, contractRow(cols, make([]string, cols.Width()), contract))
	}

	if err := s.gateway.AppendRows(ctx, models.SheetWarranty, rows); err != nil {
		return nil, fmt.Errorf("failed to write contracts: %w", err)
	}

	event := models.NewEvent(models.EventWarrantyIssued, now)
	event.Contracts = contracts
	notify.Emit(ctx, s.publisher, event, s.logger)

	s.logger.Info("Issued %d warranty contract(s)", len(contracts))
	return contracts, nil
}

// CancelByDevice cancels every active contract of a device. A single row is
// rewritten in place; several rows are written back with one overwrite.
func (s *Service) CancelByDevice(ctx context.Context, imei, reason string) ([]*models.WarrantyContract, error) {
	imei = vn.NormalizeIMEI(imei)
	if imei == "" {
		return nil, fmt.Errorf("%w: missing IMEI", ErrInvalidRequest)
	}

	table, cols, err := sheets.LoadFresh(ctx, s.gateway, models.SheetWarranty, ContractSchema)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var changed []int
	var cancelled []*models.WarrantyContract
	for i, row := range table.Rows {
		if vn.NormalizeIMEI(cols.Get(row, "imei")) != imei {
			continue
		}
		contract := s.parseContract(cols, row)
		if contract.StateAt(now) != models.ContractActive {
			continue
		}

		contract.Status = models.ContractCancelled
		if reason != "" {
			contract.Note = joinNote(contract.Note, reason)
		}
		table.Rows[i] = contractRow(cols, row, contract)
		changed = append(changed, i)
		cancelled = append(cancelled, contract)
	}

	switch {
	case len(changed) == 0:
		return nil, nil
	case len(changed) == 1:
		i := changed[0]
		rng, err := sheets.RowRange(table.SheetRow(i), len(table.Rows[i]))
		if err != nil {
			return nil, err
		}
		if err := s.gateway.UpdateRange(ctx, models.SheetWarranty, rng, [][]string{table.Rows[i]}); err != nil {
			return nil, fmt.Errorf("failed to cancel contract: %w", err)
		}
	default:
		values := table.Values()
		for r := 1; r < len(values); r++ {
			values[r] = cols.WithLiterals(values[r], "imei", "phone")
		}
		if err := s.gateway.OverwriteRange(ctx, models.SheetWarranty, values); err != nil {
			return nil, fmt.Errorf("failed to cancel contracts: %w", err)
		}
	}

	event := models.NewEvent(models.EventWarrantyCancelled, now)
	event.Contracts = cancelled
	event.Reason = reason
	notify.Emit(ctx, s.publisher, event, s.logger)

	s.logger.Info("Cancelled %d warranty contract(s) for %s", len(cancelled), imei)
	return cancelled, nil
}

// ByDevice returns the device's contracts with their derived state.
func (s *Service) ByDevice(ctx context.Context, imei string) ([]*models.WarrantyContract, error) {
	imei = vn.NormalizeIMEI(imei)
	table, cols, err := sheets.Load(ctx, s.gateway, models.SheetWarranty, ContractSchema)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var contracts []*models.WarrantyContract
	for _, row := range table.Rows {
		if vn.NormalizeIMEI(cols.Get(row, "imei")) != imei {
			continue
		}
		contract := s.parseContract(cols, row)
		contract.Status = contract.StateAt(now)
		contracts = append(contracts, contract)
	}
	return contracts, nil
}

func (s *Service) parseContract(cols *sheets.Columns, row []string) *models.WarrantyContract {
	date := func(field string) time.Time {
		raw := cols.Get(row, field)
		if raw == "" {
			return time.Time{}
		}
		t, err := vn.ParseDate(raw, s.loc)
		if err != nil {
			s.logger.Debug("Unreadable %s date %q: %v", field, raw, err)
			return time.Time{}
		}
		return t
	}

	return &models.WarrantyContract{
		ID:            cols.Get(row, "id"),
		IMEI:          vn.NormalizeIMEI(cols.Get(row, "imei")),
		DeviceName:    cols.Get(row, "device"),
		CustomerName:  cols.Get(row, "customer"),
		CustomerPhone: vn.NormalizePhone(cols.Get(row, "phone")),
		PackageCode:   cols.Get(row, "package"),
		Coverage: models.Coverage{
			Start:         date("start"),
			ExchangeUntil: date("exchange_until"),
			HardwareUntil: date("hardware_until"),
			CNCUntil:      date("cnc_until"),
		},
		Status:  models.ParseContractStatus(cols.Get(row, "status")),
		OrderID: cols.Get(row, "order"),
		Note:    cols.Get(row, "note"),
	}
}

func contractRow(cols *sheets.Columns, row []string, c *models.WarrantyContract) []string {
	row = append([]string(nil), row...)
	row = cols.Set(row, "id", c.ID)
	row = cols.Set(row, "imei", sheets.Literal(c.IMEI))
	row = cols.Set(row, "device", c.DeviceName)
	row = cols.Set(row, "customer", c.CustomerName)
	row = cols.Set(row, "phone", sheets.Literal(c.CustomerPhone))
	row = cols.Set(row, "package", c.PackageCode)
	row = cols.Set(row, "start", vn.FormatDate(c.Coverage.Start))
	row = cols.Set(row, "exchange_until", vn.FormatDate(c.Coverage.ExchangeUntil))
	row = cols.Set(row, "hardware_until", vn.FormatDate(c.Coverage.HardwareUntil))
	row = cols.Set(row, "cnc_until", vn.FormatDate(c.Coverage.CNCUntil))
	row = cols.Set(row, "status", c.Status.Label())
	row = cols.Set(row, "order", c.OrderID)
	row = cols.Set(row, "note", c.Note)
	return row
}

// NewContractID returns an ID of the form BH-20240131-7F3A9C.
func NewContractID(at time.Time) string {
	return "BH-" + at.Format("20060102") + "-" + shortID()
}

func shortID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
}

// leadingInt reads "12", "12 tháng" or "" (zero).
func leadingInt(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}
	return n
}

func joinNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + "; " + extra
}
