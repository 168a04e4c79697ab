// Package customers keeps the customer ledger keyed by phone number.
package customers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/sheets"
	"phoneshop/internal/vn"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvalidPhone     = errors.New("invalid phone number")
)

var Schema = sheets.Schema{
	{Name: "phone", Aliases: []string{"SĐT", "Số điện thoại", "Điện thoại", "Phone"}},
	{Name: "name", Aliases: []string{"Tên", "Tên khách", "Khách hàng", "Họ tên"}},
	{Name: "spent", Aliases: []string{"Tổng chi tiêu", "Tổng mua", "Doanh số"}},
	{Name: "orders", Aliases: []string{"Số đơn", "Số lần mua"}},
	{Name: "last", Aliases: []string{"Lần mua cuối", "Mua gần nhất"}},
}

type Service struct {
	gateway sheets.Gateway
	logger  *logger.Logger
	loc     *time.Location
}

func NewService(gateway sheets.Gateway, loc *time.Location, logger *logger.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{gateway: gateway, logger: logger, loc: loc}
}

// Upsert adds a purchase to the customer with this phone number, creating
// the customer when missing. A known customer's empty name is filled in but
// an existing name is never replaced.
func (s *Service) Upsert(ctx context.Context, name, phone string, amount decimal.Decimal, at time.Time) (*models.Customer, error) {
	key := vn.NormalizePhone(phone)
	if key == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	name = strings.TrimSpace(name)
	at = at.In(s.loc)

	table, cols, err := sheets.LoadFresh(ctx, s.gateway, models.SheetCustomers, Schema)
	if err != nil {
		return nil, err
	}

	for i, row := range table.Rows {
		if vn.NormalizePhone(cols.Get(row, "phone")) != key {
			continue
		}

		c := s.parse(cols, row)
		c.TotalSpent = c.TotalSpent.Add(amount)
		c.OrderCount++
		if at.After(c.LastPurchase) {
			c.LastPurchase = at
		}
		if c.Name == "" {
			c.Name = name
		}

		updated := write(cols, row, c)
		rng, err := sheets.RowRange(table.SheetRow(i), len(updated))
		if err != nil {
			return nil, err
		}
		if err := s.gateway.UpdateRange(ctx, models.SheetCustomers, rng, [][]string{updated}); err != nil {
			return nil, fmt.Errorf("failed to update customer %s: %w", key, err)
		}
		return c, nil
	}

	c := &models.Customer{
		Phone:        key,
		Name:         name,
		TotalSpent:   amount,
		OrderCount:   1,
		LastPurchase: at,
	}
	row := write(cols, make([]string, cols.Width()), c)
	if err := s.gateway.AppendRows(ctx, models.SheetCustomers, [][]string{row}); err != nil {
		return nil, fmt.Errorf("failed to add customer %s: %w", key, err)
	}
	s.logger.Info("New customer %s", key)
	return c, nil
}

func (s *Service) Get(ctx context.Context, phone string) (*models.Customer, error) {
	key := vn.NormalizePhone(phone)
	customers, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range customers {
		if c.Phone == key {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, key)
}

// List returns customers by lifetime spend, highest first.
func (s *Service) List(ctx context.Context) ([]*models.Customer, error) {
	customers, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(customers, func(i, j int) bool {
		return customers[i].TotalSpent.GreaterThan(customers[j].TotalSpent)
	})
	return customers, nil
}

func (s *Service) all(ctx context.Context) ([]*models.Customer, error) {
	table, cols, err := sheets.Load(ctx, s.gateway, models.SheetCustomers, Schema)
	if err != nil {
		return nil, err
	}
	var out []*models.Customer
	for _, row := range table.Rows {
		if vn.NormalizePhone(cols.Get(row, "phone")) == "" {
			continue
		}
		out = append(out, s.parse(cols, row))
	}
	return out, nil
}

func (s *Service) parse(cols *sheets.Columns, row []string) *models.Customer {
	c := &models.Customer{
		Phone:      vn.NormalizePhone(cols.Get(row, "phone")),
		Name:       cols.Get(row, "name"),
		TotalSpent: vn.MoneyOrZero(cols.Get(row, "spent")),
	}
	if n, err := strconv.Atoi(cols.Get(row, "orders")); err == nil {
		c.OrderCount = n
	}
	if raw := cols.Get(row, "last"); raw != "" {
		c.LastPurchase, _ = vn.ParseDate(raw, s.loc)
	}
	return c
}

func write(cols *sheets.Columns, row []string, c *models.Customer) []string {
	row = append([]string(nil), row...)
	row = cols.Set(row, "phone", sheets.Literal(c.Phone))
	row = cols.Set(row, "name", c.Name)
	row = cols.Set(row, "spent", vn.CellAmount(c.TotalSpent))
	row = cols.Set(row, "orders", strconv.Itoa(c.OrderCount))
	row = cols.Set(row, "last", vn.FormatTimestamp(c.LastPurchase))
	return row
}
