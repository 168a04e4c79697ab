package warranty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/sheets"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event *models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var testLoc = time.FixedZone("ICT", 7*3600)

func seed() map[string][][]string {
	return map[string][][]string{
		models.SheetPackages: {
			PackageSchema.Header(),
			{"VIP", "Bảo hành VIP", "30", "12", "6", "1.500.000"},
			{"CB", "Cơ bản", "7 ngày", "6 tháng", "", "500k"},
			{"", "", "", "", "", ""},
		},
		models.SheetWarranty: {
			ContractSchema.Header(),
			{"BH-1", "356789012345678", "iPhone 13", "Anh Tuấn", "0901234567", "CB", "01/01/2024", "08/01/2024", "01/07/2024", "", "Hiệu lực", "DH-1", ""},
			{"BH-2", "111222333444555", "iPhone 12", "Chị Lan", "0912345678", "VIP", "01/03/2024", "31/03/2024", "01/03/2025", "01/09/2024", "Hiệu lực", "DH-2", ""},
			{"BH-3", "111222333444555", "iPhone 12", "Chị Lan", "0912345678", "CB", "05/03/2024", "12/03/2024", "05/09/2024", "", "Hiệu lực", "", "gia hạn"},
			{"BH-4", "111222333444555", "iPhone 12", "Chị Lan", "0912345678", "CB", "05/03/2023", "12/03/2023", "05/09/2023", "", "Hiệu lực", "", ""},
		},
	}
}

func newTestService(t *testing.T) (*Service, *sheets.MemoryGateway, *recordingPublisher) {
	t.Helper()
	gw := sheets.NewMemoryGateway(seed())
	pub := &recordingPublisher{}
	svc := NewService(gw, pub, testLoc, logger.Nop())
	svc.now = func() time.Time { return time.Date(2024, 4, 10, 15, 0, 0, 0, testLoc) }
	return svc, gw, pub
}

func TestPackages(t *testing.T) {
	svc, _, _ := newTestService(t)

	packages, err := svc.Packages(context.Background())
	require.NoError(t, err)
	require.Len(t, packages, 2)

	assert.Equal(t, "VIP", packages[0].Code)
	assert.Equal(t, 30, packages[0].ExchangeDays)
	assert.Equal(t, 12, packages[0].HardwareMonths)
	assert.Equal(t, 6, packages[0].CNCMonths)
	assert.Equal(t, "1500000", packages[0].Price.String())

	assert.Equal(t, 7, packages[1].ExchangeDays)
	assert.Equal(t, 6, packages[1].HardwareMonths)
	assert.Equal(t, 0, packages[1].CNCMonths)
	assert.Equal(t, "500000", packages[1].Price.String())

	pkg, err := svc.Package(context.Background(), "vip")
	require.NoError(t, err)
	assert.Equal(t, "VIP", pkg.Code)

	_, err = svc.Package(context.Background(), "GOLD")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestCoverage(t *testing.T) {
	pkg := models.WarrantyPackage{ExchangeDays: 30, HardwareMonths: 1, CNCMonths: 0}
	start := time.Date(2024, 1, 31, 16, 45, 0, 0, testLoc)

	c := Coverage(pkg, start)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, testLoc), c.Start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, testLoc), c.ExchangeUntil)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, testLoc), c.HardwareUntil)
	assert.True(t, c.CNCUntil.IsZero())

	c = Coverage(models.WarrantyPackage{HardwareMonths: 12}, time.Date(2023, 3, 31, 0, 0, 0, 0, testLoc))
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, testLoc), c.HardwareUntil)
	assert.True(t, c.ExchangeUntil.IsZero())
}

func TestIssue(t *testing.T) {
	svc, gw, pub := newTestService(t)

	contract, err := svc.Issue(context.Background(), IssueRequest{
		IMEI:          "35 6789-0123 45999",
		DeviceName:    "iPhone 14 Pro",
		CustomerName:  " Anh Minh ",
		CustomerPhone: "+84 901 111 222",
		PackageCode:   "vip",
		OrderID:       "DH-20240410-AAAAAA",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^BH-20240410-[0-9A-F]{6}$`, contract.ID)
	assert.Equal(t, "356789012345999", contract.IMEI)
	assert.Equal(t, "0901111222", contract.CustomerPhone)
	assert.Equal(t, "VIP", contract.PackageCode)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, testLoc), contract.Coverage.ExchangeUntil)

	grid := gw.Snapshot(models.SheetWarranty)
	last := grid[len(grid)-1]
	assert.Equal(t, contract.ID, last[0])
	assert.Equal(t, "356789012345999", last[1])
	assert.Equal(t, "0901111222", last[4])
	assert.Equal(t, "10/04/2024", last[6])
	assert.Equal(t, "10/05/2024", last[7])
	assert.Equal(t, "10/04/2025", last[8])
	assert.Equal(t, "10/10/2024", last[9])
	assert.Equal(t, "Hiệu lực", last[10])

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventWarrantyIssued, pub.events[0].Type)
	assert.Len(t, pub.events[0].Contracts, 1)
}

func TestIssueUnknownPackage(t *testing.T) {
	svc, gw, pub := newTestService(t)
	before := len(gw.Snapshot(models.SheetWarranty))

	_, err := svc.Issue(context.Background(), IssueRequest{IMEI: "123", PackageCode: "GOLD"})
	assert.ErrorIs(t, err, ErrPackageNotFound)
	assert.Len(t, gw.Snapshot(models.SheetWarranty), before)
	assert.Empty(t, pub.events)
}

func TestByDevice(t *testing.T) {
	svc, _, _ := newTestService(t)

	contracts, err := svc.ByDevice(context.Background(), "111222333444555")
	require.NoError(t, err)
	require.Len(t, contracts, 3)
	assert.Equal(t, models.ContractActive, contracts[0].Status)
	assert.Equal(t, models.ContractActive, contracts[1].Status)
	assert.Equal(t, models.ContractExpired, contracts[2].Status)

	none, err := svc.ByDevice(context.Background(), "000")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCancelByDeviceSingleRowUsesRangeUpdate(t *testing.T) {
	svc, gw, pub := newTestService(t)

	cancelled, err := svc.CancelByDevice(context.Background(), "356789012345678", "Khách trả máy")
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "BH-1", cancelled[0].ID)

	grid := gw.Snapshot(models.SheetWarranty)
	assert.Len(t, grid, 5)
	assert.Equal(t, "Đã hủy", grid[1][10])
	assert.Equal(t, "Khách trả máy", grid[1][12])
	assert.Equal(t, "Hiệu lực", grid[2][10])

	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventWarrantyCancelled, pub.events[0].Type)
	assert.Equal(t, "Khách trả máy", pub.events[0].Reason)
}

func TestCancelByDeviceManyRowsOverwrites(t *testing.T) {
	svc, gw, _ := newTestService(t)

	cancelled, err := svc.CancelByDevice(context.Background(), "111222333444555", "Lỗi nguồn")
	require.NoError(t, err)
	// the expired 2023 contract is left alone
	require.Len(t, cancelled, 2)

	grid := gw.Snapshot(models.SheetWarranty)
	require.Len(t, grid, 5)
	assert.Equal(t, ContractSchema.Header(), grid[0])
	assert.Equal(t, "Hiệu lực", grid[1][10])
	assert.Equal(t, "356789012345678", grid[1][1])
	assert.Equal(t, "0901234567", grid[1][4])
	assert.Equal(t, "Đã hủy", grid[2][10])
	assert.Equal(t, "Đã hủy", grid[3][10])
	assert.Equal(t, "gia hạn; Lỗi nguồn", grid[3][12])
	assert.Equal(t, "Hiệu lực", grid[4][10])

	again, err := svc.CancelByDevice(context.Background(), "111222333444555", "")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCancelByDeviceSeesUpstreamEdits(t *testing.T) {
	gw := sheets.NewMemoryGateway(seed())
	svc := NewService(sheets.NewCachedGateway(gw, time.Minute, 0, logger.Nop()), &recordingPublisher{}, testLoc, logger.Nop())
	svc.now = func() time.Time { return time.Date(2024, 4, 10, 15, 0, 0, 0, testLoc) }
	ctx := context.Background()

	_, err := svc.ByDevice(ctx, "111222333444555")
	require.NoError(t, err)

	// a contract typed straight into the sheet while ByDevice is cached
	manual := []string{"BH-MANUAL", "987654321098765", "Galaxy A54", "Anh Nam", "0933000111", "CB", "08/04/2024", "15/04/2024", "08/10/2024", "", "Hiệu lực", "", ""}
	require.NoError(t, gw.AppendRows(ctx, models.SheetWarranty, [][]string{manual}))

	cancelled, err := svc.CancelByDevice(ctx, "111222333444555", "Lỗi nguồn")
	require.NoError(t, err)
	require.Len(t, cancelled, 2)

	grid := gw.Snapshot(models.SheetWarranty)
	require.Len(t, grid, 6)
	assert.Equal(t, manual, grid[5])
	assert.Equal(t, "Đã hủy", grid[2][10])
	assert.Equal(t, "Đã hủy", grid[3][10])
}

func TestCancelByDeviceWriteFailure(t *testing.T) {
	svc, gw, pub := newTestService(t)
	boom := errors.New("boom")

	// first call is the read, second the update
	gw.FailNext(nil)
	gw.FailNext(boom)
	_, err := svc.CancelByDevice(context.Background(), "356789012345678", "")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.events)
}

func TestLeadingInt(t *testing.T) {
	assert.Equal(t, 12, leadingInt("12"))
	assert.Equal(t, 6, leadingInt(" 6 tháng"))
	assert.Equal(t, 0, leadingInt(""))
	assert.Equal(t, 0, leadingInt("không"))
}
