package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"phoneshop/internal/logger"
)

func seedInventory() map[string][][]string {
	return map[string][][]string{
		"Kho": {
			{"IMEI/Serial", "Tên máy", "Giá bán"},
			{"111", "iPhone 12", "9000000"},
			{"222", "iPhone 13"},
		},
	}
}

func TestMemoryGateway_ReadPadsRows(t *testing.T) {
	g := NewMemoryGateway(seedInventory())

	table, err := g.Read(context.Background(), "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"IMEI/Serial", "Tên máy", "Giá bán"}, table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"222", "iPhone 13", ""}, table.Rows[1])
	assert.Equal(t, 3, table.SheetRow(1))

	_, err = g.Read(context.Background(), "Missing", "")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestMemoryGateway_ReadRange(t *testing.T) {
	g := NewMemoryGateway(seedInventory())

	table, err := g.Read(context.Background(), "Kho", "A1:B2")
	require.NoError(t, err)
	assert.Equal(t, []string{"IMEI/Serial", "Tên máy"}, table.Header)
	assert.Equal(t, [][]string{{"111", "iPhone 12"}}, table.Rows)
}

func TestMemoryGateway_Writes(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway(seedInventory())

	require.NoError(t, g.AppendRows(ctx, "Kho", [][]string{{"'0333", "Galaxy S23", "12000000"}}))
	require.NoError(t, g.UpdateRange(ctx, "Kho", "C3:C3", [][]string{{"10000000"}}))

	grid := g.Snapshot("Kho")
	require.Len(t, grid, 4)
	assert.Equal(t, "0333", grid[3][0])
	assert.Equal(t, "10000000", grid[2][2])

	require.NoError(t, g.OverwriteRange(ctx, "Kho", [][]string{{"IMEI/Serial"}, {"999"}}))
	assert.Equal(t, [][]string{{"IMEI/Serial"}, {"999"}}, g.Snapshot("Kho"))

	reads, writes := g.Calls()
	assert.Equal(t, 0, reads)
	assert.Equal(t, 3, writes)
}

func TestRowRange(t *testing.T) {
	rng, err := RowRange(5, 11)
	require.NoError(t, err)
	assert.Equal(t, "A5:K5", rng)

	_, err = RowRange(5, 0)
	assert.Error(t, err)

	assert.Equal(t, "'Khách hàng'!A1", qualify("Khách hàng", "A1"))
	assert.Equal(t, "'O''Brien'", qualify("O'Brien", ""))
	assert.Equal(t, "'0912345678", Literal("0912345678"))
	assert.Equal(t, "iPhone", Literal("iPhone"))
}

func TestSchemaResolve(t *testing.T) {
	schema := Schema{
		{Name: "imei", Aliases: []string{"IMEI/Serial", "IMEI", "Serial"}},
		{Name: "cost", Aliases: []string{"Giá nhập", "Giá vốn"}},
		{Name: "price", Aliases: []string{"Giá bán"}},
		{Name: "note", Aliases: []string{"Ghi chú"}, Optional: true},
	}

	cols, err := schema.Resolve([]string{"Số IMEI", "GIA BAN LE", "giá  nhập (VNĐ)", "Tên"})
	require.NoError(t, err)
	assert.Equal(t, 0, cols.Index("imei"))
	assert.Equal(t, 2, cols.Index("cost"))
	assert.Equal(t, 1, cols.Index("price"))
	assert.Equal(t, -1, cols.Index("note"))
	assert.False(t, cols.Has("note"))

	row := []string{"  111 ", "9000000"}
	assert.Equal(t, "111", cols.Get(row, "imei"))
	assert.Equal(t, "", cols.Get(row, "cost"))
	row = cols.Set(row, "cost", "8000000")
	assert.Equal(t, []string{"  111 ", "9000000", "8000000"}, row)
	assert.Equal(t, row, cols.Set(row, "note", "ignored"))

	_, err = schema.Resolve([]string{"IMEI", "Giá bán"})
	require.ErrorIs(t, err, ErrColumnNotFound)
	assert.Contains(t, err.Error(), "Giá nhập")
}

func TestSchemaResolve_ExactBeatsContains(t *testing.T) {
	schema := Schema{
		{Name: "name", Aliases: []string{"Tên"}},
		{Name: "model", Aliases: []string{"Tên máy"}},
	}

	cols, err := schema.Resolve([]string{"Tên máy", "Tên"})
	require.NoError(t, err)
	assert.Equal(t, 1, cols.Index("name"))
	assert.Equal(t, 0, cols.Index("model"))
	assert.Equal(t, []string{"", "Khoa"}, cols.NewRow(map[string]string{"name": "Khoa"}))
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestCache(upstream Gateway, ttl time.Duration) (*CachedGateway, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCachedGateway(upstream, ttl, 0, logger.Nop())
	c.now = clock.Now
	return c, clock
}

func TestCachedGateway_HitAndExpiry(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache, clock := newTestCache(upstream, 30*time.Second)

	_, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	first, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)

	reads, _ := upstream.Calls()
	assert.Equal(t, 1, reads)

	first.Rows[0][0] = "mutated"
	again, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, "111", again.Rows[0][0])

	clock.now = clock.now.Add(31 * time.Second)
	_, err = cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	reads, _ = upstream.Calls()
	assert.Equal(t, 2, reads)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCachedGateway_ServesStaleOnRateLimit(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache, clock := newTestCache(upstream, time.Second)

	_, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	upstream.FailNext(fmt.Errorf("%w: quota", ErrRateLimited))

	table, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, "111", table.Rows[0][0])
	assert.Equal(t, int64(1), cache.Stats().StaleServes)
}

func TestCachedGateway_ErrorsWithoutStaleCopy(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache, clock := newTestCache(upstream, time.Second)

	upstream.FailNext(fmt.Errorf("%w: quota", ErrRateLimited))
	_, err := cache.Read(ctx, "Kho", "")
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Minute)
	upstream.FailNext(errors.New("boom"))
	_, err = cache.Read(ctx, "Kho", "")
	assert.EqualError(t, err, "boom")
}

func TestCachedGateway_WriteInvalidatesSheet(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache, _ := newTestCache(upstream, time.Hour)

	_, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	_, err = cache.Read(ctx, "Kho", "A1:B2")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Stats().Entries)

	require.NoError(t, cache.AppendRows(ctx, "Kho", [][]string{{"333", "Pixel 8", "1"}}))
	assert.Equal(t, 0, cache.Stats().Entries)

	table, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestCachedGateway_MinInterval(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache := NewCachedGateway(upstream, time.Hour, 100*time.Millisecond, logger.Nop())

	start := time.Now()
	_, err := cache.Read(ctx, "Kho", "")
	require.NoError(t, err)
	require.NoError(t, cache.AppendRows(ctx, "Kho", [][]string{{"333", "Pixel 8", "1"}}))
	_, err = cache.Read(ctx, "Kho", "A1:B2")
	require.NoError(t, err)
	elapsed := time.Since(start)

	// three upstream calls, reads and writes alike, need two full intervals
	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
	reads, writes := upstream.Calls()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, writes)

	// hits never wait
	start = time.Now()
	_, err = cache.Read(ctx, "Kho", "A1:B2")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestCachedGateway_MinIntervalHonoursContext(t *testing.T) {
	upstream := NewMemoryGateway(seedInventory())
	cache := NewCachedGateway(upstream, time.Hour, time.Hour, logger.Nop())

	_, err := cache.Read(context.Background(), "Kho", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = cache.AppendRows(ctx, "Kho", [][]string{{"333"}})
	assert.Error(t, err)
	_, writes := upstream.Calls()
	assert.Equal(t, 0, writes)
}

// blockingGateway holds every Read until release is closed.
type blockingGateway struct {
	*MemoryGateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Read(ctx context.Context, sheet, rng string) (*Table, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.MemoryGateway.Read(ctx, sheet, rng)
}

func TestCachedGateway_CollapsesConcurrentMisses(t *testing.T) {
	const readers = 8
	upstream := &blockingGateway{
		MemoryGateway: NewMemoryGateway(seedInventory()),
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	cache := NewCachedGateway(upstream, time.Hour, 0, logger.Nop())

	var wg sync.WaitGroup
	tables := make([]*Table, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tables[i], errs[i] = cache.Read(context.Background(), "Kho", "")
		}(i)
	}

	<-upstream.entered
	require.Eventually(t, func() bool {
		return cache.Stats().Misses == readers
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(upstream.release)
	wg.Wait()

	reads, _ := upstream.Calls()
	assert.Equal(t, 1, reads)
	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "111", tables[i].Rows[0][0])
	}

	// each caller gets its own copy
	tables[0].Rows[0][0] = "mutated"
	assert.Equal(t, "111", tables[1].Rows[0][0])
}

func TestLoadFreshSkipsCache(t *testing.T) {
	ctx := context.Background()
	upstream := NewMemoryGateway(seedInventory())
	cache, _ := newTestCache(upstream, time.Hour)
	schema := Schema{{Name: "imei", Aliases: []string{"IMEI/Serial"}}}

	_, _, err := Load(ctx, cache, "Kho", schema)
	require.NoError(t, err)
	require.NoError(t, upstream.AppendRows(ctx, "Kho", [][]string{{"333"}}))

	table, _, err := Load(ctx, cache, "Kho", schema)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	table, _, err = LoadFresh(ctx, cache, "Kho", schema)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)

	// a gateway without a cache is read as is
	table, _, err = LoadFresh(ctx, upstream, "Kho", schema)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
}

func TestWorkbookGateway_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shop.xlsx")
	layout := map[string][]string{"Kho": {"IMEI/Serial", "Tên máy", "Giá bán"}}

	g, err := NewWorkbookGateway(path, layout)
	require.NoError(t, err)

	require.NoError(t, g.AppendRows(ctx, "Kho", [][]string{
		{Literal("0356789"), "iPhone 12", "9000000"},
		{"222", "iPhone 13", "12000000"},
	}))
	require.NoError(t, g.UpdateRange(ctx, "Kho", "C3", [][]string{{"11500000"}}))
	require.NoError(t, g.Close())

	reopened, err := NewWorkbookGateway(path, layout)
	require.NoError(t, err)
	defer reopened.Close()

	table, err := reopened.Read(ctx, "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, layout["Kho"], table.Header)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "0356789", table.Rows[0][0])
	assert.Equal(t, "11500000", table.Rows[1][2])

	require.NoError(t, reopened.OverwriteRange(ctx, "Kho", [][]string{layout["Kho"], {"9", "Pixel", "1"}}))
	table, err = reopened.Read(ctx, "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"9", "Pixel", "1"}}, table.Rows)

	_, err = reopened.Read(ctx, "Nope", "")
	assert.ErrorIs(t, err, ErrSheetNotFound)
}

func TestGoogleGateway_Read(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-id/values/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"range":"Kho!A1:C3","majorDimension":"ROWS","values":[["IMEI/Serial","Tên máy","Giá bán"],["111","iPhone 12",9000000]]}`)
	}))
	defer srv.Close()

	g, err := NewGoogleGateway(context.Background(), "sheet-id", "", logger.Nop(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication(), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	table, err := g.Read(context.Background(), "Kho", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"111", "iPhone 12", "9000000"}, table.Rows[0])
}

func TestGoogleGateway_TranslateErrors(t *testing.T) {
	g := &GoogleGateway{logger: logger.Nop()}

	err := g.translate("Kho", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "Quota exceeded"})
	assert.ErrorIs(t, err, ErrRateLimited)

	err = g.translate("Kho", &googleapi.Error{Code: http.StatusBadRequest, Message: "Unable to parse range: 'Kho'"})
	assert.ErrorIs(t, err, ErrSheetNotFound)

	err = g.translate("Kho", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}})
	assert.ErrorIs(t, err, ErrRateLimited)

	err = g.translate("Kho", errors.New("dial tcp: refused"))
	assert.NotErrorIs(t, err, ErrRateLimited)
}
