package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneshop/internal/app"
	"phoneshop/internal/auth"
	"phoneshop/internal/config"
	"phoneshop/internal/logger"
	"phoneshop/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, secret string) (*Server, *app.App) {
	t.Helper()
	cfg := &config.Config{
		DatabaseURL:    "sqlite://" + filepath.Join(t.TempDir(), "journal.db"),
		KafkaTopic:     "shop-events",
		APIHost:        "127.0.0.1",
		APIPort:        "0",
		CORSOrigins:    []string{"https://till.example"},
		JWTSecret:      secret,
		SheetsBackend:  "memory",
		SheetsCacheTTL: time.Minute,
		ShopName:       "Táo Xanh",
		Timezone:       "Asia/Ho_Chi_Minh",
		Env:            "test",
		LogLevel:       "error",
	}
	a, err := app.New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	require.NoError(t, a.Sheets.AppendRows(ctx, models.SheetAccessories, [][]string{
		{"OP1", "Ốp lưng", "20000", "100000", "10"},
	}))
	require.NoError(t, a.Sheets.AppendRows(ctx, models.SheetPackages, [][]string{
		{"VIP", "Bảo hành VIP", "30", "12", "6", "500000"},
	}))

	return New(cfg, logger.Nop(), a), a
}

func do(t *testing.T, s *Server, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Warning    string          `json:"warning"`
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func receive(t *testing.T, s *Server, imei string) {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/v1/inventory", gin.H{
		"imei":  imei,
		"model": "iPhone 13",
		"cost":  "9000000",
		"price": "11500000",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := do(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "memory")
}

func TestInventoryRoutes(t *testing.T) {
	s, _ := newTestServer(t, "")
	receive(t, s, "356789012345678")

	w := do(t, s, http.MethodGet, "/api/v1/inventory?status=con%20hang", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var devices []models.Device
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, models.DeviceInStock, devices[0].Status)

	w = do(t, s, http.MethodGet, "/api/v1/inventory?status=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/inventory/000000000000000", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/inventory", gin.H{"imei": "356789012345678", "model": "x"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/inventory/356789012345678/transition", gin.H{"status": "cnc", "note": "thay màn"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/v1/inventory/356789012345678/transition", gin.H{"status": "sold"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/inventory/356789012345678/history", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.Transition
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, models.DeviceCNC, history[0].To)

	w = do(t, s, http.MethodGet, "/api/v1/accessories", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "OP1")
}

func TestReturnWithBrokenWarrantySheet(t *testing.T) {
	s, a := newTestServer(t, "")
	receive(t, s, "356789012345678")

	w := do(t, s, http.MethodPost, "/api/v1/inventory/356789012345678/transition", gin.H{"status": "sold"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// a warranty tab without its columns cannot be cancelled against
	require.NoError(t, a.Sheets.OverwriteRange(context.Background(), models.SheetWarranty, [][]string{{"Ghi chú"}}))

	w = do(t, s, http.MethodPost, "/api/v1/inventory/356789012345678/transition", gin.H{"status": "returned", "note": "lỗi loa"}, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	env := decode(t, w)
	assert.Contains(t, env.Warning, "warranty not cancelled")
	var device models.Device
	require.NoError(t, json.Unmarshal(env.Data, &device))
	assert.Equal(t, models.DeviceReturned, device.Status)

	w = do(t, s, http.MethodGet, "/api/v1/inventory/356789012345678", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"returned"`)

	require.NoError(t, a.Publisher.Close())
}

func TestOrderFlow(t *testing.T) {
	s, a := newTestServer(t, "")
	receive(t, s, "356789012345678")

	cart := gin.H{
		"customer_name":  "Anh Tuấn",
		"customer_phone": "0901 234 567",
		"staff":          "Lan",
		"devices":        []gin.H{{"imei": "356789012345678", "warranty_package": "vip"}},
		"accessories":    []gin.H{{"sku": "OP1", "quantity": 2}},
		"discount":       "100000",
	}

	w := do(t, s, http.MethodPost, "/api/v1/orders/quote", cart, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var quote models.Order
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &quote))
	assert.Equal(t, "12100000", quote.Total.String())
	assert.Empty(t, quote.ID)

	w = do(t, s, http.MethodPost, "/api/v1/orders", cart, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &order))
	require.NotEmpty(t, order.ID)
	require.Len(t, order.Contracts, 1)

	// the device is gone now
	w = do(t, s, http.MethodPost, "/api/v1/orders", cart, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/orders?phone=0901234567", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode(t, w).Pagination.Total)

	w = do(t, s, http.MethodGet, "/api/v1/orders/"+order.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/v1/orders/DH-00000000-XXXXXX", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/customers/0901234567", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Anh Tuấn")

	w = do(t, s, http.MethodGet, "/api/v1/customers", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/warranty/device/356789012345678", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var contracts []models.WarrantyContract
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &contracts))
	require.Len(t, contracts, 1)
	assert.Equal(t, models.ContractActive, contracts[0].Status)

	w = do(t, s, http.MethodPost, "/api/v1/warranty/device/356789012345678/cancel", gin.H{"reason": "đổi máy"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"cancelled":1`)

	// wait for the in-process notifications before the journal closes
	require.NoError(t, a.Publisher.Close())
}

func TestOrderValidation(t *testing.T) {
	s, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/orders", gin.H{"customer_name": "x"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "cart is empty", decode(t, w).Error)

	w = do(t, s, http.MethodPost, "/api/v1/orders/quote", gin.H{"devices": []gin.H{{"imei": "111111111111111"}}}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWarrantyIssue(t *testing.T) {
	s, _ := newTestServer(t, "")

	w := do(t, s, http.MethodGet, "/api/v1/warranty/packages", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "VIP")

	w = do(t, s, http.MethodPost, "/api/v1/warranty", gin.H{"imei": "356789012345678", "package_code": "VIP", "customer_phone": "0901234567"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/api/v1/warranty", gin.H{"imei": "356789012345678", "package_code": "NONE"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/warranty", gin.H{"imei": "356789012345678"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSheetsAndCache(t *testing.T) {
	s, _ := newTestServer(t, "")
	receive(t, s, "356789012345678")

	w := do(t, s, http.MethodGet, "/api/v1/sheets/Kho/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.NotZero(t, w.Body.Len())

	w = do(t, s, http.MethodGet, "/api/v1/sheets/Sheet9/export", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/cache", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hits")

	w = do(t, s, http.MethodDelete, "/api/v1/cache", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":0`)
}

func TestAuthRoles(t *testing.T) {
	s, a := newTestServer(t, "secret")
	staff, err := a.Auth.Issue("Lan", auth.RoleStaff, time.Hour)
	require.NoError(t, err)
	owner, err := a.Auth.Issue("Chủ", auth.RoleOwner, time.Hour)
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/v1/inventory", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/inventory", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/inventory", nil, staff)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodDelete, "/api/v1/cache", nil, staff)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/warranty/device/356789012345678/cancel", gin.H{"reason": "x"}, staff)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodDelete, "/api/v1/cache", nil, owner)
	assert.Equal(t, http.StatusOK, w.Code)

	// the health check stays open
	w = do(t, s, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/orders", nil)
	req.Header.Set("Origin", "https://till.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://till.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
