package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roost/internal/coral"
	"roost/internal/fleet"
	"roost/internal/locking"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/pane"
	"roost/internal/power"
	"roost/internal/wingman"
)

func TestMain(m *testing.M) {
	logs.Init(logs.Options{Level: "error", Format: "text"})
	m.Run()
}

// newTestRouter собирает полный стек сервисов на in-memory sqlite
// и отключённом контроллере шкафа.
func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Manufacturer{},
		&models.AndroidVersion{},
		&models.RomVersion{},
		&models.PhoneModel{},
		&models.MonitorPort{},
		&models.DeviceMonitorPort{},
		&models.Cabinet{},
		&models.Device{},
		&models.DeviceCoordinate{},
		&models.PowerPort{},
		&models.TempPort{},
		&models.SubsidiaryDevice{},
		&models.PaneView{},
		&models.PaneSlot{},
		&models.AbnormityPolicy{},
		&models.Abnormity{},
		&models.AbnormityDetail{},
		&models.DevicePower{},
		&models.SimCard{},
		&models.Account{},
	))

	locks := locking.NewKeyed()
	client := coral.New(coral.Options{})
	h := NewHandler(
		fleet.NewService(db, client, locks),
		wingman.NewManager(db, locks),
		pane.NewAllocator(db),
		power.NewDetector(db, power.Config{}, locks),
	)
	r := mux.NewRouter().StrictSlash(true)
	RegisterRoutes(r, h)
	return r
}

func do(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDeviceLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-1",
		"cpu_id":       "cpu-1",
		"manufacturer": "google",
		"phone_model":  "Pixel 5",
		"power_port":   "pp-1",
		"temp_port":    []string{"tp-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/v1/devices/dev-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view fleet.DeviceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "dev-1", view.Device.DeviceLabel)
	require.NotNil(t, view.PowerPort)
	assert.Equal(t, "pp-1", view.PowerPort.Port)

	rec = do(t, r, http.MethodPost, "/api/v1/devices/dev-1/status",
		map[string]string{"status": "busy"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/devices/dev-1/release", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/v1/devices/dev-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.DeviceStatusOffline, view.Device.Status)
	assert.Nil(t, view.PowerPort)
}

func TestErrorMappingOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	// 404 + problem+json на неизвестном устройстве.
	rec := do(t, r, http.MethodGet, "/api/v1/devices/ghost", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "Not Found", p.Title)
	assert.Equal(t, http.StatusNotFound, p.Status)

	// 400 на регистрации без cpu_id.
	rec = do(t, r, http.MethodPost, "/api/v1/devices/register",
		map[string]any{"device_label": "dev-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 400 на битом JSON.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/register",
		strings.NewReader("{broken"))
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)

	// 400 на неизвестном статусе.
	rec = do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-1", "cpu_id": "cpu-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/v1/devices/dev-1/status",
		map[string]string{"status": "sleeping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubsidiaryFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-1", "cpu_id": "cpu-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/subsidiaries",
		map[string]string{"serial_number": "sub-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/subsidiaries/sub-1/bind",
		map[string]string{"device_label": "dev-1", "order": "1"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Повторный bind на другое устройство — 409.
	rec = do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-2", "cpu_id": "cpu-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/v1/subsidiaries/sub-1/bind",
		map[string]string{"device_label": "dev-2", "order": "1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/subsidiaries/sub-1/unbind", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPaneFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-1", "cpu_id": "cpu-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/paneviews", map[string]any{
		"name": "rack_a@2x2", "cabinet_id": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var view models.PaneView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))

	rec = do(t, r, http.MethodPost,
		fmt.Sprintf("/api/v1/paneviews/%d/link", view.ID),
		map[string]string{"device_label": "dev-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var slot models.PaneSlot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slot))
	assert.Equal(t, 0, slot.Row)
	assert.Equal(t, 0, slot.Col)

	// Удаление занятого вида — 403.
	rec = do(t, r, http.MethodDelete,
		fmt.Sprintf("/api/v1/paneviews/%d", view.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/devices/dev-1/pane/unlink", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodDelete,
		fmt.Sprintf("/api/v1/paneviews/%d", view.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIngestPowerOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/v1/devices/register", map[string]any{
		"device_label": "dev-1", "cpu_id": "cpu-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/telemetry/power", map[string]any{
		"device_label":    "dev-1",
		"record_datetime": "2026-08-31T10:00:00Z",
		"battery_level":   80,
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/v1/telemetry/power", map[string]any{
		"device_label":    "dev-1",
		"record_datetime": "2026-08-31T10:02:00Z",
		"battery_level":   200,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
