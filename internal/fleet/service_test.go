package fleet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roost/internal/apperr"
	"roost/internal/coral"
	"roost/internal/locking"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/repo"
)

func TestMain(m *testing.M) {
	logs.Init(logs.Options{Level: "error", Format: "text"})
	m.Run()
}

func newTestDB(t *testing.T) *gorm.DB {
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
		&models.SimCard{},
		&models.Account{},
	))
	return db
}

func newTestService(t *testing.T, coralURL string) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	client := coral.New(coral.Options{BaseURL: coralURL})
	return NewService(db, client, locking.NewKeyed()), db
}

func baseInput(label string) RegisterInput {
	return RegisterInput{
		DeviceLabel:    label,
		CPUID:          "cpu-" + label,
		DeviceName:     "Pixel 5",
		IP:             "10.0.0.5",
		Manufacturer:   "google",
		AndroidVersion: "13",
		RomVersion:     "stock-13.1",
		PhoneModel:     "Pixel 5",
		Width:          1080,
		Height:         2340,
		DPI:            432,
	}
}

func TestRegisterCreatesDeviceAndLookups(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()

	in := baseInput("dev-1")
	in.PowerPort = models.Some("pp-1")
	tp := []string{"tp-1", "tp-2"}
	in.TempPorts = &tp

	id, err := svc.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, id)

	view, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusIdle, view.Device.Status)
	assert.False(t, view.Device.StatusUpdatedAt.IsZero())
	require.NotNil(t, view.PowerPort)
	assert.Equal(t, "pp-1", view.PowerPort.Port)
	assert.Len(t, view.TempPorts, 2)

	var manufacturers, phoneModels, romVersions int64
	require.NoError(t, db.Model(&models.Manufacturer{}).Count(&manufacturers).Error)
	require.NoError(t, db.Model(&models.PhoneModel{}).Count(&phoneModels).Error)
	require.NoError(t, db.Model(&models.RomVersion{}).Count(&romVersions).Error)
	assert.EqualValues(t, 1, manufacturers)
	assert.EqualValues(t, 1, phoneModels)
	assert.EqualValues(t, 1, romVersions)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	_, err := svc.RegisterOrUpdate(ctx, RegisterInput{CPUID: "x"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.RegisterOrUpdate(ctx, RegisterInput{DeviceLabel: "dev-1"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()

	in := baseInput("dev-1")
	tp := []string{"tp-1"}
	in.TempPorts = &tp

	first, err := svc.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)
	second, err := svc.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Повтор не плодит ни справочников, ни портов.
	for _, model := range []any{
		&models.Manufacturer{}, &models.PhoneModel{},
		&models.RomVersion{}, &models.AndroidVersion{},
		&models.TempPort{}, &models.Device{},
	} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.EqualValues(t, 1, n, "%T", model)
	}
}

func TestRegisterPowerPortTriState(t *testing.T) {
	svc, _ := newTestService(t, "")
	ctx := context.Background()

	in := baseInput("dev-1")
	in.PowerPort = models.Some("pp-1")
	_, err := svc.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	// Ключ отсутствует — привязка не трогается.
	absent := baseInput("dev-1")
	_, err = svc.RegisterOrUpdate(ctx, absent)
	require.NoError(t, err)
	view, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, view.PowerPort)
	assert.Equal(t, "pp-1", view.PowerPort.Port)

	// Новое значение — rebind на другой порт.
	rebind := baseInput("dev-1")
	rebind.PowerPort = models.Some("pp-2")
	_, err = svc.RegisterOrUpdate(ctx, rebind)
	require.NoError(t, err)
	view, err = svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	require.NotNil(t, view.PowerPort)
	assert.Equal(t, "pp-2", view.PowerPort.Port)

	// Явный null — привязка снимается.
	null := baseInput("dev-1")
	null.PowerPort = models.Null[string]()
	_, err = svc.RegisterOrUpdate(ctx, null)
	require.NoError(t, err)
	view, err = svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, view.PowerPort)
}

func TestRegisterDoesNotChangeLabel(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()

	id, err := svc.RegisterOrUpdate(ctx, baseInput("dev-1"))
	require.NoError(t, err)

	// Прямая попытка сменить label через UpdateFields игнорируется.
	require.NoError(t, repo.NewDeviceStore(db).UpdateFields(ctx, id, map[string]any{
		"device_label": "dev-renamed",
		"ip":           "10.0.0.9",
	}))
	view, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", view.Device.DeviceLabel)
	assert.Equal(t, "10.0.0.9", view.Device.IP)
}

func TestSetStatusCascadesToSubsidiaries(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()

	id, err := svc.RegisterOrUpdate(ctx, baseInput("dev-1"))
	require.NoError(t, err)

	order := "1"
	sub := &models.SubsidiaryDevice{
		SerialNumber: "sub-1",
		DeviceID:     &id,
		Order:        &order,
		Status:       models.SubsidiaryStatusBusy,
		IsActive:     true,
	}
	require.NoError(t, db.Create(sub).Error)
	require.NoError(t, svc.SetStatus(ctx, "dev-1", models.DeviceStatusBusy))

	require.NoError(t, svc.SetStatus(ctx, "dev-1", models.DeviceStatusIdle))

	var got models.SubsidiaryDevice
	require.NoError(t, db.First(&got, sub.ID).Error)
	assert.Equal(t, models.SubsidiaryStatusIdle, got.Status)
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	svc, _ := newTestService(t, "")
	err := svc.SetStatus(context.Background(), "dev-1", "sleeping")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func registerFullDevice(t *testing.T, svc *Service, db *gorm.DB, label string) uint {
	t.Helper()
	ctx := context.Background()

	cab := &models.Cabinet{Name: "cab-1", IP: "10.0.0.1"}
	require.NoError(t, db.Create(cab).Error)

	in := baseInput(label)
	in.CabinetID = &cab.ID
	in.AutoTest = true
	in.Coordinate = &CoordinateInput{X: 2, Y: 3}
	in.PowerPort = models.Some("pp-1")
	tp := []string{"tp-1"}
	in.TempPorts = &tp

	id, err := svc.RegisterOrUpdate(ctx, in)
	require.NoError(t, err)

	order := "1"
	require.NoError(t, db.Create(&models.SubsidiaryDevice{
		SerialNumber: "sub-" + label,
		DeviceID:     &id,
		Order:        &order,
		Status:       models.SubsidiaryStatusIdle,
		IsActive:     true,
	}).Error)
	require.NoError(t, db.Model(&models.Device{}).Where("id = ?", id).
		Update("subsidiary_device_count", 1).Error)
	return id
}

func assertReleased(t *testing.T, svc *Service, db *gorm.DB, label string, id uint) {
	t.Helper()
	ctx := context.Background()

	view, err := svc.Get(ctx, label)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, view.Device.Status)
	assert.Nil(t, view.Device.CabinetID)
	assert.False(t, view.Device.AutoTest)
	assert.Zero(t, view.Device.SubsidiaryDeviceCount)
	assert.Nil(t, view.PowerPort)
	assert.Empty(t, view.TempPorts)
	assert.Empty(t, view.Subsidiaries)

	coord, err := repo.NewDeviceStore(db).CoordinateOf(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, coord)
}

func TestLogoutClearsAllState(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()

	id := registerFullDevice(t, svc, db, "dev-1")
	require.NoError(t, svc.Logout(ctx, "dev-1", false))
	assertReleased(t, svc, db, "dev-1", id)

	// Повторная регистрация не воскрешает старые связи.
	_, err := svc.RegisterOrUpdate(ctx, baseInput("dev-1"))
	require.NoError(t, err)
	view, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Nil(t, view.PowerPort)
	assert.Empty(t, view.TempPorts)
	assert.Nil(t, view.Device.CabinetID)
}

func TestReleaseAbortsWhenCoralRefuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, db := newTestService(t, srv.URL)
	ctx := context.Background()
	id := registerFullDevice(t, svc, db, "dev-1")

	err := svc.Release(ctx, "dev-1", ReleaseOptions{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))

	// Локальное состояние не тронуто.
	view, err := svc.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusIdle, view.Device.Status)
	assert.NotNil(t, view.Device.CabinetID)
	require.NotNil(t, view.PowerPort)
	assert.Equal(t, "pp-1", view.PowerPort.Port)
	_ = id
}

func TestReleaseNotifiesCoral(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/device_leave" {
			calls++
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, db := newTestService(t, srv.URL)
	ctx := context.Background()
	id := registerFullDevice(t, svc, db, "dev-1")

	require.NoError(t, svc.Release(ctx, "dev-1", ReleaseOptions{}))
	assert.Equal(t, 1, calls)
	assertReleased(t, svc, db, "dev-1", id)
}

func TestReleaseForceSkipsCoral(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, db := newTestService(t, srv.URL)
	ctx := context.Background()
	id := registerFullDevice(t, svc, db, "dev-1")

	require.NoError(t, svc.Release(ctx, "dev-1", ReleaseOptions{Force: true}))
	assert.Zero(t, calls)
	assertReleased(t, svc, db, "dev-1", id)
}

func TestReleaseUnbindResource(t *testing.T) {
	svc, db := newTestService(t, "")
	ctx := context.Background()
	id := registerFullDevice(t, svc, db, "dev-1")

	require.NoError(t, db.Create(&models.SimCard{Serial: "8912", DeviceID: &id,
		Status: models.ResourceStatusBusy}).Error)
	require.NoError(t, db.Create(&models.Account{Name: "acc", DeviceID: &id,
		Status: models.ResourceStatusBusy}).Error)

	require.NoError(t, svc.Logout(ctx, "dev-1", true))

	var sim models.SimCard
	require.NoError(t, db.First(&sim).Error)
	assert.Nil(t, sim.DeviceID)
	assert.Equal(t, models.ResourceStatusIdle, sim.Status)
	var acc models.Account
	require.NoError(t, db.First(&acc).Error)
	assert.Nil(t, acc.DeviceID)
}
