package repo

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roost/internal/models"
)

// newTestDB поднимает изолированную in-memory sqlite со всей схемой.
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
		&models.AbnormityPolicy{},
		&models.Abnormity{},
		&models.AbnormityDetail{},
		&models.DevicePower{},
		&models.SimCard{},
		&models.Account{},
	))
	return db
}

func mustCreateDevice(t *testing.T, db *gorm.DB, label string) *models.Device {
	t.Helper()
	d := &models.Device{
		DeviceLabel: label,
		CPUID:       "cpu-" + label,
		Status:      models.DeviceStatusIdle,
	}
	require.NoError(t, db.Create(d).Error)
	return d
}
