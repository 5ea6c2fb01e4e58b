package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roost/internal/apperr"
	"roost/internal/models"
)

type DeviceStore struct{ db *gorm.DB }

func NewDeviceStore(db *gorm.DB) *DeviceStore { return &DeviceStore{db: db} }

func (s *DeviceStore) WithTx(tx *gorm.DB) *DeviceStore { return &DeviceStore{db: tx} }

func (s *DeviceStore) GetByLabel(ctx context.Context, label string) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).Where("device_label = ?", label).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device %q not found", label)
	}
	return &d, err
}

// GetByLabelForUpdate берёт строку устройства под row-lock: любые
// read-modify-write по связанному производному состоянию идут через неё.
// sqlite не знает SELECT ... FOR UPDATE — там вся БД и так под writer-lock.
func (s *DeviceStore) GetByLabelForUpdate(ctx context.Context, label string) (*models.Device, error) {
	tx := s.db.WithContext(ctx)
	if s.db.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var d models.Device
	err := tx.Where("device_label = ?", label).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device %q not found", label)
	}
	return &d, err
}

func (s *DeviceStore) GetByID(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device %d not found", id)
	}
	return &d, err
}

/* ───── справочники ───── */

func (s *DeviceStore) ResolveManufacturer(ctx context.Context, name string) (*models.Manufacturer, error) {
	if name == "" {
		name = models.DefaultManufacturer
	}
	var m models.Manufacturer
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = models.Manufacturer{Name: name}
		err = s.db.WithContext(ctx).Create(&m).Error
	}
	return &m, err
}

func (s *DeviceStore) ResolveAndroidVersion(ctx context.Context, version string) (*models.AndroidVersion, error) {
	var v models.AndroidVersion
	err := s.db.WithContext(ctx).Where("version = ?", version).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		v = models.AndroidVersion{Version: version}
		err = s.db.WithContext(ctx).Create(&v).Error
	}
	return &v, err
}

func (s *DeviceStore) ResolveRomVersion(ctx context.Context, manufacturerID uint, version string) (*models.RomVersion, error) {
	var v models.RomVersion
	err := s.db.WithContext(ctx).
		Where("manufacturer_id = ? AND version = ?", manufacturerID, version).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		v = models.RomVersion{ManufacturerID: manufacturerID, Version: version}
		err = s.db.WithContext(ctx).Create(&v).Error
	}
	return &v, err
}

// UpsertPhoneModel — ON CONFLICT по (manufacturer, name) с перезаписью
// геометрии. Строка модели общая для всех устройств этой модели:
// политика last-writer-wins сохранена сознательно.
func (s *DeviceStore) UpsertPhoneModel(ctx context.Context, m models.PhoneModel) (*models.PhoneModel, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "manufacturer_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cpu_name", "width", "height", "dpi", "x_border", "y_border",
		}),
	}).Create(&m).Error
	if err != nil {
		return nil, err
	}
	// После upsert перечитываем строку — при конфликте Create не заполняет ID.
	var out models.PhoneModel
	err = s.db.WithContext(ctx).
		Where("manufacturer_id = ? AND name = ?", m.ManufacturerID, m.Name).First(&out).Error
	return &out, err
}

func (s *DeviceStore) ResolveMonitorPort(ctx context.Context, port string) (*models.MonitorPort, error) {
	var p models.MonitorPort
	err := s.db.WithContext(ctx).Where("port = ?", port).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = models.MonitorPort{Port: port}
		err = s.db.WithContext(ctx).Create(&p).Error
	}
	return &p, err
}

// UnlinkMonitorPorts очищает все monitor-привязки устройства.
func (s *DeviceStore) UnlinkMonitorPorts(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).Delete(&models.DeviceMonitorPort{}).Error
}

// RelinkMonitorPort добавляет единственную monitor-привязку; m2m
// используется как single-valued, вызывающий сперва чистит старые.
func (s *DeviceStore) RelinkMonitorPort(ctx context.Context, deviceID, monitorPortID uint) error {
	return s.db.WithContext(ctx).Create(&models.DeviceMonitorPort{
		DeviceID: deviceID, MonitorPortID: monitorPortID,
	}).Error
}

/* ───── устройство ───── */

// Create создаёт новую строку устройства.
func (s *DeviceStore) Create(ctx context.Context, d *models.Device) error {
	d.StatusUpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Create(d).Error
}

// UpdateFields перезаписывает whitelisted-поля существующего устройства.
// DeviceLabel намеренно отсутствует — идентичность неизменяема.
func (s *DeviceStore) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	delete(fields, "device_label")
	return s.db.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", id).Updates(fields).Error
}

// UpsertCoordinate создаёт координату для нового устройства либо
// обновляет существующую in-place.
func (s *DeviceStore) UpsertCoordinate(ctx context.Context, c models.DeviceCoordinate) error {
	var existing models.DeviceCoordinate
	err := s.db.WithContext(ctx).Where("device_id = ?", c.DeviceID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(&c).Error
	}
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&existing).
		Updates(map[string]any{"x": c.X, "y": c.Y, "extra": c.Extra}).Error
}

func (s *DeviceStore) DeleteCoordinate(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).Delete(&models.DeviceCoordinate{}).Error
}

func (s *DeviceStore) CoordinateOf(ctx context.Context, deviceID uint) (*models.DeviceCoordinate, error) {
	var c models.DeviceCoordinate
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete — жёсткое удаление (редкий административный путь; обычное
// «удаление» — это Release/Logout с переводом в offline).
func (s *DeviceStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Device{}, id).Error
}
