package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/models"
)

type SubsidiaryStore struct{ db *gorm.DB }

func NewSubsidiaryStore(db *gorm.DB) *SubsidiaryStore { return &SubsidiaryStore{db: db} }

func (s *SubsidiaryStore) WithTx(tx *gorm.DB) *SubsidiaryStore { return &SubsidiaryStore{db: tx} }

func (s *SubsidiaryStore) GetBySerial(ctx context.Context, serial string) (*models.SubsidiaryDevice, error) {
	var sub models.SubsidiaryDevice
	err := s.db.WithContext(ctx).
		Where("serial_number = ? AND is_active = ?", serial, true).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("subsidiary device %q not found", serial)
	}
	return &sub, err
}

func (s *SubsidiaryStore) ListForDevice(ctx context.Context, deviceID uint) ([]models.SubsidiaryDevice, error) {
	var subs []models.SubsidiaryDevice
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND is_active = ?", deviceID, true).
		Order("id").Find(&subs).Error
	return subs, err
}

// CountForDevice — фактическое число привязанных строк, эталон для
// сверки с Device.SubsidiaryDeviceCount.
func (s *SubsidiaryStore) CountForDevice(ctx context.Context, deviceID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SubsidiaryDevice{}).
		Where("device_id = ?", deviceID).Count(&n).Error
	return n, err
}

// SetBinding пишет привязку и статус одной записью.
func (s *SubsidiaryStore) SetBinding(ctx context.Context, id uint, deviceID *uint, order *string, status string) error {
	return s.db.WithContext(ctx).Model(&models.SubsidiaryDevice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"device_id": deviceID,
			"order":     order,
			"status":    status,
		}).Error
}

// UnbindAllForDevice отвязывает всех подчинённых устройства разом
// (release/logout-путь).
func (s *SubsidiaryStore) UnbindAllForDevice(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).Model(&models.SubsidiaryDevice{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"device_id": nil,
			"order":     nil,
			"status":    models.SubsidiaryStatusUnbound,
		}).Error
}

// IdleBusyForDevice переводит busy-подчинённых primary-устройства в idle —
// односторонний каскад при busy→idle/busy→error самого устройства.
func (s *SubsidiaryStore) IdleBusyForDevice(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).Model(&models.SubsidiaryDevice{}).
		Where("device_id = ? AND status = ?", deviceID, models.SubsidiaryStatusBusy).
		Update("status", models.SubsidiaryStatusIdle).Error
}

func (s *SubsidiaryStore) Deactivate(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.SubsidiaryDevice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_active": false,
			"status":    models.SubsidiaryStatusUnbound,
		}).Error
}

func (s *SubsidiaryStore) Create(ctx context.Context, sub *models.SubsidiaryDevice) error {
	return s.db.WithContext(ctx).Create(sub).Error
}
