package repo

import (
	"context"

	"gorm.io/gorm"

	"roost/internal/models"
)

// ResourceStore — тонкий фасад над реестром SIM/аккаунтов: проверка
// «есть привязанные ресурсы» и снятие привязок, больше ничего.
type ResourceStore struct{ db *gorm.DB }

func NewResourceStore(db *gorm.DB) *ResourceStore { return &ResourceStore{db: db} }

func (s *ResourceStore) WithTx(tx *gorm.DB) *ResourceStore { return &ResourceStore{db: tx} }

func (s *ResourceStore) DeviceHasResources(ctx context.Context, deviceID uint) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SimCard{}).
		Where("device_id = ?", deviceID).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("device_id = ?", deviceID).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseForDevice снимает все привязки ресурсов устройства
// (status=idle, device link очищается).
func (s *ResourceStore) ReleaseForDevice(ctx context.Context, deviceID uint) error {
	if err := s.db.WithContext(ctx).Model(&models.SimCard{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"device_id": nil, "status": models.ResourceStatusIdle}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"device_id": nil, "status": models.ResourceStatusIdle}).Error
}
