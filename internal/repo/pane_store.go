package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/models"
)

type PaneStore struct{ db *gorm.DB }

func NewPaneStore(db *gorm.DB) *PaneStore { return &PaneStore{db: db} }

func (s *PaneStore) WithTx(tx *gorm.DB) *PaneStore { return &PaneStore{db: tx} }

func (s *PaneStore) GetView(ctx context.Context, id uint) (*models.PaneView, error) {
	var v models.PaneView
	err := s.db.WithContext(ctx).First(&v, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("pane view %d not found", id)
	}
	return &v, err
}

func (s *PaneStore) CreateView(ctx context.Context, v *models.PaneView) error {
	return s.db.WithContext(ctx).Create(v).Error
}

func (s *PaneStore) CreateSlots(ctx context.Context, slots []models.PaneSlot) error {
	return s.db.WithContext(ctx).Create(&slots).Error
}

func (s *PaneStore) GetSlot(ctx context.Context, id uint) (*models.PaneSlot, error) {
	var slot models.PaneSlot
	err := s.db.WithContext(ctx).First(&slot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("pane slot %d not found", id)
	}
	return &slot, err
}

// FirstEmptySlot — first-fit в порядке (row, col), без иных тай-брейков.
func (s *PaneStore) FirstEmptySlot(ctx context.Context, viewID uint) (*models.PaneSlot, error) {
	var slot models.PaneSlot
	err := s.db.WithContext(ctx).
		Where("pane_view_id = ? AND status = ?", viewID, models.PaneSlotStatusEmpty).
		Order("slot_row, slot_col").First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Conflict("pane view %d has no empty slot", viewID)
	}
	return &slot, err
}

// SlotOfDevice — слот, держащий устройство (nil, если нигде).
func (s *PaneStore) SlotOfDevice(ctx context.Context, deviceID uint) (*models.PaneSlot, error) {
	var slot models.PaneSlot
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *PaneStore) SetSlotDevice(ctx context.Context, slotID uint, deviceID *uint) error {
	status := models.PaneSlotStatusEmpty
	if deviceID != nil {
		status = models.PaneSlotStatusOK
	}
	return s.db.WithContext(ctx).Model(&models.PaneSlot{}).
		Where("id = ?", slotID).
		Updates(map[string]any{"device_id": deviceID, "status": status}).Error
}

// ClearSlotOfDevice освобождает слот устройства, если он есть (release-путь).
func (s *PaneStore) ClearSlotOfDevice(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).Model(&models.PaneSlot{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{
			"device_id": nil,
			"status":    models.PaneSlotStatusEmpty,
		}).Error
}

// OccupiedSlotCount — число слотов вида, ещё держащих устройства.
func (s *PaneStore) OccupiedSlotCount(ctx context.Context, viewID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PaneSlot{}).
		Where("pane_view_id = ? AND device_id IS NOT NULL", viewID).Count(&n).Error
	return n, err
}

// DeleteView удаляет вид вместе со слотами.
func (s *PaneStore) DeleteView(ctx context.Context, viewID uint) error {
	if err := s.db.WithContext(ctx).
		Where("pane_view_id = ?", viewID).Delete(&models.PaneSlot{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&models.PaneView{}, viewID).Error
}
