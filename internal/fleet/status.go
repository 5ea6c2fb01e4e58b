package fleet

import (
	"context"
	"time"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/models"
)

var validStatuses = map[string]bool{
	models.DeviceStatusIdle:     true,
	models.DeviceStatusBusy:     true,
	models.DeviceStatusError:    true,
	models.DeviceStatusOffline:  true,
	models.DeviceStatusOccupied: true,
}

// SetStatus — единственный писатель Device.Status. Штампует
// StatusUpdatedAt и каскадирует busy→idle/busy→error на подчинённых.
func (s *Service) SetStatus(ctx context.Context, label, status string) error {
	if !validStatuses[status] {
		return apperr.Validation("unknown device status %q", status)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		dev, err := s.devices.WithTx(tx).GetByLabelForUpdate(ctx, label)
		if err != nil {
			return err
		}
		return s.setStatusLocked(ctx, tx, dev, status)
	})
}

// setStatusLocked пишет статус устройства, уже взятого под row-lock
// внутри tx.
func (s *Service) setStatusLocked(ctx context.Context, tx *gorm.DB, dev *models.Device, status string) error {
	prev := dev.Status
	if err := tx.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", dev.ID).
		Updates(map[string]any{
			"status":            status,
			"status_updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return err
	}
	dev.Status = status

	// Каскад primary→dependent, только при выходе из busy в idle/error.
	if prev == models.DeviceStatusBusy &&
		(status == models.DeviceStatusIdle || status == models.DeviceStatusError) {
		if err := s.wingman.CascadePrimaryStatus(ctx, tx, dev.ID); err != nil {
			return err
		}
	}
	return nil
}

// Get возвращает устройство со связанными портами, слотом и подчинёнными.
type DeviceView struct {
	Device       models.Device             `json:"device"`
	PowerPort    *models.PowerPort         `json:"power_port"`
	TempPorts    []models.TempPort         `json:"temp_ports"`
	PaneSlot     *models.PaneSlot          `json:"pane_slot"`
	Subsidiaries []models.SubsidiaryDevice `json:"subsidiaries"`
}

func (s *Service) Get(ctx context.Context, label string) (*DeviceView, error) {
	dev, err := s.devices.GetByLabel(ctx, label)
	if err != nil {
		return nil, err
	}
	view := &DeviceView{Device: *dev}
	if view.PowerPort, err = s.ports.PowerPortOfDevice(ctx, dev.ID); err != nil {
		return nil, err
	}
	if view.TempPorts, err = s.ports.TempPortsOfDevice(ctx, dev.ID); err != nil {
		return nil, err
	}
	if view.PaneSlot, err = s.panes.SlotOfDevice(ctx, dev.ID); err != nil {
		return nil, err
	}
	if view.Subsidiaries, err = s.subs.ListForDevice(ctx, dev.ID); err != nil {
		return nil, err
	}
	return view, nil
}
