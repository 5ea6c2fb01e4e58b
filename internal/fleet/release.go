package fleet

import (
	"context"

	"gorm.io/gorm"

	"roost/internal/logs"
	"roost/internal/models"
)

// ReleaseOptions управляет release-потоком.
type ReleaseOptions struct {
	// Force пропускает уведомление контроллера шкафа.
	Force bool
	// UnbindResource дополнительно освобождает SIM/аккаунты устройства.
	UnbindResource bool
}

// Release освобождает устройство: уведомляет coral (device_leave) и,
// только если контроллер согласился, чистит локальное состояние.
// Отказ контроллера (не-2xx или сеть) прерывает release целиком —
// частичных изменений не остаётся.
func (s *Service) Release(ctx context.Context, label string, opts ReleaseOptions) error {
	dev, err := s.devices.GetByLabel(ctx, label)
	if err != nil {
		return err
	}

	// Уведомление — вне транзакции: at-least-once, не атомарно с коммитом.
	if !opts.Force {
		if err := s.coral.DeviceLeave(ctx, map[string]any{
			"device_label": dev.DeviceLabel,
			"ip":           dev.IP,
			"cabinet_id":   dev.CabinetID,
		}); err != nil {
			logs.Logger.Errorf("release aborted, coral refused device_leave: label=%s err=%v", label, err)
			return err
		}
	}

	if err := s.cleanup(ctx, label, opts.UnbindResource); err != nil {
		return err
	}
	logs.Logger.Infof("device released: label=%s force=%v", label, opts.Force)
	return nil
}

// Logout — локальный вариант release без уведомления контроллера.
func (s *Service) Logout(ctx context.Context, label string, unbindResource bool) error {
	if err := s.cleanup(ctx, label, unbindResource); err != nil {
		return err
	}
	logs.Logger.Infof("device logged out: label=%s", label)
	return nil
}

// cleanup — общая транзакционная часть release/logout: шкаф, координата,
// auto_test, статус offline, порты, pane-слот, подчинённые, счётчик.
// Повторная регистрация после cleanup не должна воскрешать старые связи.
func (s *Service) cleanup(ctx context.Context, label string, unbindResource bool) error {
	// Keyed-мьютекс берётся до транзакции: порядок «mutex → tx» един для
	// всех операций, иначе возможна взаимоблокировка с детектором телеметрии.
	pre, err := s.devices.GetByLabel(ctx, label)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(pre.ID)
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		devices := s.devices.WithTx(tx)
		dev, err := devices.GetByLabelForUpdate(ctx, label)
		if err != nil {
			return err
		}

		if err := s.setStatusLocked(ctx, tx, dev, models.DeviceStatusOffline); err != nil {
			return err
		}
		if err := devices.UpdateFields(ctx, dev.ID, map[string]any{
			"cabinet_id":              nil,
			"auto_test":               false,
			"occupy_type":             "",
			"subsidiary_device_count": 0,
		}); err != nil {
			return err
		}
		if err := devices.DeleteCoordinate(ctx, dev.ID); err != nil {
			return err
		}
		if err := s.ports.WithTx(tx).UnlinkPowerPortsOfDevice(ctx, dev.ID); err != nil {
			return err
		}
		if err := s.ports.WithTx(tx).UnlinkTempPortsOfDevice(ctx, dev.ID); err != nil {
			return err
		}
		if err := s.panes.WithTx(tx).ClearSlotOfDevice(ctx, dev.ID); err != nil {
			return err
		}
		if err := s.subs.WithTx(tx).UnbindAllForDevice(ctx, dev.ID); err != nil {
			return err
		}
		if unbindResource {
			if err := s.resources.WithTx(tx).ReleaseForDevice(ctx, dev.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
