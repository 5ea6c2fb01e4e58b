package wingman

import (
	"context"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/locking"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/repo"
)

// Manager — жизненный цикл subsidiary-устройств ("wingman"). Единственный
// санкционированный путь изменения Device.SubsidiaryDeviceCount: инкремент
// в Bind, декремент (с полом 0) в Unbind/Cancel, обнуление в release.
type Manager struct {
	db    *gorm.DB
	locks *locking.Keyed
}

func NewManager(db *gorm.DB, locks *locking.Keyed) *Manager {
	return &Manager{db: db, locks: locks}
}

// Bind привязывает subsidiary к основному устройству.
// 409, если subsidiary уже привязан куда-либо.
func (m *Manager) Bind(ctx context.Context, serial, deviceLabel, order string) error {
	// mutex → tx, единый порядок блокировок по всему коду.
	pre, err := repo.NewDeviceStore(m.db).GetByLabel(ctx, deviceLabel)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(pre.ID)
	defer unlock()

	return m.db.Transaction(func(tx *gorm.DB) error {
		devices := repo.NewDeviceStore(tx)
		subs := repo.NewSubsidiaryStore(tx)

		dev, err := devices.GetByLabelForUpdate(ctx, deviceLabel)
		if err != nil {
			return err
		}

		sub, err := subs.GetBySerial(ctx, serial)
		if err != nil {
			return err
		}
		if sub.DeviceID != nil {
			return apperr.Conflict("subsidiary %q already bound to device %d", serial, *sub.DeviceID)
		}

		// Статус подчинённого зеркалит busy/idle primary.
		status := models.SubsidiaryStatusIdle
		if dev.Status == models.DeviceStatusBusy {
			status = models.SubsidiaryStatusBusy
		}
		if err := subs.SetBinding(ctx, sub.ID, &dev.ID, &order, status); err != nil {
			return err
		}
		return adjustCount(ctx, tx, dev.ID, +1)
	})
}

// Unbind отвязывает subsidiary; декремент счётчика прежнего primary
// никогда не уводит его в минус.
func (m *Manager) Unbind(ctx context.Context, serial string) error {
	pre, err := repo.NewSubsidiaryStore(m.db).GetBySerial(ctx, serial)
	if err != nil {
		return err
	}
	if pre.DeviceID == nil {
		return nil // уже отвязан
	}
	unlock := m.locks.Lock(*pre.DeviceID)
	defer unlock()

	return m.db.Transaction(func(tx *gorm.DB) error {
		subs := repo.NewSubsidiaryStore(tx)
		sub, err := subs.GetBySerial(ctx, serial)
		if err != nil {
			return err
		}
		if sub.DeviceID == nil {
			return nil
		}
		primary := *sub.DeviceID
		if err := subs.SetBinding(ctx, sub.ID, nil, nil, models.SubsidiaryStatusUnbound); err != nil {
			return err
		}
		return adjustCount(ctx, tx, primary, -1)
	})
}

// Cancel — жёсткая деактивация: запрещена для busy-подчинённого и когда
// у primary остались привязанные SIM/аккаунты (сначала отвяжите ресурсы).
func (m *Manager) Cancel(ctx context.Context, serial string) error {
	pre, err := repo.NewSubsidiaryStore(m.db).GetBySerial(ctx, serial)
	if err != nil {
		return err
	}
	if pre.DeviceID != nil {
		unlock := m.locks.Lock(*pre.DeviceID)
		defer unlock()
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		subs := repo.NewSubsidiaryStore(tx)
		resources := repo.NewResourceStore(tx)

		sub, err := subs.GetBySerial(ctx, serial)
		if err != nil {
			return err
		}
		if sub.Status == models.SubsidiaryStatusBusy {
			return apperr.Validation("subsidiary %q is busy", serial)
		}
		if sub.DeviceID != nil {
			primary := *sub.DeviceID
			has, err := resources.DeviceHasResources(ctx, primary)
			if err != nil {
				return err
			}
			if has {
				return apperr.Validation("device %d still has bound sim/account resources", primary)
			}
			if err := adjustCount(ctx, tx, primary, -1); err != nil {
				return err
			}
		}
		if err := subs.SetBinding(ctx, sub.ID, nil, nil, models.SubsidiaryStatusUnbound); err != nil {
			return err
		}
		return subs.Deactivate(ctx, sub.ID)
	})
}

// Register заводит новое subsidiary-устройство (активное, не привязано).
func (m *Manager) Register(ctx context.Context, serial string) (*models.SubsidiaryDevice, error) {
	if serial == "" {
		return nil, apperr.Validation("serial_number is required")
	}
	subs := repo.NewSubsidiaryStore(m.db)
	if existing, err := subs.GetBySerial(ctx, serial); err == nil {
		return existing, nil
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}
	sub := &models.SubsidiaryDevice{
		SerialNumber: serial,
		Status:       models.SubsidiaryStatusUnbound,
		IsActive:     true,
	}
	if err := subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CascadePrimaryStatus — односторонний каскад primary→dependent: при
// переходе устройства busy→idle или busy→error все его busy-подчинённые
// становятся idle. Вызывается из статусного перехода устройства, в той
// же транзакции.
func (m *Manager) CascadePrimaryStatus(ctx context.Context, tx *gorm.DB, deviceID uint) error {
	return repo.NewSubsidiaryStore(tx).IdleBusyForDevice(ctx, deviceID)
}

// adjustCount — инкремент/декремент производного счётчика с полом 0.
func adjustCount(ctx context.Context, tx *gorm.DB, deviceID uint, delta int) error {
	dev := &models.Device{}
	if err := tx.WithContext(ctx).First(dev, deviceID).Error; err != nil {
		return err
	}
	n := dev.SubsidiaryDeviceCount + delta
	if n < 0 {
		logs.Logger.Errorf("subsidiary count underflow on device %d (count=%d delta=%d)",
			deviceID, dev.SubsidiaryDeviceCount, delta)
		n = 0
	}
	return tx.WithContext(ctx).Model(&models.Device{}).
		Where("id = ?", deviceID).
		Update("subsidiary_device_count", n).Error
}
