package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/models"
)

// PortStore — единственный владелец поля status у Power/TempPort.
// Любая мутация привязки пересчитывает статус в той же записи:
// busy ⇔ device привязан. Прямые записи статуса снаружи запрещены.
type PortStore struct{ db *gorm.DB }

func NewPortStore(db *gorm.DB) *PortStore { return &PortStore{db: db} }

// WithTx возвращает store поверх открытой транзакции.
func (s *PortStore) WithTx(tx *gorm.DB) *PortStore { return &PortStore{db: tx} }

func (s *PortStore) active(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Where("is_active = ?", true)
}

/* ───── PowerPort ───── */

func (s *PortStore) FindPowerPort(ctx context.Context, port string) (*models.PowerPort, error) {
	var p models.PowerPort
	err := s.active(ctx).Where("port = ?", port).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("power port %q not found", port)
	}
	return &p, err
}

// FindPowerPortAny обходит is_active-фильтр — административный ремонт.
func (s *PortStore) FindPowerPortAny(ctx context.Context, port string) (*models.PowerPort, error) {
	var p models.PowerPort
	err := s.db.WithContext(ctx).Where("port = ?", port).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("power port %q not found", port)
	}
	return &p, err
}

// PowerPortOfDevice возвращает текущий порт устройства (nil, если нет).
func (s *PortStore) PowerPortOfDevice(ctx context.Context, deviceID uint) (*models.PowerPort, error) {
	var p models.PowerPort
	err := s.active(ctx).Where("device_id = ?", deviceID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PortStore) setPowerLink(ctx context.Context, portID uint, deviceID *uint) error {
	return s.db.WithContext(ctx).Model(&models.PowerPort{}).
		Where("id = ?", portID).
		Updates(map[string]any{
			"device_id": deviceID,
			"status":    models.PortStatusFor(deviceID),
		}).Error
}

// LinkPowerPort привязывает устройство; порт обязан быть свободен —
// занятый порт перепривязывается только через Rebind.
func (s *PortStore) LinkPowerPort(ctx context.Context, port string, deviceID uint) error {
	p, err := s.FindPowerPort(ctx, port)
	if err != nil {
		return err
	}
	if p.DeviceID != nil && *p.DeviceID != deviceID {
		return apperr.Conflict("power port %q already bound to device %d", port, *p.DeviceID)
	}
	return s.setPowerLink(ctx, p.ID, &deviceID)
}

// UnlinkPowerPort снимает привязку порта.
func (s *PortStore) UnlinkPowerPort(ctx context.Context, port string) error {
	p, err := s.FindPowerPort(ctx, port)
	if err != nil {
		return err
	}
	return s.setPowerLink(ctx, p.ID, nil)
}

// RebindPowerPort — эксклюзивный своп в одной транзакции: снимает привязку
// прежнего держателя порта и прежнего порта устройства, затем связывает.
// Порт создаётся, если его ещё нет.
func (s *PortStore) RebindPowerPort(ctx context.Context, port string, deviceID uint) error {
	var p models.PowerPort
	err := s.active(ctx).Where("port = ?", port).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = models.PowerPort{Port: port, Status: models.PortStatusIdle, IsActive: true}
		if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	// Прежний порт этого устройства освобождается.
	if err := s.db.WithContext(ctx).Model(&models.PowerPort{}).
		Where("device_id = ? AND id <> ?", deviceID, p.ID).
		Updates(map[string]any{"device_id": nil, "status": models.PortStatusIdle}).Error; err != nil {
		return err
	}
	return s.setPowerLink(ctx, p.ID, &deviceID)
}

// UnlinkPowerPortsOfDevice освобождает все порты питания устройства.
func (s *PortStore) UnlinkPowerPortsOfDevice(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).Model(&models.PowerPort{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"device_id": nil, "status": models.PortStatusIdle}).Error
}

/* ───── TempPort ───── */

func (s *PortStore) FindTempPort(ctx context.Context, port string) (*models.TempPort, error) {
	var p models.TempPort
	err := s.active(ctx).Where("port = ?", port).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("temp port %q not found", port)
	}
	return &p, err
}

func (s *PortStore) TempPortsOfDevice(ctx context.Context, deviceID uint) ([]models.TempPort, error) {
	var ports []models.TempPort
	err := s.active(ctx).Where("device_id = ?", deviceID).Order("port").Find(&ports).Error
	return ports, err
}

// RelinkTempPorts реализует clear-then-link: все текущие temp-порты
// устройства освобождаются, затем каждый названный (создаётся при
// отсутствии) привязывается. TempPort — 1:n, несколько портов могут
// указывать на одно устройство.
func (s *PortStore) RelinkTempPorts(ctx context.Context, deviceID uint, ports []string) error {
	if err := s.UnlinkTempPortsOfDevice(ctx, deviceID); err != nil {
		return err
	}
	for _, name := range ports {
		var p models.TempPort
		err := s.active(ctx).Where("port = ?", name).First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p = models.TempPort{Port: name, IsActive: true}
			if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		dev := deviceID
		if err := s.db.WithContext(ctx).Model(&models.TempPort{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{
				"device_id": &dev,
				"status":    models.PortStatusBusy,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *PortStore) UnlinkTempPortsOfDevice(ctx context.Context, deviceID uint) error {
	return s.db.WithContext(ctx).Model(&models.TempPort{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]any{"device_id": nil, "status": models.PortStatusIdle}).Error
}

// CheckPortInvariant сверяет производный статус с привязкой; расхождение —
// фатальный баг, а не состояние для тихого ремонта.
func (s *PortStore) CheckPortInvariant(ctx context.Context, port string) error {
	p, err := s.FindPowerPortAny(ctx, port)
	if err != nil {
		return err
	}
	if p.Status != models.PortStatusFor(p.DeviceID) {
		return apperr.Invariant("power port %q: status %q inconsistent with device link %v",
			port, p.Status, p.DeviceID)
	}
	return nil
}
