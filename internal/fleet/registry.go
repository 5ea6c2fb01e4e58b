package fleet

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/coral"
	"roost/internal/locking"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/repo"
	"roost/internal/wingman"
)

// Service — оркестратор жизненного цикла устройства: регистрация,
// release/logout, статусные переходы. Каждая составная операция — одна
// транзакция БД; уведомления coral живут вне транзакционной границы.
type Service struct {
	db        *gorm.DB
	devices   *repo.DeviceStore
	ports     *repo.PortStore
	panes     *repo.PaneStore
	subs      *repo.SubsidiaryStore
	resources *repo.ResourceStore
	wingman   *wingman.Manager
	coral     *coral.Client
	locks     *locking.Keyed
}

func NewService(db *gorm.DB, coralClient *coral.Client, locks *locking.Keyed) *Service {
	return &Service{
		db:        db,
		devices:   repo.NewDeviceStore(db),
		ports:     repo.NewPortStore(db),
		panes:     repo.NewPaneStore(db),
		subs:      repo.NewSubsidiaryStore(db),
		resources: repo.NewResourceStore(db),
		wingman:   wingman.NewManager(db, locks),
		coral:     coralClient,
		locks:     locks,
	}
}

// CoordinateInput — координата устройства в шкафу.
type CoordinateInput struct {
	X     int            `json:"x"`
	Y     int            `json:"y"`
	Extra datatypes.JSON `json:"extra"`
}

// RegisterInput — пейлоад регистрации от coral. Для PowerPort и
// MonitorIndex различие «ключ отсутствует / null / значение» значимо:
// отсутствие оставляет привязку нетронутой, явный null снимает её.
type RegisterInput struct {
	DeviceLabel string `json:"device_label"`
	CPUID       string `json:"cpu_id"`
	DeviceName  string `json:"device_name"`
	IP          string `json:"ip"`
	DeviceType  string `json:"device_type"`
	AutoTest    bool   `json:"auto_test"`
	InstanceIdx int    `json:"instance_idx"`

	Manufacturer   string `json:"manufacturer"`
	AndroidVersion string `json:"android_version"`
	RomVersion     string `json:"rom_version"`

	PhoneModel string `json:"phone_model"`
	CPUName    string `json:"cpu_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	DPI        int    `json:"dpi"`
	XBorder    int    `json:"x_border"`
	YBorder    int    `json:"y_border"`

	CabinetID  *uint            `json:"cabinet_id"`
	Coordinate *CoordinateInput `json:"coordinate"`

	PowerPort    models.Optional[string] `json:"power_port"`
	TempPorts    *[]string               `json:"temp_port"`
	MonitorIndex models.Optional[string] `json:"monitor_index"`
}

// RegisterOrUpdate — upsert устройства по device_label вместе со всеми
// справочниками и привязками портов. Возвращает id устройства.
func (s *Service) RegisterOrUpdate(ctx context.Context, in RegisterInput) (uint, error) {
	if strings.TrimSpace(in.DeviceLabel) == "" {
		return 0, apperr.Validation("device_label is required")
	}
	if strings.TrimSpace(in.CPUID) == "" {
		return 0, apperr.Validation("cpu_id is required")
	}

	var deviceID uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		devices := s.devices.WithTx(tx)
		ports := s.ports.WithTx(tx)

		// 1) справочники
		manufacturer, err := devices.ResolveManufacturer(ctx, in.Manufacturer)
		if err != nil {
			return err
		}
		var androidID, romID *uint
		if in.AndroidVersion != "" {
			v, err := devices.ResolveAndroidVersion(ctx, in.AndroidVersion)
			if err != nil {
				return err
			}
			androidID = &v.ID
		}
		if in.RomVersion != "" {
			v, err := devices.ResolveRomVersion(ctx, manufacturer.ID, in.RomVersion)
			if err != nil {
				return err
			}
			romID = &v.ID
		}

		// 2) общая строка модели: last writer wins на геометрии
		var modelID *uint
		if in.PhoneModel != "" {
			m, err := devices.UpsertPhoneModel(ctx, models.PhoneModel{
				ManufacturerID: manufacturer.ID,
				Name:           in.PhoneModel,
				CPUName:        in.CPUName,
				Width:          in.Width,
				Height:         in.Height,
				DPI:            in.DPI,
				XBorder:        in.XBorder,
				YBorder:        in.YBorder,
			})
			if err != nil {
				return err
			}
			modelID = &m.ID
		}

		// 3) upsert устройства по label
		existing, err := devices.GetByLabel(ctx, in.DeviceLabel)
		switch {
		case apperr.IsKind(err, apperr.KindNotFound):
			d := models.Device{
				DeviceLabel:      in.DeviceLabel,
				DeviceName:       in.DeviceName,
				CPUID:            in.CPUID,
				IP:               in.IP,
				CabinetID:        in.CabinetID,
				PhoneModelID:     modelID,
				AndroidVersionID: androidID,
				RomVersionID:     romID,
				Status:           models.DeviceStatusIdle,
				AutoTest:         in.AutoTest,
				DeviceType:       deviceTypeOrDefault(in.DeviceType),
				InstanceIdx:      in.InstanceIdx,
			}
			if err := devices.Create(ctx, &d); err != nil {
				return err
			}
			deviceID = d.ID
		case err != nil:
			return err
		default:
			// Whitelisted-поля; label и производные поля не трогаем.
			fields := map[string]any{
				"device_name":  in.DeviceName,
				"cpu_id":       in.CPUID,
				"ip":           in.IP,
				"cabinet_id":   in.CabinetID,
				"auto_test":    in.AutoTest,
				"device_type":  deviceTypeOrDefault(in.DeviceType),
				"instance_idx": in.InstanceIdx,
			}
			if modelID != nil {
				fields["phone_model_id"] = modelID
			}
			if androidID != nil {
				fields["android_version_id"] = androidID
			}
			if romID != nil {
				fields["rom_version_id"] = romID
			}
			if err := devices.UpdateFields(ctx, existing.ID, fields); err != nil {
				return err
			}
			deviceID = existing.ID
		}

		// 4) координата
		if in.Coordinate != nil {
			if err := devices.UpsertCoordinate(ctx, models.DeviceCoordinate{
				DeviceID: deviceID,
				X:        in.Coordinate.X,
				Y:        in.Coordinate.Y,
				Extra:    in.Coordinate.Extra,
			}); err != nil {
				return err
			}
		}

		// 5) порт питания: absent → не трогаем, null → снять, значение → rebind
		if in.PowerPort.Set {
			if in.PowerPort.Valid {
				if err := ports.RebindPowerPort(ctx, in.PowerPort.Value, deviceID); err != nil {
					return err
				}
			} else {
				if err := ports.UnlinkPowerPortsOfDevice(ctx, deviceID); err != nil {
					return err
				}
			}
		}

		// 6) temp-порты: clear-then-link
		if in.TempPorts != nil {
			if err := ports.RelinkTempPorts(ctx, deviceID, *in.TempPorts); err != nil {
				return err
			}
		}

		// 7) monitor-порт: clear-then-set, явный null только очищает
		if in.MonitorIndex.Set {
			if err := devices.UnlinkMonitorPorts(ctx, deviceID); err != nil {
				return err
			}
			if in.MonitorIndex.Valid {
				mp, err := devices.ResolveMonitorPort(ctx, in.MonitorIndex.Value)
				if err != nil {
					return err
				}
				if err := devices.RelinkMonitorPort(ctx, deviceID, mp.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logs.Logger.Infof("device registered: label=%s id=%d", in.DeviceLabel, deviceID)
	return deviceID, nil
}

func deviceTypeOrDefault(t string) string {
	if t == models.DeviceTypeTestBox {
		return models.DeviceTypeTestBox
	}
	return models.DeviceTypeADB
}
