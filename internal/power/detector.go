package power

import (
	"context"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"roost/internal/apperr"
	"roost/internal/locking"
	"roost/internal/logs"
	"roost/internal/models"
	"roost/internal/repo"
)

// Config — параметры детекции.
type Config struct {
	// GapMinutes: больший разрыв между показаниями считается обрывом
	// телеметрии — открытая аномалия закрывается без оценки разряда.
	GapMinutes float64
	// DefaultDrainThreshold (%/мин) используется, когда политика с
	// кодом power не настроена в БД.
	DefaultDrainThreshold float64
}

func (c Config) withDefaults() Config {
	if c.GapMinutes <= 0 {
		c.GapMinutes = 4
	}
	if c.DefaultDrainThreshold <= 0 {
		c.DefaultDrainThreshold = 4
	}
	return c
}

// Detector — приём показаний батареи и машина состояний аномалии
// {нет открытого окна} ⇄ {открытое окно} на пару (device, power).
// Показания одного устройства сериализуются keyed-мьютексом: lookup
// предыдущего показания плюс мутация окна — это read-modify-write.
type Detector struct {
	db    *gorm.DB
	cfg   Config
	locks *locking.Keyed
}

func NewDetector(db *gorm.DB, cfg Config, locks *locking.Keyed) *Detector {
	return &Detector{db: db, cfg: cfg.withDefaults(), locks: locks}
}

// Reading — входное показание телеметрии.
type Reading struct {
	DeviceLabel    string    `json:"device_label"`
	RecordDatetime time.Time `json:"record_datetime"`
	BatteryLevel   int       `json:"battery_level"`
	Charging       bool      `json:"charging"`
}

// Ingest обрабатывает одно показание: показание сохраняется всегда,
// независимо от исхода оценки аномалии. Вся обработка — одна транзакция.
func (d *Detector) Ingest(ctx context.Context, r Reading) error {
	if r.DeviceLabel == "" {
		return apperr.Validation("device_label is required")
	}
	if r.RecordDatetime.IsZero() {
		return apperr.Validation("record_datetime is required")
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		return apperr.Validation("battery_level %d out of range", r.BatteryLevel)
	}

	dev, err := repo.NewDeviceStore(d.db).GetByLabel(ctx, r.DeviceLabel)
	if err != nil {
		return err
	}

	unlock := d.locks.Lock(dev.ID)
	defer unlock()

	return d.db.Transaction(func(tx *gorm.DB) error {
		powers := repo.NewPowerStore(tx)
		ports := repo.NewPortStore(tx)

		prev, err := powers.LastReadingBefore(ctx, dev.ID, r.RecordDatetime)
		if err != nil {
			return err
		}

		// Бэкфилл порта питания из текущей привязки устройства.
		row := models.DevicePower{
			DeviceID:       dev.ID,
			RecordDatetime: r.RecordDatetime,
			BatteryLevel:   r.BatteryLevel,
			Charging:       r.Charging,
		}
		if port, err := ports.PowerPortOfDevice(ctx, dev.ID); err != nil {
			return err
		} else if port != nil {
			row.PowerPortID = &port.ID
		}
		if err := powers.SaveReading(ctx, &row); err != nil {
			return err
		}

		if prev == nil {
			// Нет истории — дельту не посчитать, оценка пропускается.
			return nil
		}
		return d.evaluate(ctx, powers, dev.ID, prev, &row)
	})
}

// evaluate — собственно машина состояний окна аномалии.
func (d *Detector) evaluate(ctx context.Context, powers *repo.PowerStore, deviceID uint, prev, cur *models.DevicePower) error {
	gapMin := cur.RecordDatetime.Sub(prev.RecordDatetime).Minutes()

	open, err := powers.OpenAbnormity(ctx, deviceID, models.AbnormityTypePower)
	if err != nil {
		return err
	}

	// Разрыв телеметрии: окно закрывается безусловно, разряд не оценивается.
	if gapMin > d.cfg.GapMinutes {
		if open != nil {
			logs.Logger.Infof("power telemetry gap %.1fmin on device %d, closing abnormity %d",
				gapMin, deviceID, open.ID)
			return powers.CloseAbnormity(ctx, open.ID)
		}
		return nil
	}

	drain := float64(prev.BatteryLevel-cur.BatteryLevel) / gapMin
	threshold, err := d.drainThreshold(ctx, powers)
	if err != nil {
		return err
	}

	if drain >= threshold {
		if open != nil {
			// Продление открытого окна новым показанием.
			if err := powers.AddDetail(ctx, &models.AbnormityDetail{
				AbnormityID: open.ID,
				RecordTime:  cur.RecordDatetime,
				ResultData:  powerDetail(cur.BatteryLevel),
			}); err != nil {
				return err
			}
			return powers.ExtendAbnormity(ctx, open.ID, cur.RecordDatetime)
		}

		// Новое окно [prev, cur] с деталями на обоих концах.
		policyID, err := d.powerPolicyID(ctx, powers)
		if err != nil {
			return err
		}
		end := cur.RecordDatetime
		ab := models.Abnormity{
			DeviceID:  deviceID,
			PolicyID:  policyID,
			Type:      models.AbnormityTypePower,
			StartTime: prev.RecordDatetime,
			EndTime:   &end,
		}
		if err := powers.CreateAbnormity(ctx, &ab); err != nil {
			return err
		}
		logs.Logger.Warnf("abnormal battery drain %.2f%%/min on device %d (threshold %.2f)",
			drain, deviceID, threshold)
		if err := powers.AddDetail(ctx, &models.AbnormityDetail{
			AbnormityID: ab.ID,
			RecordTime:  prev.RecordDatetime,
			ResultData:  powerDetail(prev.BatteryLevel),
		}); err != nil {
			return err
		}
		return powers.AddDetail(ctx, &models.AbnormityDetail{
			AbnormityID: ab.ID,
			RecordTime:  cur.RecordDatetime,
			ResultData:  powerDetail(cur.BatteryLevel),
		})
	}

	// Разряд в норме: открытое окно закрывается (только флаг, end_time
	// остаётся от последнего продления, новая деталь не пишется).
	if open != nil {
		return powers.CloseAbnormity(ctx, open.ID)
	}
	return nil
}

func (d *Detector) drainThreshold(ctx context.Context, powers *repo.PowerStore) (float64, error) {
	p, err := powers.PolicyByCode(ctx, models.AbnormityPolicyCodePower)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return d.cfg.DefaultDrainThreshold, nil
	}
	v, err := p.DrainThreshold()
	if err != nil {
		logs.Logger.Errorf("power abnormity policy unusable, falling back to default: %v", err)
		return d.cfg.DefaultDrainThreshold, nil
	}
	return v, nil
}

func (d *Detector) powerPolicyID(ctx context.Context, powers *repo.PowerStore) (*uint, error) {
	p, err := powers.PolicyByCode(ctx, models.AbnormityPolicyCodePower)
	if err != nil || p == nil {
		return nil, err
	}
	return &p.ID, nil
}

func powerDetail(battery int) datatypes.JSON {
	return datatypes.JSON([]byte(`{"power": ` + strconv.Itoa(battery) + `}`))
}
