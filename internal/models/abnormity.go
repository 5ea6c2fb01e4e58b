package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	AbnormityTypePower = "power"

	// Код политики аномалии питания.
	AbnormityPolicyCodePower = 1

	// Тип правила внутри rule-пейлоада: порог разряда, %/мин.
	AbnormityRuleTypeDrain = 1
)

// AbnormityPolicy — правило детекции, rule хранится как JSON-массив
// объектов {"type": int, "value": number}.
type AbnormityPolicy struct {
	ID   uint           `gorm:"primaryKey" json:"id"`
	Code int            `gorm:"uniqueIndex;not null" json:"code"`
	Name string         `gorm:"size:128" json:"name"`
	Rule datatypes.JSON `json:"rule"`
}

type abnormityRule struct {
	Type  int     `json:"type"`
	Value float64 `json:"value"`
}

// DrainThreshold извлекает порог разряда (%/мин) из rule-пейлоада.
func (p *AbnormityPolicy) DrainThreshold() (float64, error) {
	var rules []abnormityRule
	if err := json.Unmarshal(p.Rule, &rules); err != nil {
		return 0, fmt.Errorf("abnormity policy %d: bad rule payload: %w", p.Code, err)
	}
	for _, r := range rules {
		if r.Type == AbnormityRuleTypeDrain {
			return r.Value, nil
		}
	}
	return 0, fmt.Errorf("abnormity policy %d: no drain rule", p.Code)
}

// Abnormity — окно аномалии устройства. Инвариант: не более одного
// открытого (IsEnd=false) окна на пару (device, type).
type Abnormity struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	DeviceID  uint       `gorm:"index;not null" json:"device_id"`
	PolicyID  *uint      `json:"policy_id"`
	Type      string     `gorm:"size:32;index;not null" json:"type"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	IsEnd     bool       `gorm:"index;default:false" json:"is_end"`
}

// AbnormityDetail — точечное показание внутри окна.
type AbnormityDetail struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	AbnormityID uint           `gorm:"index;not null" json:"abnormity_id"`
	RecordTime  time.Time      `json:"record_time"`
	ResultData  datatypes.JSON `json:"result_data"`
}

// DevicePower — показание батареи. PowerPortID бэкфиллится при сохранении
// из текущей привязки устройства.
type DevicePower struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DeviceID       uint      `gorm:"index;not null" json:"device_id"`
	PowerPortID    *uint     `json:"power_port_id"`
	RecordDatetime time.Time `gorm:"index" json:"record_datetime"`
	BatteryLevel   int       `json:"battery_level"`
	Charging       bool      `json:"charging"`
}
