package models

import (
	"time"

	"gorm.io/datatypes"
)

// Статусы устройства.
const (
	DeviceStatusIdle     = "idle"
	DeviceStatusBusy     = "busy"
	DeviceStatusError    = "error"
	DeviceStatusOffline  = "offline"
	DeviceStatusOccupied = "occupied"
)

const (
	DeviceTypeTestBox = "test_box"
	DeviceTypeADB     = "adb"
)

// DefaultManufacturer подставляется, когда регистрация не передала vendor.
const DefaultManufacturer = "unknown"

type Device struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeviceLabel — идентичность устройства (cpu_id + model + vendor),
	// неизменяема после создания.
	DeviceLabel string `gorm:"uniqueIndex;size:128;not null" json:"device_label"`
	DeviceName  string `gorm:"size:255" json:"device_name"`
	CPUID       string `gorm:"size:128" json:"cpu_id"`
	IP          string `gorm:"size:64" json:"ip"`

	CabinetID        *uint `gorm:"index" json:"cabinet_id"`
	PhoneModelID     *uint `gorm:"index" json:"phone_model_id"`
	AndroidVersionID *uint `gorm:"index" json:"android_version_id"`
	RomVersionID     *uint `gorm:"index" json:"rom_version_id"`

	// Status меняется только через fleet.SetStatus: StatusUpdatedAt обязан
	// отражать последнюю запись статуса.
	Status          string    `gorm:"size:32;default:'offline'" json:"status"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`

	AutoTest   bool   `json:"auto_test"`
	OccupyType string `gorm:"size:64" json:"occupy_type"`
	DeviceType string `gorm:"size:32;default:'adb'" json:"device_type"`

	// Производное поле: число привязанных subsidiary-устройств.
	// Пишется только протоколом bind/unbind/cancel/release.
	SubsidiaryDeviceCount int `gorm:"default:0" json:"subsidiary_device_count"`

	InstanceIdx int `gorm:"default:0" json:"instance_idx"`
}

// DeviceCoordinate — 1:1 координата устройства в шкафу.
type DeviceCoordinate struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	DeviceID uint           `gorm:"uniqueIndex;not null" json:"device_id"`
	X        int            `json:"x"`
	Y        int            `json:"y"`
	Extra    datatypes.JSON `json:"extra"`
}

type Cabinet struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `gorm:"size:255" json:"name"`
	IP       string `gorm:"size:64" json:"ip"`
	Type     string `gorm:"size:64" json:"type"`
	IsDelete bool   `gorm:"index" json:"is_delete"`
}
