package models

import "time"

// Статус порта — чистая функция от наличия привязки к устройству:
// busy ⇔ DeviceID != nil. Пишется только port-store мутаторами.
const (
	PortStatusIdle = "idle"
	PortStatusBusy = "busy"
)

// PowerPort — порт питания, строго 1:1 с устройством.
type PowerPort struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Port     string `gorm:"uniqueIndex;size:64;not null" json:"port"`
	DeviceID *uint  `gorm:"uniqueIndex" json:"device_id"`
	Status   string `gorm:"size:16;default:'idle'" json:"status"`

	// Soft-delete: неактивные порты невидимы для дефолтных выборок.
	IsActive bool `gorm:"default:true;index" json:"is_active"`
}

// TempPort — порт термодатчика, 1:n с устройством.
type TempPort struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Port     string `gorm:"uniqueIndex;size:64;not null" json:"port"`
	DeviceID *uint  `gorm:"index" json:"device_id"`
	Status   string `gorm:"size:16;default:'idle'" json:"status"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`
}

// PortStatusFor возвращает производный статус для данной привязки.
func PortStatusFor(deviceID *uint) string {
	if deviceID != nil {
		return PortStatusBusy
	}
	return PortStatusIdle
}
