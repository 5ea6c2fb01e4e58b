package models

import "time"

// Статусы subsidiary-устройства ("wingman"). Статус unbound взаимно
// исключителен с непустой привязкой DeviceID.
const (
	SubsidiaryStatusUnbound = "unbound"
	SubsidiaryStatusIdle    = "idle"
	SubsidiaryStatusBusy    = "busy"
)

type SubsidiaryDevice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SerialNumber string `gorm:"uniqueIndex;size:128;not null" json:"serial_number"`

	// Привязка к основному устройству; Order уникален в пределах primary.
	DeviceID *uint   `gorm:"uniqueIndex:uniq_sub_order,priority:1" json:"device_id"`
	Order    *string `gorm:"uniqueIndex:uniq_sub_order,priority:2;size:32" json:"order"`

	Status   string `gorm:"size:16;default:'unbound'" json:"status"`
	IsActive bool   `gorm:"default:true;index" json:"is_active"`
}
