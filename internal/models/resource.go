package models

import "time"

const (
	ResourceStatusIdle = "idle"
	ResourceStatusBusy = "busy"
)

// SimCard и Account — ресурсы внешнего реестра, смоделированные ровно
// настолько, чтобы проверять "есть привязанные ресурсы" и снимать привязку.

type SimCard struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Serial   string `gorm:"uniqueIndex;size:64;not null" json:"serial"`
	Phone    string `gorm:"size:32" json:"phone"`
	DeviceID *uint  `gorm:"index" json:"device_id"`
	Status   string `gorm:"size:16;default:'idle'" json:"status"`
}

type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Name     string `gorm:"size:128;not null" json:"name"`
	App      string `gorm:"size:64" json:"app"`
	DeviceID *uint  `gorm:"index" json:"device_id"`
	Status   string `gorm:"size:16;default:'idle'" json:"status"`
}
