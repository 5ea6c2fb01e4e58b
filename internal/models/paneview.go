package models

import "time"

const (
	PaneViewTypeMatrix = "matrix"
	PaneViewTypeMap    = "map"
)

const (
	PaneSlotStatusOK    = "ok"
	PaneSlotStatusEmpty = "empty"
	PaneSlotStatusError = "error"
)

// PaneView — именованная сетка rows×cols, 1:1 со шкафом.
// Имя обязано соответствовать ^[A-Za-z0-9_]+@[0-9]+x[0-9]+$.
type PaneView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Type      string `gorm:"size:16;default:'matrix'" json:"type"`
	CabinetID uint   `gorm:"uniqueIndex;not null" json:"cabinet_id"`
	Rows      int    `json:"rows"`
	Cols      int    `json:"cols"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// PaneSlot — ячейка сетки. status=ok ⇔ DeviceID != nil; "одно устройство —
// максимум один слот" контролируется на уровне приложения, не схемой.
type PaneSlot struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PaneViewID uint   `gorm:"uniqueIndex:uniq_slot_cell,priority:1;not null" json:"pane_view_id"`
	Row        int    `gorm:"column:slot_row;uniqueIndex:uniq_slot_cell,priority:2" json:"row"`
	Col        int    `gorm:"column:slot_col;uniqueIndex:uniq_slot_cell,priority:3" json:"col"`
	DeviceID   *uint  `gorm:"index" json:"device_id"`
	Status     string `gorm:"size:16;default:'empty'" json:"status"`
}
