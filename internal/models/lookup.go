package models

import "time"

// Справочные сущности, создаваемые на лету при регистрации устройства.

type Manufacturer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type AndroidVersion struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Version string `gorm:"uniqueIndex;size:64;not null" json:"version"`
}

type RomVersion struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ManufacturerID uint   `gorm:"uniqueIndex:uniq_rom,priority:1;not null" json:"manufacturer_id"`
	Version        string `gorm:"uniqueIndex:uniq_rom,priority:2;size:128;not null" json:"version"`
}

// PhoneModel — общая для всех устройств одной модели строка.
// Width/Height/DPI перезаписываются при каждой регистрации (last writer wins).
type PhoneModel struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ManufacturerID uint   `gorm:"uniqueIndex:uniq_phone_model,priority:1;not null" json:"manufacturer_id"`
	Name           string `gorm:"uniqueIndex:uniq_phone_model,priority:2;size:128;not null" json:"name"`
	CPUName        string `gorm:"size:128" json:"cpu_name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	DPI            int    `json:"dpi"`
	XBorder        int    `json:"x_border"`
	YBorder        int    `json:"y_border"`
}

type MonitorPort struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Port string `gorm:"uniqueIndex;size:64;not null" json:"port"`
}

// DeviceMonitorPort — many2many, фактически используется как single-valued.
type DeviceMonitorPort struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	DeviceID      uint `gorm:"uniqueIndex:uniq_dev_monitor,priority:1;not null" json:"device_id"`
	MonitorPortID uint `gorm:"uniqueIndex:uniq_dev_monitor,priority:2;not null" json:"monitor_port_id"`
}
