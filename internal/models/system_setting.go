package models

import "time"

// SystemSetting persists installation-wide values that should survive restarts.
// Values are stored as opaque strings; consumers decode and coerce them.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
