package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity log outcomes.
const (
	ActivityStatusSuccess = "success"
	ActivityStatusError   = "error"
)

// ActivityLog is an append-only record of a user-visible action. Failed login
// attempts are attributed to the "unknown" username when no record matched.
type ActivityLog struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    *string   `gorm:"type:uuid;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Username  string    `json:"username"`
	Action    string    `gorm:"not null;index" json:"action"`
	Status    string    `gorm:"not null" json:"status"`
	Message   string    `gorm:"type:text" json:"message"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
