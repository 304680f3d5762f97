package models

import (
	"time"

	"gorm.io/datatypes"
)

// Ticket lifecycle statuses.
const (
	TicketStatusOpen       = "open"
	TicketStatusInProgress = "in_progress"
	TicketStatusResolved   = "resolved"
	TicketStatusClosed     = "closed"
)

// Ticket priorities.
const (
	TicketPriorityLow      = "low"
	TicketPriorityMedium   = "medium"
	TicketPriorityHigh     = "high"
	TicketPriorityCritical = "critical"
)

// Ticket represents a helpdesk incident or service request.
type Ticket struct {
	BaseModel

	Number      uint   `gorm:"uniqueIndex;autoIncrement;not null" json:"number"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"type:varchar(32);not null;default:'open';index" json:"status"`
	Priority    string `gorm:"type:varchar(32);not null;default:'medium';index" json:"priority"`
	Category    string `gorm:"type:varchar(128)" json:"category"`

	RequesterID string  `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester   *User   `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	AssigneeID  *string `gorm:"type:uuid;index" json:"assignee_id"`
	Assignee    *User   `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`

	Metadata datatypes.JSON `json:"metadata"`

	ResolvedAt *time.Time `json:"resolved_at"`
	ClosedAt   *time.Time `json:"closed_at"`

	Comments []TicketComment `gorm:"foreignKey:TicketID" json:"comments,omitempty"`
}
