package models

import "time"

// Change request workflow states.
const (
	ChangeStatusDraft       = "draft"
	ChangeStatusSubmitted   = "submitted"
	ChangeStatusApproved    = "approved"
	ChangeStatusRejected    = "rejected"
	ChangeStatusImplemented = "implemented"
)

// Change risk classifications.
const (
	ChangeRiskLow    = "low"
	ChangeRiskMedium = "medium"
	ChangeRiskHigh   = "high"
)

// ChangeRequest tracks a proposed infrastructure or service change through
// its approval workflow.
type ChangeRequest struct {
	BaseModel

	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"type:varchar(32);not null;default:'draft';index" json:"status"`
	Risk        string `gorm:"type:varchar(32);not null;default:'low'" json:"risk"`

	RequesterID string  `gorm:"type:uuid;not null;index" json:"requester_id"`
	Requester   *User   `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	ApproverID  *string `gorm:"type:uuid;index" json:"approver_id"`
	Approver    *User   `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`

	DecisionNote string `gorm:"type:text" json:"decision_note"`

	SubmittedAt   *time.Time `json:"submitted_at"`
	DecidedAt     *time.Time `json:"decided_at"`
	ImplementedAt *time.Time `json:"implemented_at"`
}
