package models

import "time"

// Article is a knowledge base entry. Unpublished articles are only visible to
// technicians and administrators.
type Article struct {
	BaseModel

	Title    string `gorm:"type:varchar(255);not null" json:"title"`
	Body     string `gorm:"type:text" json:"body"`
	Category string `gorm:"type:varchar(128);index" json:"category"`

	AuthorID string `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`

	Published   bool       `gorm:"default:false;index" json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	Views       int64      `gorm:"default:0" json:"views"`
}
