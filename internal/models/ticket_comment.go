package models

// TicketComment is a single comment on a ticket. Internal comments are only
// visible to technicians and administrators.
type TicketComment struct {
	BaseModel

	TicketID string  `gorm:"type:uuid;not null;index" json:"ticket_id"`
	Ticket   *Ticket `gorm:"foreignKey:TicketID" json:"-"`
	AuthorID string  `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Body     string  `gorm:"type:text;not null" json:"body"`
	Internal bool    `gorm:"default:false" json:"internal"`
}
