package models

import (
	"github.com/google/uuid"
)

// Location is a salon unit. Rows are owned by the booking service; the
// reminder engine only reads the name and address for message rendering.
type Location struct {
	ID      uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name    string    `gorm:"not null" json:"name"`
	Address string    `json:"address"`
	Phone   string    `json:"phone"`

	ReminderTemplates []ReminderTemplate `gorm:"foreignKey:LocationID" json:"-"`
}
