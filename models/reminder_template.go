package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Template kinds. Day-before reminders use their own wording; near-time and
// prescheduled reminders share the "upcoming" wording.
const (
	TemplateDayBefore = "day_before"
	TemplateUpcoming  = "upcoming"
)

// ReminderTemplate is a location-specific message body with placeholders
// such as [ClientName] and [Time].
type ReminderTemplate struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	LocationID uuid.UUID `gorm:"type:uuid;index;not null" json:"locationId"`
	Kind       string    `gorm:"type:varchar(20);not null" json:"kind"`
	Message    string    `gorm:"type:text;not null" json:"message"`
	IsActive   bool      `gorm:"not null" json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (t *ReminderTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}
