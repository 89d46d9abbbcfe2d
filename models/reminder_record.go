// models/reminder_record.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReminderType string

const (
	ReminderDayBefore    ReminderType = "day_before"
	ReminderNearTime     ReminderType = "near_time"
	ReminderPrescheduled ReminderType = "prescheduled"
)

// TemplateKind maps a reminder type to the message wording it is sent with.
func (t ReminderType) TemplateKind() string {
	if t == ReminderDayBefore {
		return TemplateDayBefore
	}
	return TemplateUpcoming
}

func (t ReminderType) Valid() bool {
	switch t {
	case ReminderDayBefore, ReminderNearTime, ReminderPrescheduled:
		return true
	}
	return false
}

type ReminderStatus string

const (
	StatusScheduled ReminderStatus = "scheduled"
	// StatusProcessing marks a prescheduled row claimed by one run.
	StatusProcessing        ReminderStatus = "processing"
	StatusSent              ReminderStatus = "sent"
	StatusFailed            ReminderStatus = "failed"
	StatusPermanentlyFailed ReminderStatus = "permanently_failed"
)

func (s ReminderStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusPermanentlyFailed
}

// ReminderRecord is the ledger row. There is at most one per
// (appointment_id, type); rows are never deleted.
type ReminderRecord struct {
	ID            uuid.UUID    `gorm:"type:uuid;primary_key" json:"id"`
	AppointmentID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_reminder_appointment_type,priority:1" json:"appointmentId"`
	LocationID    uuid.UUID    `gorm:"type:uuid;index;not null" json:"locationId"`
	TargetPhone   string       `gorm:"type:varchar(32);not null" json:"targetPhone"`
	Type          ReminderType `gorm:"type:varchar(20);not null;uniqueIndex:idx_reminder_appointment_type,priority:2" json:"type"`

	Status   ReminderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Attempts int            `gorm:"not null;default:0" json:"attempts"`

	ScheduledSendTime *time.Time `gorm:"index" json:"scheduledSendTime,omitempty"`
	ClaimedAt         *time.Time `json:"claimedAt,omitempty"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	LastAttemptAt     *time.Time `json:"lastAttemptAt,omitempty"`
	MessageID         string     `gorm:"type:varchar(64)" json:"messageId,omitempty"`
	ErrorDetails      string     `gorm:"type:text" json:"errorDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *ReminderRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// ClaimedReminder is a prescheduled ledger row reserved by the current run,
// together with the appointment it reminds about.
type ClaimedReminder struct {
	Record      ReminderRecord
	Appointment AppointmentSnapshot
}
