package models

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses as written by the booking service.
const (
	AppointmentPending   = "Pending"
	AppointmentApproved  = "Approved"
	AppointmentCancelled = "Cancelled"
)

// Appointment is the booking service's row. Date is stored as YYYY-MM-DD and
// the times as HH:MM in the service's local time zone.
type Appointment struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	LocationID uuid.UUID `gorm:"type:uuid;index;not null"`
	ClientID   uuid.UUID `gorm:"type:uuid;index;not null"`
	AgentID    uuid.UUID `gorm:"type:uuid;index;not null"`

	Date      string `gorm:"type:varchar(10);index;not null"`
	StartTime string `gorm:"type:varchar(5);not null"`
	EndTime   string `gorm:"type:varchar(5);not null"`
	Status    string `gorm:"type:varchar(20);index;not null"`

	Client   Client    `gorm:"foreignKey:ClientID"`
	Agent    Agent     `gorm:"foreignKey:AgentID"`
	Location Location  `gorm:"foreignKey:LocationID"`
	Services []Service `gorm:"many2many:appointment_services"`

	CreatedAt time.Time
}

// AppointmentSnapshot is the read-only projection the reminder engine works
// with: the appointment plus everything needed to compose a message.
type AppointmentSnapshot struct {
	ID         uuid.UUID `json:"id"`
	LocationID uuid.UUID `json:"locationId"`
	ClientID   uuid.UUID `json:"clientId"`

	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Status    string `json:"status"`

	ClientName      string   `json:"clientName"`
	ClientPhone     string   `json:"clientPhone"`
	AgentName       string   `json:"agentName"`
	AgentPhone      string   `json:"agentPhone"`
	LocationName    string   `json:"locationName"`
	LocationAddress string   `json:"locationAddress"`
	Services        []string `json:"services"`
}

// Snapshot projects a loaded appointment. Client, Agent, Location and
// Services must be preloaded.
func (a *Appointment) Snapshot() AppointmentSnapshot {
	services := make([]string, 0, len(a.Services))
	for _, s := range a.Services {
		services = append(services, s.Name)
	}
	return AppointmentSnapshot{
		ID:              a.ID,
		LocationID:      a.LocationID,
		ClientID:        a.ClientID,
		Date:            a.Date,
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          a.Status,
		ClientName:      a.Client.Name,
		ClientPhone:     a.Client.Phone,
		AgentName:       a.Agent.Name,
		AgentPhone:      a.Agent.Phone,
		LocationName:    a.Location.Name,
		LocationAddress: a.Location.Address,
		Services:        services,
	}
}
