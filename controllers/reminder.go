// controllers/reminder.go
package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/repository"
	"salonpro-reminders/services"
	"salonpro-reminders/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type ReminderScheduler interface {
	services.CycleRunner
	ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, sendAt time.Time) (uuid.UUID, error)
}

type RecordReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.ReminderRecord, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.ReminderRecord, error)
}

type TemplateWriter interface {
	SaveTemplate(ctx context.Context, locationID uuid.UUID, kind, message string, active bool) (*models.ReminderTemplate, error)
}

type SentLister interface {
	ListSent(ctx context.Context, page, pageSize int) ([]uuid.UUID, int64, error)
}

// ReminderController serves the ops API. Sent and Checks are optional.
type ReminderController struct {
	Reminders ReminderScheduler
	Records   RecordReader
	Stats     LedgerStats
	Templates TemplateWriter
	Sent      SentLister
	Checks    map[string]func(context.Context) error
	Clock     clockwork.Clock
	Location  *time.Location
}

// ScheduleReminderInput defines the expected JSON structure
type ScheduleReminderInput struct {
	AppointmentID string    `json:"appointmentId" binding:"required,uuid"`
	SendAt        time.Time `json:"sendAt" binding:"required"`
}

// SaveTemplateInput defines the expected JSON structure
type SaveTemplateInput struct {
	Message  string `json:"message" binding:"required"`
	IsActive *bool  `json:"isActive"`
}

func (rc *ReminderController) now() time.Time {
	if rc.Clock == nil {
		return time.Now()
	}
	return rc.Clock.Now()
}

func (rc *ReminderController) location() *time.Location {
	if rc.Location == nil {
		return time.UTC
	}
	return rc.Location
}

// RunCycle runs one reminder cycle immediately
func (rc *ReminderController) RunCycle(c *gin.Context) {
	report, err := rc.Reminders.RunCycle(c.Request.Context(), rc.now())
	if err != nil {
		slog.Error("manual reminder cycle failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Reminder cycle failed", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ScheduleReminder books a prescheduled reminder
func (rc *ReminderController) ScheduleReminder(c *gin.Context) {
	var input ScheduleReminderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	appointmentID, err := uuid.Parse(input.AppointmentID)
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid appointment ID format")
		return
	}

	id, err := rc.Reminders.ScheduleReminder(c.Request.Context(), appointmentID, input.SendAt)
	switch {
	case errors.Is(err, repository.ErrAppointmentNotFound):
		utils.RespondWithError(c, http.StatusNotFound, "Appointment not found")
		return
	case errors.Is(err, services.ErrNotEligible):
		utils.RespondWithError(c, http.StatusUnprocessableEntity, "Appointment is not approved")
		return
	case errors.Is(err, repository.ErrAlreadyExists):
		utils.RespondWithError(c, http.StatusConflict, "Reminder already scheduled for this appointment")
		return
	case err != nil:
		slog.Error("scheduling reminder failed", "appointment_id", appointmentID, "error", err)
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to schedule reminder")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetReminder retrieves one ledger record by ID
func (rc *ReminderController) GetReminder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid reminder ID format")
		return
	}

	record, err := rc.Records.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.RespondWithError(c, http.StatusNotFound, "Reminder not found")
		} else {
			utils.RespondWithError(c, http.StatusInternalServerError, "Database error")
		}
		return
	}

	c.JSON(http.StatusOK, record)
}

// GetAppointmentReminders lists every ledger record of an appointment
func (rc *ReminderController) GetAppointmentReminders(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid appointment ID format")
		return
	}

	records, err := rc.Records.ListByAppointment(c.Request.Context(), id)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve reminders")
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetSentReminders pages the recently sent reminder IDs, newest first
func (rc *ReminderController) GetSentReminders(c *gin.Context) {
	if rc.Sent == nil {
		utils.RespondWithError(c, http.StatusServiceUnavailable, "Sent feed not configured")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if page < 1 || pageSize < 1 || pageSize > 100 {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	ids, total, err := rc.Sent.ListSent(c.Request.Context(), page, pageSize)
	if err != nil {
		slog.Error("listing sent reminders failed", "error", err)
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to retrieve sent reminders")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     ids,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// SaveTemplate creates or replaces a location's reminder template
func (rc *ReminderController) SaveTemplate(c *gin.Context) {
	locationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid location ID format")
		return
	}
	kind := c.Param("kind")
	if kind != models.TemplateDayBefore && kind != models.TemplateUpcoming {
		utils.RespondWithError(c, http.StatusBadRequest, "Template kind must be day_before or upcoming")
		return
	}

	var input SaveTemplateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondWithError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	template, err := rc.Templates.SaveTemplate(c.Request.Context(), locationID, kind, input.Message, active)
	if err != nil {
		if errors.Is(err, repository.ErrLocationNotFound) {
			utils.RespondWithError(c, http.StatusNotFound, "Location not found")
		} else {
			utils.RespondWithError(c, http.StatusInternalServerError, "Failed to save template")
		}
		return
	}

	c.JSON(http.StatusOK, template)
}

// Health reports the state of each backing dependency
func (rc *ReminderController) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range rc.Checks {
		if err := check(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
