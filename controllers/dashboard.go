package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/repository"
	"salonpro-reminders/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LedgerStats interface {
	CountByStatus(ctx context.Context, since time.Time) ([]repository.StatusCount, error)
	UpcomingScheduled(ctx context.Context, now time.Time, limit int) ([]models.ReminderRecord, error)
}

type DashboardOverview struct {
	Since             time.Time                `json:"since"`
	Totals            map[string]int64         `json:"totals"`
	ByType            []repository.StatusCount `json:"byType"`
	UpcomingReminders []UpcomingReminder       `json:"upcomingReminders"`
}

type UpcomingReminder struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	SendAt        time.Time `json:"sendAt"`
	Due           string    `json:"due"` // e.g. "Today", "Tomorrow", "3 days"
}

// GetDashboardOverview summarises the ledger over the last ?days= days
// (default 7) and lists the next prescheduled sends.
func (rc *ReminderController) GetDashboardOverview(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 1 || days > 90 {
		utils.RespondWithError(c, http.StatusBadRequest, "days must be between 1 and 90")
		return
	}

	now := rc.now().In(rc.location())
	since := utils.BeginningOfDay(now.AddDate(0, 0, -(days - 1)))

	counts, err := rc.Stats.CountByStatus(c.Request.Context(), since)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to load reminder statistics")
		return
	}
	upcoming, err := rc.Stats.UpcomingScheduled(c.Request.Context(), now, 7)
	if err != nil {
		utils.RespondWithError(c, http.StatusInternalServerError, "Failed to load upcoming reminders")
		return
	}

	totals := map[string]int64{}
	for _, sc := range counts {
		totals[string(sc.Status)] += sc.Count
	}

	overview := DashboardOverview{
		Since:             since,
		Totals:            totals,
		ByType:            counts,
		UpcomingReminders: make([]UpcomingReminder, 0, len(upcoming)),
	}
	for _, rec := range upcoming {
		if rec.ScheduledSendTime == nil {
			continue
		}
		sendAt := rec.ScheduledSendTime.In(rc.location())
		overview.UpcomingReminders = append(overview.UpcomingReminders, UpcomingReminder{
			ID:            rec.ID,
			AppointmentID: rec.AppointmentID,
			SendAt:        sendAt,
			Due:           dueLabel(now, sendAt),
		})
	}

	c.JSON(http.StatusOK, overview)
}

func dueLabel(now, at time.Time) string {
	switch days := utils.DaysBetween(now, at); days {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	default:
		return fmt.Sprintf("%d days", days)
	}
}
