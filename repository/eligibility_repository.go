package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EligibilityRepository finds the appointments that need a reminder. Dates
// are computed in loc, the time zone appointments are booked in.
type EligibilityRepository struct {
	db         *gorm.DB
	loc        *time.Location
	nearWindow time.Duration
}

func NewEligibilityRepository(db *gorm.DB, loc *time.Location, nearWindow time.Duration) *EligibilityRepository {
	return &EligibilityRepository{db: db, loc: loc, nearWindow: nearWindow}
}

// DayBefore returns approved appointments dated tomorrow that have no
// day_before record yet.
func (r *EligibilityRepository) DayBefore(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error) {
	tomorrow := utils.TomorrowKey(now, r.loc)
	return r.unreminded(ctx, models.ReminderDayBefore, func(q *gorm.DB) *gorm.DB {
		return q.Where("appointments.date = ?", tomorrow)
	})
}

// NearTime returns approved appointments starting today within
// [now, now+window) that have no near_time record yet.
func (r *EligibilityRepository) NearTime(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error) {
	w := utils.NearTimeWindow(now, r.nearWindow, r.loc)
	return r.unreminded(ctx, models.ReminderNearTime, func(q *gorm.DB) *gorm.DB {
		return q.Where("appointments.date = ? AND appointments.start_time >= ? AND appointments.start_time < ?", w.Date, w.From, w.To)
	})
}

func (r *EligibilityRepository) unreminded(ctx context.Context, typ models.ReminderType, scope func(*gorm.DB) *gorm.DB) ([]models.AppointmentSnapshot, error) {
	var appts []models.Appointment
	q := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Agent").
		Preload("Location").
		Preload("Services").
		Where("appointments.status = ?", models.AppointmentApproved).
		Where("NOT EXISTS (SELECT 1 FROM reminder_records rr WHERE rr.appointment_id = appointments.id AND rr.type = ?)", typ)

	if err := scope(q).Order("appointments.created_at").Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("selecting %s candidates: %w", typ, err)
	}

	snapshots := make([]models.AppointmentSnapshot, 0, len(appts))
	for i := range appts {
		snapshots = append(snapshots, appts[i].Snapshot())
	}
	return snapshots, nil
}

// ClaimDuePrescheduled atomically moves every due scheduled record whose
// appointment is still approved to processing and returns the claimed rows.
// The status guard in the UPDATE makes concurrent callers partition the due
// set: a row another run already claimed no longer matches and is skipped.
func (r *EligibilityRepository) ClaimDuePrescheduled(ctx context.Context, now time.Time) ([]models.ClaimedReminder, error) {
	at := now.UTC()

	var records []models.ReminderRecord
	err := r.db.WithContext(ctx).Raw(`
		UPDATE reminder_records
		SET status = ?, claimed_at = ?, updated_at = ?
		WHERE status = ?
		AND scheduled_send_time IS NOT NULL
		AND scheduled_send_time <= ?
		AND appointment_id IN (SELECT id FROM appointments WHERE status = ?)
		RETURNING *
	`, models.StatusProcessing, at, at, models.StatusScheduled, at, models.AppointmentApproved).
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("claiming due reminders: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.AppointmentID)
	}

	var appts []models.Appointment
	if err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Agent").
		Preload("Location").
		Preload("Services").
		Where("appointments.id IN ?", ids).
		Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("loading claimed appointments: %w", err)
	}

	byID := make(map[uuid.UUID]models.AppointmentSnapshot, len(appts))
	for i := range appts {
		byID[appts[i].ID] = appts[i].Snapshot()
	}

	claimed := make([]models.ClaimedReminder, 0, len(records))
	for _, rec := range records {
		snap, ok := byID[rec.AppointmentID]
		if !ok {
			// Left in processing; the stale sweep returns it to the queue.
			slog.Warn("claimed reminder has no appointment", "record_id", rec.ID, "appointment_id", rec.AppointmentID)
			continue
		}
		claimed = append(claimed, models.ClaimedReminder{Record: rec, Appointment: snap})
	}
	return claimed, nil
}
