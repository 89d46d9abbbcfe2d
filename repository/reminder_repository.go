package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonpro-reminders/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusUpdate describes one delivery outcome written to the ledger.
type StatusUpdate struct {
	Status    models.ReminderStatus
	MessageID string
	Error     string
	At        time.Time
}

// ReminderRepository is the gorm-backed reminder ledger.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// CreateRecord inserts a scheduled record for (appointmentID, typ). When the
// pair is already present it returns ErrAlreadyExists and writes nothing.
func (r *ReminderRepository) CreateRecord(ctx context.Context, appointmentID, locationID uuid.UUID, typ models.ReminderType, targetPhone string) (uuid.UUID, error) {
	return r.insert(ctx, &models.ReminderRecord{
		AppointmentID: appointmentID,
		LocationID:    locationID,
		TargetPhone:   targetPhone,
		Type:          typ,
		Status:        models.StatusScheduled,
	})
}

// SchedulePrescheduled inserts a prescheduled record that becomes due at
// sendAt. Same duplicate contract as CreateRecord.
func (r *ReminderRepository) SchedulePrescheduled(ctx context.Context, appointmentID, locationID uuid.UUID, targetPhone string, sendAt time.Time) (uuid.UUID, error) {
	at := sendAt.UTC()
	return r.insert(ctx, &models.ReminderRecord{
		AppointmentID:     appointmentID,
		LocationID:        locationID,
		TargetPhone:       targetPhone,
		Type:              models.ReminderPrescheduled,
		Status:            models.StatusScheduled,
		ScheduledSendTime: &at,
	})
}

func (r *ReminderRepository) insert(ctx context.Context, rec *models.ReminderRecord) (uuid.UUID, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "appointment_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return uuid.Nil, fmt.Errorf("inserting %s reminder for appointment %s: %w", rec.Type, rec.AppointmentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, ErrAlreadyExists
	}
	return rec.ID, nil
}

// UpdateStatus records one delivery attempt: attempts is incremented in the
// same statement that writes the new status. Terminal records are left
// untouched and ErrTerminal is returned.
func (r *ReminderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, u StatusUpdate) error {
	at := u.At.UTC()
	updates := map[string]interface{}{
		"status":          u.Status,
		"attempts":        gorm.Expr("attempts + 1"),
		"last_attempt_at": at,
		"updated_at":      at,
	}
	switch u.Status {
	case models.StatusSent:
		updates["sent_at"] = at
		if u.MessageID != "" {
			updates["message_id"] = u.MessageID
		}
	case models.StatusFailed, models.StatusPermanentlyFailed:
		updates["error_details"] = u.Error
	}

	res := r.db.WithContext(ctx).
		Model(&models.ReminderRecord{}).
		Where("id = ? AND status NOT IN ?", id, []models.ReminderStatus{models.StatusSent, models.StatusPermanentlyFailed}).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("updating reminder %s to %s: %w", id, u.Status, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrTerminal
}

func (r *ReminderRepository) Get(ctx context.Context, id uuid.UUID) (*models.ReminderRecord, error) {
	var rec models.ReminderRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListByAppointment returns every ledger row for an appointment.
func (r *ReminderRepository) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.ReminderRecord, error) {
	var recs []models.ReminderRecord
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at").
		Find(&recs).Error
	return recs, err
}

// BeginAttempt marks rec as in flight just before the channel is called:
// status processing, last_attempt_at set. A row that never got this mark
// provably never reached the channel.
func (r *ReminderRepository) BeginAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	res := r.db.WithContext(ctx).
		Model(&models.ReminderRecord{}).
		Where("id = ? AND status NOT IN ?", id, []models.ReminderStatus{models.StatusSent, models.StatusPermanentlyFailed}).
		Updates(map[string]interface{}{
			"status":          models.StatusProcessing,
			"last_attempt_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return fmt.Errorf("starting attempt on reminder %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrTerminal
}

// RequeueStale recovers records abandoned by a crashed run, looking only at
// rows in processing or failed with no activity since before. A claimed row
// that never began an attempt goes back to scheduled, due at now. Every
// other stale row may already have reached the client, so it becomes
// permanently_failed and is never sent again.
func (r *ReminderRepository) RequeueStale(ctx context.Context, before, now time.Time) (requeued, abandoned int64, err error) {
	before, now = before.UTC(), now.UTC()
	stale := []models.ReminderStatus{models.StatusProcessing, models.StatusFailed}
	lastActivity := "COALESCE(last_attempt_at, claimed_at, created_at) < ?"
	neverAttempted := "status = ? AND attempts = 0 AND last_attempt_at IS NULL"

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ReminderRecord{}).
			Where(neverAttempted, models.StatusProcessing).
			Where(lastActivity, before).
			Updates(map[string]interface{}{
				"status":              models.StatusScheduled,
				"scheduled_send_time": now,
				"claimed_at":          nil,
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		requeued = res.RowsAffected

		res = tx.Model(&models.ReminderRecord{}).
			Where("status IN ?", stale).
			Where(lastActivity, before).
			Updates(map[string]interface{}{
				"status":        models.StatusPermanentlyFailed,
				"error_details": "abandoned mid-delivery, outcome unknown",
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		abandoned = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("requeueing stale reminders: %w", err)
	}
	return requeued, abandoned, nil
}

// StatusCount is one (type, status) bucket of the ledger.
type StatusCount struct {
	Type   models.ReminderType   `json:"type"`
	Status models.ReminderStatus `json:"status"`
	Count  int64                 `json:"count"`
}

// CountByStatus groups the records created since the given time by type and
// status.
func (r *ReminderRepository) CountByStatus(ctx context.Context, since time.Time) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&models.ReminderRecord{}).
		Select("type, status, COUNT(*) AS count").
		Where("created_at >= ?", since.UTC()).
		Group("type, status").
		Order("type, status").
		Scan(&counts).Error
	return counts, err
}

// UpcomingScheduled returns scheduled prescheduled records due after now,
// soonest first.
func (r *ReminderRepository) UpcomingScheduled(ctx context.Context, now time.Time, limit int) ([]models.ReminderRecord, error) {
	var recs []models.ReminderRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_send_time > ?", models.StatusScheduled, now.UTC()).
		Order("scheduled_send_time").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
