// services/reminder_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var ErrNotEligible = errors.New("appointment is not approved")

// Policy holds the fixed reminder rules. Only the delays are expected to
// change outside tests.
type Policy struct {
	QuietStartHour  int
	QuietEndHour    int
	NearTimeWindow  time.Duration
	MaxAttempts     int
	BackoffBase     time.Duration
	ItemDelay       time.Duration
	ClaimStaleAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		QuietStartHour:  6,
		QuietEndHour:    23,
		NearTimeWindow:  90 * time.Minute,
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		ItemDelay:       time.Second,
		ClaimStaleAfter: 30 * time.Minute,
	}
}

type RecordStore interface {
	StatusWriter
	CreateRecord(ctx context.Context, appointmentID, locationID uuid.UUID, typ models.ReminderType, targetPhone string) (uuid.UUID, error)
	SchedulePrescheduled(ctx context.Context, appointmentID, locationID uuid.UUID, targetPhone string, sendAt time.Time) (uuid.UUID, error)
	RequeueStale(ctx context.Context, before, now time.Time) (requeued, abandoned int64, err error)
}

type Selector interface {
	DayBefore(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error)
	NearTime(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error)
	ClaimDuePrescheduled(ctx context.Context, now time.Time) ([]models.ClaimedReminder, error)
}

type AppointmentFinder interface {
	FindAppointment(ctx context.Context, id uuid.UUID) (*models.AppointmentSnapshot, error)
}

// SentFeed is told about every reminder that reaches sent.
type SentFeed interface {
	AddSent(ctx context.Context, recordID uuid.UUID, sentAt time.Time) error
}

type Counts struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (c Counts) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("processed", c.Processed),
		slog.Int("sent", c.Sent),
		slog.Int("failed", c.Failed),
		slog.Int("skipped", c.Skipped),
	)
}

type CycleReport struct {
	DayBefore    Counts `json:"dayBefore"`
	NearTime     Counts `json:"nearTime"`
	Prescheduled Counts `json:"prescheduled"`
}

// Deps are the collaborators of a ReminderService. Appointments, Feed, Clock
// and Logger are optional.
type Deps struct {
	Records      RecordStore
	Selector     Selector
	Appointments AppointmentFinder
	Deliverer    Deliverer
	Feed         SentFeed
	Clock        clockwork.Clock
	Location     *time.Location
	Logger       *slog.Logger
}

// ReminderService runs reminder cycles. Several instances, in one process
// or many, may run cycles at the same time: the ledger's unique key and the
// prescheduled claim keep each reminder to a single delivery.
type ReminderService struct {
	records      RecordStore
	selector     Selector
	appointments AppointmentFinder
	retry        *RetryController
	feed         SentFeed
	gate         QuietHours
	policy       Policy
	clock        clockwork.Clock
	logger       *slog.Logger
}

func NewReminderService(d Deps, policy Policy) *ReminderService {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	return &ReminderService{
		records:      d.Records,
		selector:     d.Selector,
		appointments: d.Appointments,
		retry:        NewRetryController(d.Records, d.Deliverer, policy.MaxAttempts, policy.BackoffBase, d.Clock, d.Logger),
		feed:         d.Feed,
		gate:         QuietHours{StartHour: policy.QuietStartHour, EndHour: policy.QuietEndHour, Location: d.Location},
		policy:       policy,
		clock:        d.Clock,
		logger:       d.Logger,
	}
}

// RunCycle runs the prescheduled, day-before and near-time passes in that
// order. Delivery failures are absorbed into the counts; an error means a
// pass could not select its candidates and the cycle stopped there.
func (s *ReminderService) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	var report CycleReport
	var err error

	if report.Prescheduled, err = s.runPrescheduledPass(ctx, now); err != nil {
		return report, fmt.Errorf("prescheduled pass: %w", err)
	}
	if report.DayBefore, err = s.runAppointmentPass(ctx, now, models.ReminderDayBefore, s.selector.DayBefore); err != nil {
		return report, fmt.Errorf("day_before pass: %w", err)
	}
	if report.NearTime, err = s.runAppointmentPass(ctx, now, models.ReminderNearTime, s.selector.NearTime); err != nil {
		return report, fmt.Errorf("near_time pass: %w", err)
	}

	s.logger.Info("reminder cycle completed",
		"prescheduled", report.Prescheduled,
		"day_before", report.DayBefore,
		"near_time", report.NearTime)
	return report, nil
}

func (s *ReminderService) runPrescheduledPass(ctx context.Context, now time.Time) (Counts, error) {
	var counts Counts
	if !s.gate.IsWithinAllowedWindow(now) {
		s.logger.Info("quiet hours, skipping pass", "type", models.ReminderPrescheduled, "now", now)
		counts.Skipped = 1
		return counts, nil
	}

	requeued, abandoned, err := s.records.RequeueStale(ctx, now.Add(-s.policy.ClaimStaleAfter), now)
	if err != nil {
		return counts, err
	}
	if requeued > 0 || abandoned > 0 {
		s.logger.Warn("recovered abandoned reminders", "requeued", requeued, "abandoned", abandoned)
	}

	claimed, err := s.selector.ClaimDuePrescheduled(ctx, now)
	if err != nil {
		return counts, err
	}

	for i, c := range claimed {
		if i > 0 {
			if err := sleep(ctx, s.clock, s.policy.ItemDelay); err != nil {
				return counts, err
			}
		}
		counts.Processed++
		s.deliver(ctx, c.Record, c.Appointment, &counts)
	}

	s.logger.Info("pass completed", "type", models.ReminderPrescheduled, "counts", counts)
	return counts, nil
}

func (s *ReminderService) runAppointmentPass(ctx context.Context, now time.Time, typ models.ReminderType, selectFn func(context.Context, time.Time) ([]models.AppointmentSnapshot, error)) (Counts, error) {
	var counts Counts
	if !s.gate.IsWithinAllowedWindow(now) {
		s.logger.Info("quiet hours, skipping pass", "type", typ, "now", now)
		counts.Skipped = 1
		return counts, nil
	}

	candidates, err := selectFn(ctx, now)
	if err != nil {
		return counts, err
	}

	delivered := false
	for _, appt := range candidates {
		id, err := s.records.CreateRecord(ctx, appt.ID, appt.LocationID, typ, appt.ClientPhone)
		if errors.Is(err, repository.ErrAlreadyExists) {
			s.logger.Debug("reminder already scheduled", "appointment_id", appt.ID, "type", typ)
			counts.Skipped++
			continue
		}
		if err != nil {
			s.logger.Error("scheduling reminder failed", "appointment_id", appt.ID, "type", typ, "error", err)
			counts.Failed++
			continue
		}

		if delivered {
			if err := sleep(ctx, s.clock, s.policy.ItemDelay); err != nil {
				return counts, err
			}
		}
		delivered = true

		counts.Processed++
		rec := models.ReminderRecord{
			ID:            id,
			AppointmentID: appt.ID,
			LocationID:    appt.LocationID,
			TargetPhone:   appt.ClientPhone,
			Type:          typ,
			Status:        models.StatusScheduled,
		}
		s.deliver(ctx, rec, appt, &counts)
	}

	s.logger.Info("pass completed", "type", typ, "candidates", len(candidates), "counts", counts)
	return counts, nil
}

// deliver runs the retry controller for one item and folds the result into
// counts. Any fault, including a panic, stays with this item. A message the
// channel accepted is never marked failed, even when the ledger write for it
// was lost; the stale sweep retires that row without resending it.
func (s *ReminderService) deliver(ctx context.Context, rec models.ReminderRecord, appt models.AppointmentSnapshot, counts *Counts) {
	outcome, err := s.safeDeliver(ctx, rec, appt)
	if outcome.Status == models.StatusSent {
		counts.Sent++
		s.publishSent(rec.ID)
		return
	}

	counts.Failed++
	if err != nil {
		s.logger.Error("reminder delivery aborted", "record_id", rec.ID, "appointment_id", rec.AppointmentID, "type", rec.Type, "error", err)
		if !errors.Is(err, ErrAttemptsExhausted) {
			s.markFailed(ctx, rec.ID, err)
		}
	}
}

func (s *ReminderService) safeDeliver(ctx context.Context, rec models.ReminderRecord, appt models.AppointmentSnapshot) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while delivering reminder: %v", r)
		}
	}()
	return s.retry.Deliver(ctx, rec, appt)
}

func (s *ReminderService) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	err := s.records.UpdateStatus(context.WithoutCancel(ctx), id, repository.StatusUpdate{
		Status: models.StatusFailed,
		Error:  cause.Error(),
		At:     s.clock.Now(),
	})
	if err != nil && !errors.Is(err, repository.ErrTerminal) {
		s.logger.Error("recording reminder failure", "record_id", id, "error", err)
	}
}

func (s *ReminderService) publishSent(id uuid.UUID) {
	if s.feed == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.feed.AddSent(ctx, id, s.clock.Now()); err != nil {
		s.logger.Warn("failed to add sent reminder to feed", "record_id", id, "error", err)
	}
}

// ScheduleReminder books a prescheduled reminder for an approved
// appointment. A second call for the same appointment returns
// repository.ErrAlreadyExists.
func (s *ReminderService) ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, sendAt time.Time) (uuid.UUID, error) {
	if s.appointments == nil {
		return uuid.Nil, errors.New("appointment lookup not configured")
	}
	appt, err := s.appointments.FindAppointment(ctx, appointmentID)
	if err != nil {
		return uuid.Nil, err
	}
	if appt.Status != models.AppointmentApproved {
		return uuid.Nil, fmt.Errorf("%w: status %s", ErrNotEligible, appt.Status)
	}

	id, err := s.records.SchedulePrescheduled(ctx, appt.ID, appt.LocationID, appt.ClientPhone, sendAt)
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("reminder scheduled", "record_id", id, "appointment_id", appt.ID, "send_at", sendAt)
	return id, nil
}
