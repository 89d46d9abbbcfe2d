package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/repository"
	"salonpro-reminders/utils"

	"github.com/google/uuid"
)

// memStore is an in-memory ledger and appointment book with the same
// coordination guarantees as the SQL repositories: a unique
// (appointment, type) key and an atomic claim.
type memStore struct {
	mu           sync.Mutex
	loc          *time.Location
	nearWindow   time.Duration
	appointments []models.AppointmentSnapshot
	records      map[uuid.UUID]*models.ReminderRecord
	order        []uuid.UUID

	selectErr error
}

func newMemStore() *memStore {
	return &memStore{
		loc:        time.UTC,
		nearWindow: 90 * time.Minute,
		records:    map[uuid.UUID]*models.ReminderRecord{},
	}
}

func (m *memStore) addAppointment(date, start, status string) models.AppointmentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt := models.AppointmentSnapshot{
		ID:              uuid.New(),
		LocationID:      uuid.New(),
		ClientID:        uuid.New(),
		Date:            date,
		StartTime:       start,
		EndTime:         start,
		Status:          status,
		ClientName:      "Giulia",
		ClientPhone:     "+393331234567",
		AgentName:       "Marco",
		LocationName:    "Centro",
		LocationAddress: "Via Roma 1",
		Services:        []string{"Taglio"},
	}
	m.appointments = append(m.appointments, appt)
	return appt
}

func (m *memStore) hasRecordLocked(appointmentID uuid.UUID, typ models.ReminderType) bool {
	for _, r := range m.records {
		if r.AppointmentID == appointmentID && r.Type == typ {
			return true
		}
	}
	return false
}

func (m *memStore) insert(rec models.ReminderRecord) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasRecordLocked(rec.AppointmentID, rec.Type) {
		return uuid.Nil, repository.ErrAlreadyExists
	}
	rec.ID = uuid.New()
	m.records[rec.ID] = &rec
	m.order = append(m.order, rec.ID)
	return rec.ID, nil
}

func (m *memStore) CreateRecord(ctx context.Context, appointmentID, locationID uuid.UUID, typ models.ReminderType, targetPhone string) (uuid.UUID, error) {
	return m.insert(models.ReminderRecord{
		AppointmentID: appointmentID,
		LocationID:    locationID,
		TargetPhone:   targetPhone,
		Type:          typ,
		Status:        models.StatusScheduled,
	})
}

func (m *memStore) SchedulePrescheduled(ctx context.Context, appointmentID, locationID uuid.UUID, targetPhone string, sendAt time.Time) (uuid.UUID, error) {
	return m.insert(models.ReminderRecord{
		AppointmentID:     appointmentID,
		LocationID:        locationID,
		TargetPhone:       targetPhone,
		Type:              models.ReminderPrescheduled,
		Status:            models.StatusScheduled,
		ScheduledSendTime: &sendAt,
	})
}

func (m *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, u repository.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return repository.ErrTerminal
	}
	at := u.At
	rec.Status = u.Status
	rec.Attempts++
	rec.LastAttemptAt = &at
	switch u.Status {
	case models.StatusSent:
		rec.SentAt = &at
		rec.MessageID = u.MessageID
	case models.StatusFailed, models.StatusPermanentlyFailed:
		rec.ErrorDetails = u.Error
	}
	return nil
}

func (m *memStore) BeginAttempt(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return repository.ErrTerminal
	}
	rec.Status = models.StatusProcessing
	rec.LastAttemptAt = &at
	return nil
}

func (m *memStore) RequeueStale(ctx context.Context, before, now time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var requeued, abandoned int64
	for _, rec := range m.records {
		if rec.Status != models.StatusProcessing && rec.Status != models.StatusFailed {
			continue
		}
		last := rec.CreatedAt
		if rec.ClaimedAt != nil {
			last = *rec.ClaimedAt
		}
		if rec.LastAttemptAt != nil {
			last = *rec.LastAttemptAt
		}
		if !last.Before(before) {
			continue
		}
		if rec.Status == models.StatusProcessing && rec.Attempts == 0 && rec.LastAttemptAt == nil {
			due := now
			rec.Status = models.StatusScheduled
			rec.ScheduledSendTime = &due
			rec.ClaimedAt = nil
			requeued++
			continue
		}
		rec.Status = models.StatusPermanentlyFailed
		abandoned++
	}
	return requeued, abandoned, nil
}

// lossyStore drops the first sentFaults sent writes, as a ledger that loses
// its connection right after the channel accepted a message.
type lossyStore struct {
	*memStore
	sentFaults atomic.Int64
}

func (l *lossyStore) UpdateStatus(ctx context.Context, id uuid.UUID, u repository.StatusUpdate) error {
	if u.Status == models.StatusSent && l.sentFaults.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return l.memStore.UpdateStatus(ctx, id, u)
}

func (m *memStore) unreminded(typ models.ReminderType, match func(models.AppointmentSnapshot) bool) ([]models.AppointmentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	var out []models.AppointmentSnapshot
	for _, a := range m.appointments {
		if a.Status == models.AppointmentApproved && match(a) && !m.hasRecordLocked(a.ID, typ) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) DayBefore(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error) {
	tomorrow := utils.TomorrowKey(now, m.loc)
	return m.unreminded(models.ReminderDayBefore, func(a models.AppointmentSnapshot) bool {
		return a.Date == tomorrow
	})
}

func (m *memStore) NearTime(ctx context.Context, now time.Time) ([]models.AppointmentSnapshot, error) {
	w := utils.NearTimeWindow(now, m.nearWindow, m.loc)
	return m.unreminded(models.ReminderNearTime, func(a models.AppointmentSnapshot) bool {
		return w.Contains(a.Date, a.StartTime)
	})
}

func (m *memStore) ClaimDuePrescheduled(ctx context.Context, now time.Time) ([]models.ClaimedReminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectErr != nil {
		return nil, m.selectErr
	}
	var out []models.ClaimedReminder
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Status != models.StatusScheduled || rec.ScheduledSendTime == nil || rec.ScheduledSendTime.After(now) {
			continue
		}
		appt, ok := m.findLocked(rec.AppointmentID)
		if !ok || appt.Status != models.AppointmentApproved {
			continue
		}
		claimedAt := now
		rec.Status = models.StatusProcessing
		rec.ClaimedAt = &claimedAt
		out = append(out, models.ClaimedReminder{Record: *rec, Appointment: appt})
	}
	return out, nil
}

func (m *memStore) findLocked(id uuid.UUID) (models.AppointmentSnapshot, bool) {
	for _, a := range m.appointments {
		if a.ID == id {
			return a, true
		}
	}
	return models.AppointmentSnapshot{}, false
}

func (m *memStore) FindAppointment(ctx context.Context, id uuid.UUID) (*models.AppointmentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.findLocked(id)
	if !ok {
		return nil, repository.ErrAppointmentNotFound
	}
	return &appt, nil
}

func (m *memStore) record(appointmentID uuid.UUID, typ models.ReminderType) (models.ReminderRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.AppointmentID == appointmentID && r.Type == typ {
			return *r, true
		}
	}
	return models.ReminderRecord{}, false
}

// stubChannel fails the first failures sends and succeeds afterwards. A
// negative failures value fails every send.
type stubChannel struct {
	failures int64
	calls    atomic.Int64

	mu    sync.Mutex
	sent  []MessagePayload
	kinds []string
}

func (c *stubChannel) Send(ctx context.Context, kind string, p MessagePayload) DeliveryResult {
	n := c.calls.Add(1)
	c.mu.Lock()
	c.kinds = append(c.kinds, kind)
	c.mu.Unlock()
	if c.failures < 0 || n <= c.failures {
		return DeliveryResult{Err: errors.New("provider unavailable")}
	}
	c.mu.Lock()
	c.sent = append(c.sent, p)
	c.mu.Unlock()
	return DeliveryResult{Success: true, MessageID: "SM" + uuid.NewString()[:8]}
}

type panicDeliverer struct{}

func (panicDeliverer) Dispatch(ctx context.Context, typ models.ReminderType, appt models.AppointmentSnapshot, to string) DeliveryResult {
	panic("template exploded")
}

type memFeed struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (f *memFeed) AddSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}
