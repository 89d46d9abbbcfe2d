package controllers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salonpro-reminders/controllers"
	"salonpro-reminders/models"
	"salonpro-reminders/repository"
	"salonpro-reminders/routes"
	"salonpro-reminders/services"
	"salonpro-reminders/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

type fakeReminders struct {
	ranAt       time.Time
	report      services.CycleReport
	runErr      error
	scheduled   uuid.UUID
	scheduleErr error
}

func (f *fakeReminders) RunCycle(ctx context.Context, now time.Time) (services.CycleReport, error) {
	f.ranAt = now
	return f.report, f.runErr
}

func (f *fakeReminders) ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, sendAt time.Time) (uuid.UUID, error) {
	if f.scheduleErr != nil {
		return uuid.Nil, f.scheduleErr
	}
	f.scheduled = appointmentID
	return uuid.New(), nil
}

type fakeRecords map[uuid.UUID]models.ReminderRecord

func (f fakeRecords) Get(ctx context.Context, id uuid.UUID) (*models.ReminderRecord, error) {
	rec, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (f fakeRecords) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.ReminderRecord, error) {
	var out []models.ReminderRecord
	for _, rec := range f {
		if rec.AppointmentID == appointmentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeTemplates struct{ known uuid.UUID }

func (f fakeTemplates) SaveTemplate(ctx context.Context, locationID uuid.UUID, kind, message string, active bool) (*models.ReminderTemplate, error) {
	if locationID != f.known {
		return nil, repository.ErrLocationNotFound
	}
	return &models.ReminderTemplate{ID: uuid.New(), LocationID: locationID, Kind: kind, Message: message, IsActive: active}, nil
}

type fakeSent []uuid.UUID

func (f fakeSent) ListSent(ctx context.Context, page, pageSize int) ([]uuid.UUID, int64, error) {
	return f, int64(len(f)), nil
}

func setup(t *testing.T) (*gin.Engine, *controllers.ReminderController, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rc := &controllers.ReminderController{
		Reminders: &fakeReminders{},
		Records:   fakeRecords{},
		Templates: fakeTemplates{},
		Clock:     clockwork.NewFakeClockAt(testNow),
	}
	token, err := utils.GenerateToken("ops", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return routes.SetupRouter(rc, testSecret), rc, token
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOpsRequireToken(t *testing.T) {
	r, _, _ := setup(t)

	if w := do(r, http.MethodPost, "/ops/reminders/run", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d", w.Code)
	}
	forged, _ := utils.GenerateToken("ops", "other-secret", time.Hour)
	if w := do(r, http.MethodPost, "/ops/reminders/run", forged, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status %d", w.Code)
	}

	disabled := routes.SetupRouter(&controllers.ReminderController{}, "")
	if w := do(disabled, http.MethodPost, "/ops/reminders/run", forged, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no secret configured: status %d", w.Code)
	}
}

func TestRunCycleEndpoint(t *testing.T) {
	r, rc, token := setup(t)
	fake := rc.Reminders.(*fakeReminders)
	fake.report = services.CycleReport{DayBefore: services.Counts{Processed: 2, Sent: 2}}

	w := do(r, http.MethodPost, "/ops/reminders/run", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var report services.CycleReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.DayBefore.Sent != 2 {
		t.Errorf("report = %+v", report)
	}
	if !fake.ranAt.Equal(testNow) {
		t.Errorf("cycle ran at %v, want clock time", fake.ranAt)
	}

	fake.runErr = errors.New("db down")
	if w := do(r, http.MethodPost, "/ops/reminders/run", token, ""); w.Code != http.StatusInternalServerError {
		t.Errorf("failing cycle: status %d", w.Code)
	}
}

func TestScheduleReminderEndpoint(t *testing.T) {
	r, rc, token := setup(t)
	fake := rc.Reminders.(*fakeReminders)
	apptID := uuid.New()
	body := `{"appointmentId":"` + apptID.String() + `","sendAt":"2026-10-18T08:00:00Z"}`

	w := do(r, http.MethodPost, "/ops/reminders/scheduled", token, body)
	if w.Code != http.StatusCreated || fake.scheduled != apptID {
		t.Fatalf("status %d, scheduled %s: %s", w.Code, fake.scheduled, w.Body)
	}

	tests := []struct {
		err  error
		body string
		want int
	}{
		{repository.ErrAlreadyExists, body, http.StatusConflict},
		{repository.ErrAppointmentNotFound, body, http.StatusNotFound},
		{services.ErrNotEligible, body, http.StatusUnprocessableEntity},
		{errors.New("boom"), body, http.StatusInternalServerError},
		{nil, `{"appointmentId":"nope","sendAt":"2026-10-18T08:00:00Z"}`, http.StatusBadRequest},
		{nil, `{"appointmentId":"` + apptID.String() + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		fake.scheduleErr = tt.err
		if w := do(r, http.MethodPost, "/ops/reminders/scheduled", token, tt.body); w.Code != tt.want {
			t.Errorf("err %v body %s: status %d, want %d", tt.err, tt.body, w.Code, tt.want)
		}
	}
}

func TestGetReminderEndpoints(t *testing.T) {
	r, rc, token := setup(t)
	rec := models.ReminderRecord{ID: uuid.New(), AppointmentID: uuid.New(), Type: models.ReminderDayBefore, Status: models.StatusSent, Attempts: 1}
	rc.Records = fakeRecords{rec.ID: rec}

	w := do(r, http.MethodGet, "/ops/reminders/"+rec.ID.String(), token, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), string(models.StatusSent)) {
		t.Errorf("get: status %d: %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodGet, "/ops/reminders/"+uuid.NewString(), token, ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/ops/reminders/xyz", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d", w.Code)
	}

	w = do(r, http.MethodGet, "/ops/appointments/"+rec.AppointmentID.String()+"/reminders", token, "")
	var recs []models.ReminderRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil || len(recs) != 1 {
		t.Errorf("appointment reminders = %s (%v)", w.Body, err)
	}
}

func TestSentRemindersEndpoint(t *testing.T) {
	r, rc, token := setup(t)

	if w := do(r, http.MethodGet, "/ops/reminders/sent", token, ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without feed: status %d", w.Code)
	}

	id := uuid.New()
	rc.Sent = fakeSent{id}
	w := do(r, http.MethodGet, "/ops/reminders/sent?page=1&pageSize=10", token, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), id.String()) {
		t.Errorf("status %d: %s", w.Code, w.Body)
	}
	if w := do(r, http.MethodGet, "/ops/reminders/sent?pageSize=1000", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("oversized page: status %d", w.Code)
	}
}

func TestSaveTemplateEndpoint(t *testing.T) {
	r, rc, token := setup(t)
	locationID := uuid.New()
	rc.Templates = fakeTemplates{known: locationID}

	w := do(r, http.MethodPut, "/ops/locations/"+locationID.String()+"/templates/day_before", token, `{"message":"Ciao [ClientName]"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var tpl models.ReminderTemplate
	if err := json.Unmarshal(w.Body.Bytes(), &tpl); err != nil || !tpl.IsActive || tpl.Kind != models.TemplateDayBefore {
		t.Errorf("template = %+v (%v)", tpl, err)
	}

	if w := do(r, http.MethodPut, "/ops/locations/"+locationID.String()+"/templates/birthday", token, `{"message":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: status %d", w.Code)
	}
	if w := do(r, http.MethodPut, "/ops/locations/"+uuid.NewString()+"/templates/upcoming", token, `{"message":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown location: status %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r, rc, _ := setup(t)
	rc.Checks = map[string]func(context.Context) error{
		"database": func(context.Context) error { return nil },
	}
	if w := do(r, http.MethodGet, "/ops/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("healthy: status %d", w.Code)
	}

	rc.Checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w := do(r, http.MethodGet, "/ops/health", "", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Errorf("unhealthy: status %d: %s", w.Code, w.Body)
	}
}
