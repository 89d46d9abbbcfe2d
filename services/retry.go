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

// ErrAttemptsExhausted is returned for a record that reached the retry
// controller with no attempts left.
var ErrAttemptsExhausted = errors.New("reminder has no delivery attempts left")

// ErrSentNotRecorded means the channel accepted the message but the ledger
// write failed. The record must not be marked failed or sent again.
var ErrSentNotRecorded = errors.New("reminder sent but not recorded")

// sentWriteTries bounds the ledger writes made for one accepted message.
const sentWriteTries = 3

type StatusWriter interface {
	BeginAttempt(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, u repository.StatusUpdate) error
}

type Deliverer interface {
	Dispatch(ctx context.Context, typ models.ReminderType, appt models.AppointmentSnapshot, to string) DeliveryResult
}

// Outcome is where a record ended up after Deliver.
type Outcome struct {
	Status    models.ReminderStatus
	Attempts  int
	MessageID string
	LastErr   error
}

// RetryController delivers one reminder with bounded exponential backoff.
// Each attempt is written to the ledger before the next one starts, so the
// attempts counter is accurate even if the process dies mid-sequence.
type RetryController struct {
	store       StatusWriter
	deliverer   Deliverer
	maxAttempts int
	backoffBase time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewRetryController(store StatusWriter, deliverer Deliverer, maxAttempts int, backoffBase time.Duration, clock clockwork.Clock, logger *slog.Logger) *RetryController {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryController{
		store:       store,
		deliverer:   deliverer,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		clock:       clock,
		logger:      logger,
	}
}

// Backoff is the wait after failed attempt n: 2^n times the base.
func (r *RetryController) Backoff(attempt int) time.Duration {
	return r.backoffBase * time.Duration(1<<uint(attempt))
}

// Deliver runs the attempt loop for rec, continuing from rec.Attempts. The
// returned error is non-nil only for ledger faults and cancellation; a
// delivery that never succeeds ends as permanently_failed with a nil error.
// An accepted message whose sent write keeps failing is reported as
// StatusSent with ErrSentNotRecorded.
func (r *RetryController) Deliver(ctx context.Context, rec models.ReminderRecord, appt models.AppointmentSnapshot) (Outcome, error) {
	if rec.Attempts >= r.maxAttempts {
		return Outcome{Status: models.StatusPermanentlyFailed, Attempts: rec.Attempts}, ErrAttemptsExhausted
	}

	log := r.logger.With("record_id", rec.ID, "appointment_id", rec.AppointmentID, "type", rec.Type)

	for attempt := rec.Attempts + 1; ; attempt++ {
		if err := r.store.BeginAttempt(ctx, rec.ID, r.clock.Now()); err != nil {
			return Outcome{Status: rec.Status, Attempts: attempt - 1}, err
		}
		res := r.deliverer.Dispatch(ctx, rec.Type, appt, rec.TargetPhone)
		now := r.clock.Now()

		if res.Success {
			out := Outcome{Status: models.StatusSent, Attempts: attempt, MessageID: res.MessageID}
			if err := r.recordSent(ctx, rec.ID, res.MessageID, now); err != nil {
				log.Error("reminder sent but not recorded", "attempt", attempt, "message_id", res.MessageID, "error", err)
				return out, fmt.Errorf("%w: %v", ErrSentNotRecorded, err)
			}
			log.Info("reminder sent", "attempt", attempt, "message_id", res.MessageID)
			return out, nil
		}

		status := models.StatusFailed
		final := attempt >= r.maxAttempts || res.Permanent
		if final {
			status = models.StatusPermanentlyFailed
		}
		if err := r.store.UpdateStatus(ctx, rec.ID, repository.StatusUpdate{
			Status: status,
			Error:  errorText(res.Err),
			At:     now,
		}); err != nil {
			return Outcome{Status: status, Attempts: attempt, LastErr: res.Err}, err
		}

		if final {
			log.Error("reminder permanently failed", "attempt", attempt, "permanent", res.Permanent, "error", res.Err)
			return Outcome{Status: status, Attempts: attempt, LastErr: res.Err}, nil
		}

		delay := r.Backoff(attempt)
		log.Warn("reminder delivery failed, retrying", "attempt", attempt, "retry_in", delay, "error", res.Err)
		if err := sleep(ctx, r.clock, delay); err != nil {
			return Outcome{Status: status, Attempts: attempt, LastErr: res.Err}, err
		}
	}
}

// recordSent writes the sent outcome, retrying transient ledger faults. It
// ignores cancellation: the message is already out.
func (r *RetryController) recordSent(ctx context.Context, id uuid.UUID, messageID string, at time.Time) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	for try := 0; try < sentWriteTries; try++ {
		err = r.store.UpdateStatus(ctx, id, repository.StatusUpdate{
			Status:    models.StatusSent,
			MessageID: messageID,
			At:        at,
		})
		if err == nil || errors.Is(err, repository.ErrTerminal) || errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}
	return err
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

func errorText(err error) string {
	if err == nil {
		return "delivery failed"
	}
	return err.Error()
}
