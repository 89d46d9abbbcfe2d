package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"salonpro-reminders/models"
	"salonpro-reminders/utils"

	"github.com/google/uuid"
)

var ErrInvalidPhone = errors.New("invalid target phone")

// MessagePayload is the channel-agnostic content of one reminder.
type MessagePayload struct {
	To              string
	ClientName      string
	ClientPhone     string
	AgentName       string
	AgentPhone      string
	LocationName    string
	LocationAddress string
	Date            string
	TimeRange       string
	Services        []string
	LoyaltySummary  string

	// Body is the rendered plain-text message.
	Body string
}

// DeliveryResult is what a channel reports for one send. Permanent marks a
// failure that retrying cannot fix.
type DeliveryResult struct {
	Success   bool
	MessageID string
	Err       error
	Permanent bool
}

// NotificationChannel delivers a payload with the wording for kind
// (models.TemplateDayBefore or models.TemplateUpcoming).
type NotificationChannel interface {
	Send(ctx context.Context, kind string, p MessagePayload) DeliveryResult
}

type TemplateSource interface {
	ActiveTemplate(ctx context.Context, locationID uuid.UUID, kind string) (string, bool, error)
}

type LoyaltySource interface {
	LoyaltyPoints(ctx context.Context, clientID uuid.UUID) (int, error)
}

// Dispatcher turns an appointment into a message and hands it to the
// channel. It never touches the ledger.
type Dispatcher struct {
	channel   NotificationChannel
	templates TemplateSource
	loyalty   LoyaltySource
}

// NewDispatcher builds a dispatcher. templates and loyalty are optional.
func NewDispatcher(channel NotificationChannel, templates TemplateSource, loyalty LoyaltySource) *Dispatcher {
	return &Dispatcher{channel: channel, templates: templates, loyalty: loyalty}
}

func (d *Dispatcher) Dispatch(ctx context.Context, typ models.ReminderType, appt models.AppointmentSnapshot, to string) DeliveryResult {
	if !utils.ValidatePhone(to) {
		return DeliveryResult{Err: fmt.Errorf("%w: %q", ErrInvalidPhone, to), Permanent: true}
	}

	p := BuildPayload(appt, utils.CleanPhone(to))
	if d.loyalty != nil {
		points, err := d.loyalty.LoyaltyPoints(ctx, appt.ClientID)
		if err != nil {
			slog.Warn("loyalty lookup failed, sending without summary", "client_id", appt.ClientID, "error", err)
		} else if points > 0 {
			p.LoyaltySummary = fmt.Sprintf("You have %d loyalty points to redeem.", points)
		}
	}

	kind := typ.TemplateKind()
	p.Body = RenderMessage(d.template(ctx, appt.LocationID, kind), p)
	return d.channel.Send(ctx, kind, p)
}

// template returns the location's own wording for kind, or the built-in one.
func (d *Dispatcher) template(ctx context.Context, locationID uuid.UUID, kind string) string {
	if d.templates != nil {
		msg, ok, err := d.templates.ActiveTemplate(ctx, locationID, kind)
		if err != nil {
			slog.Warn("template lookup failed, using default", "location_id", locationID, "kind", kind, "error", err)
		} else if ok {
			return msg
		}
	}
	return DefaultTemplate(kind)
}

func BuildPayload(appt models.AppointmentSnapshot, to string) MessagePayload {
	return MessagePayload{
		To:              to,
		ClientName:      appt.ClientName,
		ClientPhone:     appt.ClientPhone,
		AgentName:       appt.AgentName,
		AgentPhone:      appt.AgentPhone,
		LocationName:    appt.LocationName,
		LocationAddress: appt.LocationAddress,
		Date:            displayDate(appt.Date),
		TimeRange:       appt.StartTime + " - " + appt.EndTime,
		Services:        appt.Services,
	}
}

func displayDate(date string) string {
	d, err := time.Parse(utils.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format("Mon 02/01/2006")
}

const (
	dayBeforeTemplate = "Hi [ClientName], this is a reminder of your appointment tomorrow, [Date] at [Time], " +
		"with [AgentName] at [LocationName] ([LocationAddress]). Services: [Services]."
	upcomingTemplate = "Hi [ClientName], your appointment at [LocationName] is coming up today at [Time] " +
		"with [AgentName]. Services: [Services]. See you soon!"
)

func DefaultTemplate(kind string) string {
	if kind == models.TemplateDayBefore {
		return dayBeforeTemplate
	}
	return upcomingTemplate
}

// RenderMessage replaces the [Placeholder] markers in template. A loyalty
// summary is appended when the template has no slot for it.
func RenderMessage(template string, p MessagePayload) string {
	message := strings.NewReplacer(
		"[ClientName]", p.ClientName,
		"[AgentName]", p.AgentName,
		"[AgentPhone]", p.AgentPhone,
		"[LocationName]", p.LocationName,
		"[LocationAddress]", p.LocationAddress,
		"[Date]", p.Date,
		"[Time]", p.TimeRange,
		"[Services]", strings.Join(p.Services, ", "),
		"[LoyaltySummary]", p.LoyaltySummary,
	).Replace(template)

	if p.LoyaltySummary != "" && !strings.Contains(template, "[LoyaltySummary]") {
		message += "\n" + p.LoyaltySummary
	}
	return message
}
