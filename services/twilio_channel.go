package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"salonpro-reminders/config"
	"salonpro-reminders/models"
	"salonpro-reminders/utils"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioChannel sends reminders over WhatsApp when the target number is in
// E.164 form and over SMS otherwise.
type TwilioChannel struct {
	api          messageCreator
	whatsAppFrom string
	smsFrom      string
	contentSIDs  map[string]string
}

func NewTwilioChannel(cfg config.TwilioConfig) *TwilioChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioChannel(client.Api, cfg)
}

func newTwilioChannel(api messageCreator, cfg config.TwilioConfig) *TwilioChannel {
	return &TwilioChannel{
		api:          api,
		whatsAppFrom: cfg.WhatsAppNumber,
		smsFrom:      cfg.PhoneNumber,
		contentSIDs: map[string]string{
			models.TemplateDayBefore: cfg.DayBeforeContentSID,
			models.TemplateUpcoming:  cfg.UpcomingContentSID,
		},
	}
}

func (c *TwilioChannel) Send(ctx context.Context, kind string, p MessagePayload) DeliveryResult {
	if err := ctx.Err(); err != nil {
		return DeliveryResult{Err: err}
	}

	params := &twilioApi.CreateMessageParams{}

	// Use WhatsApp if phone is in E.164 format and a sender is configured
	whatsApp := c.whatsAppFrom != "" && utils.IsE164(p.To)
	if whatsApp {
		params.SetTo("whatsapp:" + p.To)
		params.SetFrom("whatsapp:" + c.whatsAppFrom)
	} else {
		if c.smsFrom == "" {
			return DeliveryResult{Err: errors.New("no SMS sender configured"), Permanent: true}
		}
		params.SetTo(p.To)
		params.SetFrom(c.smsFrom)
	}

	if sid := c.contentSIDs[kind]; whatsApp && sid != "" {
		vars, err := json.Marshal(contentVariables(p))
		if err != nil {
			return DeliveryResult{Err: fmt.Errorf("encoding content variables: %w", err), Permanent: true}
		}
		params.SetContentSid(sid)
		params.SetContentVariables(string(vars))
	} else {
		params.SetBody(p.Body)
	}

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return DeliveryResult{Err: err}
	}
	if resp.Status != nil && (*resp.Status == "failed" || *resp.Status == "undelivered") {
		return DeliveryResult{Err: fmt.Errorf("twilio reported status %s", *resp.Status)}
	}

	var sid string
	if resp.Sid != nil {
		sid = *resp.Sid
	} else {
		slog.Warn("message accepted but no SID returned", "to", p.To)
	}
	return DeliveryResult{Success: true, MessageID: sid}
}

// contentVariables fills the numbered slots of the approved WhatsApp
// templates.
func contentVariables(p MessagePayload) map[string]string {
	return map[string]string{
		"1": p.ClientName,
		"2": p.Date,
		"3": p.TimeRange,
		"4": p.LocationName,
		"5": p.AgentName,
		"6": strings.Join(p.Services, ", "),
		"7": p.LoyaltySummary,
	}
}
