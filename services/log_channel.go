package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogChannel is a dry-run channel: it logs the rendered message and reports
// success with a synthetic message id.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(ctx context.Context, kind string, p MessagePayload) DeliveryResult {
	id := "dry-" + uuid.NewString()
	c.logger.Info("dry-run reminder", "kind", kind, "to", p.To, "message_id", id, "body", p.Body)
	return DeliveryResult{Success: true, MessageID: id}
}
