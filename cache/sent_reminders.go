package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sentRemindersKey = "sent_reminders"

// SentReminders keeps the ids of delivered reminders in a redis sorted set
// scored by send time, newest first when listed.
type SentReminders struct {
	client *redis.Client
	key    string
}

func NewSentReminders(client *redis.Client) *SentReminders {
	return &SentReminders{client: client, key: sentRemindersKey}
}

func (s *SentReminders) AddSent(ctx context.Context, recordID uuid.UUID, sentAt time.Time) error {
	return s.client.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(sentAt.Unix()),
		Member: recordID.String(),
	}).Err()
}

// ListSent returns one page of sent reminder ids and the total count.
// Pages start at 1.
func (s *SentReminders) ListSent(ctx context.Context, page, pageSize int) ([]uuid.UUID, int64, error) {
	total, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return nil, 0, err
	}

	start, stop := pageRange(page, pageSize)
	members, err := s.client.ZRevRange(ctx, s.key, start, stop).Result()
	if err != nil {
		return nil, 0, err
	}
	return parseIDs(members), total, nil
}

func pageRange(page, pageSize int) (start, stop int64) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start = int64((page - 1) * pageSize)
	return start, start + int64(pageSize) - 1
}

func parseIDs(members []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			slog.Warn("skipping malformed sent reminder id", "member", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
