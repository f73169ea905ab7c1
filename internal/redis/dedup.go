package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// dedupTTL is how long a claimed event id is remembered. Long enough to
// absorb collaborator retries and replays; events older than this are
// treated as new.
const dedupTTL = 24 * time.Hour

// EventDedup gives dispatch at-most-once semantics per event id when the
// triggering collaborator replays an event (retry after timeout, double
// click, webhook redelivery). Claiming uses SET NX so exactly one dispatch
// wins a given event id.
type EventDedup struct {
	client *Client
	logger *zap.Logger
}

// NewEventDedup creates an event dedup service.
func NewEventDedup(client *Client, logger *zap.Logger) *EventDedup {
	return &EventDedup{client: client, logger: logger}
}

func (d *EventDedup) key(eventID string) string {
	return fmt.Sprintf("dispatch:event:%s", eventID)
}

// Claim atomically claims the event id. Returns false when another
// dispatch already claimed it; that dispatch must be skipped entirely.
func (d *EventDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.rdb.SetNX(ctx, d.key(eventID), time.Now().Unix(), dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		d.logger.Debug("duplicate event suppressed", zap.String("event_id", eventID))
	}
	return set, nil
}

// Release gives the claim back, so a dispatch that failed structurally
// before any delivery can be retried by the caller with the same event id.
func (d *EventDedup) Release(ctx context.Context, eventID string) error {
	if err := d.client.rdb.Del(ctx, d.key(eventID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
