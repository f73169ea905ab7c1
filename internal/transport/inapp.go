package transport

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

// NotificationWriter is the slice of the notification repository the
// in-app transport writes through.
type NotificationWriter interface {
	Create(ctx context.Context, n *db.Notification) error
}

// UnreadBumper is the optional unread-counter cache hook; nil disables it.
type UnreadBumper interface {
	Incr(ctx context.Context, userID uuid.UUID) error
}

// InApp writes the notification record that backs the read-model. The
// dispatcher invokes it unconditionally: in-app visibility is the
// system's source of truth and is never user-disabled.
type InApp struct {
	store   NotificationWriter
	counter UnreadBumper
	logger  *zap.Logger
}

// NewInApp creates the in-app transport. counter may be nil.
func NewInApp(store NotificationWriter, counter UnreadBumper, logger *zap.Logger) *InApp {
	return &InApp{store: store, counter: counter, logger: logger}
}

func (t *InApp) Channel() db.Channel { return db.ChannelInApp }

func (t *InApp) Send(ctx context.Context, userID uuid.UUID, msg Message) Result {
	n := &db.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      msg.Type,
		Title:     msg.Title,
		Message:   msg.Body,
		ActionURL: msg.ActionURL,
		EntityID:  msg.EntityID,
		Metadata:  msg.Metadata,
	}

	if err := t.store.Create(ctx, n); err != nil {
		return Failed(db.ChannelInApp, err)
	}

	if t.counter != nil {
		if err := t.counter.Incr(ctx, userID); err != nil {
			// Cache-only failure: the next unread read recounts from the store.
			t.logger.Warn("unread counter bump failed",
				zap.Error(err),
				zap.String("user_id", userID.String()),
			)
		}
	}

	result := Delivered(db.ChannelInApp)
	result.NotificationID = n.ID
	return result
}
