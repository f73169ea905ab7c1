// Package feed is the read side of the notification store: paginated
// listing, unread counts, and read-state transitions.
package feed

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// NotificationReader is the persistence surface the feed reads from and
// flips read flags on, satisfied by db.NotificationRepo.
type NotificationReader interface {
	List(ctx context.Context, userID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]*db.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// CountCache is the redis unread-count cache. All methods degrade: a
// cache failure never fails the read path.
type CountCache interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int64) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// Page is one page of the notification feed plus the cursor for the next.
type Page struct {
	Notifications []*db.Notification `json:"notifications"`
	NextCursor    string             `json:"next_cursor,omitempty"`
}

// Service serves the notification read model.
type Service struct {
	notifications NotificationReader
	counts        CountCache
	logger        *zap.Logger
}

// NewService creates a feed service. counts may be nil to disable the
// unread-count cache.
func NewService(notifications NotificationReader, counts CountCache, logger *zap.Logger) *Service {
	return &Service{
		notifications: notifications,
		counts:        counts,
		logger:        logger,
	}
}

// List returns one page of the user's notifications, newest first. The
// cursor token comes from a previous page's NextCursor; empty means the
// first page. An absent NextCursor means the feed is exhausted.
func (s *Service) List(ctx context.Context, userID uuid.UUID, cursorToken string, limit int) (*Page, error) {
	cursor, err := DecodeCursor(cursorToken)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	notifications, err := s.notifications.List(ctx, userID, cursor.CreatedAt, cursor.ID, limit)
	if err != nil {
		return nil, err
	}

	page := &Page{Notifications: notifications}
	if len(notifications) == limit {
		last := notifications[len(notifications)-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return page, nil
}

// UnreadCount returns the user's unread-notification count, preferring
// the cache and seeding it on a miss.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.counts != nil {
		count, found, err := s.counts.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("unread count cache read failed", zap.Error(err))
		} else if found {
			return count, nil
		}
	}

	count, err := s.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.counts != nil {
		if err := s.counts.Set(ctx, userID, count); err != nil {
			s.logger.Warn("unread count cache seed failed", zap.Error(err))
		}
	}

	return count, nil
}

// MarkRead flips a single notification to read. Idempotent; returns
// db.ErrNotFound when the id does not belong to the user.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.notifications.MarkRead(ctx, userID, id); err != nil {
		return err
	}

	s.invalidateCount(ctx, userID)
	return nil
}

// MarkAllRead marks every notification unread at the time the statement
// runs; rows created concurrently may stay unread. Returns how many
// notifications changed state.
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := s.notifications.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.invalidateCount(ctx, userID)
	return updated, nil
}

func (s *Service) invalidateCount(ctx context.Context, userID uuid.UUID) {
	if s.counts == nil {
		return
	}
	if err := s.counts.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("unread count cache invalidation failed", zap.Error(err))
	}
}
