package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// NotificationRepo persists in-app notification records.
type NotificationRepo struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepo creates a notification repository.
func NewNotificationRepo(db *DB, logger *zap.Logger) *NotificationRepo {
	return &NotificationRepo{db: db, logger: logger}
}

const notificationColumns = `
	id, user_id, type, title, message, read,
	action_url, entity_id, metadata, created_at
`

// Create inserts a new notification record.
func (r *NotificationRepo) Create(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO notifications (
			id, user_id, type, title, message, read,
			action_url, entity_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.Read,
		n.ActionURL,
		n.EntityID,
		n.Metadata,
	).Scan(&n.CreatedAt)

	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("notification_id", n.ID.String()),
		)
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

// Get retrieves one notification owned by the given user.
func (r *NotificationRepo) Get(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`

	var n Notification
	err := r.db.Pool().QueryRow(ctx, query, id, userID).Scan(
		&n.ID,
		&n.UserID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Read,
		&n.ActionURL,
		&n.EntityID,
		&n.Metadata,
		&n.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}

	return &n, nil
}

// List returns up to limit notifications for the user, newest first.
// A zero before/beforeID means "from the top"; otherwise only rows
// strictly older than the (createdAt, id) pair are returned. Ordering is
// by creation timestamp, not dispatch order.
func (r *NotificationRepo) List(ctx context.Context, userID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]*Notification, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if before.IsZero() {
		query := `
			SELECT ` + notificationColumns + `
			FROM notifications
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		rows, err = r.db.Pool().Query(ctx, query, userID, limit)
	} else {
		query := `
			SELECT ` + notificationColumns + `
			FROM notifications
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`
		rows, err = r.db.Pool().Query(ctx, query, userID, before, beforeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&n.Read,
			&n.ActionURL,
			&n.EntityID,
			&n.Metadata,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// UnreadCount counts unread notifications for the user. Served by the
// partial index on (user_id) WHERE NOT read, so it never scans read rows.
func (r *NotificationRepo) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}

	return count, nil
}

// MarkRead flips the read flag. Idempotent: marking an already-read
// notification matches the row and is a no-op. Returns ErrNotFound only
// when no notification with that id belongs to the user.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`

	result, err := r.db.Pool().Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	return nil
}

// MarkAllRead transitions every currently-unread notification for the user
// to read and returns how many rows changed. The statement's snapshot is
// the operation boundary: rows inserted concurrently stay unread.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`

	result, err := r.db.Pool().Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}

	return result.RowsAffected(), nil
}
