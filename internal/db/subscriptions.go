package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SubscriptionRepo persists push subscriptions (one SNS platform endpoint
// per user).
type SubscriptionRepo struct {
	db     *DB
	logger *zap.Logger
}

// NewSubscriptionRepo creates a push subscription repository.
func NewSubscriptionRepo(db *DB, logger *zap.Logger) *SubscriptionRepo {
	return &SubscriptionRepo{db: db, logger: logger}
}

// Get returns the user's push subscription, or ErrNotFound.
func (r *SubscriptionRepo) Get(ctx context.Context, userID uuid.UUID) (*PushSubscription, error) {
	query := `
		SELECT user_id, endpoint_arn, device_name, created_at
		FROM push_subscriptions
		WHERE user_id = $1
	`

	var s PushSubscription
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.EndpointARN,
		&s.DeviceName,
		&s.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("push subscription for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query push subscription: %w", err)
	}

	return &s, nil
}

// Upsert registers or replaces the user's push subscription.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s *PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (user_id, endpoint_arn, device_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			endpoint_arn = EXCLUDED.endpoint_arn,
			device_name  = EXCLUDED.device_name
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query, s.UserID, s.EndpointARN, s.DeviceName).Scan(&s.CreatedAt)
	if err != nil {
		r.logger.Error("failed to upsert push subscription",
			zap.Error(err),
			zap.String("user_id", s.UserID.String()),
		)
		return fmt.Errorf("upsert push subscription: %w", err)
	}

	return nil
}

// Delete removes the user's push subscription. Repeat deletes are no-ops.
func (r *SubscriptionRepo) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete push subscription: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
