package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PreferenceRepo persists per-user notification preferences.
type PreferenceRepo struct {
	db     *DB
	logger *zap.Logger
}

// NewPreferenceRepo creates a preference repository.
func NewPreferenceRepo(db *DB, logger *zap.Logger) *PreferenceRepo {
	return &PreferenceRepo{db: db, logger: logger}
}

// Get returns the stored preference record, or ErrNotFound when the user
// has never saved one. It never writes: the documented default is applied
// by the accessor layer, not persisted here.
func (r *PreferenceRepo) Get(ctx context.Context, userID uuid.UUID) (*Preferences, error) {
	query := `
		SELECT user_id, task_assignment, task_invitation, task_completion,
		       task_approval, workspace_invitation, comments, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`

	var p Preferences
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&p.UserID,
		&p.TaskAssignment,
		&p.TaskInvitation,
		&p.TaskCompletion,
		&p.TaskApproval,
		&p.WorkspaceInvitation,
		&p.Comments,
		&p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	return &p, nil
}

// Upsert stores the complete preference record with full-replace semantics.
func (r *PreferenceRepo) Upsert(ctx context.Context, p *Preferences) error {
	query := `
		INSERT INTO notification_preferences (
			user_id, task_assignment, task_invitation, task_completion,
			task_approval, workspace_invitation, comments
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			task_assignment      = EXCLUDED.task_assignment,
			task_invitation      = EXCLUDED.task_invitation,
			task_completion      = EXCLUDED.task_completion,
			task_approval        = EXCLUDED.task_approval,
			workspace_invitation = EXCLUDED.workspace_invitation,
			comments             = EXCLUDED.comments,
			updated_at           = NOW()
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		p.UserID,
		p.TaskAssignment,
		p.TaskInvitation,
		p.TaskCompletion,
		p.TaskApproval,
		p.WorkspaceInvitation,
		p.Comments,
	).Scan(&p.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to upsert preferences",
			zap.Error(err),
			zap.String("user_id", p.UserID.String()),
		)
		return fmt.Errorf("upsert preferences: %w", err)
	}

	return nil
}
