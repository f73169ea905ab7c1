package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InvitationRepo reads invitation records owned by the task/workspace
// collaborators. This engine never transitions invitation status itself;
// it only reads them to resolve recipients for invitation notifications.
type InvitationRepo struct {
	db *DB
}

// NewInvitationRepo creates an invitation repository.
func NewInvitationRepo(db *DB) *InvitationRepo {
	return &InvitationRepo{db: db}
}

// GetTaskInvitation returns a task invitation, or ErrNotFound.
func (r *InvitationRepo) GetTaskInvitation(ctx context.Context, id uuid.UUID) (*TaskInvitation, error) {
	query := `
		SELECT id, task_id, task_title, inviter_id, invitee_id, subtask, status, created_at, updated_at
		FROM task_invitations
		WHERE id = $1
	`

	var inv TaskInvitation
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&inv.ID,
		&inv.TaskID,
		&inv.TaskTitle,
		&inv.InviterID,
		&inv.InviteeID,
		&inv.Subtask,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task invitation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query task invitation: %w", err)
	}

	return &inv, nil
}

// GetWorkspaceInvitation returns a workspace invitation, or ErrNotFound.
func (r *InvitationRepo) GetWorkspaceInvitation(ctx context.Context, id uuid.UUID) (*WorkspaceInvitation, error) {
	query := `
		SELECT id, workspace_id, workspace_name, inviter_id, invitee_id, status, created_at, updated_at
		FROM workspace_invitations
		WHERE id = $1
	`

	var inv WorkspaceInvitation
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&inv.ID,
		&inv.WorkspaceID,
		&inv.WorkspaceName,
		&inv.InviterID,
		&inv.InviteeID,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workspace invitation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query workspace invitation: %w", err)
	}

	return &inv, nil
}
