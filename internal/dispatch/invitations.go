package dispatch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/pulse/internal/db"
)

// Event builders for invitation records. The invitation rows themselves
// are owned by the task/workspace collaborators; this engine only turns
// their transitions into notification events.

// NewTaskInvitationEvent notifies the invitee that they were invited.
func NewTaskInvitationEvent(inv *db.TaskInvitation, inviterName string) *Event {
	eventType := db.TypeTaskInvitation
	title := "Task invitation"
	if inv.Subtask {
		eventType = db.TypeSubtaskInvitation
		title = "Subtask invitation"
	}

	entityID := inv.TaskID
	return &Event{
		ID:         invitationEventID(inv.ID, string(inv.Status)),
		Type:       eventType,
		Recipients: []uuid.UUID{inv.InviteeID},
		Title:      title,
		Message:    fmt.Sprintf("%s invited you to %q", inviterName, inv.TaskTitle),
		EntityID:   &entityID,
	}
}

// NewTaskInvitationDecisionEvent notifies the inviter that the invitee
// accepted or declined.
func NewTaskInvitationDecisionEvent(inv *db.TaskInvitation, inviteeName string) *Event {
	verb := "accepted"
	if inv.Status == db.InvitationDeclined {
		verb = "declined"
	}

	entityID := inv.TaskID
	return &Event{
		ID:         invitationEventID(inv.ID, string(inv.Status)),
		Type:       db.TypeTaskInvitation,
		Recipients: []uuid.UUID{inv.InviterID},
		Title:      "Invitation " + verb,
		Message:    fmt.Sprintf("%s %s your invitation to %q", inviteeName, verb, inv.TaskTitle),
		EntityID:   &entityID,
	}
}

// NewWorkspaceInvitationEvent notifies the invitee that they were invited
// to a workspace.
func NewWorkspaceInvitationEvent(inv *db.WorkspaceInvitation, inviterName string) *Event {
	entityID := inv.WorkspaceID
	return &Event{
		ID:         invitationEventID(inv.ID, string(inv.Status)),
		Type:       db.TypeWorkspaceInvitation,
		Recipients: []uuid.UUID{inv.InviteeID},
		Title:      "Workspace invitation",
		Message:    fmt.Sprintf("%s invited you to the workspace %q", inviterName, inv.WorkspaceName),
		EntityID:   &entityID,
	}
}

// NewWorkspaceInvitationDecisionEvent notifies the inviter of the
// invitee's decision.
func NewWorkspaceInvitationDecisionEvent(inv *db.WorkspaceInvitation, inviteeName string) *Event {
	verb := "accepted"
	if inv.Status == db.InvitationDeclined {
		verb = "declined"
	}

	entityID := inv.WorkspaceID
	return &Event{
		ID:         invitationEventID(inv.ID, string(inv.Status)),
		Type:       db.TypeWorkspaceInvitation,
		Recipients: []uuid.UUID{inv.InviterID},
		Title:      "Invitation " + verb,
		Message:    fmt.Sprintf("%s %s your invitation to %q", inviteeName, verb, inv.WorkspaceName),
		EntityID:   &entityID,
	}
}

// invitationEventID makes replayed transitions of the same invitation
// dedup to a single dispatch.
func invitationEventID(invitationID uuid.UUID, status string) string {
	return fmt.Sprintf("invitation:%s:%s", invitationID, status)
}
