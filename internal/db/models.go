package db

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery mechanism for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
)

// Selector is a per-category channel choice stored in user preferences.
// In-app delivery is implicit and never user-disabled, so "none" still
// produces an in-app notification record.
type Selector string

const (
	SelectorNone  Selector = "none"
	SelectorPush  Selector = "push"
	SelectorEmail Selector = "email"
	SelectorChat  Selector = "chat"
	SelectorAll   Selector = "all"
)

// Valid reports whether s is one of the five enumerated selector values.
func (s Selector) Valid() bool {
	switch s {
	case SelectorNone, SelectorPush, SelectorEmail, SelectorChat, SelectorAll:
		return true
	}
	return false
}

// Category groups notification types for preference purposes.
type Category string

const (
	CategoryTaskAssignment      Category = "task_assignment"
	CategoryTaskInvitation      Category = "task_invitation"
	CategoryTaskCompletion      Category = "task_completion"
	CategoryTaskApproval        Category = "task_approval"
	CategoryWorkspaceInvitation Category = "workspace_invitation"
	CategoryComments            Category = "comments"
)

// NotificationType is the closed enum of domain events that produce notifications.
type NotificationType string

const (
	TypeTaskAssigned        NotificationType = "task_assigned"
	TypeTaskInvitation      NotificationType = "task_invitation"
	TypeSubtaskInvitation   NotificationType = "subtask_invitation"
	TypeTaskCompleted       NotificationType = "task_completed"
	TypeTaskApprovalRequest NotificationType = "task_approval_request"
	TypeTaskApproved        NotificationType = "task_approved"
	TypeTaskRejected        NotificationType = "task_rejected"
	TypeWorkspaceInvitation NotificationType = "workspace_invitation"
	TypeCommentAdded        NotificationType = "comment_added"
)

// categoryByType is the fixed mapping from notification type to preference category.
var categoryByType = map[NotificationType]Category{
	TypeTaskAssigned:        CategoryTaskAssignment,
	TypeTaskInvitation:      CategoryTaskInvitation,
	TypeSubtaskInvitation:   CategoryTaskInvitation,
	TypeTaskCompleted:       CategoryTaskCompletion,
	TypeTaskApprovalRequest: CategoryTaskApproval,
	TypeTaskApproved:        CategoryTaskApproval,
	TypeTaskRejected:        CategoryTaskApproval,
	TypeWorkspaceInvitation: CategoryWorkspaceInvitation,
	TypeCommentAdded:        CategoryComments,
}

// CategoryFor maps a notification type to its preference category.
func CategoryFor(t NotificationType) (Category, bool) {
	c, ok := categoryByType[t]
	return c, ok
}

// Preferences holds one channel selector per notification category.
// One record per user; an absent record means DefaultPreferences.
type Preferences struct {
	UserID              uuid.UUID `json:"user_id"`
	TaskAssignment      Selector  `json:"task_assignment"`
	TaskInvitation      Selector  `json:"task_invitation"`
	TaskCompletion      Selector  `json:"task_completion"`
	TaskApproval        Selector  `json:"task_approval"`
	WorkspaceInvitation Selector  `json:"workspace_invitation"`
	Comments            Selector  `json:"comments"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultPreferences is what a preference read returns when no record is
// stored: every external channel disabled, in-app implicit. The default is
// never persisted as a side effect of the read.
func DefaultPreferences(userID uuid.UUID) *Preferences {
	return &Preferences{
		UserID:              userID,
		TaskAssignment:      SelectorNone,
		TaskInvitation:      SelectorNone,
		TaskCompletion:      SelectorNone,
		TaskApproval:        SelectorNone,
		WorkspaceInvitation: SelectorNone,
		Comments:            SelectorNone,
	}
}

// Selector returns the stored selector for a category.
func (p *Preferences) Selector(c Category) Selector {
	switch c {
	case CategoryTaskAssignment:
		return p.TaskAssignment
	case CategoryTaskInvitation:
		return p.TaskInvitation
	case CategoryTaskCompletion:
		return p.TaskCompletion
	case CategoryTaskApproval:
		return p.TaskApproval
	case CategoryWorkspaceInvitation:
		return p.WorkspaceInvitation
	case CategoryComments:
		return p.Comments
	}
	return SelectorNone
}

// Selectors returns the selectors keyed by category, for validation loops.
func (p *Preferences) Selectors() map[Category]Selector {
	return map[Category]Selector{
		CategoryTaskAssignment:      p.TaskAssignment,
		CategoryTaskInvitation:      p.TaskInvitation,
		CategoryTaskCompletion:      p.TaskCompletion,
		CategoryTaskApproval:        p.TaskApproval,
		CategoryWorkspaceInvitation: p.WorkspaceInvitation,
		CategoryComments:            p.Comments,
	}
}

// Notification is one in-app notification owned by its recipient.
// Created at dispatch time; only the read flag is ever mutated.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	UserID    uuid.UUID         `json:"user_id"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	ActionURL *string           `json:"action_url,omitempty"`
	EntityID  *uuid.UUID        `json:"entity_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ChatLink binds an application user to an external chat identity.
// At most one per user. Code and CodeExpiresAt are set while a
// verification is outstanding and cleared once the code is consumed.
type ChatLink struct {
	UserID        uuid.UUID  `json:"user_id"`
	ChatID        int64      `json:"chat_id"`
	Linked        bool       `json:"linked"`
	Code          *string    `json:"-"`
	CodeExpiresAt *time.Time `json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PushSubscription is a user's registered push endpoint (SNS platform
// endpoint ARN). One per user; replaced on re-registration.
type PushSubscription struct {
	UserID      uuid.UUID `json:"user_id"`
	EndpointARN string    `json:"endpoint_arn"`
	DeviceName  string    `json:"device_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is the slice of the user record this engine reads: identity plus
// the email address the email transport delivers to.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// InvitationStatus is the state machine shared by task and workspace invitations.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// TaskInvitation is owned by the task collaborator; this engine reads it
// only to resolve recipients and titles for invitation notifications.
type TaskInvitation struct {
	ID        uuid.UUID        `json:"id"`
	TaskID    uuid.UUID        `json:"task_id"`
	TaskTitle string           `json:"task_title"`
	InviterID uuid.UUID        `json:"inviter_id"`
	InviteeID uuid.UUID        `json:"invitee_id"`
	Subtask   bool             `json:"subtask"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// WorkspaceInvitation is owned by the workspace collaborator; read-only here.
type WorkspaceInvitation struct {
	ID            uuid.UUID        `json:"id"`
	WorkspaceID   uuid.UUID        `json:"workspace_id"`
	WorkspaceName string           `json:"workspace_name"`
	InviterID     uuid.UUID        `json:"inviter_id"`
	InviteeID     uuid.UUID        `json:"invitee_id"`
	Status        InvitationStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
