package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/chatlink"
	"github.com/taskhive/pulse/internal/db"
	"github.com/taskhive/pulse/internal/dispatch"
	"github.com/taskhive/pulse/internal/feed"
	"github.com/taskhive/pulse/internal/prefs"
	"github.com/taskhive/pulse/internal/transport"
)

// Dispatcher runs the fan-out for one domain event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *dispatch.Event) (*dispatch.Outcome, error)
}

// PreferenceService reads and replaces per-user channel preferences.
type PreferenceService interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Preferences, error)
	Set(ctx context.Context, userID uuid.UUID, p *db.Preferences) error
}

// FeedService serves the notification read model.
type FeedService interface {
	List(ctx context.Context, userID uuid.UUID, cursor string, limit int) (*feed.Page, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

// LinkService issues and revokes chat verification codes.
type LinkService interface {
	Issue(ctx context.Context, userID uuid.UUID) (string, time.Time, error)
	Disconnect(ctx context.Context, userID uuid.UUID) (bool, error)
	Status(ctx context.Context, userID uuid.UUID) (bool, error)
}

// WebhookProcessor handles inbound chat-platform updates.
type WebhookProcessor interface {
	Process(ctx context.Context, upd *chatlink.Update)
}

// SubscriptionStore manages push subscription registrations.
type SubscriptionStore interface {
	Upsert(ctx context.Context, s *db.PushSubscription) error
	Delete(ctx context.Context, userID uuid.UUID) (bool, error)
}

// UserStore resolves user records, satisfied by db.UserRepo.
type UserStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.User, error)
}

// InvitationStore reads invitation records owned by the task/workspace
// collaborators, satisfied by db.InvitationRepo.
type InvitationStore interface {
	GetTaskInvitation(ctx context.Context, id uuid.UUID) (*db.TaskInvitation, error)
	GetWorkspaceInvitation(ctx context.Context, id uuid.UUID) (*db.WorkspaceInvitation, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger        *zap.Logger
	dispatcher    Dispatcher
	preferences   PreferenceService
	feed          FeedService
	links         LinkService
	webhook       WebhookProcessor
	subscriptions SubscriptionStore
	users         UserStore
	invitations   InvitationStore
	push          transport.Transport
}

// NewHandler creates a new API handler
func NewHandler(
	logger *zap.Logger,
	dispatcher Dispatcher,
	preferences PreferenceService,
	feedSvc FeedService,
	links LinkService,
	webhook WebhookProcessor,
	subscriptions SubscriptionStore,
	users UserStore,
	invitations InvitationStore,
	push transport.Transport,
) *Handler {
	return &Handler{
		logger:        logger,
		dispatcher:    dispatcher,
		preferences:   preferences,
		feed:          feedSvc,
		links:         links,
		webhook:       webhook,
		subscriptions: subscriptions,
		users:         users,
		invitations:   invitations,
		push:          push,
	}
}

// DispatchEvent handles POST /v1/events
func (h *Handler) DispatchEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event dispatch.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	outcome, err := h.dispatcher.Dispatch(ctx, &event)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidEvent) {
			h.writeError(w, http.StatusBadRequest, "invalid_event", "Invalid event", err.Error())
			return
		}
		h.logger.Error("dispatch failed",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
		)
		h.writeError(w, http.StatusInternalServerError, "dispatch_error", "Failed to dispatch event", "")
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

// NotifyInvitationRequest is the body shape for invitation notifications.
type NotifyInvitationRequest struct {
	Kind         string `json:"kind"`
	InvitationID string `json:"invitation_id"`
}

// NotifyInvitation handles POST /v1/invitations/notify. The collaborator
// that mutated the invitation calls this with the record id; the
// invitation's current status decides who gets notified (pending goes to
// the invitee, accepted/declined go back to the inviter).
func (h *Handler) NotifyInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req NotifyInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	invitationID, err := uuid.Parse(req.InvitationID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid invitation_id", "invitation_id must be a valid UUID")
		return
	}

	var event *dispatch.Event
	switch req.Kind {
	case "task":
		event, err = h.taskInvitationEvent(ctx, invitationID)
	case "workspace":
		event, err = h.workspaceInvitationEvent(ctx, invitationID)
	default:
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid kind", "kind must be task or workspace")
		return
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Invitation not found", "")
			return
		}
		h.logger.Error("failed to resolve invitation",
			zap.Error(err),
			zap.String("invitation_id", req.InvitationID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to resolve invitation", "")
		return
	}
	if event == nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "No notification for status",
			"only pending, accepted, and declined invitations produce notifications")
		return
	}

	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		h.logger.Error("invitation dispatch failed",
			zap.Error(err),
			zap.String("invitation_id", req.InvitationID),
		)
		h.writeError(w, http.StatusInternalServerError, "dispatch_error", "Failed to dispatch notification", "")
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) taskInvitationEvent(ctx context.Context, id uuid.UUID) (*dispatch.Event, error) {
	inv, err := h.invitations.GetTaskInvitation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case db.InvitationPending:
		return dispatch.NewTaskInvitationEvent(inv, h.displayName(ctx, inv.InviterID)), nil
	case db.InvitationAccepted, db.InvitationDeclined:
		return dispatch.NewTaskInvitationDecisionEvent(inv, h.displayName(ctx, inv.InviteeID)), nil
	}
	return nil, nil
}

func (h *Handler) workspaceInvitationEvent(ctx context.Context, id uuid.UUID) (*dispatch.Event, error) {
	inv, err := h.invitations.GetWorkspaceInvitation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch inv.Status {
	case db.InvitationPending:
		return dispatch.NewWorkspaceInvitationEvent(inv, h.displayName(ctx, inv.InviterID)), nil
	case db.InvitationAccepted, db.InvitationDeclined:
		return dispatch.NewWorkspaceInvitationDecisionEvent(inv, h.displayName(ctx, inv.InviteeID)), nil
	}
	return nil, nil
}

// displayName resolves the name shown in invitation messages, falling
// back to a neutral label when the user cannot be read.
func (h *Handler) displayName(ctx context.Context, userID uuid.UUID) string {
	u, err := h.users.Get(ctx, userID)
	if err != nil {
		return "A teammate"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// GetPreferences handles GET /v1/users/{userID}/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	p, err := h.preferences.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get preferences",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load preferences", "")
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// PutPreferences handles PUT /v1/users/{userID}/preferences
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	var p db.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if err := h.preferences.Set(r.Context(), userID, &p); err != nil {
		if errors.Is(err, prefs.ErrInvalidSelector) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel selector",
				"selectors must be one of: none, push, email, chat, all")
			return
		}
		h.logger.Error("failed to store preferences",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to store preferences", "")
		return
	}

	p.UserID = userID
	h.writeJSON(w, http.StatusOK, &p)
}

// ListNotifications handles GET /v1/users/{userID}/notifications?cursor=&limit=
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid limit", "limit must be a positive integer")
			return
		}
		limit = l
	}

	page, err := h.feed.List(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, feed.ErrBadCursor) {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid cursor", "cursor is not a valid page token")
			return
		}
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	notifications := page.Notifications
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"next_cursor":   page.NextCursor,
		"has_more":      page.NextCursor != "",
	})
}

// UnreadCount handles GET /v1/users/{userID}/notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	count, err := h.feed.UnreadCount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count unread notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to count unread notifications", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// MarkRead handles POST /v1/users/{userID}/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	idStr := chi.URLParam(r, "id")
	notifID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	if err := h.feed.MarkRead(r.Context(), userID, notifID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
			return
		}
		h.logger.Error("failed to mark notification read",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notification read", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":   idStr,
		"read": true,
	})
}

// MarkAllRead handles POST /v1/users/{userID}/notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	updated, err := h.feed.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to mark all notifications read",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notifications read", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// userRequest is the body shape for chat link and disconnect calls.
type userRequest struct {
	UserID string `json:"user_id"`
}

// ChatLink handles POST /v1/chat/link
func (h *Handler) ChatLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userBody(w, r)
	if !ok {
		return
	}

	code, expiresAt, err := h.links.Issue(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			h.writeError(w, http.StatusConflict, "already_linked", "Chat already connected",
				"Disconnect the current chat before requesting a new code")
			return
		}
		h.logger.Error("failed to issue verification code",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "link_error", "Failed to issue verification code", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":       code,
		"expires_at": expiresAt,
	})
}

// ChatDisconnect handles POST /v1/chat/disconnect
func (h *Handler) ChatDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userBody(w, r)
	if !ok {
		return
	}

	removed, err := h.links.Disconnect(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to disconnect chat",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "disconnect_error", "Failed to disconnect chat", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{
		"success": true,
		"removed": removed,
	})
}

// ChatStatus handles GET /v1/chat/status?user_id=
func (h *Handler) ChatStatus(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	linked, err := h.links.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read chat link status",
			zap.Error(err),
			zap.String("user_id", userIDStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to read chat status", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"linked": linked})
}

// ChatWebhook handles POST /v1/chat/webhook. It acknowledges every update
// with a 200 so the chat platform never retries: a malformed or
// unprocessable payload is logged, not surfaced.
func (h *Handler) ChatWebhook(w http.ResponseWriter, r *http.Request) {
	var upd chatlink.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	h.webhook.Process(r.Context(), &upd)
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PushSendRequest is the body shape for direct push sends.
type PushSendRequest struct {
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActionURL string `json:"action_url,omitempty"`
}

// PushSend handles POST /v1/push/send
func (h *Handler) PushSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req PushSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.UserID == "" || req.Title == "" || req.Message == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields",
			"user_id, title, and message are required")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	if _, err := h.users.Get(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "User not found", "")
			return
		}
		h.logger.Error("failed to resolve user", zap.Error(err), zap.String("user_id", req.UserID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to resolve user", "")
		return
	}

	msg := transport.Message{
		Title: req.Title,
		Body:  req.Message,
	}
	if req.ActionURL != "" {
		msg.ActionURL = &req.ActionURL
	}

	result := h.push.Send(ctx, userID, msg)

	switch result.Status {
	case transport.StatusSkipped:
		h.writeError(w, http.StatusNotFound, "not_found", "No push subscription",
			"The user has no registered push subscription")
	case transport.StatusFailed:
		h.logger.Error("push send failed",
			zap.Error(result.Err),
			zap.String("user_id", req.UserID),
		)
		h.writeError(w, http.StatusInternalServerError, "transport_error", "Push delivery failed", "")
	default:
		h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// PutPushSubscription handles PUT /v1/users/{userID}/push-subscription
func (h *Handler) PutPushSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	var req struct {
		EndpointARN string `json:"endpoint_arn"`
		DeviceName  string `json:"device_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.EndpointARN == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing endpoint_arn", "endpoint_arn is required")
		return
	}

	sub := &db.PushSubscription{
		UserID:      userID,
		EndpointARN: req.EndpointARN,
		DeviceName:  req.DeviceName,
	}
	if err := h.subscriptions.Upsert(r.Context(), sub); err != nil {
		h.logger.Error("failed to store push subscription",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to store subscription", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeletePushSubscription handles DELETE /v1/users/{userID}/push-subscription
func (h *Handler) DeletePushSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userParam(w, r)
	if !ok {
		return
	}

	removed, err := h.subscriptions.Delete(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to delete push subscription",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete subscription", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{
		"success": true,
		"removed": removed,
	})
}

func (h *Handler) userParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user ID", "user ID must be a valid UUID")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) userBody(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return uuid.Nil, false
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id is required")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return uuid.Nil, false
	}

	return userID, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
