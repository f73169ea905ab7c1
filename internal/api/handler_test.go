package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
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

// scriptedPush is a push transport returning a fixed result.
type scriptedPush struct {
	result transport.Result
	calls  int
}

func (s *scriptedPush) Channel() db.Channel { return db.ChannelPush }

func (s *scriptedPush) Send(ctx context.Context, userID uuid.UUID, msg transport.Message) transport.Result {
	s.calls++
	return s.result
}

// nopSender swallows chat messages.
type nopSender struct{}

func (nopSender) SendMessage(ctx context.Context, chatID int64, text string) error { return nil }

// testEnv wires a handler over the in-memory repositories.
type testEnv struct {
	handler       *Handler
	notifications *db.MemoryNotificationRepo
	preferences   *db.MemoryPreferenceRepo
	chatLinks     *db.MemoryChatLinkRepo
	subscriptions *db.MemorySubscriptionRepo
	users         *db.MemoryUserRepo
	invitations   *db.MemoryInvitationRepo
	push          *scriptedPush
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	env := &testEnv{
		notifications: db.NewMemoryNotificationRepo(),
		preferences:   db.NewMemoryPreferenceRepo(),
		chatLinks:     db.NewMemoryChatLinkRepo(),
		subscriptions: db.NewMemorySubscriptionRepo(),
		users:         db.NewMemoryUserRepo(),
		invitations:   db.NewMemoryInvitationRepo(),
		push:          &scriptedPush{result: transport.Delivered(db.ChannelPush)},
	}

	prefService := prefs.New(env.preferences, logger)
	inApp := transport.NewInApp(env.notifications, nil, logger)
	dispatcher := dispatch.New(prefService, env.users, inApp, nil, nil, dispatch.Config{}, logger)
	feedSvc := feed.NewService(env.notifications, nil, logger)
	linkSvc := chatlink.NewService(env.chatLinks, logger)
	webhook := chatlink.NewWebhook(env.chatLinks, nopSender{}, nil, logger)

	env.handler = NewHandler(logger, dispatcher, prefService, feedSvc, linkSvc, webhook, env.subscriptions, env.users, env.invitations, env.push)
	return env
}

func (e *testEnv) addUser(t *testing.T) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	e.users.Add(&db.User{ID: userID, Email: "user@example.com"})
	return userID
}

// withUserParam injects the chi {userID} route parameter.
func withUserParam(req *http.Request, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userID", userID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return errResp
}

func TestDispatchEvent(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    func(env *testEnv) interface{}
		expectedStatus int
		checkResponse  func(*testing.T, *testEnv, *httptest.ResponseRecorder)
	}{
		{
			name: "valid event writes in-app records",
			requestBody: func(env *testEnv) interface{} {
				return dispatch.Event{
					Type:       db.TypeTaskAssigned,
					Recipients: []uuid.UUID{env.addUser(t), env.addUser(t)},
					Title:      "Task assigned",
					Message:    "You were assigned a task",
				}
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, env *testEnv, rec *httptest.ResponseRecorder) {
				var outcome dispatch.Outcome
				if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if len(outcome.Recipients) != 2 {
					t.Errorf("expected 2 recipient outcomes, got %d", len(outcome.Recipients))
				}
			},
		},
		{
			name: "unknown event type rejected",
			requestBody: func(env *testEnv) interface{} {
				return dispatch.Event{
					Type:       "task_teleported",
					Recipients: []uuid.UUID{uuid.New()},
					Title:      "t",
					Message:    "m",
				}
			},
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, env *testEnv, rec *httptest.ResponseRecorder) {
				if errResp := decodeError(t, rec); errResp.Type != "invalid_event" {
					t.Errorf("expected invalid_event, got %s", errResp.Type)
				}
			},
		},
		{
			name: "no recipients rejected",
			requestBody: func(env *testEnv) interface{} {
				return dispatch.Event{Type: db.TypeTaskAssigned, Title: "t", Message: "m"}
			},
			expectedStatus: http.StatusBadRequest,
			checkResponse:  func(t *testing.T, env *testEnv, rec *httptest.ResponseRecorder) {},
		},
		{
			name: "malformed JSON body",
			requestBody: func(env *testEnv) interface{} {
				return "not valid json"
			},
			expectedStatus: http.StatusBadRequest,
			checkResponse:  func(t *testing.T, env *testEnv, rec *httptest.ResponseRecorder) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			var body []byte
			var err error
			payload := tt.requestBody(env)
			if str, ok := payload.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(payload)
				if err != nil {
					t.Fatalf("failed to marshal request: %v", err)
				}
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			env.handler.DispatchEvent(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
				t.Logf("Response body: %s", rec.Body.String())
			}
			tt.checkResponse(t, env, rec)
		})
	}
}

func TestNotifyInvitation(t *testing.T) {
	env := newTestEnv(t)
	inviter := env.addUser(t)
	invitee := env.addUser(t)

	invitationID := uuid.New()
	env.invitations.AddTask(&db.TaskInvitation{
		ID:        invitationID,
		TaskID:    uuid.New(),
		TaskTitle: "Prepare the demo",
		InviterID: inviter,
		InviteeID: invitee,
		Status:    db.InvitationPending,
	})

	notify := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/invitations/notify", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.handler.NotifyInvitation(rec, req)
		return rec
	}

	rec := notify(`{"kind":"task","invitation_id":"` + invitationID.String() + `"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var outcome dispatch.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(outcome.Recipients) != 1 || outcome.Recipients[0].UserID != invitee {
		t.Errorf("pending invitation must notify the invitee, got %+v", outcome.Recipients)
	}
	if env.notifications.Count(invitee) != 1 {
		t.Errorf("invitee must have an in-app record, got %d", env.notifications.Count(invitee))
	}

	if rec = notify(`{"kind":"task","invitation_id":"` + uuid.New().String() + `"}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown invitation must 404, got %d", rec.Code)
	}
	if rec = notify(`{"kind":"meeting","invitation_id":"` + invitationID.String() + `"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind must 400, got %d", rec.Code)
	}
	if rec = notify(`{"kind":"task","invitation_id":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad invitation id must 400, got %d", rec.Code)
	}
}

func TestNotifyInvitation_DecisionGoesToInviter(t *testing.T) {
	env := newTestEnv(t)
	inviter := env.addUser(t)
	invitee := env.addUser(t)

	invitationID := uuid.New()
	env.invitations.AddWorkspace(&db.WorkspaceInvitation{
		ID:            invitationID,
		WorkspaceID:   uuid.New(),
		WorkspaceName: "Platform",
		InviterID:     inviter,
		InviteeID:     invitee,
		Status:        db.InvitationAccepted,
	})

	body := `{"kind":"workspace","invitation_id":"` + invitationID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/invitations/notify", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	env.handler.NotifyInvitation(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.notifications.Count(inviter) != 1 {
		t.Errorf("accepted invitation must notify the inviter, got %d", env.notifications.Count(inviter))
	}
	if env.notifications.Count(invitee) != 0 {
		t.Errorf("invitee must not be notified of their own decision, got %d", env.notifications.Count(invitee))
	}
}

func TestGetPreferences(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	req := withUserParam(httptest.NewRequest(http.MethodGet, "/v1/users/"+userID.String()+"/preferences", nil), userID.String())
	rec := httptest.NewRecorder()

	env.handler.GetPreferences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var p db.Preferences
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if p.TaskAssignment != db.SelectorNone || p.Comments != db.SelectorNone {
		t.Errorf("unknown user must read as all-none defaults, got %+v", p)
	}
	if env.preferences.Stored(userID) {
		t.Error("reading defaults must not persist a record")
	}
}

func TestGetPreferences_InvalidUserID(t *testing.T) {
	env := newTestEnv(t)

	req := withUserParam(httptest.NewRequest(http.MethodGet, "/v1/users/nope/preferences", nil), "nope")
	rec := httptest.NewRecorder()

	env.handler.GetPreferences(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPutPreferences(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    string
		expectedStatus int
	}{
		{
			name:           "valid full replacement",
			requestBody:    `{"task_assignment":"push","task_invitation":"all","task_completion":"none","task_approval":"email","workspace_invitation":"chat","comments":"none"}`,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown selector rejected",
			requestBody:    `{"task_assignment":"sms","task_invitation":"none","task_completion":"none","task_approval":"none","workspace_invitation":"none","comments":"none"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed JSON body",
			requestBody:    `{"task_assignment":`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			userID := uuid.New()

			req := withUserParam(
				httptest.NewRequest(http.MethodPut, "/v1/users/"+userID.String()+"/preferences", bytes.NewReader([]byte(tt.requestBody))),
				userID.String(),
			)
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			env.handler.PutPreferences(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
				t.Logf("Response body: %s", rec.Body.String())
			}

			if tt.expectedStatus == http.StatusOK {
				var p db.Preferences
				if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				if p.UserID != userID {
					t.Errorf("response must carry the path user id, got %s", p.UserID)
				}
				if p.TaskInvitation != db.SelectorAll {
					t.Errorf("expected stored selector echoed back, got %s", p.TaskInvitation)
				}
				if !env.preferences.Stored(userID) {
					t.Error("PUT must persist the record")
				}
			}
		})
	}
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t)

	req := withUserParam(httptest.NewRequest(http.MethodGet, "/v1/users/"+userID.String()+"/notifications", nil), userID.String())
	rec := httptest.NewRecorder()

	env.handler.ListNotifications(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	notifications, ok := resp["notifications"].([]interface{})
	if !ok {
		t.Fatalf("notifications must be a JSON array even when empty, got %T", resp["notifications"])
	}
	if len(notifications) != 0 {
		t.Errorf("expected an empty feed, got %d entries", len(notifications))
	}
	if resp["has_more"] != false {
		t.Errorf("empty feed must report has_more=false, got %v", resp["has_more"])
	}
}

func TestListNotifications_BadInputs(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "non-numeric limit", query: "?limit=lots"},
		{name: "negative limit", query: "?limit=-5"},
		{name: "garbage cursor", query: "?cursor=%25%25%25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			userID := uuid.New()

			req := withUserParam(
				httptest.NewRequest(http.MethodGet, "/v1/users/"+userID.String()+"/notifications"+tt.query, nil),
				userID.String(),
			)
			rec := httptest.NewRecorder()

			env.handler.ListNotifications(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUnreadCountEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t)
	seedFeed(t, env, userID, 3)

	req := withUserParam(httptest.NewRequest(http.MethodGet, "/v1/users/"+userID.String()+"/notifications/unread-count", nil), userID.String())
	rec := httptest.NewRecorder()

	env.handler.UnreadCount(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["count"] != 3 {
		t.Errorf("expected count 3, got %d", resp["count"])
	}
}

func seedFeed(t *testing.T, env *testEnv, userID uuid.UUID, n int) []uuid.UUID {
	t.Helper()

	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		err := env.notifications.Create(context.Background(), &db.Notification{
			ID:      id,
			UserID:  userID,
			Type:    db.TypeCommentAdded,
			Title:   "New comment",
			Message: "Someone replied",
		})
		if err != nil {
			t.Fatalf("seed notification failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestMarkReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t)
	ids := seedFeed(t, env, userID, 1)

	markReq := func(notifID string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/users/"+userID.String()+"/notifications/"+notifID+"/read", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("userID", userID.String())
		rctx.URLParams.Add("id", notifID)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}

	rec := httptest.NewRecorder()
	env.handler.MarkRead(rec, markReq(ids[0].String()))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Unknown id maps to 404.
	rec = httptest.NewRecorder()
	env.handler.MarkRead(rec, markReq(uuid.New().String()))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown notification, got %d", rec.Code)
	}

	// Bad id maps to 400.
	rec = httptest.NewRecorder()
	env.handler.MarkRead(rec, markReq("not-a-uuid"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad notification id, got %d", rec.Code)
	}
}

func TestMarkAllReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t)
	seedFeed(t, env, userID, 4)

	req := withUserParam(httptest.NewRequest(http.MethodPost, "/v1/users/"+userID.String()+"/notifications/read-all", nil), userID.String())
	rec := httptest.NewRecorder()

	env.handler.MarkAllRead(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]int64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["updated"] != 4 {
		t.Errorf("expected 4 updated, got %d", resp["updated"])
	}
}

func TestChatLinkEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	body := []byte(`{"user_id":"` + userID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/link", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.handler.ChatLink(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Code      string `json:"code"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Code) != 6 {
		t.Errorf("expected a 6-digit code, got %q", resp.Code)
	}
	if resp.ExpiresAt == "" {
		t.Error("response must carry the code expiry")
	}
}

func TestChatLinkEndpoint_AlreadyLinked(t *testing.T) {
	env := newTestEnv(t)
	userID := linkChat(t, env, 42)

	body := []byte(`{"user_id":"` + userID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/link", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.handler.ChatLink(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if errResp := decodeError(t, rec); errResp.Type != "already_linked" {
		t.Errorf("expected already_linked, got %s", errResp.Type)
	}
}

// linkChat establishes a completed chat link for a fresh user.
func linkChat(t *testing.T, env *testEnv, chatID int64) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	ctx := context.Background()
	if err := env.chatLinks.IssueCode(ctx, userID, "123456", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("issue code failed: %v", err)
	}
	if _, err := env.chatLinks.Consume(ctx, "123456", chatID, time.Now()); err != nil {
		t.Fatalf("consume code failed: %v", err)
	}
	return userID
}

func TestChatDisconnectEndpoint(t *testing.T) {
	env := newTestEnv(t)
	userID := linkChat(t, env, 42)

	body := []byte(`{"user_id":"` + userID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/disconnect", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.handler.ChatDisconnect(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp["success"] || !resp["removed"] {
		t.Errorf("expected success and removed, got %v", resp)
	}
}

func TestChatStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	linked := linkChat(t, env, 42)
	unlinked := uuid.New()

	status := func(userID string) (*httptest.ResponseRecorder, map[string]bool) {
		req := httptest.NewRequest(http.MethodGet, "/v1/chat/status?user_id="+userID, nil)
		rec := httptest.NewRecorder()
		env.handler.ChatStatus(rec, req)

		var resp map[string]bool
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		return rec, resp
	}

	rec, resp := status(linked.String())
	if rec.Code != http.StatusOK || !resp["linked"] {
		t.Errorf("expected linked=true, got code=%d resp=%v", rec.Code, resp)
	}

	rec, resp = status(unlinked.String())
	if rec.Code != http.StatusOK || resp["linked"] {
		t.Errorf("expected linked=false, got code=%d resp=%v", rec.Code, resp)
	}

	rec, _ = status("not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad user_id, got %d", rec.Code)
	}
}

func TestChatWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Malformed payloads are acknowledged, never retried.
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/webhook", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	env.handler.ChatWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook must always acknowledge, got %d", rec.Code)
	}

	// A valid code submission completes the link.
	userID := uuid.New()
	if err := env.chatLinks.IssueCode(context.Background(), userID, "654321", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("issue code failed: %v", err)
	}

	payload := `{"update_id":1,"message":{"message_id":10,"text":"654321","chat":{"id":99}}}`
	req = httptest.NewRequest(http.MethodPost, "/v1/chat/webhook", bytes.NewReader([]byte(payload)))
	rec = httptest.NewRecorder()
	env.handler.ChatWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	link, err := env.chatLinks.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("read link failed: %v", err)
	}
	if !link.Linked || link.ChatID != 99 {
		t.Errorf("expected link completed to chat 99, got %+v", link)
	}
}

func TestPushSendEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    func(env *testEnv) string
		pushResult     *transport.Result
		expectedStatus int
	}{
		{
			name: "delivered",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"` + env.addUser(t).String() + `","title":"Reminder","message":"Standup in 5"}`
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "missing fields",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"` + uuid.New().String() + `","title":"Reminder"}`
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad user id",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"nope","title":"t","message":"m"}`
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown user",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"` + uuid.New().String() + `","title":"t","message":"m"}`
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "no push subscription",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"` + env.addUser(t).String() + `","title":"t","message":"m"}`
			},
			pushResult:     resultPtr(transport.Skipped(db.ChannelPush, transport.ReasonNoSubscription)),
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "transport failure",
			requestBody: func(env *testEnv) string {
				return `{"user_id":"` + env.addUser(t).String() + `","title":"t","message":"m"}`
			},
			pushResult:     resultPtr(transport.Failed(db.ChannelPush, errors.New("endpoint disabled"))),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.pushResult != nil {
				env.push.result = *tt.pushResult
			}

			req := httptest.NewRequest(http.MethodPost, "/v1/push/send", bytes.NewReader([]byte(tt.requestBody(env))))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			env.handler.PushSend(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
				t.Logf("Response body: %s", rec.Body.String())
			}
		})
	}
}

func resultPtr(r transport.Result) *transport.Result { return &r }

func TestPushSubscriptionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	userID := env.addUser(t)

	put := func(body string) *httptest.ResponseRecorder {
		req := withUserParam(
			httptest.NewRequest(http.MethodPut, "/v1/users/"+userID.String()+"/push-subscription", bytes.NewReader([]byte(body))),
			userID.String(),
		)
		rec := httptest.NewRecorder()
		env.handler.PutPushSubscription(rec, req)
		return rec
	}

	if rec := put(`{"device_name":"phone"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing endpoint_arn must be rejected, got %d", rec.Code)
	}

	if rec := put(`{"endpoint_arn":"arn:aws:sns:us-east-1:1:endpoint/APNS/app/abc","device_name":"phone"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sub, err := env.subscriptions.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("read subscription failed: %v", err)
	}
	if sub.DeviceName != "phone" {
		t.Errorf("expected device name stored, got %q", sub.DeviceName)
	}

	req := withUserParam(httptest.NewRequest(http.MethodDelete, "/v1/users/"+userID.String()+"/push-subscription", nil), userID.String())
	rec := httptest.NewRecorder()
	env.handler.DeletePushSubscription(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp["removed"] {
		t.Error("delete must report the subscription removed")
	}

	if _, err := env.subscriptions.Get(context.Background(), userID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("subscription must be gone, got %v", err)
	}
}
