package db

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory repository fakes. They implement the same method sets as the
// postgres repositories so every consumer interface can be satisfied by
// either, which keeps the dispatcher and services unit-testable without a
// database. The fakes live here (not in _test files) because several
// packages share them.

// MemoryNotificationRepo is an in-memory NotificationRepo.
type MemoryNotificationRepo struct {
	mu            sync.Mutex
	notifications map[uuid.UUID]*Notification
	Now           func() time.Time

	// FailCreates forces Create to fail, for transport failure tests.
	FailCreates bool
}

// NewMemoryNotificationRepo creates an empty in-memory notification store.
func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{
		notifications: make(map[uuid.UUID]*Notification),
		Now:           time.Now,
	}
}

func (m *MemoryNotificationRepo) Create(ctx context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreates {
		return fmt.Errorf("insert notification: store unavailable")
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.Now()
	}
	stored := *n
	m.notifications[n.ID] = &stored
	return nil
}

func (m *MemoryNotificationRepo) Get(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	copied := *n
	return &copied, nil
}

func (m *MemoryNotificationRepo) List(ctx context.Context, userID uuid.UUID, before time.Time, beforeID uuid.UUID, limit int) ([]*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if !before.IsZero() && !olderThan(n, before, beforeID) {
			continue
		}
		copied := *n
		all = append(all, &copied)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return bytes.Compare(all[i].ID[:], all[j].ID[:]) > 0
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func olderThan(n *Notification, before time.Time, beforeID uuid.UUID) bool {
	if n.CreatedAt.Before(before) {
		return true
	}
	return n.CreatedAt.Equal(before) && bytes.Compare(n.ID[:], beforeID[:]) < 0
}

func (m *MemoryNotificationRepo) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryNotificationRepo) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	n.Read = true
	return nil
}

func (m *MemoryNotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

// Count returns the total stored for the user, for test assertions.
func (m *MemoryNotificationRepo) Count(userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, n := range m.notifications {
		if n.UserID == userID {
			count++
		}
	}
	return count
}

// MemoryPreferenceRepo is an in-memory PreferenceRepo.
type MemoryPreferenceRepo struct {
	mu    sync.Mutex
	prefs map[uuid.UUID]*Preferences
}

// NewMemoryPreferenceRepo creates an empty in-memory preference store.
func NewMemoryPreferenceRepo() *MemoryPreferenceRepo {
	return &MemoryPreferenceRepo{prefs: make(map[uuid.UUID]*Preferences)}
}

func (m *MemoryPreferenceRepo) Get(ctx context.Context, userID uuid.UUID) (*Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prefs[userID]
	if !ok {
		return nil, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	copied := *p
	return &copied, nil
}

func (m *MemoryPreferenceRepo) Upsert(ctx context.Context, p *Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.UpdatedAt = time.Now()
	stored := *p
	m.prefs[p.UserID] = &stored
	return nil
}

// Stored reports whether a record exists, for the "read never persists
// the default" assertions.
func (m *MemoryPreferenceRepo) Stored(userID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.prefs[userID]
	return ok
}

// MemoryChatLinkRepo is an in-memory ChatLinkRepo with the same
// single-consumption and uniqueness semantics as the postgres one.
type MemoryChatLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID]*ChatLink
	Now   func() time.Time
}

// NewMemoryChatLinkRepo creates an empty in-memory chat link store.
func NewMemoryChatLinkRepo() *MemoryChatLinkRepo {
	return &MemoryChatLinkRepo{
		links: make(map[uuid.UUID]*ChatLink),
		Now:   time.Now,
	}
}

func (m *MemoryChatLinkRepo) Get(ctx context.Context, userID uuid.UUID) (*ChatLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.links[userID]
	if !ok {
		return nil, fmt.Errorf("chat link for %s: %w", userID, ErrNotFound)
	}
	copied := *l
	return &copied, nil
}

func (m *MemoryChatLinkRepo) IssueCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Outstanding-code uniqueness across users.
	for id, l := range m.links {
		if id != userID && !l.Linked && l.Code != nil && *l.Code == code {
			return ErrCodeCollision
		}
	}

	now := m.Now()
	if l, ok := m.links[userID]; ok {
		if l.Linked {
			return ErrConflict
		}
		l.Code = &code
		l.CodeExpiresAt = &expiresAt
		l.UpdatedAt = now
		return nil
	}

	m.links[userID] = &ChatLink{
		UserID:        userID,
		Code:          &code,
		CodeExpiresAt: &expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return nil
}

func (m *MemoryChatLinkRepo) Consume(ctx context.Context, code string, chatID int64, now time.Time) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.links {
		if l.Linked || l.Code == nil || *l.Code != code {
			continue
		}
		if l.CodeExpiresAt == nil || !l.CodeExpiresAt.After(now) {
			continue
		}
		l.Linked = true
		l.ChatID = chatID
		l.Code = nil
		l.CodeExpiresAt = nil
		l.UpdatedAt = now
		return l.UserID, nil
	}
	return uuid.Nil, ErrCodeInvalid
}

func (m *MemoryChatLinkRepo) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.links[userID]; !ok {
		return false, nil
	}
	delete(m.links, userID)
	return true, nil
}

// MemorySubscriptionRepo is an in-memory SubscriptionRepo.
type MemorySubscriptionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*PushSubscription
}

// NewMemorySubscriptionRepo creates an empty in-memory subscription store.
func NewMemorySubscriptionRepo() *MemorySubscriptionRepo {
	return &MemorySubscriptionRepo{subs: make(map[uuid.UUID]*PushSubscription)}
}

func (m *MemorySubscriptionRepo) Get(ctx context.Context, userID uuid.UUID) (*PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subs[userID]
	if !ok {
		return nil, fmt.Errorf("push subscription for %s: %w", userID, ErrNotFound)
	}
	copied := *s
	return &copied, nil
}

func (m *MemorySubscriptionRepo) Upsert(ctx context.Context, s *PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	stored := *s
	m.subs[s.UserID] = &stored
	return nil
}

func (m *MemorySubscriptionRepo) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.subs[userID]; !ok {
		return false, nil
	}
	delete(m.subs, userID)
	return true, nil
}

// MemoryUserRepo is an in-memory UserRepo.
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

// NewMemoryUserRepo creates an empty in-memory user store.
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[uuid.UUID]*User)}
}

// Add seeds a user for tests.
func (m *MemoryUserRepo) Add(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *u
	m.users[u.ID] = &copied
}

func (m *MemoryUserRepo) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	copied := *u
	return &copied, nil
}

// MemoryInvitationRepo is an in-memory InvitationRepo.
type MemoryInvitationRepo struct {
	mu      sync.Mutex
	taskInv map[uuid.UUID]*TaskInvitation
	wsInv   map[uuid.UUID]*WorkspaceInvitation
}

// NewMemoryInvitationRepo creates an empty in-memory invitation store.
func NewMemoryInvitationRepo() *MemoryInvitationRepo {
	return &MemoryInvitationRepo{
		taskInv: make(map[uuid.UUID]*TaskInvitation),
		wsInv:   make(map[uuid.UUID]*WorkspaceInvitation),
	}
}

// AddTask seeds a task invitation for tests.
func (m *MemoryInvitationRepo) AddTask(inv *TaskInvitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *inv
	m.taskInv[inv.ID] = &copied
}

// AddWorkspace seeds a workspace invitation for tests.
func (m *MemoryInvitationRepo) AddWorkspace(inv *WorkspaceInvitation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *inv
	m.wsInv[inv.ID] = &copied
}

func (m *MemoryInvitationRepo) GetTaskInvitation(ctx context.Context, id uuid.UUID) (*TaskInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.taskInv[id]
	if !ok {
		return nil, fmt.Errorf("task invitation %s: %w", id, ErrNotFound)
	}
	copied := *inv
	return &copied, nil
}

func (m *MemoryInvitationRepo) GetWorkspaceInvitation(ctx context.Context, id uuid.UUID) (*WorkspaceInvitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.wsInv[id]
	if !ok {
		return nil, fmt.Errorf("workspace invitation %s: %w", id, ErrNotFound)
	}
	copied := *inv
	return &copied, nil
}
