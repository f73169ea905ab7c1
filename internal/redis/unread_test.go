package redis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestUnreadCounter_MissThenSeed(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()

	counter := NewUnreadCounter(client, zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	_, found, err := counter.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if found {
		t.Fatal("expected a miss for a fresh user")
	}

	if err := counter.Set(ctx, userID, 3); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	count, found, err := counter.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get after set failed: %v", err)
	}
	if !found || count != 3 {
		t.Fatalf("expected cached count 3, got %d (found=%v)", count, found)
	}
}

func TestUnreadCounter_IncrOnlyWhenSeeded(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()

	counter := NewUnreadCounter(client, zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	// Incr before any seed must not create the key.
	if err := counter.Incr(ctx, userID); err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	if _, found, _ := counter.Get(ctx, userID); found {
		t.Fatal("incr on a missing key must not seed it")
	}

	if err := counter.Set(ctx, userID, 2); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := counter.Incr(ctx, userID); err != nil {
		t.Fatalf("incr after seed failed: %v", err)
	}

	count, _, _ := counter.Get(ctx, userID)
	if count != 3 {
		t.Fatalf("expected 3 after seed+incr, got %d", count)
	}
}

func TestUnreadCounter_Invalidate(t *testing.T) {
	client, cleanup := setupTestClient(t)
	defer cleanup()

	counter := NewUnreadCounter(client, zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	if err := counter.Set(ctx, userID, 5); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := counter.Invalidate(ctx, userID); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	if _, found, _ := counter.Get(ctx, userID); found {
		t.Fatal("invalidated counter should be a miss")
	}
}
