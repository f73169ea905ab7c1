// Package prefs is the preference store accessor: the only component
// that reads or writes per-user notification preferences.
package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

// ErrInvalidSelector rejects a selector outside the enumerated five values.
var ErrInvalidSelector = errors.New("invalid channel selector")

// Store is the persistence contract; satisfied by db.PreferenceRepo and
// db.MemoryPreferenceRepo.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Preferences, error)
	Upsert(ctx context.Context, p *db.Preferences) error
}

// Service wraps the store with default and validation semantics.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a preference accessor.
func New(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the user's stored preferences, or the documented default
// when none exist. Never returns not-found, and never persists the
// default as a side effect of the read.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*db.Preferences, error) {
	p, err := s.store.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return db.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

// Set stores the complete preference record with full-replace semantics.
// The only validation is enum membership of each selector.
func (s *Service) Set(ctx context.Context, userID uuid.UUID, p *db.Preferences) error {
	for category, selector := range p.Selectors() {
		if !selector.Valid() {
			return fmt.Errorf("%w: %q for %s", ErrInvalidSelector, selector, category)
		}
	}

	p.UserID = userID
	if err := s.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}

	s.logger.Debug("preferences updated", zap.String("user_id", userID.String()))
	return nil
}
