// Package chatlink binds application users to external chat identities
// through short-lived numeric verification codes. Issuance happens on the
// authenticated API side; consumption happens on the inbound webhook side.
package chatlink

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
)

const (
	codeTTL = 30 * time.Minute

	// codeSpace is 10^6: codes are zero-padded six-digit strings.
	codeSpace = 1000000

	// issueAttempts bounds re-rolls when a generated code collides with
	// another outstanding one.
	issueAttempts = 5
)

// Store is the chat link persistence surface, satisfied by db.ChatLinkRepo.
type Store interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.ChatLink, error)
	IssueCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error
	Consume(ctx context.Context, code string, chatID int64, now time.Time) (uuid.UUID, error)
	Delete(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service issues and revokes verification codes.
type Service struct {
	store  Store
	logger *zap.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// NewService creates a chat link service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		Now:    time.Now,
	}
}

// Issue generates and stores a fresh code for the user, invalidating any
// prior outstanding code. Re-rolls on collision with another outstanding
// code; returns db.ErrConflict when the user is already linked.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	expiresAt := s.Now().Add(codeTTL)

	for attempt := 1; attempt <= issueAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("generate code: %w", err)
		}

		err = s.store.IssueCode(ctx, userID, code, expiresAt)
		if err == nil {
			s.logger.Info("verification code issued",
				zap.String("user_id", userID.String()),
				zap.Time("expires_at", expiresAt),
			)
			return code, expiresAt, nil
		}
		if !errors.Is(err, db.ErrCodeCollision) {
			return "", time.Time{}, err
		}

		s.logger.Warn("verification code collision, re-rolling",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
		)
	}

	return "", time.Time{}, fmt.Errorf("issue code: %d collisions in a row: %w", issueAttempts, db.ErrCodeCollision)
}

// Disconnect removes the user's chat binding, linked or not. Returns
// whether anything was removed; repeating a disconnect is a no-op.
func (s *Service) Disconnect(ctx context.Context, userID uuid.UUID) (bool, error) {
	removed, err := s.store.Delete(ctx, userID)
	if err != nil {
		return false, err
	}

	if removed {
		s.logger.Info("chat link disconnected", zap.String("user_id", userID.String()))
	}

	return removed, nil
}

// Status reports whether the user currently has a verified chat binding.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (bool, error) {
	link, err := s.store.Get(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return link.Linked, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%06d", n.Int64()), nil
}
