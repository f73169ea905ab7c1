package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// uniqueViolation is the postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// ChatLinkRepo persists user ↔ chat identity bindings. All writes are
// conditional single statements so that a verification racing a disconnect
// is serialized by the row: whichever lands second sees the other's state.
type ChatLinkRepo struct {
	db     *DB
	logger *zap.Logger
}

// NewChatLinkRepo creates a chat link repository.
func NewChatLinkRepo(db *DB, logger *zap.Logger) *ChatLinkRepo {
	return &ChatLinkRepo{db: db, logger: logger}
}

// Get returns the chat link for a user, or ErrNotFound.
func (r *ChatLinkRepo) Get(ctx context.Context, userID uuid.UUID) (*ChatLink, error) {
	query := `
		SELECT user_id, chat_id, linked, code, code_expires_at, created_at, updated_at
		FROM chat_links
		WHERE user_id = $1
	`

	var l ChatLink
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&l.UserID,
		&l.ChatID,
		&l.Linked,
		&l.Code,
		&l.CodeExpiresAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chat link for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query chat link: %w", err)
	}

	return &l, nil
}

// IssueCode stores a fresh verification code for the user, replacing any
// prior outstanding code. Returns ErrCodeCollision when the code collides
// with another outstanding code (partial unique index on unconsumed codes);
// the caller re-rolls.
func (r *ChatLinkRepo) IssueCode(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	query := `
		INSERT INTO chat_links (user_id, chat_id, linked, code, code_expires_at)
		VALUES ($1, 0, FALSE, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET
			code            = EXCLUDED.code,
			code_expires_at = EXCLUDED.code_expires_at,
			updated_at      = NOW()
		WHERE NOT chat_links.linked
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, code, expiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeCollision
		}
		return fmt.Errorf("issue code: %w", err)
	}

	// Zero rows means the user is already linked; issuing a code there
	// would silently desync the state machine.
	if result.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

// Consume atomically claims an outstanding code: exactly one submission
// can match, and the same statement clears the code and stores the chat
// identity. Any non-matching submission — wrong code, expired code,
// already-consumed code, disconnected link — yields the same ErrCodeInvalid.
func (r *ChatLinkRepo) Consume(ctx context.Context, code string, chatID int64, now time.Time) (uuid.UUID, error) {
	query := `
		UPDATE chat_links
		SET linked = TRUE, chat_id = $2, code = NULL, code_expires_at = NULL, updated_at = NOW()
		WHERE code = $1 AND NOT linked AND code_expires_at > $3
		RETURNING user_id
	`

	var userID uuid.UUID
	err := r.db.Pool().QueryRow(ctx, query, code, chatID, now).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrCodeInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("consume code: %w", err)
	}

	r.logger.Info("chat link verified",
		zap.String("user_id", userID.String()),
		zap.Int64("chat_id", chatID),
	)

	return userID, nil
}

// Delete removes the whole binding. Returns whether a row existed; a
// repeat disconnect is a no-op, not an error.
func (r *ChatLinkRepo) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM chat_links WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete chat link: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
