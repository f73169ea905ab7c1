package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/chatapi"
	"github.com/taskhive/pulse/internal/db"
)

// chatBodyMaxRunes caps the chat message body. Chat notifications stay
// concise; the full text is always available in-app. Well under the
// platform's own 4096 limit.
const chatBodyMaxRunes = 320

// ChatLinkReader resolves the recipient's chat binding.
type ChatLinkReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.ChatLink, error)
}

// Chat delivers through the external chat bot. Requires a verified link;
// an unlinked recipient is a skip, a bot API error is a non-retriable,
// non-fatal failure.
type Chat struct {
	sender chatapi.Sender
	links  ChatLinkReader
	logger *zap.Logger
}

// NewChat creates the chat transport.
func NewChat(sender chatapi.Sender, links ChatLinkReader, logger *zap.Logger) *Chat {
	return &Chat{sender: sender, links: links, logger: logger}
}

func (t *Chat) Channel() db.Channel { return db.ChannelChat }

func (t *Chat) Send(ctx context.Context, userID uuid.UUID, msg Message) Result {
	link, err := t.links.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Skipped(db.ChannelChat, ReasonNotLinked)
		}
		return Failed(db.ChannelChat, fmt.Errorf("resolve chat link: %w", err))
	}
	if !link.Linked {
		return Skipped(db.ChannelChat, ReasonNotLinked)
	}

	if err := t.sender.SendMessage(ctx, link.ChatID, formatChatMessage(msg)); err != nil {
		return Failed(db.ChannelChat, err)
	}

	t.logger.Debug("chat message delivered",
		zap.String("user_id", userID.String()),
		zap.Int64("chat_id", link.ChatID),
	)

	return Delivered(db.ChannelChat)
}

// formatChatMessage renders the chat-markup text: bold title, truncated
// body, optional action link.
func formatChatMessage(msg Message) string {
	text := fmt.Sprintf("*%s*\n%s", msg.Title, truncate(msg.Body, chatBodyMaxRunes))
	if msg.ActionURL != nil {
		text += "\n" + *msg.ActionURL
	}
	return text
}

// truncate cuts s at limit runes, appending an ellipsis when shortened.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
