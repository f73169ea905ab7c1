package chatlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/chatapi"
	"github.com/taskhive/pulse/internal/db"
	"github.com/taskhive/pulse/internal/metrics"
	"github.com/taskhive/pulse/internal/redis"
)

// Reply texts. The invalid reply is deliberately the same for a wrong
// code, an expired code, and a code that never existed.
const (
	welcomeReply = "*Welcome!* Open your notification settings in the app, " +
		"request a connection code, and send the 6-digit code here."
	linkedReply    = "*Connected.* You will now receive notifications in this chat."
	invalidReply   = "That code is invalid or has expired. Request a new one from the app."
	throttledReply = "Too many attempts. Wait a minute and try again."
	fallbackReply  = "I only understand connection codes. Send /start for help."
)

const startCommand = "/start"

// Webhook classifies inbound chat updates and completes linking. The
// classifier is a fixed precedence order: command prefix, then six-digit
// code, then fallback.
type Webhook struct {
	store   Store
	sender  chatapi.Sender
	limiter *redis.RateLimiter
	logger  *zap.Logger

	// Now is swappable in tests.
	Now func() time.Time
}

// Update is the inbound chat-platform payload. Only the fields the
// classifier needs are modeled; everything else passes through decode
// unharmed and ignored.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

// IncomingMessage is the message portion of an Update.
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// NewWebhook creates a webhook processor. limiter may be nil, which
// disables submission throttling (tests, local development).
func NewWebhook(store Store, sender chatapi.Sender, limiter *redis.RateLimiter, logger *zap.Logger) *Webhook {
	return &Webhook{
		store:   store,
		sender:  sender,
		limiter: limiter,
		logger:  logger,
		Now:     time.Now,
	}
}

// Process handles one inbound update. It never returns an error for
// user input: malformed or unmatched updates are acknowledged silently
// so the chat platform does not retry them.
func (w *Webhook) Process(ctx context.Context, upd *Update) {
	if upd == nil || upd.Message == nil || upd.Message.Chat.ID == 0 {
		metrics.RecordWebhookUpdate("ignored")
		return
	}

	chatID := upd.Message.Chat.ID
	text := upd.Message.Text

	switch {
	case hasCommandPrefix(text, startCommand):
		metrics.RecordWebhookUpdate("command")
		w.reply(ctx, chatID, welcomeReply)

	case isCode(text):
		metrics.RecordWebhookUpdate("code")
		w.verify(ctx, chatID, text)

	default:
		metrics.RecordWebhookUpdate("fallback")
		w.reply(ctx, chatID, fallbackReply)
	}
}

func (w *Webhook) verify(ctx context.Context, chatID int64, code string) {
	if !w.allowSubmission(ctx, chatID) {
		metrics.RecordRateLimitRejection()
		w.reply(ctx, chatID, throttledReply)
		return
	}

	userID, err := w.store.Consume(ctx, code, chatID, w.Now())
	switch {
	case err == nil:
		metrics.RecordVerification("linked")
		w.logger.Info("chat identity linked",
			zap.String("user_id", userID.String()),
			zap.Int64("chat_id", chatID),
		)
		w.reply(ctx, chatID, linkedReply)

	case errors.Is(err, db.ErrCodeInvalid):
		metrics.RecordVerification("rejected")
		w.reply(ctx, chatID, invalidReply)

	default:
		// Infrastructure failure. The user still gets the generic reply;
		// the distinction lives in logs only.
		metrics.RecordVerification("error")
		w.logger.Error("code consumption failed", zap.Error(err))
		w.reply(ctx, chatID, invalidReply)
	}
}

// allowSubmission rate-limits code submissions per chat identity. A
// limiter failure fails closed: guessing must not become free because
// redis is down.
func (w *Webhook) allowSubmission(ctx context.Context, chatID int64) bool {
	if w.limiter == nil {
		return true
	}

	result, err := w.limiter.Allow(ctx, fmt.Sprintf("chat:%d", chatID))
	if err != nil {
		w.logger.Warn("rate limiter unavailable, rejecting submission", zap.Error(err))
		return false
	}

	return result.Allowed
}

func (w *Webhook) reply(ctx context.Context, chatID int64, text string) {
	if err := w.sender.SendMessage(ctx, chatID, text); err != nil {
		w.logger.Warn("webhook reply failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func hasCommandPrefix(text, command string) bool {
	if len(text) < len(command) {
		return false
	}
	if text[:len(command)] != command {
		return false
	}
	// "/start" and "/start deep-link-payload", but not "/started".
	return len(text) == len(command) || text[len(command)] == ' '
}

// isCode matches exactly six ASCII digits.
func isCode(text string) bool {
	if len(text) != 6 {
		return false
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return false
		}
	}
	return true
}
