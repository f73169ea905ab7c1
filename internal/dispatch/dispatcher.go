// Package dispatch is the notification fan-out orchestrator: given a
// domain event it resolves recipients and their channel preferences,
// writes the in-app record for every recipient, and fans external sends
// out with bounded concurrency. Channel failures never propagate to the
// action that raised the event.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskhive/pulse/internal/db"
	"github.com/taskhive/pulse/internal/metrics"
	"github.com/taskhive/pulse/internal/transport"
)

// SkipUnknownRecipient marks a recipient id that resolved to no user.
const SkipUnknownRecipient = "unknown_recipient"

// PreferenceReader resolves a recipient's channel preferences; satisfied
// by prefs.Service (never returns not-found).
type PreferenceReader interface {
	Get(ctx context.Context, userID uuid.UUID) (*db.Preferences, error)
}

// UserReader resolves recipient existence.
type UserReader interface {
	Get(ctx context.Context, id uuid.UUID) (*db.User, error)
}

// Deduper suppresses replayed event ids. Nil disables dedup.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Config tunes the fan-out.
type Config struct {
	// ConcurrencyLimit caps concurrent external transport calls so a
	// large recipient set cannot overwhelm the downstream APIs.
	ConcurrencyLimit int

	// SendTimeout bounds each external transport call; an overrun is
	// recorded as Failed for that channel only.
	SendTimeout time.Duration
}

// Dispatcher fans one event out to recipients and channels.
type Dispatcher struct {
	prefs    PreferenceReader
	users    UserReader
	inApp    transport.Transport
	external map[db.Channel]transport.Transport
	dedup    Deduper
	config   Config
	logger   *zap.Logger
}

// New creates a dispatcher. externals are keyed by their channel; dedup
// may be nil.
func New(prefs PreferenceReader, users UserReader, inApp transport.Transport, externals []transport.Transport, dedup Deduper, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 16
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}

	external := make(map[db.Channel]transport.Transport, len(externals))
	for _, t := range externals {
		external[t.Channel()] = t
	}

	return &Dispatcher{
		prefs:    prefs,
		users:    users,
		inApp:    inApp,
		external: external,
		dedup:    dedup,
		config:   cfg,
		logger:   logger,
	}
}

// RecipientOutcome is the per-recipient delivery record.
type RecipientOutcome struct {
	UserID     uuid.UUID          `json:"user_id"`
	Skipped    bool               `json:"skipped,omitempty"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Results    []transport.Result `json:"results"`
}

// Outcome is the result of one dispatch call. Channel-level failures are
// inside the per-recipient results; they never fail the dispatch.
type Outcome struct {
	EventID    string              `json:"event_id,omitempty"`
	Type       db.NotificationType `json:"type"`
	Duplicate  bool                `json:"duplicate,omitempty"`
	Recipients []RecipientOutcome  `json:"recipients"`
}

// selectorChannels maps a preference selector to the external channels it
// enables. Per the dispatch rules, "all" means push and chat in addition
// to the unconditional in-app write; email fires only when selected
// explicitly.
func selectorChannels(s db.Selector) []db.Channel {
	switch s {
	case db.SelectorPush:
		return []db.Channel{db.ChannelPush}
	case db.SelectorEmail:
		return []db.Channel{db.ChannelEmail}
	case db.SelectorChat:
		return []db.Channel{db.ChannelChat}
	case db.SelectorAll:
		return []db.Channel{db.ChannelPush, db.ChannelChat}
	}
	return nil
}

// externalSend is one queued (recipient, channel) pair for phase two.
type externalSend struct {
	recipientIdx int
	channel      db.Channel
}

// Dispatch runs the fan-out for one event. It returns an error only for
// structural problems (malformed event); unknown recipients are skipped
// with a warning and transport failures are recorded per channel.
//
// The in-app record for every resolvable recipient exists (or is
// confirmed failed) before Dispatch returns; external sends also finish
// before return but carry no ordering guarantee among themselves.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) (*Outcome, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	outcome := &Outcome{EventID: event.ID, Type: event.Type}

	if event.ID != "" && d.dedup != nil {
		claimed, err := d.dedup.Claim(ctx, event.ID)
		if err != nil {
			// Dedup is best-effort: a dead cache must not block notifications.
			d.logger.Warn("event dedup unavailable, dispatching anyway",
				zap.Error(err),
				zap.String("event_id", event.ID),
			)
		} else if !claimed {
			metrics.RecordDuplicateEvent()
			outcome.Duplicate = true
			return outcome, nil
		}
	}

	category, _ := db.CategoryFor(event.Type)
	msg := event.message()

	// Phase one: resolve each recipient and write the in-app record.
	// This is the part callers rely on before the dispatch is complete.
	var (
		pending      []externalSend
		inAppWrites  int
		inAppFailed  int
	)

	for _, userID := range event.Recipients {
		ro := RecipientOutcome{UserID: userID}

		if _, err := d.users.Get(ctx, userID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				d.logger.Warn("skipping unknown recipient",
					zap.String("user_id", userID.String()),
					zap.String("event_type", string(event.Type)),
				)
				ro.Skipped = true
				ro.SkipReason = SkipUnknownRecipient
				outcome.Recipients = append(outcome.Recipients, ro)
				continue
			}
			return nil, fmt.Errorf("resolve recipient %s: %w", userID, err)
		}

		result := d.inApp.Send(ctx, userID, msg)
		metrics.RecordDelivery(string(result.Channel), string(result.Status))
		if result.Status == transport.StatusFailed {
			inAppFailed++
			d.logger.Error("in-app write failed",
				zap.Error(result.Err),
				zap.String("user_id", userID.String()),
				zap.String("event_type", string(event.Type)),
			)
		} else {
			inAppWrites++
		}
		ro.Results = append(ro.Results, result)

		selector := d.resolveSelector(ctx, userID, category)
		idx := len(outcome.Recipients)
		for _, ch := range selectorChannels(selector) {
			if _, ok := d.external[ch]; ok {
				pending = append(pending, externalSend{recipientIdx: idx, channel: ch})
			}
		}

		outcome.Recipients = append(outcome.Recipients, ro)
	}

	// A dispatch that wrote nothing because the store was down should not
	// hold the event id: release so the collaborator's retry can land.
	if inAppWrites == 0 && inAppFailed > 0 && event.ID != "" && d.dedup != nil {
		if err := d.dedup.Release(ctx, event.ID); err != nil {
			d.logger.Warn("failed to release event claim", zap.Error(err), zap.String("event_id", event.ID))
		}
	}

	// Phase two: external sends, independent across recipients and
	// channels, bounded concurrency, per-send timeout.
	d.sendExternal(ctx, outcome, pending, msg)

	metrics.RecordDispatch(string(event.Type), time.Since(start))

	return outcome, nil
}

// resolveSelector fetches the recipient's selector for the category,
// falling back to the default preferences if the store read fails: a
// broken preference read degrades to in-app only rather than failing the
// other recipients.
func (d *Dispatcher) resolveSelector(ctx context.Context, userID uuid.UUID, category db.Category) db.Selector {
	p, err := d.prefs.Get(ctx, userID)
	if err != nil {
		d.logger.Warn("preference read failed, using defaults",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return db.SelectorNone
	}
	return p.Selector(category)
}

func (d *Dispatcher) sendExternal(ctx context.Context, outcome *Outcome, pending []externalSend, msg transport.Message) {
	if len(pending) == 0 {
		return
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.config.ConcurrencyLimit)
	)

	for _, send := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(send externalSend) {
			defer wg.Done()
			defer func() { <-sem }()

			t := d.external[send.channel]
			userID := outcome.Recipients[send.recipientIdx].UserID

			sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
			defer cancel()

			result := t.Send(sendCtx, userID, msg)
			metrics.RecordDelivery(string(result.Channel), string(result.Status))

			if result.Status == transport.StatusFailed {
				d.logger.Warn("channel delivery failed",
					zap.Error(result.Err),
					zap.String("channel", string(result.Channel)),
					zap.String("user_id", userID.String()),
				)
			}

			mu.Lock()
			outcome.Recipients[send.recipientIdx].Results = append(outcome.Recipients[send.recipientIdx].Results, result)
			mu.Unlock()
		}(send)
	}

	wg.Wait()
}
