// Package transport implements the delivery channels a notification can
// fan out to. Every transport takes a recipient and a rendered message
// and reports a per-channel outcome; none of them block or fail the
// business operation that triggered the dispatch.
package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskhive/pulse/internal/db"
)

// Status classifies a single channel delivery attempt.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Skip reasons reported by the transports.
const (
	ReasonNoSubscription = "no_subscription"
	ReasonNotLinked      = "not_linked"
	ReasonNoEmail        = "no_email"
)

// Message is the channel-agnostic rendered content handed to a transport.
type Message struct {
	Type      db.NotificationType
	Title     string
	Body      string
	ActionURL *string
	EntityID  *uuid.UUID
	Metadata  map[string]string
}

// Result is the outcome of one send on one channel for one recipient.
// A Failed result carries the cause for logging only; it is never
// surfaced to the action that raised the event.
type Result struct {
	Channel db.Channel `json:"channel"`
	Status  Status     `json:"status"`
	Reason  string     `json:"reason,omitempty"`
	Err     error      `json:"-"`

	// NotificationID is set by the in-app transport: the id of the record
	// it created.
	NotificationID uuid.UUID `json:"notification_id,omitempty"`
}

// Delivered builds a success result.
func Delivered(ch db.Channel) Result {
	return Result{Channel: ch, Status: StatusDelivered}
}

// Skipped builds a skip result with a reason.
func Skipped(ch db.Channel, reason string) Result {
	return Result{Channel: ch, Status: StatusSkipped, Reason: reason}
}

// Failed builds a failure result carrying the cause.
func Failed(ch db.Channel, err error) Result {
	return Result{Channel: ch, Status: StatusFailed, Err: err}
}

// Transport is one delivery channel.
type Transport interface {
	Channel() db.Channel
	Send(ctx context.Context, userID uuid.UUID, msg Message) Result
}
