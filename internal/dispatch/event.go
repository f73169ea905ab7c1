package dispatch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/taskhive/pulse/internal/db"
	"github.com/taskhive/pulse/internal/transport"
)

// ErrInvalidEvent is the structural rejection for a malformed event: the
// one class of dispatch failure that is surfaced to the caller.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one state change in the task/workspace domain, raised by the
// task-mutation collaborator, carrying the rendered notification content
// and the affected recipients.
type Event struct {
	// ID is an optional collaborator-supplied identifier used for
	// dedup: replaying the same id dispatches at most once.
	ID string `json:"id,omitempty"`

	Type       db.NotificationType `json:"type"`
	Recipients []uuid.UUID         `json:"recipients"`
	Title      string              `json:"title"`
	Message    string              `json:"message"`
	ActionURL  *string             `json:"action_url,omitempty"`
	EntityID   *uuid.UUID          `json:"entity_id,omitempty"`
	Metadata   map[string]string   `json:"metadata,omitempty"`
}

// Validate checks the structural shape of the event.
func (e *Event) Validate() error {
	if _, ok := db.CategoryFor(e.Type); !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if len(e.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients", ErrInvalidEvent)
	}
	for _, r := range e.Recipients {
		if r == uuid.Nil {
			return fmt.Errorf("%w: nil recipient id", ErrInvalidEvent)
		}
	}
	if e.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidEvent)
	}
	return nil
}

// message renders the channel-agnostic content handed to the transports.
func (e *Event) message() transport.Message {
	return transport.Message{
		Type:      e.Type,
		Title:     e.Title,
		Body:      e.Message,
		ActionURL: e.ActionURL,
		EntityID:  e.EntityID,
		Metadata:  e.Metadata,
	}
}
