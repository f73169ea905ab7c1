package feed

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrBadCursor marks a page token the service cannot parse. Callers map
// it to a client error rather than a server fault.
var ErrBadCursor = errors.New("invalid cursor")

// Cursor is an opaque keyset-pagination token encoding the (createdAt, id)
// position of the last item on the previous page. Offset pagination would
// skip or repeat rows when new notifications land between page fetches.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode serializes the cursor for the wire.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d|%s", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a wire token. An empty token means "first page".
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("%w: malformed token", ErrBadCursor)
	}

	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrBadCursor)
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad id", ErrBadCursor)
	}

	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// IsZero reports whether the cursor is the first-page marker.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == uuid.Nil
}
