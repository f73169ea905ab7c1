package db

import "errors"

// Sentinel errors shared by all repositories. Callers classify with
// errors.Is and map to the HTTP surface at the API boundary.
var (
	// ErrNotFound means the referenced user/notification/subscription/link
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCodeInvalid means a verification code did not match any
	// outstanding, non-expired, unconsumed code. Deliberately a single
	// error: callers must not distinguish wrong from expired from unknown.
	ErrCodeInvalid = errors.New("invalid or expired verification code")

	// ErrCodeCollision means a freshly generated code collided with another
	// outstanding code. The issuer re-rolls on this.
	ErrCodeCollision = errors.New("verification code already outstanding")

	// ErrConflict means a conditional write lost a race (e.g. a
	// verification racing a disconnect on the same chat link).
	ErrConflict = errors.New("concurrent modification conflict")
)
