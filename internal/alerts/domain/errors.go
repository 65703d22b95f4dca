package alerts

import "errors"

var (
	// ErrNotFound indicates a missing alert record.
	ErrNotFound = errors.New("alert: not found")
	// ErrDuplicateAlert indicates an unacknowledged alert already exists for
	// the same rule and device. Raised by storage when the uniqueness
	// constraint fires under a concurrent-trigger race.
	ErrDuplicateAlert = errors.New("alert: duplicate unacknowledged alert")
)
