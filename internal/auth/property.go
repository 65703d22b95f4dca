package auth

import (
	"context"
	"errors"
)

// ErrPropertyMismatch indicates the resource belongs to a different property.
var ErrPropertyMismatch = errors.New("property mismatch")

// EnsurePropertyScope verifies the requested property matches the token scope.
// Viewers and owners are both confined to their own property.
func EnsurePropertyScope(ctx context.Context, propertyID string) error {
	scope := PropertyIDFromContext(ctx)
	if scope == "" || propertyID == "" {
		return nil
	}
	if scope != propertyID {
		return ErrPropertyMismatch
	}
	return nil
}
