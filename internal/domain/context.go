// Package domain provides core business types and context helpers for the storefront.
//
// Context helpers centralize request-scoped data access so that handlers and
// services agree on who the shopper is without passing it through every call.
package domain

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey int

const (
	// identityContextKey stores the shopper identity in context.
	identityContextKey contextKey = iota
)

// Identity identifies the shopper behind a request.
// Every shopper has a device id (issued by cookie on first visit).
// UserID is uuid.Nil until the external account service authenticates the shopper.
type Identity struct {
	UserID   uuid.UUID
	DeviceID string
	Email    string
}

// Authenticated reports whether the identity belongs to a signed-in account.
func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}

// AccountKey returns the key of the account cart copy, or "" when anonymous.
func (i Identity) AccountKey() string {
	if !i.Authenticated() {
		return ""
	}
	return i.UserID.String()
}

// --- Identity Context Helpers ---

// NewContextWithIdentity returns a new context with the shopper identity attached.
func NewContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the shopper identity from context.
// The boolean is false when no identity middleware ran for the request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok
}
