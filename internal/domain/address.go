package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrAddressNotFound = &Error{Code: ENOTFOUND, Message: "Address not found"}

// Address is a delivery address owned by an account or, for guests, by a device.
// Guest addresses have IsGuestAddress set and no UserID.
type Address struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	IsGuestAddress bool
	DeviceID       string
	FullName       string
	Email          string
	Phone          string
	Street         string
	City           string
	State          string
	PostalCode     string
	Country        string
	LastUsedAt     time.Time
	CreatedAt      time.Time
}

// OwnedBy reports whether the shopper may use the address.
func (a *Address) OwnedBy(id Identity) bool {
	if a.IsGuestAddress {
		return id.DeviceID != "" && a.DeviceID == id.DeviceID
	}
	return id.Authenticated() && a.UserID == id.UserID
}

// Equivalent reports whether two addresses point at the same place:
// same normalized street and postal code.
func (a *Address) Equivalent(other *Address) bool {
	if other == nil {
		return false
	}
	return NormalizeAddressLine(a.Street) == NormalizeAddressLine(other.Street) &&
		NormalizeAddressLine(a.PostalCode) == NormalizeAddressLine(other.PostalCode)
}

// NormalizeAddressLine trims, case-folds and collapses internal whitespace.
func NormalizeAddressLine(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AddressStore persists addresses. List methods return the most recently used first.
type AddressStore interface {
	Create(ctx context.Context, addr *Address) error
	Get(ctx context.Context, id uuid.UUID) (*Address, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Address, error)
	ListGuestByDevice(ctx context.Context, deviceID string) ([]Address, error)

	// Touch sets LastUsedAt.
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error

	// AttachToUser turns a guest address into an account address.
	AttachToUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	Delete(ctx context.Context, id uuid.UUID) error
}
