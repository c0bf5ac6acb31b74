package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// AddressInput is the delivery data a shopper submits.
type AddressInput struct {
	FullName   string `json:"full_name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"required,max=40"`
	Street     string `json:"street" validate:"required,max=300"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state" validate:"max=120"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

// AddressResolver decides which delivery address a shopper checks out with
// and moves guest addresses onto accounts after login.
type AddressResolver struct {
	store    domain.AddressStore
	validate *validator.Validate
	now      func() time.Time
}

func NewAddressResolver(store domain.AddressStore) *AddressResolver {
	return &AddressResolver{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Resolve returns the address the shopper used most recently, or nil when
// there is none. Authenticated shoppers get their saved addresses, anonymous
// shoppers the latest guest address of their device.
func (r *AddressResolver) Resolve(ctx context.Context, identity domain.Identity) (*domain.Address, error) {
	addresses, err := r.List(ctx, identity)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, nil
	}
	return &addresses[0], nil
}

// List returns the shopper's addresses, most recently used first.
func (r *AddressResolver) List(ctx context.Context, identity domain.Identity) ([]domain.Address, error) {
	if identity.Authenticated() {
		addresses, err := r.store.ListByUser(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to list account addresses: %w", err)
		}
		return addresses, nil
	}
	if identity.DeviceID == "" {
		return nil, nil
	}
	addresses, err := r.store.ListGuestByDevice(ctx, identity.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guest addresses: %w", err)
	}
	return addresses, nil
}

// Select marks a saved address as the one to use next.
func (r *AddressResolver) Select(ctx context.Context, identity domain.Identity, addressID uuid.UUID) (*domain.Address, error) {
	addr, err := r.owned(ctx, identity, addressID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if err := r.store.Touch(ctx, addr.ID, now); err != nil {
		return nil, fmt.Errorf("failed to select address: %w", err)
	}
	addr.LastUsedAt = now
	return addr, nil
}

// Save validates and stores a new address. An account that already holds an
// equivalent address gets that address back, marked as most recently used.
func (r *AddressResolver) Save(ctx context.Context, identity domain.Identity, input AddressInput) (*domain.Address, error) {
	if err := r.validateInput(input); err != nil {
		return nil, err
	}

	addr := &domain.Address{
		FullName:   strings.TrimSpace(input.FullName),
		Email:      strings.TrimSpace(input.Email),
		Phone:      strings.TrimSpace(input.Phone),
		Street:     strings.TrimSpace(input.Street),
		City:       strings.TrimSpace(input.City),
		State:      strings.TrimSpace(input.State),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(input.Country)),
		LastUsedAt: r.now(),
	}

	if identity.Authenticated() {
		existing, err := r.findEquivalent(ctx, identity.UserID, addr)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return r.Select(ctx, identity, existing.ID)
		}
		addr.UserID = identity.UserID
	} else {
		if identity.DeviceID == "" {
			return nil, domain.Invalid("address.save", "Device id is required")
		}
		addr.IsGuestAddress = true
		addr.DeviceID = identity.DeviceID
	}

	if err := r.store.Create(ctx, addr); err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return addr, nil
}

// Promote moves a guest address onto the identity's account. When the account
// already holds an equivalent address the guest copy is deleted and the
// existing address is returned instead.
func (r *AddressResolver) Promote(ctx context.Context, addressID uuid.UUID, identity domain.Identity) (*domain.Address, error) {
	if !identity.Authenticated() {
		return nil, domain.Unauthorized("address.promote", "Sign in to save addresses to your account")
	}

	guest, err := r.store.Get(ctx, addressID)
	if err != nil {
		return nil, err
	}
	if !guest.IsGuestAddress {
		if guest.UserID == identity.UserID {
			return guest, nil
		}
		return nil, ErrAddressNotAllowed
	}
	if guest.DeviceID != identity.DeviceID {
		return nil, ErrAddressNotAllowed
	}

	existing, err := r.findEquivalent(ctx, identity.UserID, guest)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := r.store.Delete(ctx, guest.ID); err != nil {
			return nil, fmt.Errorf("failed to discard guest address: %w", err)
		}
		if guest.LastUsedAt.After(existing.LastUsedAt) {
			if err := r.store.Touch(ctx, existing.ID, guest.LastUsedAt); err != nil {
				return nil, fmt.Errorf("failed to touch address: %w", err)
			}
			existing.LastUsedAt = guest.LastUsedAt
		}
		return existing, nil
	}

	if err := r.store.AttachToUser(ctx, guest.ID, identity.UserID); err != nil {
		return nil, fmt.Errorf("failed to attach address: %w", err)
	}
	guest.IsGuestAddress = false
	guest.UserID = identity.UserID
	return guest, nil
}

// PromoteDevice promotes every guest address of the identity's device.
// It is registered as a login hook.
func (r *AddressResolver) PromoteDevice(ctx context.Context, identity domain.Identity) error {
	if !identity.Authenticated() || identity.DeviceID == "" {
		return nil
	}
	guests, err := r.store.ListGuestByDevice(ctx, identity.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to list guest addresses: %w", err)
	}

	var errs []error
	for _, g := range guests {
		if _, err := r.Promote(ctx, g.ID, identity); err != nil {
			errs = append(errs, fmt.Errorf("address %s: %w", g.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ForCheckout returns the address an order ships to. A zero addressID falls
// back to Resolve. A missing or foreign address is ErrMissingAddress.
func (r *AddressResolver) ForCheckout(ctx context.Context, identity domain.Identity, addressID uuid.UUID) (*domain.Address, error) {
	if addressID == uuid.Nil {
		addr, err := r.Resolve(ctx, identity)
		if err != nil {
			return nil, err
		}
		if addr == nil {
			return nil, ErrMissingAddress
		}
		return addr, nil
	}

	addr, err := r.owned(ctx, identity, addressID)
	if err != nil {
		if errors.Is(err, domain.ErrAddressNotFound) || errors.Is(err, ErrAddressNotAllowed) {
			return nil, ErrMissingAddress
		}
		return nil, err
	}
	return addr, nil
}

// Touch records that an address was used for an order.
func (r *AddressResolver) Touch(ctx context.Context, addressID uuid.UUID) error {
	return r.store.Touch(ctx, addressID, r.now())
}

func (r *AddressResolver) owned(ctx context.Context, identity domain.Identity, addressID uuid.UUID) (*domain.Address, error) {
	addr, err := r.store.Get(ctx, addressID)
	if err != nil {
		return nil, err
	}
	if !addr.OwnedBy(identity) {
		return nil, ErrAddressNotAllowed
	}
	return addr, nil
}

func (r *AddressResolver) findEquivalent(ctx context.Context, userID uuid.UUID, addr *domain.Address) (*domain.Address, error) {
	saved, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account addresses: %w", err)
	}
	for i := range saved {
		if saved[i].Equivalent(addr) {
			return &saved[i], nil
		}
	}
	return nil, nil
}

// validateInput maps validator failures to field errors keyed by JSON name.
func (r *AddressResolver) validateInput(input AddressInput) error {
	err := r.validate.Struct(input)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate address: %w", err)
	}

	var out error = &domain.ValidationError{Op: "address.save", Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out = domain.AddFieldError(out, addressFieldNames[fe.Field()], fieldMessage(fe))
	}
	return out
}

var addressFieldNames = map[string]string{
	"FullName":   "full_name",
	"Email":      "email",
	"Phone":      "phone",
	"Street":     "street",
	"City":       "city",
	"State":      "state",
	"PostalCode": "postal_code",
	"Country":    "country",
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "len":
		return fmt.Sprintf("must be %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return "is invalid"
	}
}
