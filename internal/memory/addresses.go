package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
)

// AddressStore implements domain.AddressStore.
type AddressStore struct {
	mu        sync.Mutex
	addresses map[uuid.UUID]domain.Address
}

var _ domain.AddressStore = (*AddressStore)(nil)

func NewAddressStore() *AddressStore {
	return &AddressStore{addresses: make(map[uuid.UUID]domain.Address)}
}

func (s *AddressStore) Create(ctx context.Context, addr *domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now()
	}
	if addr.LastUsedAt.IsZero() {
		addr.LastUsedAt = addr.CreatedAt
	}
	s.addresses[addr.ID] = *addr
	return nil
}

func (s *AddressStore) Get(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.addresses[id]
	if !ok {
		return nil, domain.ErrAddressNotFound
	}
	return &a, nil
}

func (s *AddressStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Address, error) {
	return s.list(func(a domain.Address) bool {
		return !a.IsGuestAddress && a.UserID == userID
	}), nil
}

func (s *AddressStore) ListGuestByDevice(ctx context.Context, deviceID string) ([]domain.Address, error) {
	return s.list(func(a domain.Address) bool {
		return a.IsGuestAddress && a.DeviceID == deviceID
	}), nil
}

func (s *AddressStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.addresses[id]
	if !ok {
		return domain.ErrAddressNotFound
	}
	a.LastUsedAt = at
	s.addresses[id] = a
	return nil
}

func (s *AddressStore) AttachToUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.addresses[id]
	if !ok {
		return domain.ErrAddressNotFound
	}
	a.UserID = userID
	a.IsGuestAddress = false
	s.addresses[id] = a
	return nil
}

func (s *AddressStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.addresses[id]; !ok {
		return domain.ErrAddressNotFound
	}
	delete(s.addresses, id)
	return nil
}

func (s *AddressStore) list(match func(domain.Address) bool) []domain.Address {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Address
	for _, a := range s.addresses {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUsedAt.After(out[j].LastUsedAt)
	})
	return out
}
