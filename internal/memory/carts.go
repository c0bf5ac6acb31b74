package memory

import (
	"context"
	"sync"

	"github.com/dukerupert/decks/internal/domain"
)

// CartStore implements domain.CartPersister. It serves as the account copy
// and the device copy in tests.
type CartStore struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	saves int

	// LoadErr and SaveErr, when set, are returned by Load and Save.
	LoadErr error
	SaveErr error
}

var _ domain.CartPersister = (*CartStore)(nil)

func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[string]domain.Cart)}
}

func (s *CartStore) Load(ctx context.Context, key string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return s.carts[key].Clone(), nil
}

func (s *CartStore) Save(ctx context.Context, key string, cart domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.carts[key] = cart.Clone()
	s.saves++
	return nil
}

func (s *CartStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, key)
	return nil
}

// SetErrors swaps the injected failures under the store lock.
func (s *CartStore) SetErrors(loadErr, saveErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadErr = loadErr
	s.SaveErr = saveErr
}

// Saves returns how many successful saves the store has seen.
func (s *CartStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
