// Package memory provides in-process implementations of the storage interfaces.
// They back the service tests and the STORE_BACKEND=memory development mode.
package memory

import (
	"context"
	"sync"

	"github.com/dukerupert/decks/internal/domain"
)

// InventoryStore implements domain.InventoryStore with a mutex-guarded map.
type InventoryStore struct {
	mu     sync.Mutex
	stocks map[string]int

	// SnapshotsErr, when set, is returned by Snapshots. Used to simulate an
	// unreachable inventory service.
	SnapshotsErr error
}

var _ domain.InventoryStore = (*InventoryStore)(nil)

// NewInventoryStore creates a store seeded with the given stock counts.
func NewInventoryStore(stocks map[string]int) *InventoryStore {
	s := &InventoryStore{stocks: make(map[string]int, len(stocks))}
	for id, qty := range stocks {
		s.stocks[id] = qty
	}
	return s
}

// SetStock overwrites the stock count of a product.
func (s *InventoryStore) SetStock(productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stocks[productID] = qty
}

// Stock returns the current count of a product.
func (s *InventoryStore) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stocks[productID]
}

// Snapshots returns current stock for the given products.
func (s *InventoryStore) Snapshots(ctx context.Context, productIDs []string) (map[string]domain.StockSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SnapshotsErr != nil {
		return nil, s.SnapshotsErr
	}

	out := make(map[string]domain.StockSnapshot, len(productIDs))
	for _, id := range productIDs {
		if qty, ok := s.stocks[id]; ok {
			out[id] = domain.NewStockSnapshot(id, qty)
		}
	}
	return out, nil
}

// Decrement subtracts qty from one product if enough units remain.
func (s *InventoryStore) Decrement(ctx context.Context, productID string, qty int) error {
	return s.DecrementAll(ctx, []domain.StockLine{{ProductID: productID, Quantity: qty}})
}

// DecrementAll validates every line first, then applies them all.
func (s *InventoryStore) DecrementAll(ctx context.Context, lines []domain.StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := make(map[string]int, len(lines))
	for _, line := range lines {
		need[line.ProductID] += line.Quantity
	}
	for id, qty := range need {
		if s.stocks[id] < qty {
			return domain.ErrInsufficientInventory
		}
	}

	for id, qty := range need {
		s.stocks[id] -= qty
	}
	return nil
}

// Restock adds quantities back.
func (s *InventoryStore) Restock(ctx context.Context, lines []domain.StockLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, line := range lines {
		s.stocks[line.ProductID] += line.Quantity
	}
	return nil
}

// FailSnapshots makes Snapshots return err until called again with nil.
func (s *InventoryStore) FailSnapshots(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SnapshotsErr = err
}
