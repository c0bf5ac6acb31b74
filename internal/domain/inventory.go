package domain

import (
	"context"
)

// ErrInsufficientInventory is returned by the atomic decrement when the stored
// count is lower than the requested quantity. Nothing is written in that case.
var ErrInsufficientInventory = &Error{Code: ECONFLICT, Message: "Insufficient inventory"}

// StockSnapshot is a point-in-time view of a product's stock.
// InStock is always derived from AvailableStock, never stored independently.
type StockSnapshot struct {
	ProductID      string
	AvailableStock int
	InStock        bool
}

// NewStockSnapshot builds a snapshot with InStock derived from available.
func NewStockSnapshot(productID string, available int) StockSnapshot {
	if available < 0 {
		available = 0
	}
	return StockSnapshot{
		ProductID:      productID,
		AvailableStock: available,
		InStock:        available > 0,
	}
}

// StockLine is a product quantity pair used for decrements and restocks.
type StockLine struct {
	ProductID string
	Quantity  int
}

// InventoryStore is the authoritative source of product stock.
// Every writer goes through Decrement or DecrementAll, which apply the
// conditional "available >= qty" check and the write as one atomic step.
type InventoryStore interface {
	// Snapshots returns current stock for the given products.
	// Unknown products are absent from the result.
	Snapshots(ctx context.Context, productIDs []string) (map[string]StockSnapshot, error)

	// Decrement subtracts qty from one product.
	// Returns ErrInsufficientInventory when fewer than qty units remain.
	Decrement(ctx context.Context, productID string, qty int) error

	// DecrementAll subtracts every line or none of them.
	// Returns ErrInsufficientInventory when any line cannot be satisfied.
	DecrementAll(ctx context.Context, lines []StockLine) error

	// Restock adds quantities back. Used to compensate a failed order write.
	Restock(ctx context.Context, lines []StockLine) error
}
