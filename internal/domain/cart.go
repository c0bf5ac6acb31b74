package domain

import (
	"context"
	"sort"
)

// Cart maps product id to requested quantity.
// Entries with quantity <= 0 are never stored.
type Cart map[string]int

// Clone returns an independent copy of the cart. A nil cart clones to an empty one.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, qty := range c {
		if qty > 0 {
			out[id] = qty
		}
	}
	return out
}

// Set stores qty for productID, removing the entry when qty <= 0.
func (c Cart) Set(productID string, qty int) {
	if qty <= 0 {
		delete(c, productID)
		return
	}
	c[productID] = qty
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c) == 0
}

// TotalQuantity returns the sum of all line quantities.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, qty := range c {
		total += qty
	}
	return total
}

// ProductIDs returns the cart's product ids in ascending order.
func (c Cart) ProductIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lines returns the cart as stock lines ordered by product id.
func (c Cart) Lines() []StockLine {
	lines := make([]StockLine, 0, len(c))
	for _, id := range c.ProductIDs() {
		lines = append(lines, StockLine{ProductID: id, Quantity: c[id]})
	}
	return lines
}

// CartPersister stores one durable copy of a cart under a key.
// The device copy is keyed by device id, the account copy by user id.
type CartPersister interface {
	// Load returns the stored cart, or an empty cart when nothing is stored.
	Load(ctx context.Context, key string) (Cart, error)

	// Save replaces the stored cart.
	Save(ctx context.Context, key string, cart Cart) error

	// Clear removes the stored cart.
	Clear(ctx context.Context, key string) error
}

// Equal reports whether both carts hold the same lines.
func (c Cart) Equal(other Cart) bool {
	if len(c) != len(other) {
		return false
	}
	for id, qty := range c {
		if other[id] != qty {
			return false
		}
	}
	return true
}
