package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/jackc/pgx/v5"
)

// InventoryStore implements domain.InventoryStore.
//
// Every decrement is a single conditional UPDATE, so two writers can never
// both take the last unit.
type InventoryStore struct {
	db DB
}

var _ domain.InventoryStore = (*InventoryStore)(nil)

func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

const decrementStockSQL = `
UPDATE inventory
SET available_stock = available_stock - $2, updated_at = now()
WHERE product_id = $1 AND available_stock >= $2`

func (s *InventoryStore) Snapshots(ctx context.Context, productIDs []string) (map[string]domain.StockSnapshot, error) {
	out := make(map[string]domain.StockSnapshot, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT product_id, available_stock FROM inventory WHERE product_id = ANY($1)`,
		productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id        string
			available int
		)
		if err := rows.Scan(&id, &available); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		out[id] = domain.NewStockSnapshot(id, available)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return out, nil
}

func (s *InventoryStore) Decrement(ctx context.Context, productID string, qty int) error {
	tag, err := s.db.Exec(ctx, decrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement inventory for %s: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientInventory
	}
	return nil
}

// DecrementAll applies every line in one transaction. Lines are taken in
// product id order so concurrent batches lock rows in the same order.
func (s *InventoryStore) DecrementAll(ctx context.Context, lines []domain.StockLine) error {
	merged := mergeLines(lines)
	if len(merged) == 0 {
		return nil
	}

	return execTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, line := range merged {
			tag, err := tx.Exec(ctx, decrementStockSQL, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement inventory for %s: %w", line.ProductID, err)
			}
			if tag.RowsAffected() == 0 {
				return domain.ErrInsufficientInventory
			}
		}
		return nil
	})
}

func (s *InventoryStore) Restock(ctx context.Context, lines []domain.StockLine) error {
	merged := mergeLines(lines)
	if len(merged) == 0 {
		return nil
	}

	return execTx(ctx, s.db, func(tx pgx.Tx) error {
		for _, line := range merged {
			_, err := tx.Exec(ctx,
				`UPDATE inventory SET available_stock = available_stock + $2, updated_at = now() WHERE product_id = $1`,
				line.ProductID, line.Quantity,
			)
			if err != nil {
				return fmt.Errorf("failed to restock %s: %w", line.ProductID, err)
			}
		}
		return nil
	})
}

// mergeLines sums quantities per product, drops non-positive lines and sorts
// by product id.
func mergeLines(lines []domain.StockLine) []domain.StockLine {
	totals := make(map[string]int, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}

	out := make([]domain.StockLine, 0, len(totals))
	for id, qty := range totals {
		if qty > 0 {
			out = append(out, domain.StockLine{ProductID: id, Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
