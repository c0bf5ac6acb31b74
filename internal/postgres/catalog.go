package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Catalog implements domain.Catalog and domain.DiscountResolver on the
// products and discount_codes tables. Catalog management writes these
// tables elsewhere.
type Catalog struct {
	db DB
}

var (
	_ domain.Catalog          = (*Catalog)(nil)
	_ domain.DiscountResolver = (*Catalog)(nil)
)

func NewCatalog(db DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Prices(ctx context.Context, productIDs []string) (map[string]domain.ProductPrice, error) {
	out := make(map[string]domain.ProductPrice, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := c.db.Query(ctx,
		`SELECT id, name, unit_price::text FROM products WHERE id = ANY($1) AND active`,
		productIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p     domain.ProductPrice
			price string
		)
		if err := rows.Scan(&p.ProductID, &p.Name, &price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if p.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q for %s: %w", price, p.ProductID, err)
		}
		out[p.ProductID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}
	return out, nil
}

func (c *Catalog) DiscountPercent(ctx context.Context, code string) (decimal.Decimal, error) {
	var pct string
	err := c.db.QueryRow(ctx, `
		SELECT percent::text FROM discount_codes
		WHERE code = $1 AND active AND (expires_at IS NULL OR expires_at > now())`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, domain.ErrDiscountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load discount code: %w", err)
	}
	return decimal.NewFromString(pct)
}
