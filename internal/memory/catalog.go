package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/shopspring/decimal"
)

// Catalog implements domain.Catalog and domain.DiscountResolver.
type Catalog struct {
	mu        sync.RWMutex
	prices    map[string]domain.ProductPrice
	discounts map[string]decimal.Decimal
}

var (
	_ domain.Catalog          = (*Catalog)(nil)
	_ domain.DiscountResolver = (*Catalog)(nil)
)

func NewCatalog() *Catalog {
	return &Catalog{
		prices:    make(map[string]domain.ProductPrice),
		discounts: make(map[string]decimal.Decimal),
	}
}

// AddProduct registers a product price. price is a decimal string such as "19.99".
func (c *Catalog) AddProduct(id, name, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[id] = domain.ProductPrice{ProductID: id, Name: name, UnitPrice: decimal.RequireFromString(price)}
}

// AddDiscount registers a discount code with a percentage.
func (c *Catalog) AddDiscount(code string, percent int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discounts[strings.ToUpper(code)] = decimal.NewFromInt(percent)
}

func (c *Catalog) Prices(ctx context.Context, productIDs []string) (map[string]domain.ProductPrice, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]domain.ProductPrice, len(productIDs))
	for _, id := range productIDs {
		if p, ok := c.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (c *Catalog) DiscountPercent(ctx context.Context, code string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pct, ok := c.discounts[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return decimal.Zero, domain.ErrDiscountNotFound
	}
	return pct, nil
}
