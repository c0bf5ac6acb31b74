package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ErrDiscountNotFound is returned when a discount code is unknown or inactive.
var ErrDiscountNotFound = &Error{Code: EINVALID, Message: "Discount code is not valid"}

// ProductPrice is the price snapshot taken when an order is assembled.
type ProductPrice struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
}

// Catalog exposes the read side of the product catalog needed at checkout.
// Catalog management itself lives outside this service.
type Catalog interface {
	// Prices returns current prices for the given products.
	// Unknown products are absent from the result.
	Prices(ctx context.Context, productIDs []string) (map[string]ProductPrice, error)
}

// DiscountResolver turns a discount code into a percentage between 0 and 100.
type DiscountResolver interface {
	DiscountPercent(ctx context.Context, code string) (decimal.Decimal, error)
}
