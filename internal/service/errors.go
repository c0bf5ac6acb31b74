package service

import (
	"fmt"

	"github.com/dukerupert/decks/internal/domain"
)

// Cart errors - use domain.ECONFLICT so the shopper can adjust the quantity
var (
	ErrOutOfStock        = domain.Errorf(domain.ECONFLICT, "", "This product is out of stock")
	ErrInsufficientStock = domain.Errorf(domain.ECONFLICT, "", "Not enough stock for the requested quantity")
	ErrInvalidProduct    = domain.Errorf(domain.EINVALID, "", "Product id is required")
)

// Checkout errors
var (
	ErrEmptyCart         = domain.Errorf(domain.EINVALID, "", "Cart is empty")
	ErrMissingAddress    = domain.Errorf(domain.EINVALID, "", "A delivery address is required")
	ErrStockConflict     = domain.Errorf(domain.ECONFLICT, "", "Some items are no longer available in the requested quantity")
	ErrInvalidPayment    = domain.Errorf(domain.EINVALID, "", "Unknown payment method")
	ErrPriceNotFound     = domain.Errorf(domain.EINVALID, "", "One or more products can no longer be purchased")
	ErrPaymentGateway    = domain.Errorf(domain.EPAYMENT, "", "Payment could not be started, please try again")
	ErrAddressNotAllowed = domain.Errorf(domain.EFORBIDDEN, "", "Address does not belong to this shopper")
)

// Payment confirmation errors. Never surfaced to shoppers.
var (
	ErrUnmatchedPayment = domain.Errorf(domain.EINTERNAL, "payment.confirm", "Payment succeeded for an order that does not exist")
)

// StockError reports a rejected cart mutation and the stock that is available.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// Unwrap returns ErrOutOfStock when nothing is available, otherwise ErrInsufficientStock.
func (e *StockError) Unwrap() error {
	if e.Available == 0 {
		return ErrOutOfStock
	}
	return ErrInsufficientStock
}

// StockConflictError carries the lines that failed authoritative validation.
type StockConflictError struct {
	Lines []LineCheck
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock conflict on %d line(s)", len(e.Lines))
}

func (e *StockConflictError) Unwrap() error {
	return ErrStockConflict
}
