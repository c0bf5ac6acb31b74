package service

import (
	"context"
	"fmt"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
)

// ValidationMode selects how fresh the stock reading behind a validation must be.
type ValidationMode int

const (
	// Advisory reads through the snapshot cache. Used for display and quantity steppers.
	Advisory ValidationMode = iota

	// Authoritative reads the inventory store directly, immediately before assembly.
	Authoritative
)

func (m ValidationMode) String() string {
	if m == Authoritative {
		return "authoritative"
	}
	return "advisory"
}

// Line check reasons.
const (
	ReasonOutOfStock        = "out_of_stock"
	ReasonInsufficientStock = "insufficient_stock"
)

// LineCheck is the validation result for one cart line.
type LineCheck struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	OK        bool   `json:"ok"`
	Reason    string `json:"reason,omitempty"`
}

// StockReader is the read side of the inventory store.
type StockReader interface {
	Snapshots(ctx context.Context, productIDs []string) (map[string]domain.StockSnapshot, error)
}

// CheckLines compares every cart line with its snapshot. Products absent from
// snaps count as zero available. Results are ordered by product id.
func CheckLines(cart domain.Cart, snaps map[string]domain.StockSnapshot) []LineCheck {
	checks := make([]LineCheck, 0, len(cart))
	for _, id := range cart.ProductIDs() {
		requested := cart[id]
		available := snaps[id].AvailableStock

		check := LineCheck{
			ProductID: id,
			Requested: requested,
			Available: available,
			OK:        requested <= available,
		}
		if !check.OK {
			if available == 0 {
				check.Reason = ReasonOutOfStock
			} else {
				check.Reason = ReasonInsufficientStock
			}
		}
		checks = append(checks, check)
	}
	return checks
}

// FailedLines returns the checks that did not pass.
func FailedLines(checks []LineCheck) []LineCheck {
	var failed []LineCheck
	for _, c := range checks {
		if !c.OK {
			failed = append(failed, c)
		}
	}
	return failed
}

// stockInvalidator is implemented by advisory caches. An authoritative read
// drops the cached readings of the products it covered.
type stockInvalidator interface {
	Invalidate(productIDs ...string)
}

// StockValidator checks whole carts against inventory.
type StockValidator struct {
	advisory      StockReader
	authoritative StockReader
}

// NewStockValidator creates a validator. advisory may be a cache in front of
// authoritative; when nil the authoritative reader serves both modes.
func NewStockValidator(authoritative, advisory StockReader) *StockValidator {
	if advisory == nil {
		advisory = authoritative
	}
	return &StockValidator{advisory: advisory, authoritative: authoritative}
}

// Validate returns one LineCheck per cart line.
func (v *StockValidator) Validate(ctx context.Context, cart domain.Cart, mode ValidationMode) ([]LineCheck, error) {
	if cart.IsEmpty() {
		return []LineCheck{}, nil
	}

	reader := v.advisory
	if mode == Authoritative {
		reader = v.authoritative
	}

	snaps, err := reader.Snapshots(ctx, cart.ProductIDs())
	if err != nil {
		recordValidation(mode, "error")
		return nil, fmt.Errorf("failed to read stock: %w", err)
	}

	if mode == Authoritative {
		if cache, ok := v.advisory.(stockInvalidator); ok {
			cache.Invalidate(cart.ProductIDs()...)
		}
	}

	checks := CheckLines(cart, snaps)
	if len(FailedLines(checks)) > 0 {
		recordValidation(mode, "conflict")
	} else {
		recordValidation(mode, "ok")
	}
	return checks, nil
}

func recordValidation(mode ValidationMode, result string) {
	if telemetry.Business != nil {
		telemetry.Business.StockValidations.WithLabelValues(mode.String(), result).Inc()
	}
}
