package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ORDER DOMAIN ERRORS
// =============================================================================

var (
	ErrOrderNotFound          = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrInvalidOrderTransition = &Error{Code: ECONFLICT, Message: "Order cannot move to the requested status"}
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
)

// PaymentMethod selects how an order is paid for.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery: inventory is committed at assembly.
	PaymentMethodCOD PaymentMethod = "cod"

	// PaymentMethodGateway redirects to the external payment gateway and
	// commits inventory when the confirmation event arrives.
	PaymentMethodGateway PaymentMethod = "gateway"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodGateway
}

// OrderItem is a snapshot of one cart line at assembly time.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is an immutable snapshot of a cart plus a mutable status.
// Amount always equals OriginalAmount minus DiscountAmount, and IsPaid never
// goes back to false once set.
type Order struct {
	ID               uuid.UUID
	UserID           uuid.UUID // uuid.Nil for guest orders
	DeviceID         string
	AddressID        uuid.UUID
	ContactEmail     string
	Items            []OrderItem
	OriginalAmount   decimal.Decimal
	DiscountAmount   decimal.Decimal
	Amount           decimal.Decimal
	DiscountCode     string
	Currency         string
	PaymentMethod    PaymentMethod
	PaymentReference string
	Status           OrderStatus
	IsPaid           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StockLines returns the quantities this order commits against inventory.
func (o *Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// Identity returns the shopper identity the order was placed under.
func (o *Order) Identity() Identity {
	return Identity{UserID: o.UserID, DeviceID: o.DeviceID, Email: o.ContactEmail}
}

// OwnedBy reports whether the shopper may view the order.
// Account orders belong to the account, guest orders to the device.
func (o *Order) OwnedBy(id Identity) bool {
	if o.UserID != uuid.Nil {
		return id.UserID == o.UserID
	}
	return id.DeviceID != "" && id.DeviceID == o.DeviceID
}

// NextStatuses lists the statuses an order may move to from its current state.
// Gateway orders only leave pending through a payment confirmation, COD
// orders start fulfilment straight from pending.
func (o *Order) NextStatuses() []OrderStatus {
	switch o.Status {
	case OrderStatusPending:
		if o.PaymentMethod == PaymentMethodCOD {
			return []OrderStatus{OrderStatusProcessing}
		}
		return nil
	case OrderStatusPaid:
		return []OrderStatus{OrderStatusProcessing}
	case OrderStatusProcessing:
		return []OrderStatus{OrderStatusShipped}
	case OrderStatusShipped:
		return []OrderStatus{OrderStatusDelivered}
	default:
		return nil
	}
}

// CanTransitionTo reports whether next is a legal successor of the current status.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	for _, s := range o.NextStatuses() {
		if s == next {
			return true
		}
	}
	return false
}

// OrderStore persists orders. The conditional methods are compare-and-set
// operations so concurrent callers can tell which of them made the transition.
type OrderStore interface {
	// Create inserts a new order.
	Create(ctx context.Context, order *Order) error

	// Get returns an order by id or ErrOrderNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetByPaymentReference returns the order carrying the gateway correlation id.
	GetByPaymentReference(ctx context.Context, reference string) (*Order, error)

	// SetPaymentReference stores the gateway correlation id on an order.
	SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error

	// MarkPaid moves a pending unpaid order to paid and reports whether it did.
	MarkPaid(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteIfPending deletes a pending unpaid order and reports whether it did.
	DeleteIfPending(ctx context.Context, id uuid.UUID) (bool, error)

	// UpdateStatus moves an order from one status to another and reports whether it did.
	// When markPaid is true the order is also flagged paid in the same write.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, markPaid bool) (bool, error)

	// DeleteStalePending removes unpaid gateway orders created before cutoff.
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier is told about orders that became binding: COD orders at assembly,
// gateway orders once payment is confirmed.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *Order) error
}
