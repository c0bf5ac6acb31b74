package billing

import (
	"context"
)

// Gateway defines the boundary to the external payment gateway.
// Implementations redirect shoppers to a hosted payment page and report the
// outcome back through signed webhook events.
type Gateway interface {
	// CreateCheckoutSession starts a hosted payment for one order.
	// The returned session id is the correlation id later carried by webhook events.
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// ParseWebhookEvent verifies the signature of a webhook delivery and
	// decodes the parts needed to finalize an order.
	// Returns ErrInvalidWebhookSignature when verification fails.
	ParseWebhookEvent(payload []byte, signatureHeader string) (*WebhookEvent, error)
}

// CheckoutSessionParams contains parameters for starting a hosted payment.
type CheckoutSessionParams struct {
	// OrderID is stored in session metadata for operators. It is never used
	// to look the order up again.
	OrderID string

	// AmountCents is the order amount in the smallest currency unit.
	AmountCents int64

	// Currency is the ISO 4217 currency code (e.g., "usd")
	Currency string

	// Description is shown on the hosted payment page.
	Description string

	// CustomerEmail pre-fills the payment page when known.
	CustomerEmail string

	// SuccessURL and CancelURL are where the gateway sends the shopper back.
	SuccessURL string
	CancelURL  string

	// Metadata is attached to the session.
	Metadata map[string]string

	// IdempotencyKey prevents duplicate sessions for the same order.
	IdempotencyKey string
}

// CheckoutSession is a started hosted payment.
type CheckoutSession struct {
	// ID is the gateway correlation id.
	ID string

	// URL is where the shopper completes payment.
	URL string
}

// Webhook event types the storefront reacts to.
const (
	EventCheckoutCompleted           = "checkout.session.completed"
	EventCheckoutAsyncPaymentSuccess = "checkout.session.async_payment_succeeded"
	EventCheckoutAsyncPaymentFailed  = "checkout.session.async_payment_failed"
	EventCheckoutExpired             = "checkout.session.expired"
)

// Checkout session payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// WebhookEvent is a verified gateway event.
type WebhookEvent struct {
	// ID is the gateway's event id, used to deduplicate redeliveries.
	ID string

	// Type is the gateway event type.
	Type string

	// CheckoutSessionID is the correlation id for checkout session events.
	CheckoutSessionID string

	// PaymentStatus is the session's payment status for checkout session events.
	PaymentStatus string

	// OrderID is the order id from session metadata, for logging only.
	OrderID string
}
