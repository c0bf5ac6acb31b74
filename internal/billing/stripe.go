package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/decks/internal/telemetry"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// minimumChargeCents is Stripe's lowest accepted charge for most currencies.
const minimumChargeCents = 50

// StripeGateway implements Gateway using Stripe Checkout.
type StripeGateway struct {
	config StripeConfig
	now    func() time.Time
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a Stripe gateway and sets the SDK's API key.
func NewStripeGateway(config StripeConfig) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	if config.Currency == "" {
		config.Currency = "usd"
	}

	stripe.Key = config.APIKey

	return &StripeGateway{config: config, now: time.Now}, nil
}

// CreateCheckoutSession creates a hosted Stripe Checkout session in payment mode
// with a single line item for the order total.
func (s *StripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if params.AmountCents < minimumChargeCents {
		return nil, ErrAmountTooSmall
	}

	currency := strings.ToLower(params.Currency)
	if currency == "" {
		currency = s.config.Currency
	}
	description := params.Description
	if description == "" {
		description = "Order " + params.OrderID
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(params.OrderID),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	if s.config.SessionTTLMinutes > 0 {
		expiresAt := s.now().Add(time.Duration(s.config.SessionTTLMinutes) * time.Minute)
		sessionParams.ExpiresAt = stripe.Int64(expiresAt.Unix())
	}

	sessionParams.AddMetadata("order_id", params.OrderID)
	for k, v := range params.Metadata {
		sessionParams.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		sessionParams.SetIdempotencyKey(params.IdempotencyKey)
	}
	sessionParams.Context = ctx

	start := time.Now()
	session, err := checkoutsession.New(sessionParams)
	if telemetry.Business != nil {
		telemetry.Business.GatewayAPILatency.WithLabelValues("create_checkout_session").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, convertStripeError(err)
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ParseWebhookEvent verifies the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated: only stable checkout session fields are read.
func (s *StripeGateway) ParseWebhookEvent(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	out := &WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if !strings.HasPrefix(out.Type, "checkout.session.") {
		return out, nil
	}
	if event.Data == nil {
		return nil, ErrMalformedEvent
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out.CheckoutSessionID = session.ID
	out.PaymentStatus = string(session.PaymentStatus)
	out.OrderID = session.Metadata["order_id"]
	return out, nil
}

// convertStripeError converts a Stripe SDK error to StripeError.
func convertStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &StripeError{Message: err.Error(), OriginalError: err}
	}
	return &StripeError{
		Message:       stripeErr.Msg,
		Code:          string(stripeErr.Code),
		DeclineCode:   string(stripeErr.DeclineCode),
		StripeCode:    fmt.Sprintf("%d", stripeErr.HTTPStatusCode),
		RequestID:     stripeErr.RequestID,
		OriginalError: err,
	}
}
