package billing

import (
	"errors"
	"strings"
)

// StripeConfig contains configuration for the Stripe gateway.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...)
	APIKey string

	// WebhookSecret is the webhook signing secret (whsec_...)
	// Used to verify webhook signatures from Stripe
	WebhookSecret string

	// Currency is the ISO 4217 code orders are charged in.
	// Default: usd
	Currency string

	// SessionTTLMinutes is how long a hosted checkout session stays open.
	// Stripe accepts 30 to 1440. Zero leaves Stripe's default of 24 hours.
	SessionTTLMinutes int
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("stripe: API key is required")
	}
	if c.WebhookSecret == "" {
		return errors.New("stripe: webhook secret is required")
	}
	if c.SessionTTLMinutes != 0 && (c.SessionTTLMinutes < 30 || c.SessionTTLMinutes > 1440) {
		return errors.New("stripe: session TTL must be between 30 and 1440 minutes")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_")
}
