package routes

import (
	"net/http"

	"github.com/dukerupert/decks/internal/handler/admin"
	"github.com/dukerupert/decks/internal/handler/storefront"
	"github.com/dukerupert/decks/internal/router"
)

// StorefrontDeps contains dependencies for storefront routes
type StorefrontDeps struct {
	// Identity resolves the device cookie and optional account token.
	// It runs before every other storefront middleware.
	Identity router.Middleware

	// Middleware runs after Identity, in order (request logger, Sentry scope).
	Middleware []router.Middleware

	// CheckoutLimit throttles order placement per device.
	CheckoutLimit router.Middleware

	CartHandler     *storefront.CartHandler
	AddressHandler  *storefront.AddressHandler
	CheckoutHandler *storefront.CheckoutHandler
	OrderHandler    *storefront.OrderHandler
}

// AdminDeps contains dependencies for admin routes
type AdminDeps struct {
	// Auth checks the staff bearer token.
	Auth router.Middleware

	OrderHandler *admin.OrderHandler
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	StripeHandler http.HandlerFunc
}

// OpsDeps contains dependencies for health and metrics routes
type OpsDeps struct {
	Health  http.HandlerFunc
	Metrics http.Handler
}
