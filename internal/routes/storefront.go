package routes

import (
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/router"
)

// RegisterStorefrontRoutes registers the shopper-facing JSON API.
//
// Every route runs with a device identity; the cookie is issued on first
// contact. Account-only routes additionally require a valid account token.
func RegisterStorefrontRoutes(r *router.Router, deps StorefrontDeps) {
	chain := append([]router.Middleware{middleware.MaxBodySize(middleware.SmallMaxBodySize), deps.Identity}, deps.Middleware...)
	shop := r.Group(chain...)

	// Cart
	shop.Get("/api/cart", deps.CartHandler.View)
	shop.Put("/api/cart/items/{productID}", deps.CartHandler.SetQuantity)
	shop.Delete("/api/cart/items/{productID}", deps.CartHandler.Remove)

	// Addresses
	shop.Get("/api/addresses", deps.AddressHandler.List)
	shop.Get("/api/addresses/current", deps.AddressHandler.Current)
	shop.Post("/api/addresses", deps.AddressHandler.Create)
	shop.Post("/api/addresses/{id}/select", deps.AddressHandler.Select)
	shop.Post("/api/addresses/{id}/promote", deps.AddressHandler.Promote, middleware.RequireAccount)

	// Checkout and orders
	if deps.CheckoutLimit != nil {
		shop.Post("/api/checkout", deps.CheckoutHandler.Checkout, deps.CheckoutLimit)
	} else {
		shop.Post("/api/checkout", deps.CheckoutHandler.Checkout)
	}
	shop.Get("/api/orders/{id}", deps.OrderHandler.Get)
}
