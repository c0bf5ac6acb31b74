package routes

import (
	"github.com/dukerupert/decks/internal/router"
)

// RegisterAdminRoutes registers staff order management routes.
// All routes are protected by the admin token middleware and never see the
// shopper identity.
func RegisterAdminRoutes(r *router.Router, deps AdminDeps) {
	admin := r.Group(deps.Auth)

	// Order management
	admin.Get("/admin/orders/{id}", deps.OrderHandler.Get)
	admin.Post("/admin/orders/{id}/status", deps.OrderHandler.UpdateStatus)
}
