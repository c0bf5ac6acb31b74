package storefront

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/service"
)

// CartSessions hands out the live cart session of a device.
type CartSessions interface {
	Get(ctx context.Context, identity domain.Identity) (*service.CartSession, []service.Adjustment, error)
}

// CartValidator checks a cart against inventory.
type CartValidator interface {
	Validate(ctx context.Context, cart domain.Cart, mode service.ValidationMode) ([]service.LineCheck, error)
}

// CartHandler handles the cart API.
type CartHandler struct {
	sessions  CartSessions
	validator CartValidator
	logger    *slog.Logger
}

// NewCartHandler creates a new cart handler
func NewCartHandler(sessions CartSessions, validator CartValidator, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{
		sessions:  sessions,
		validator: validator,
		logger:    logger,
	}
}

// CartLine is one line of the cart response.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartResponse is returned by every cart endpoint. Checks come from an
// advisory stock read and may be stale; checkout re-validates.
type CartResponse struct {
	Lines         []CartLine           `json:"lines"`
	TotalQuantity int                  `json:"total_quantity"`
	Checks        []service.LineCheck  `json:"checks"`
	Adjustments   []service.Adjustment `json:"adjustments,omitempty"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// View handles GET /api/cart
func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	session, adjustments, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, session.Cart(), adjustments)
}

// SetQuantity handles PUT /api/cart/items/{productID}
//
// A quantity of zero removes the line. Quantities above available stock are
// refused with 409 and the available count.
func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.Quantity == nil || *req.Quantity < 0 {
		handler.ErrorResponse(w, r, domain.NewValidationError("cart.set_quantity", "quantity", "Quantity must be zero or more"))
		return
	}

	session, adjustments, ok := h.session(w, r)
	if !ok {
		return
	}

	cart, err := session.SetQuantity(r.Context(), r.PathValue("productID"), *req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Debug("cart quantity set",
		"product_id", r.PathValue("productID"),
		"quantity", *req.Quantity,
	)
	h.respond(w, r, http.StatusOK, cart, adjustments)
}

// Remove handles DELETE /api/cart/items/{productID}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	session, adjustments, ok := h.session(w, r)
	if !ok {
		return
	}

	cart, err := session.Remove(r.Context(), r.PathValue("productID"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, cart, adjustments)
}

func (h *CartHandler) session(w http.ResponseWriter, r *http.Request) (*service.CartSession, []service.Adjustment, bool) {
	session, adjustments, err := h.sessions.Get(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return nil, nil, false
	}
	return session, adjustments, true
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, status int, cart domain.Cart, adjustments []service.Adjustment) {
	checks, err := h.validator.Validate(r.Context(), cart, service.Advisory)
	if err != nil {
		// Display checks are best effort.
		middleware.GetLogger(r.Context(), h.logger).Warn("advisory stock check failed", "error", err)
		checks = []service.LineCheck{}
	}

	lines := make([]CartLine, 0, len(cart))
	for _, id := range cart.ProductIDs() {
		lines = append(lines, CartLine{ProductID: id, Quantity: cart[id]})
	}

	handler.WriteJSON(w, status, CartResponse{
		Lines:         lines,
		TotalQuantity: cart.TotalQuantity(),
		Checks:        checks,
		Adjustments:   adjustments,
	})
}
