package storefront

import (
	"context"
	"net/http"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/google/uuid"
)

// OrderReader returns orders the shopper owns.
type OrderReader interface {
	Get(ctx context.Context, identity domain.Identity, id uuid.UUID) (*domain.Order, error)
}

// OrderHandler serves order status to shoppers.
type OrderHandler struct {
	orders OrderReader
}

func NewOrderHandler(orders OrderReader) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Get handles GET /api/orders/{id}
//
// Shoppers poll this after returning from the payment page until the order
// shows as paid.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handler.NotFoundResponse(w, r)
		return
	}

	order, err := h.orders.Get(r.Context(), middleware.GetIdentity(r), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.NewOrderView(order))
}
