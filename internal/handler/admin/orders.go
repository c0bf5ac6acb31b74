package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/google/uuid"
)

// OrderManager reads and advances orders on behalf of staff.
type OrderManager interface {
	Lookup(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	Advance(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (*domain.Order, error)
}

// OrderHandler handles staff order endpoints
type OrderHandler struct {
	orders OrderManager
	logger *slog.Logger
}

// NewOrderHandler creates a new admin order handler
func NewOrderHandler(orders OrderManager, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, logger: logger}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// Get handles GET /admin/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Lookup(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.NewOrderView(order))
}

// UpdateStatus handles POST /admin/orders/{id}/status
//
// Moves the order one step along pending, paid, processing, shipped,
// delivered. Skipping or reversing a step is a 409.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if req.Status == "" {
		handler.ErrorResponse(w, r, domain.NewValidationError("order.advance", "status", "Status is required"))
		return
	}

	order, err := h.orders.Advance(r.Context(), id, domain.OrderStatus(req.Status))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Info("order status updated by staff",
		"order_id", order.ID,
		"status", order.Status,
	)
	handler.WriteJSON(w, http.StatusOK, handler.NewOrderView(order))
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, domain.NotFound("admin.order", "order", r.PathValue("id")))
		return uuid.Nil, false
	}
	return id, true
}
