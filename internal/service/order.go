package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
)

// OrderService reads orders for shoppers and moves them through fulfilment.
type OrderService struct {
	orders domain.OrderStore
	logger *slog.Logger
}

func NewOrderService(orders domain.OrderStore, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{orders: orders, logger: logger}
}

// Get returns an order the identity owns. Orders of other shoppers are
// reported as not found.
func (s *OrderService) Get(ctx context.Context, identity domain.Identity, id uuid.UUID) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(identity) {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// Lookup returns any order by id, for staff.
func (s *OrderService) Lookup(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.Get(ctx, id)
}

// Advance moves an order to the next fulfilment status. Cash on delivery
// orders are marked paid when they are delivered.
func (s *OrderService) Advance(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	const op = "order.advance"

	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.CanTransitionTo(to) {
		return nil, &domain.Error{
			Code:    domain.ECONFLICT,
			Op:      op,
			Message: fmt.Sprintf("Order cannot move from %s to %s", order.Status, to),
			Err:     domain.ErrInvalidOrderTransition,
		}
	}

	markPaid := order.PaymentMethod == domain.PaymentMethodCOD && to == domain.OrderStatusDelivered
	ok, err := s.orders.UpdateStatus(ctx, id, order.Status, to, markPaid)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !ok {
		// Someone else moved the order first.
		return nil, domain.WrapError(domain.ErrInvalidOrderTransition, domain.ECONFLICT, op, "Order status changed, reload and try again")
	}

	s.logger.Info("order advanced", "order_id", id, "from", order.Status, "to", to)

	order.Status = to
	if markPaid {
		order.IsPaid = true
	}
	return order, nil
}

