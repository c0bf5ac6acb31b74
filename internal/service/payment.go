package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
)

// PaymentResult describes what a payment event did.
type PaymentResult string

const (
	// ResultPaid means the event moved a pending order to paid.
	ResultPaid PaymentResult = "paid"

	// ResultDeleted means a failure event removed a pending order.
	ResultDeleted PaymentResult = "deleted"

	// ResultDuplicate means the event id was already processed.
	ResultDuplicate PaymentResult = "duplicate"

	// ResultIgnored means the event matched no order in a state it applies to.
	ResultIgnored PaymentResult = "ignored"

	// ResultUnmatched means a successful payment matched no order, usually
	// because the pending order was swept before the shopper paid.
	ResultUnmatched PaymentResult = "unmatched"
)

// CartResetter empties every cart copy of a shopper.
type CartResetter interface {
	ResetCarts(ctx context.Context, identity domain.Identity)
}

// PaymentHandlerConfig holds the collaborators of a PaymentConfirmationHandler.
type PaymentHandlerConfig struct {
	Events    domain.PaymentEventLog
	Orders    domain.OrderStore
	Inventory domain.InventoryStore
	Carts     CartResetter
	Notifier  domain.Notifier
	Logger    *slog.Logger
}

// PaymentConfirmationHandler finalizes gateway orders from at-least-once
// payment events. Orders are found by the gateway correlation id only.
type PaymentConfirmationHandler struct {
	events    domain.PaymentEventLog
	orders    domain.OrderStore
	inventory domain.InventoryStore
	carts     CartResetter
	notifier  domain.Notifier
	logger    *slog.Logger
	now       func() time.Time

	notifications sync.WaitGroup
}

func NewPaymentConfirmationHandler(cfg PaymentHandlerConfig) *PaymentConfirmationHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentConfirmationHandler{
		events:    cfg.Events,
		orders:    cfg.Orders,
		inventory: cfg.Inventory,
		carts:     cfg.Carts,
		notifier:  cfg.Notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleEvent applies one payment event.
//
// A pending order moves to paid on success, and only the caller that wins that
// transition decrements inventory, clears carts and notifies. A pending order
// is deleted on failure. Paid orders ignore later events. Errors are returned
// only when the event should be redelivered.
func (h *PaymentConfirmationHandler) HandleEvent(ctx context.Context, event domain.PaymentEvent) (PaymentResult, error) {
	logger := h.logger.With(
		"event_id", event.EventID,
		"event_type", event.Type,
		"correlation_id", event.CorrelationID,
	)

	seen, err := h.events.Seen(ctx, event.EventID)
	if err != nil {
		return "", fmt.Errorf("failed to check payment event log: %w", err)
	}
	if seen {
		logger.Info("duplicate payment event ignored")
		if telemetry.Business != nil {
			telemetry.Business.DuplicateConfirmations.WithLabelValues(event.Type).Inc()
		}
		return ResultDuplicate, nil
	}

	result := ResultIgnored
	order, err := h.orders.GetByPaymentReference(ctx, event.CorrelationID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		if event.Outcome != domain.PaymentSucceeded {
			logger.Info("payment event matches no order")
			break
		}
		result = ResultUnmatched
		logger.Error("payment captured for unknown order")
		if telemetry.Business != nil {
			telemetry.Business.PaymentsUnmatched.Inc()
		}
		telemetry.CaptureErrorFromContext(ctx, ErrUnmatchedPayment, map[string]any{
			"event_id":       event.EventID,
			"correlation_id": event.CorrelationID,
		})
	case err != nil:
		return "", fmt.Errorf("failed to load order: %w", err)
	default:
		logger = logger.With("order_id", order.ID)
		switch event.Outcome {
		case domain.PaymentSucceeded:
			result, err = h.confirm(ctx, order, logger)
		case domain.PaymentFailed:
			result, err = h.discard(ctx, order, logger)
		}
		if err != nil {
			return "", err
		}
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = h.now()
	}
	if err := h.events.Record(ctx, event); err != nil && !errors.Is(err, domain.ErrDuplicateEvent) {
		return result, fmt.Errorf("failed to record payment event: %w", err)
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentsFinalized.WithLabelValues(string(result)).Inc()
	}
	return result, nil
}

// Wait blocks until in-flight notifications have been delivered.
func (h *PaymentConfirmationHandler) Wait() {
	h.notifications.Wait()
}

func (h *PaymentConfirmationHandler) confirm(ctx context.Context, order *domain.Order, logger *slog.Logger) (PaymentResult, error) {
	won, err := h.orders.MarkPaid(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !won {
		logger.Info("order already finalized", "status", order.Status, "is_paid", order.IsPaid)
		return ResultIgnored, nil
	}
	order.Status = domain.OrderStatusPaid
	order.IsPaid = true

	// The order stays paid whatever happens to inventory from here on.
	for _, line := range order.StockLines() {
		if err := h.inventory.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
			logger.Error("inventory decrement failed for paid order",
				"product_id", line.ProductID,
				"quantity", line.Quantity,
				"error", err,
			)
			if telemetry.Business != nil {
				telemetry.Business.InventoryDecrementFailed.WithLabelValues(line.ProductID).Inc()
			}
			telemetry.CaptureErrorFromContext(ctx, err, map[string]interface{}{
				"order_id":   order.ID.String(),
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			})
		}
	}

	h.carts.ResetCarts(ctx, order.Identity())

	if h.notifier != nil {
		notifyAsync(ctx, &h.notifications, h.notifier, order, logger)
	}

	logger.Info("order paid", "amount", order.Amount.String())
	return ResultPaid, nil
}

func (h *PaymentConfirmationHandler) discard(ctx context.Context, order *domain.Order, logger *slog.Logger) (PaymentResult, error) {
	deleted, err := h.orders.DeleteIfPending(ctx, order.ID)
	if err != nil {
		return "", fmt.Errorf("failed to delete pending order: %w", err)
	}
	if !deleted {
		logger.Info("payment failure ignored for finalized order", "status", order.Status)
		return ResultIgnored, nil
	}
	logger.Info("pending order deleted after payment failure")
	return ResultDeleted, nil
}
