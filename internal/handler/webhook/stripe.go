package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/decks/internal/billing"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/service"
	"github.com/dukerupert/decks/internal/telemetry"
)

// PaymentEventHandler finalizes orders from payment events.
type PaymentEventHandler interface {
	HandleEvent(ctx context.Context, event domain.PaymentEvent) (service.PaymentResult, error)
}

// StripeHandler handles Stripe webhook events
type StripeHandler struct {
	gateway  billing.Gateway
	payments PaymentEventHandler
	logger   *slog.Logger
	now      func() time.Time
}

// NewStripeHandler creates a new Stripe webhook handler
func NewStripeHandler(gateway billing.Gateway, payments PaymentEventHandler, logger *slog.Logger) *StripeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeHandler{
		gateway:  gateway,
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleWebhook processes incoming Stripe webhook events
//
// Verified events are acknowledged with 200 once applied, including
// duplicates and event types the store does not act on. A 500 asks Stripe to
// redeliver, which is safe because confirmation is idempotent per event id.
//
// Stripe CLI testing:
//
//	stripe listen --forward-to localhost:3000/webhooks/stripe
//	stripe trigger checkout.session.completed
func (h *StripeHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := h.now()
	logger := middleware.GetLogger(r.Context(), h.logger)

	// The route caps the body with middleware.MaxBodySize; an oversized
	// payload is refused rather than truncated into a bad signature.
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("webhook payload too large", "limit", tooLarge.Limit)
			recordFailure("unknown", "too_large")
			handler.ErrorResponse(w, r, domain.Errorf(domain.ETOOLARGE, "webhook.stripe", "Webhook payload too large"))
			return
		}
		logger.Warn("failed to read webhook payload", "error", err)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Error reading request body"))
		return
	}

	event, err := h.gateway.ParseWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		reason := "malformed"
		if errors.Is(err, billing.ErrInvalidWebhookSignature) {
			reason = "invalid_signature"
		}
		logger.Warn("webhook rejected", "reason", reason, "error", err)
		recordFailure("unknown", reason)
		handler.ErrorResponse(w, r, domain.Errorf(domain.EINVALID, "webhook.stripe", "Invalid webhook payload"))
		return
	}

	logger = logger.With("event_id", event.ID, "event_type", event.Type)
	if telemetry.Business != nil {
		telemetry.Business.WebhookReceived.WithLabelValues(event.Type).Inc()
		defer func() {
			telemetry.Business.WebhookLatency.WithLabelValues(event.Type).Observe(time.Since(startTime).Seconds())
		}()
	}

	outcome, ok := outcomeFor(event)
	if !ok {
		logger.Debug("webhook event acknowledged without action", "payment_status", event.PaymentStatus)
		acknowledge(w)
		return
	}
	if event.CheckoutSessionID == "" {
		logger.Warn("checkout event without session id")
		recordFailure(event.Type, "missing_session")
		acknowledge(w)
		return
	}

	result, err := h.payments.HandleEvent(r.Context(), domain.PaymentEvent{
		EventID:       event.ID,
		Type:          event.Type,
		CorrelationID: event.CheckoutSessionID,
		Outcome:       outcome,
		ReceivedAt:    startTime,
	})
	if err != nil {
		logger.Error("failed to apply payment event", "error", err, "order_id", event.OrderID)
		recordFailure(event.Type, "processing_failed")
		telemetry.CaptureErrorFromContext(r.Context(), err, map[string]interface{}{
			"event_id":            event.ID,
			"event_type":          event.Type,
			"checkout_session_id": event.CheckoutSessionID,
		})
		handler.WriteJSON(w, http.StatusInternalServerError, map[string]bool{"received": false})
		return
	}

	logger.Info("payment event applied", "result", result, "order_id", event.OrderID)
	acknowledge(w)
}

// outcomeFor maps a checkout session event to a payment outcome. A completed
// session still waiting on a delayed payment method has no outcome yet; the
// async events settle it.
func outcomeFor(event *billing.WebhookEvent) (domain.PaymentOutcome, bool) {
	switch event.Type {
	case billing.EventCheckoutCompleted:
		switch event.PaymentStatus {
		case billing.PaymentStatusPaid, billing.PaymentStatusNoPaymentRequired:
			return domain.PaymentSucceeded, true
		}
		return "", false
	case billing.EventCheckoutAsyncPaymentSuccess:
		return domain.PaymentSucceeded, true
	case billing.EventCheckoutAsyncPaymentFailed, billing.EventCheckoutExpired:
		return domain.PaymentFailed, true
	default:
		return "", false
	}
}

func acknowledge(w http.ResponseWriter) {
	handler.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func recordFailure(eventType, reason string) {
	if telemetry.Business != nil {
		telemetry.Business.WebhookFailed.WithLabelValues(eventType, reason).Inc()
	}
}
