package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability.
type BusinessMetrics struct {
	// Cart
	CartMutations         *prometheus.CounterVec
	CartStockFallbacks    *prometheus.CounterVec
	CartReconciliations   *prometheus.CounterVec
	AccountCartSyncFailed *prometheus.CounterVec

	// Stock validation
	StockValidations *prometheus.CounterVec

	// Checkout
	OrdersAssembled  *prometheus.CounterVec
	CheckoutRejected *prometheus.CounterVec
	OrderValue       *prometheus.HistogramVec

	// Payment confirmation
	WebhookReceived          *prometheus.CounterVec
	WebhookFailed            *prometheus.CounterVec
	WebhookLatency           *prometheus.HistogramVec
	DuplicateConfirmations   *prometheus.CounterVec
	PaymentsFinalized        *prometheus.CounterVec
	PaymentsUnmatched        prometheus.Counter
	InventoryDecrementFailed *prometheus.CounterVec

	// Background jobs
	PendingOrdersSwept prometheus.Counter
	JobsFailed         *prometheus.CounterVec

	// Notifications
	EmailSent           *prometheus.CounterVec
	EmailFailed         *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec

	// External API performance
	GatewayAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "decks"
	}

	subsystem := "business"

	m := &BusinessMetrics{
		// =======================================================================
		// Cart
		// =======================================================================
		CartMutations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_mutations_total",
				Help:      "Total cart quantity changes by result",
			},
			[]string{"result"}, // result: ok, insufficient_stock, out_of_stock
		),
		CartStockFallbacks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_stock_fallbacks_total",
				Help:      "Cart mutations accepted without a fresh stock reading",
			},
			[]string{"source"}, // source: last_known, optimistic
		),
		CartReconciliations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cart_reconciliations_total",
				Help:      "Guest to account cart merges by outcome",
			},
			[]string{"outcome"}, // outcome: unchanged, clamped
		),
		AccountCartSyncFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "account_cart_sync_failed_total",
				Help:      "Best-effort account cart writes that failed",
			},
			[]string{"op"}, // op: save, clear
		),

		// =======================================================================
		// Stock validation
		// =======================================================================
		StockValidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_validations_total",
				Help:      "Cart validations against inventory",
			},
			[]string{"mode", "result"}, // mode: advisory, authoritative; result: ok, conflict, error
		),

		// =======================================================================
		// Checkout
		// =======================================================================
		OrdersAssembled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_assembled_total",
				Help:      "Orders created at checkout",
			},
			[]string{"payment_method"},
		),
		CheckoutRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_rejected_total",
				Help:      "Checkout attempts that did not produce an order",
			},
			[]string{"reason"}, // reason: empty_cart, missing_address, stock_conflict, gateway_error
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order amount after discount, in currency units",
				Buckets:   []float64{10, 25, 50, 100, 200, 500, 1000, 2500},
			},
			[]string{"payment_method"},
		),

		// =======================================================================
		// Payment confirmation
		// =======================================================================
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Gateway webhook deliveries by event type",
			},
			[]string{"event_type"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Gateway webhook deliveries answered with an error",
			},
			[]string{"event_type", "reason"},
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Time spent handling a gateway webhook",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"event_type"},
		),
		DuplicateConfirmations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duplicate_confirmations_total",
				Help:      "Gateway events absorbed because they were already processed",
			},
			[]string{"event_type"},
		),
		PaymentsFinalized: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payments_finalized_total",
				Help:      "Pending orders finalized by a payment event",
			},
			[]string{"outcome"}, // outcome: paid, deleted, ignored, unmatched
		),
		PaymentsUnmatched: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payments_unmatched_total",
				Help:      "Successful payments whose order no longer exists",
			},
		),
		InventoryDecrementFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "inventory_decrement_failed_total",
				Help:      "Paid order lines whose inventory could not be decremented",
			},
			[]string{"product_id"},
		),

		// =======================================================================
		// Background jobs
		// =======================================================================
		PendingOrdersSwept: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pending_orders_swept_total",
				Help:      "Unpaid gateway orders removed after their time to live",
			},
		),
		JobsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "jobs_failed_total",
				Help:      "Background job runs that returned an error",
			},
			[]string{"job"},
		),

		// =======================================================================
		// Notifications
		// =======================================================================
		EmailSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total emails sent by type",
			},
			[]string{"email_type"},
		),
		EmailFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total email delivery failures",
			},
			[]string{"email_type"},
		),
		NotificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications_failed_total",
				Help:      "Order notifications that could not be delivered",
			},
			[]string{"channel"},
		),

		// =======================================================================
		// External API performance
		// =======================================================================
		GatewayAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "gateway_api_duration_seconds",
				Help:      "Payment gateway API call duration",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
	}

	return m
}

// Global instance for easy access from services and handlers
var Business *BusinessMetrics

// InitBusinessMetrics initializes the global business metrics instance
func InitBusinessMetrics(namespace string) *BusinessMetrics {
	Business = NewBusinessMetrics(namespace)
	return Business
}
