package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/billing"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AssembleParams contains the shopper's checkout request.
type AssembleParams struct {
	Session       *CartSession
	AddressID     uuid.UUID // zero selects the most recently used address
	PaymentMethod domain.PaymentMethod
	DiscountCode  string
	SuccessURL    string
	CancelURL     string
}

// PlacedOrder is the result of a successful checkout. RedirectURL is set for
// gateway orders and points at the hosted payment page.
type PlacedOrder struct {
	Order       *domain.Order
	RedirectURL string
}

// AssemblerConfig holds the collaborators of an OrderAssembler.
type AssemblerConfig struct {
	Inventory domain.InventoryStore
	Validator *StockValidator
	Orders    domain.OrderStore
	Catalog   domain.Catalog
	Discounts domain.DiscountResolver
	Addresses *AddressResolver
	Gateway   billing.Gateway
	Notifier  domain.Notifier
	Currency  string
	Logger    *slog.Logger
}

// OrderAssembler turns a validated cart into an order.
// Cash on delivery orders commit inventory immediately; gateway orders stay
// pending until the payment confirmation arrives.
type OrderAssembler struct {
	inventory domain.InventoryStore
	validator *StockValidator
	orders    domain.OrderStore
	catalog   domain.Catalog
	discounts domain.DiscountResolver
	addresses *AddressResolver
	gateway   billing.Gateway
	notifier  domain.Notifier
	currency  string
	logger    *slog.Logger
	now       func() time.Time

	notifications sync.WaitGroup
}

func NewOrderAssembler(cfg AssemblerConfig) *OrderAssembler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	return &OrderAssembler{
		inventory: cfg.Inventory,
		validator: cfg.Validator,
		orders:    cfg.Orders,
		catalog:   cfg.Catalog,
		discounts: cfg.Discounts,
		addresses: cfg.Addresses,
		gateway:   cfg.Gateway,
		notifier:  cfg.Notifier,
		currency:  currency,
		logger:    logger,
		now:       time.Now,
	}
}

// ComputeTotals returns the order amounts for items and a discount percentage.
// The discounted amount is floored to two decimals and the discount is
// whatever remains, so amount always equals original minus discount.
func ComputeTotals(items []domain.OrderItem, percent decimal.Decimal) (original, discount, amount decimal.Decimal) {
	original = decimal.Zero
	for _, item := range items {
		original = original.Add(item.LineTotal())
	}

	if percent.IsNegative() {
		percent = decimal.Zero
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}

	amount = original.Mul(hundred.Sub(percent)).Div(hundred).RoundFloor(2)
	discount = original.Sub(amount)
	return original, discount, amount
}

// Assemble validates the session cart and places an order.
//
// Errors: ErrEmptyCart, ErrMissingAddress, *StockConflictError (wraps
// ErrStockConflict), ErrPaymentGateway. No order exists after an error.
func (a *OrderAssembler) Assemble(ctx context.Context, params AssembleParams) (*PlacedOrder, error) {
	const op = "order.assemble"

	if !params.PaymentMethod.Valid() {
		return nil, ErrInvalidPayment
	}
	identity := params.Session.Identity()
	cart := params.Session.Cart()

	if cart.IsEmpty() {
		recordRejection("empty_cart")
		return nil, ErrEmptyCart
	}

	addr, err := a.addresses.ForCheckout(ctx, identity, params.AddressID)
	if err != nil {
		if errors.Is(err, ErrMissingAddress) {
			recordRejection("missing_address")
		}
		return nil, err
	}

	checks, err := a.validator.Validate(ctx, cart, Authoritative)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to check stock")
	}
	if failed := FailedLines(checks); len(failed) > 0 {
		recordRejection("stock_conflict")
		return nil, &StockConflictError{Lines: failed}
	}

	order, err := a.buildOrder(ctx, identity, cart, addr, params)
	if err != nil {
		return nil, err
	}

	var placed *PlacedOrder
	switch params.PaymentMethod {
	case domain.PaymentMethodCOD:
		placed, err = a.placeCashOnDelivery(ctx, order, params.Session)
	default:
		placed, err = a.placeGatewayOrder(ctx, order, params)
	}
	if err != nil {
		return nil, err
	}

	if err := a.addresses.Touch(ctx, addr.ID); err != nil {
		a.logger.Warn("failed to touch address", "address_id", addr.ID, "error", err)
	}

	if telemetry.Business != nil {
		method := string(order.PaymentMethod)
		telemetry.Business.OrdersAssembled.WithLabelValues(method).Inc()
		telemetry.Business.OrderValue.WithLabelValues(method).Observe(order.Amount.InexactFloat64())
	}

	a.logger.Info("order assembled",
		"order_id", order.ID,
		"payment_method", order.PaymentMethod,
		"amount", order.Amount.String(),
		"lines", len(order.Items),
	)
	return placed, nil
}

// Wait blocks until in-flight notifications have been delivered.
func (a *OrderAssembler) Wait() {
	a.notifications.Wait()
}

func (a *OrderAssembler) buildOrder(ctx context.Context, identity domain.Identity, cart domain.Cart, addr *domain.Address, params AssembleParams) (*domain.Order, error) {
	prices, err := a.catalog.Prices(ctx, cart.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(cart))
	for _, line := range cart.Lines() {
		price, ok := prices[line.ProductID]
		if !ok {
			return nil, ErrPriceNotFound
		}
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      price.Name,
			Quantity:  line.Quantity,
			UnitPrice: price.UnitPrice,
		})
	}

	percent := decimal.Zero
	if params.DiscountCode != "" {
		percent, err = a.discounts.DiscountPercent(ctx, params.DiscountCode)
		if err != nil {
			return nil, err
		}
	}
	original, discount, amount := ComputeTotals(items, percent)

	email := identity.Email
	if email == "" {
		email = addr.Email
	}

	now := a.now()
	return &domain.Order{
		ID:             uuid.New(),
		UserID:         identity.UserID,
		DeviceID:       identity.DeviceID,
		AddressID:      addr.ID,
		ContactEmail:   email,
		Items:          items,
		OriginalAmount: original,
		DiscountAmount: discount,
		Amount:         amount,
		DiscountCode:   params.DiscountCode,
		Currency:       a.currency,
		PaymentMethod:  params.PaymentMethod,
		Status:         domain.OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// placeCashOnDelivery commits inventory first, then writes the order. A failed
// write gives the stock back.
func (a *OrderAssembler) placeCashOnDelivery(ctx context.Context, order *domain.Order, session *CartSession) (*PlacedOrder, error) {
	lines := order.StockLines()

	if err := a.inventory.DecrementAll(ctx, lines); err != nil {
		if errors.Is(err, domain.ErrInsufficientInventory) {
			recordRejection("stock_conflict")
			return nil, &StockConflictError{Lines: a.conflictLines(ctx, session.Cart())}
		}
		return nil, fmt.Errorf("failed to decrement inventory: %w", err)
	}

	if err := a.orders.Create(ctx, order); err != nil {
		if rerr := a.inventory.Restock(ctx, lines); rerr != nil {
			a.logger.Error("failed to restock after order write failure",
				"order_id", order.ID,
				"error", rerr,
			)
			telemetry.CaptureErrorFromContext(ctx, rerr, map[string]interface{}{
				"order_id":  order.ID.String(),
				"component": "order_assembler",
			})
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	session.Clear(ctx)
	a.notify(ctx, order)

	return &PlacedOrder{Order: order}, nil
}

// placeGatewayOrder writes the pending order and opens a hosted payment
// session for it. Inventory and carts are left for the confirmation.
func (a *OrderAssembler) placeGatewayOrder(ctx context.Context, order *domain.Order, params AssembleParams) (*PlacedOrder, error) {
	if err := a.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	session, err := a.gateway.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
		OrderID:        order.ID.String(),
		AmountCents:    order.Amount.Shift(2).IntPart(),
		Currency:       order.Currency,
		Description:    fmt.Sprintf("Order %s", order.ID.String()[:8]),
		CustomerEmail:  order.ContactEmail,
		SuccessURL:     params.SuccessURL,
		CancelURL:      params.CancelURL,
		Metadata:       map[string]string{"device_id": order.DeviceID},
		IdempotencyKey: "checkout-" + order.ID.String(),
	})
	if err != nil {
		a.discard(ctx, order)
		recordRejection("gateway_error")
		a.logger.Error("failed to create checkout session",
			"order_id", order.ID,
			"temporary", billing.IsTemporary(err),
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrPaymentGateway, err)
	}

	if err := a.orders.SetPaymentReference(ctx, order.ID, session.ID); err != nil {
		a.discard(ctx, order)
		return nil, fmt.Errorf("failed to store payment reference: %w", err)
	}
	order.PaymentReference = session.ID

	return &PlacedOrder{Order: order, RedirectURL: session.URL}, nil
}

func (a *OrderAssembler) discard(ctx context.Context, order *domain.Order) {
	if _, err := a.orders.DeleteIfPending(ctx, order.ID); err != nil {
		a.logger.Error("failed to discard pending order", "order_id", order.ID, "error", err)
	}
}

// conflictLines re-reads stock after a refused decrement so the shopper sees
// the counts that caused it.
func (a *OrderAssembler) conflictLines(ctx context.Context, cart domain.Cart) []LineCheck {
	checks, err := a.validator.Validate(ctx, cart, Authoritative)
	if err != nil {
		a.logger.Warn("failed to re-read stock after conflict", "error", err)
		return nil
	}
	if failed := FailedLines(checks); len(failed) > 0 {
		return failed
	}
	return checks
}

func (a *OrderAssembler) notify(ctx context.Context, order *domain.Order) {
	if a.notifier == nil {
		return
	}
	notifyAsync(ctx, &a.notifications, a.notifier, order, a.logger)
}

// notifyAsync delivers an order notification without blocking the caller.
// The request context's cancellation is detached so the delivery outlives it.
func notifyAsync(ctx context.Context, wg *sync.WaitGroup, notifier domain.Notifier, order *domain.Order, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	snapshot := *order

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := notifier.OrderConfirmed(ctx, &snapshot); err != nil {
			logger.Warn("order notification failed", "order_id", snapshot.ID, "error", err)
		}
	}()
}

func recordRejection(reason string) {
	if telemetry.Business != nil {
		telemetry.Business.CheckoutRejected.WithLabelValues(reason).Inc()
	}
}
