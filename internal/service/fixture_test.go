package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/decks/internal/billing"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Fixtures
// ============================================================================

// recordingNotifier implements domain.Notifier for testing
type recordingNotifier struct {
	mu     sync.Mutex
	orders []uuid.UUID
	err    error
}

func (n *recordingNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.ID)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.orders)
}

type fixture struct {
	inventory *memory.InventoryStore
	devices   *memory.CartStore
	accounts  *memory.CartStore
	orders    *memory.OrderStore
	addresses *memory.AddressStore
	catalog   *memory.Catalog
	events    *memory.PaymentEventLog
	gateway   *billing.MockGateway
	notifier  *recordingNotifier

	sessions  *Sessions
	resolver  *AddressResolver
	validator *StockValidator
	assembler *OrderAssembler
	payments  *PaymentConfirmationHandler
	orderSvc  *OrderService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, stock map[string]int) *fixture {
	t.Helper()

	f := &fixture{
		inventory: memory.NewInventoryStore(stock),
		devices:   memory.NewCartStore(),
		accounts:  memory.NewCartStore(),
		orders:    memory.NewOrderStore(),
		addresses: memory.NewAddressStore(),
		catalog:   memory.NewCatalog(),
		events:    memory.NewPaymentEventLog(),
		gateway:   billing.NewMockGateway(),
		notifier:  &recordingNotifier{},
	}
	logger := discardLogger()

	f.sessions = NewSessions(CartSessionConfig{
		Device:  f.devices,
		Account: f.accounts,
		Stock:   f.inventory,
		Logger:  logger,
	})
	f.resolver = NewAddressResolver(f.addresses)
	f.sessions.OnLogin(f.resolver.PromoteDevice)
	f.validator = NewStockValidator(f.inventory, nil)
	f.assembler = NewOrderAssembler(AssemblerConfig{
		Inventory: f.inventory,
		Validator: f.validator,
		Orders:    f.orders,
		Catalog:   f.catalog,
		Discounts: f.catalog,
		Addresses: f.resolver,
		Gateway:   f.gateway,
		Notifier:  f.notifier,
		Currency:  "usd",
		Logger:    logger,
	})
	f.payments = NewPaymentConfirmationHandler(PaymentHandlerConfig{
		Events:    f.events,
		Orders:    f.orders,
		Inventory: f.inventory,
		Carts:     f.sessions,
		Notifier:  f.notifier,
		Logger:    logger,
	})
	f.orderSvc = NewOrderService(f.orders, logger)

	for id := range stock {
		f.catalog.AddProduct(id, "Product "+id, "10.00")
	}
	return f
}

func guest(device string) domain.Identity {
	return domain.Identity{DeviceID: device}
}

func member(device string, userID uuid.UUID) domain.Identity {
	return domain.Identity{DeviceID: device, UserID: userID, Email: "shopper@example.com"}
}

func (f *fixture) session(t *testing.T, id domain.Identity) *CartSession {
	t.Helper()
	s, _, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}

func (f *fixture) saveAddress(t *testing.T, id domain.Identity, street, postal string) *domain.Address {
	t.Helper()
	addr, err := f.resolver.Save(context.Background(), id, AddressInput{
		FullName:   "Ada Lovelace",
		Email:      "ada@example.com",
		Phone:      "555-0100",
		Street:     street,
		City:       "London",
		PostalCode: postal,
		Country:    "GB",
	})
	require.NoError(t, err)
	return addr
}
