package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukerupert/decks/internal"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/memory"
	"github.com/dukerupert/decks/internal/postgres"
	"github.com/dukerupert/decks/internal/redisstore"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// backend holds the stores selected by configuration.
type backend struct {
	Inventory domain.InventoryStore
	Accounts  domain.CartPersister
	Devices   domain.CartPersister
	Orders    domain.OrderStore
	Addresses domain.AddressStore
	Events    domain.PaymentEventLog
	Catalog   domain.Catalog
	Discounts domain.DiscountResolver

	Checks  map[string]handler.HealthCheck
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{Checks: make(map[string]handler.HealthCheck)}

	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory stores; data is lost on restart")
		catalog := memory.NewCatalog()
		stock := make(map[string]int, len(devCatalog))
		for _, p := range devCatalog {
			catalog.AddProduct(p.id, p.name, p.price)
			stock[p.id] = p.stock
		}
		catalog.AddDiscount("WELCOME10", 10)

		b.Inventory = memory.NewInventoryStore(stock)
		b.Accounts = memory.NewCartStore()
		b.Orders = memory.NewOrderStore()
		b.Addresses = memory.NewAddressStore()
		b.Events = memory.NewPaymentEventLog()
		b.Catalog = catalog
		b.Discounts = catalog

	case "postgres":
		// Initialize database/sql connection for migrations
		logger.Info("Connecting to database...")
		sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		defer sqlDB.Close()

		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		logger.Info("Database connection established")

		logger.Info("Running database migrations...")
		if err := internal.RunMigrations(sqlDB); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database migrations completed successfully")

		pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.Checks["postgres"] = pool.Ping

		stores := postgres.NewStores(pool)
		b.Inventory = stores.Inventory
		b.Accounts = stores.Carts
		b.Orders = stores.Orders
		b.Addresses = stores.Addresses
		b.Events = stores.Events
		b.Catalog = stores.Catalog
		b.Discounts = stores.Catalog

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; device carts are kept in memory")
		b.Devices = memory.NewCartStore()
		return b, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	b.closers = append(b.closers, func() { _ = client.Close() })

	devices := redisstore.NewDeviceCartStore(client, cfg.Cart.DeviceCartTTL)
	if err := devices.Ping(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	b.Devices = devices
	b.Checks["redis"] = devices.Ping
	logger.Info("Device carts stored in Redis")

	return b, nil
}

// devCatalog seeds the memory backend.
var devCatalog = []struct {
	id    string
	name  string
	price string
	stock int
}{
	{"deck-classic", "Classic Playing Cards", "12.00", 25},
	{"deck-tarot", "Tarot Deck", "34.50", 8},
	{"deck-poker-pro", "Poker Pro Plastic Deck", "19.99", 3},
	{"dice-set", "Polyhedral Dice Set", "9.00", 40},
}
