package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/decks/internal"
	"github.com/dukerupert/decks/internal/billing"
	"github.com/dukerupert/decks/internal/cookie"
	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/email"
	"github.com/dukerupert/decks/internal/events"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/handler/admin"
	"github.com/dukerupert/decks/internal/handler/storefront"
	"github.com/dukerupert/decks/internal/handler/webhook"
	"github.com/dukerupert/decks/internal/jobs"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/notify"
	"github.com/dukerupert/decks/internal/router"
	"github.com/dukerupert/decks/internal/routes"
	"github.com/dukerupert/decks/internal/service"
	"github.com/dukerupert/decks/internal/telemetry"
	"github.com/dukerupert/decks/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize error tracking
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	telemetry.InitBusinessMetrics("decks")

	// Open stores
	stores, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	// Initialize payment gateway
	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize notifications
	notifier, closeNotifier, err := newNotifier(cfg, stores.Addresses, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	// Initialize services
	advisory := service.NewCachedStockReader(stores.Inventory, cfg.Cart.AdvisoryStockTTL)
	validator := service.NewStockValidator(stores.Inventory, advisory)
	addresses := service.NewAddressResolver(stores.Addresses)

	sessions := service.NewSessions(service.CartSessionConfig{
		Device:      stores.Devices,
		Account:     stores.Accounts,
		Stock:       advisory,
		Logger:      logger,
		SyncTimeout: cfg.Cart.SyncTimeout,
	})
	sessions.OnLogin(addresses.PromoteDevice)

	assembler := service.NewOrderAssembler(service.AssemblerConfig{
		Inventory: stores.Inventory,
		Validator: validator,
		Orders:    stores.Orders,
		Catalog:   stores.Catalog,
		Discounts: stores.Discounts,
		Addresses: addresses,
		Gateway:   gateway,
		Notifier:  notifier,
		Currency:  cfg.Stripe.Currency,
		Logger:    logger,
	})

	payments := service.NewPaymentConfirmationHandler(service.PaymentHandlerConfig{
		Events:    stores.Events,
		Orders:    stores.Orders,
		Inventory: stores.Inventory,
		Carts:     sessions,
		Notifier:  notifier,
		Logger:    logger,
	})

	orders := service.NewOrderService(stores.Orders, logger)

	// ==========================================================================
	// Initialize middleware
	// ==========================================================================

	metrics := middleware.NewMetrics("decks")

	securityConfig := middleware.DefaultSecurityHeadersConfig()
	if !cfg.IsProduction() {
		securityConfig.HSTSMaxAge = 0
	}

	defaultLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer defaultLimiter.Stop()
	checkoutLimiter := middleware.NewRateLimiter(middleware.CheckoutRateLimiterConfig())
	defer checkoutLimiter.Stop()

	var verifier middleware.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = middleware.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else {
		logger.Warn("AUTH_JWT_SECRET not set; every shopper is anonymous")
	}

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		metrics.Middleware,
		middleware.SecurityHeaders(securityConfig),
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		defaultLimiter.Middleware,
		router.Logger(logger),
		telemetry.SentryMiddleware(),
	)

	routes.RegisterStorefrontRoutes(r, routes.StorefrontDeps{
		Identity: middleware.WithIdentity(cookie.NewConfig("", cfg.IsProduction()), verifier),
		Middleware: []router.Middleware{
			middleware.WithRequestLogger(logger),
			telemetry.SentryContextMiddleware(sentryUser),
		},
		CheckoutLimit:   checkoutLimiter.Middleware,
		CartHandler:     storefront.NewCartHandler(sessions, validator, logger),
		AddressHandler:  storefront.NewAddressHandler(addresses),
		CheckoutHandler: storefront.NewCheckoutHandler(sessions, assembler, cfg.BaseURL, logger),
		OrderHandler:    storefront.NewOrderHandler(orders),
	})

	routes.RegisterAdminRoutes(r, routes.AdminDeps{
		Auth:         middleware.RequireAdminToken(cfg.AdminToken),
		OrderHandler: admin.NewOrderHandler(orders, logger),
	})
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set; order fulfilment endpoints are disabled")
	}

	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		StripeHandler: webhook.NewStripeHandler(gateway, payments, logger).HandleWebhook,
	})

	routes.RegisterOpsRoutes(r, routes.OpsDeps{
		Health:  handler.Health(stores.Checks),
		Metrics: metrics.Handler(),
	})

	// ==========================================================================
	// Start background jobs
	// ==========================================================================

	w := worker.NewWorker(worker.Config{WorkerID: "server"}, logger)
	sweeper := jobs.NewPendingOrderSweeper(stores.Orders, cfg.Orders.PendingTTL, logger)
	if sweeper.Enabled() {
		w.Register(sweeper, cfg.Orders.SweepInterval)
		logger.Info("Pending order sweeper enabled", "ttl", cfg.Orders.PendingTTL, "interval", cfg.Orders.SweepInterval)
	}
	workerDone := make(chan error, 1)
	go func() { workerDone <- w.Start(ctx) }()

	// ==========================================================================
	// Start server
	// ==========================================================================

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	stop()
	<-workerDone

	// Let queued cart syncs and confirmation notices finish.
	sessions.Wait()
	assembler.Wait()
	payments.Wait()

	logger.Info("Shutdown complete")
	return nil
}

func newGateway(cfg *internal.Config, logger *slog.Logger) (billing.Gateway, error) {
	if !cfg.IsProduction() && strings.HasPrefix(cfg.Stripe.SecretKey, "sk_test_your") {
		logger.Warn("STRIPE_SECRET_KEY not set; using the mock payment gateway")
		return billing.NewMockGateway(), nil
	}

	stripeConfig := billing.StripeConfig{
		APIKey:            cfg.Stripe.SecretKey,
		WebhookSecret:     cfg.Stripe.WebhookSecret,
		Currency:          cfg.Stripe.Currency,
		SessionTTLMinutes: cfg.Stripe.SessionTTLMinutes,
	}
	gateway, err := billing.NewStripeGateway(stripeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Stripe gateway: %w", err)
	}
	logger.Info("Stripe gateway initialized", "test_mode", stripeConfig.IsTestMode())
	return gateway, nil
}

// newNotifier fans confirmations out to email and, when configured, NATS.
func newNotifier(cfg *internal.Config, addresses email.AddressLookup, logger *slog.Logger) (domain.Notifier, func(), error) {
	var sender email.Sender
	if cfg.Email.Host != "" {
		smtp := email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     int(cfg.Email.Port),
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		}, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := smtp.TestConnection(ctx); err != nil {
			logger.Warn("SMTP server unreachable", "host", cfg.Email.Host, "error", err)
		}
		cancel()
		sender = smtp
	} else {
		logger.Warn("SMTP_HOST not set; confirmation emails are logged only")
		sender = email.LogSender{Logger: logger}
	}

	mailer, err := email.NewOrderNotifier(sender, addresses, cfg.Email.From, cfg.Email.FromName, cfg.BaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize order emails: %w", err)
	}
	channels := []notify.Channel{{Name: "email", Notifier: mailer}}

	closeFn := func() {}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL, logger)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, notify.Channel{Name: "nats", Notifier: events.NewNATSPublisher(nc, logger)})
		closeFn = func() { _ = nc.Drain() }
		logger.Info("Publishing order events to NATS", "subject", events.SubjectOrderConfirmed)
	}

	return notify.NewMulti(logger, channels...), closeFn, nil
}

func sentryUser(ctx context.Context) *telemetry.UserInfo {
	identity, ok := domain.IdentityFromContext(ctx)
	if !ok {
		return nil
	}
	info := &telemetry.UserInfo{DeviceID: identity.DeviceID, Email: identity.Email}
	if identity.Authenticated() {
		info.ID = identity.UserID.String()
	}
	return info
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
