package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
)

// DefaultCartSyncTimeout bounds a single background write of the account cart.
const DefaultCartSyncTimeout = 5 * time.Second

// Adjustment records a cart line that reconciliation clamped to available stock.
type Adjustment struct {
	ProductID string `json:"product_id"`
	From      int    `json:"from"`
	To        int    `json:"to"`
}

// MergeCarts combines two carts by taking the larger quantity per product.
// Quantities are never added, so a device that contributed to both copies is
// not double counted.
func MergeCarts(local, remote domain.Cart) domain.Cart {
	merged := local.Clone()
	for id, qty := range remote {
		if qty > merged[id] {
			merged[id] = qty
		}
	}
	return merged
}

// ClampToStock lowers every line above its available stock. Lines for products
// missing from snaps are treated as out of stock and removed.
func ClampToStock(cart domain.Cart, snaps map[string]domain.StockSnapshot) (domain.Cart, []Adjustment) {
	out := cart.Clone()
	var adjustments []Adjustment
	for _, id := range cart.ProductIDs() {
		available := snaps[id].AvailableStock
		if cart[id] > available {
			adjustments = append(adjustments, Adjustment{ProductID: id, From: cart[id], To: available})
			out.Set(id, available)
		}
	}
	return out, adjustments
}

// CartSessionConfig holds the collaborators shared by every cart session.
type CartSessionConfig struct {
	Device      domain.CartPersister // durable per-device copy, written synchronously
	Account     domain.CartPersister // per-account replica, written in the background
	Stock       StockReader
	Logger      *slog.Logger
	SyncTimeout time.Duration
}

// CartSession is the in-memory cart for one device. It is the display source
// of truth; the device and account copies are shadows kept up to date from it.
// Mutations of one session are serialized.
type CartSession struct {
	mu        sync.Mutex
	identity  domain.Identity
	cart      domain.Cart
	lastKnown map[string]int
	attached  bool
	version   uint64

	device      domain.CartPersister
	account     domain.CartPersister
	stock       StockReader
	logger      *slog.Logger
	syncTimeout time.Duration

	// syncMu orders account writes; lastSynced is the newest version written.
	syncMu     sync.Mutex
	lastSynced uint64
	pending    sync.WaitGroup

	restore sync.Once
}

// NewCartSession creates an empty session. Call Restore to load persisted copies.
func NewCartSession(identity domain.Identity, cfg CartSessionConfig) *CartSession {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.SyncTimeout
	if timeout <= 0 {
		timeout = DefaultCartSyncTimeout
	}
	return &CartSession{
		identity:    identity,
		cart:        domain.Cart{},
		lastKnown:   make(map[string]int),
		device:      cfg.Device,
		account:     cfg.Account,
		stock:       cfg.Stock,
		logger:      logger.With("device_id", identity.DeviceID),
		syncTimeout: timeout,
	}
}

// Cart returns a copy of the session cart.
func (s *CartSession) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart.Clone()
}

// Attached reports whether the session cart has been merged with the account copy.
func (s *CartSession) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Identity returns the identity the session currently belongs to.
func (s *CartSession) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetQuantity sets the quantity of one product. Negative quantities remove the
// line. A quantity above available stock fails with *StockError and leaves the
// cart unchanged. When stock cannot be read the last known value is used, or
// the change is accepted if the product was never seen.
func (s *CartSession) SetQuantity(ctx context.Context, productID string, qty int) (domain.Cart, error) {
	if productID == "" {
		return nil, ErrInvalidProduct
	}
	if qty < 0 {
		qty = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if qty > 0 {
		if available, known := s.availableLocked(ctx, productID); known && qty > available {
			err := &StockError{ProductID: productID, Requested: qty, Available: available}
			recordMutation(err)
			return s.cart.Clone(), err
		}
	}

	s.cart.Set(productID, qty)
	recordMutation(nil)
	return s.commitLocked(ctx), nil
}

// Remove deletes a product from the cart.
func (s *CartSession) Remove(ctx context.Context, productID string) (domain.Cart, error) {
	return s.SetQuantity(ctx, productID, 0)
}

// Restore loads the device copy and, for authenticated sessions, the account
// copy, and merges both into the session cart. For authenticated sessions the
// merged cart is clamped to stock and the session counts as attached.
// Load failures are logged and the session continues with what it has. A
// session whose account copy could not be read stays detached, so the copy is
// not overwritten before AttachAccount has merged it.
func (s *CartSession) Restore(ctx context.Context) []Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, err := s.device.Load(ctx, s.identity.DeviceID)
	if err != nil {
		s.logger.Warn("failed to load device cart", "error", err)
		device = domain.Cart{}
	}
	merged := MergeCarts(s.cart, device)

	var adjustments []Adjustment
	if s.identity.Authenticated() {
		remote, err := s.account.Load(ctx, s.identity.AccountKey())
		if err != nil {
			s.logger.Warn("failed to load account cart", "user_id", s.identity.UserID, "error", err)
			s.cart = merged
			return nil
		}
		merged = MergeCarts(merged, remote)
		merged, adjustments = s.clampLocked(ctx, merged)
		s.attached = true

		if !merged.Equal(remote) || !merged.Equal(device) {
			s.cart = merged
			s.commitLocked(ctx)
			return adjustments
		}
	}

	s.cart = merged
	return adjustments
}

// AttachAccount runs the guest to account reconciliation: the session cart and
// the account copy are merged, clamped to stock and pushed back to both copies.
// It runs once per session; later calls return nil.
func (s *CartSession) AttachAccount(ctx context.Context, identity domain.Identity) ([]Adjustment, error) {
	if !identity.Authenticated() {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return nil, nil
	}

	remote, err := s.account.Load(ctx, identity.AccountKey())
	if err != nil {
		return nil, fmt.Errorf("failed to load account cart: %w", err)
	}

	merged, adjustments := s.clampLocked(ctx, MergeCarts(s.cart, remote))

	identity.DeviceID = s.identity.DeviceID
	s.identity = identity
	s.attached = true
	s.cart = merged
	s.commitLocked(ctx)

	if telemetry.Business != nil {
		outcome := "unchanged"
		if len(adjustments) > 0 {
			outcome = "clamped"
		}
		telemetry.Business.CartReconciliations.WithLabelValues(outcome).Inc()
	}

	s.logger.Info("cart reconciled with account",
		"user_id", identity.UserID,
		"lines", len(merged),
		"adjustments", len(adjustments),
	)
	return adjustments, nil
}

// Clear empties the session cart and both persisted copies synchronously.
// Failures are logged; the session cart is empty regardless.
func (s *CartSession) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = domain.Cart{}
	s.version++

	if err := s.device.Clear(ctx, s.identity.DeviceID); err != nil {
		s.logger.Warn("failed to clear device cart", "error", err)
	}
	if key := s.identity.AccountKey(); key != "" {
		if err := s.writeAccount(ctx, key, nil, s.version); err != nil {
			s.logger.Warn("failed to clear account cart", "user_id", s.identity.UserID, "error", err)
			recordSyncFailure("clear")
		}
	}
}

// ensureRestored runs Restore the first time it is called.
func (s *CartSession) ensureRestored(ctx context.Context) []Adjustment {
	var adjustments []Adjustment
	s.restore.Do(func() {
		adjustments = s.Restore(ctx)
	})
	return adjustments
}

// Wait blocks until background account writes have finished.
func (s *CartSession) Wait() {
	s.pending.Wait()
}

// availableLocked returns the stock to check a mutation against and whether
// any reading, fresh or remembered, exists.
func (s *CartSession) availableLocked(ctx context.Context, productID string) (int, bool) {
	snaps, err := s.stock.Snapshots(ctx, []string{productID})
	if err == nil {
		available := snaps[productID].AvailableStock
		s.lastKnown[productID] = available
		return available, true
	}

	available, ok := s.lastKnown[productID]
	source := "optimistic"
	if ok {
		source = "last_known"
	}
	s.logger.Warn("stock lookup failed, using fallback",
		"product_id", productID,
		"source", source,
		"error", err,
	)
	if telemetry.Business != nil {
		telemetry.Business.CartStockFallbacks.WithLabelValues(source).Inc()
	}
	return available, ok
}

// clampLocked clamps cart against fresh stock. If stock cannot be read the
// cart is kept as is; checkout revalidates it.
func (s *CartSession) clampLocked(ctx context.Context, cart domain.Cart) (domain.Cart, []Adjustment) {
	if cart.IsEmpty() {
		return cart, nil
	}
	snaps, err := s.stock.Snapshots(ctx, cart.ProductIDs())
	if err != nil {
		s.logger.Warn("stock lookup failed during reconciliation", "error", err)
		return cart, nil
	}
	for id, snap := range snaps {
		s.lastKnown[id] = snap.AvailableStock
	}
	return ClampToStock(cart, snaps)
}

// commitLocked bumps the cart version, writes the device copy and, once the
// session is attached, schedules the account copy. It returns a copy of the
// committed cart.
func (s *CartSession) commitLocked(ctx context.Context) domain.Cart {
	s.version++
	snapshot := s.cart.Clone()

	if err := s.device.Save(ctx, s.identity.DeviceID, snapshot); err != nil {
		s.logger.Warn("failed to save device cart", "error", err)
	}

	if key := s.identity.AccountKey(); key != "" && s.attached && s.account != nil {
		version := s.version
		s.pending.Add(1)
		go func() {
			defer s.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
			defer cancel()
			if err := s.writeAccount(ctx, key, snapshot, version); err != nil {
				s.logger.Warn("account cart sync failed", "user_id", key, "version", version, "error", err)
				recordSyncFailure("save")
			}
		}()
	}

	return snapshot.Clone()
}

// writeAccount writes the account copy unless a newer version is already
// stored. A nil cart clears the copy.
func (s *CartSession) writeAccount(ctx context.Context, key string, cart domain.Cart, version uint64) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	if version <= s.lastSynced {
		return nil
	}

	var err error
	if cart == nil {
		err = s.account.Clear(ctx, key)
	} else {
		err = s.account.Save(ctx, key, cart)
	}
	if err != nil {
		return fmt.Errorf("failed to write account cart: %w", err)
	}
	s.lastSynced = version
	return nil
}

func recordMutation(err error) {
	if telemetry.Business == nil {
		return
	}
	result := "ok"
	if stockErr, ok := err.(*StockError); ok {
		result = ReasonInsufficientStock
		if stockErr.Available == 0 {
			result = ReasonOutOfStock
		}
	}
	telemetry.Business.CartMutations.WithLabelValues(result).Inc()
}

func recordSyncFailure(op string) {
	if telemetry.Business != nil {
		telemetry.Business.AccountCartSyncFailed.WithLabelValues(op).Inc()
	}
}
