package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/decks/internal/telemetry"
)

// JobNameSweepPendingOrders identifies the stale pending order sweep.
const JobNameSweepPendingOrders = "sweep:pending_orders"

// StalePendingDeleter removes unpaid gateway orders created before cutoff.
type StalePendingDeleter interface {
	DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// PendingOrderSweeper deletes gateway orders that stayed pending and unpaid
// longer than the TTL. Inventory is untouched: gateway orders never reserved it.
type PendingOrderSweeper struct {
	orders StalePendingDeleter
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewPendingOrderSweeper creates a sweeper. A ttl of zero or less disables it.
func NewPendingOrderSweeper(orders StalePendingDeleter, ttl time.Duration, logger *slog.Logger) *PendingOrderSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingOrderSweeper{orders: orders, ttl: ttl, logger: logger, now: time.Now}
}

func (s *PendingOrderSweeper) Name() string {
	return JobNameSweepPendingOrders
}

// Enabled reports whether a TTL is configured.
func (s *PendingOrderSweeper) Enabled() bool {
	return s.ttl > 0
}

// Run performs one sweep.
func (s *PendingOrderSweeper) Run(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	cutoff := s.now().Add(-s.ttl)
	deleted, err := s.orders.DeleteStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep pending orders: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("stale pending orders deleted", "count", deleted, "cutoff", cutoff)
		if telemetry.Business != nil {
			telemetry.Business.PendingOrdersSwept.Add(float64(deleted))
		}
	}
	return nil
}
