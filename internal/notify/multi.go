// Package notify fans order notifications out to several channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
)

// Channel is a named notifier.
type Channel struct {
	Name     string
	Notifier domain.Notifier
}

// Multi implements domain.Notifier by calling every channel in order.
// A failing channel does not stop the others; all failures are joined.
type Multi struct {
	channels []Channel
	logger   *slog.Logger
}

var _ domain.Notifier = (*Multi)(nil)

func NewMulti(logger *slog.Logger, channels ...Channel) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{channels: channels, logger: logger}
}

func (m *Multi) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notifier.OrderConfirmed(ctx, order); err != nil {
			m.logger.Warn("notification channel failed",
				"channel", ch.Name,
				"order_id", order.ID,
				"error", err,
			)
			if telemetry.Business != nil {
				telemetry.Business.NotificationsFailed.WithLabelValues(ch.Name).Inc()
			}
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	return errors.Join(errs...)
}
