package postgres

import (
	"context"
	"fmt"

	"github.com/dukerupert/decks/internal/domain"
)

// PaymentEventLog implements domain.PaymentEventLog. The event id is the
// primary key, so a concurrent second Record fails with a unique violation.
type PaymentEventLog struct {
	db DB
}

var _ domain.PaymentEventLog = (*PaymentEventLog)(nil)

func NewPaymentEventLog(db DB) *PaymentEventLog {
	return &PaymentEventLog{db: db}
}

func (l *PaymentEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_events WHERE event_id = $1)`,
		eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check payment event: %w", err)
	}
	return seen, nil
}

func (l *PaymentEventLog) Record(ctx context.Context, event domain.PaymentEvent) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO payment_events (event_id, event_type, correlation_id, outcome, received_at)
		VALUES ($1, $2, $3, $4, $5)`,
		event.EventID, event.Type, event.CorrelationID, string(event.Outcome), event.ReceivedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateEvent
	}
	if err != nil {
		return fmt.Errorf("failed to record payment event: %w", err)
	}
	return nil
}
