package domain

import (
	"context"
	"time"
)

// ErrDuplicateEvent is returned when a gateway event id was already recorded.
var ErrDuplicateEvent = &Error{Code: ECONFLICT, Message: "Payment event already processed"}

// PaymentOutcome is the result the gateway reports for a checkout session.
type PaymentOutcome string

const (
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// PaymentEvent is a gateway confirmation reduced to what finalization needs.
// CorrelationID is the gateway's own session id, never a client-supplied order id.
type PaymentEvent struct {
	EventID       string
	Type          string
	CorrelationID string
	Outcome       PaymentOutcome
	ReceivedAt    time.Time
}

// PaymentEventLog remembers which gateway events were processed.
type PaymentEventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)

	// Record stores the event. Returns ErrDuplicateEvent if it was already stored.
	Record(ctx context.Context, event PaymentEvent) error
}
