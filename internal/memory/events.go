package memory

import (
	"context"
	"sync"

	"github.com/dukerupert/decks/internal/domain"
)

// PaymentEventLog implements domain.PaymentEventLog.
type PaymentEventLog struct {
	mu     sync.Mutex
	events map[string]domain.PaymentEvent
}

var _ domain.PaymentEventLog = (*PaymentEventLog)(nil)

func NewPaymentEventLog() *PaymentEventLog {
	return &PaymentEventLog{events: make(map[string]domain.PaymentEvent)}
}

func (l *PaymentEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.events[eventID]
	return ok, nil
}

func (l *PaymentEventLog) Record(ctx context.Context, event domain.PaymentEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.events[event.EventID]; ok {
		return domain.ErrDuplicateEvent
	}
	l.events[event.EventID] = event
	return nil
}

// Len returns the number of recorded events.
func (l *PaymentEventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
