package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// mockNotifier implements domain.Notifier for testing
type mockNotifier struct {
	calls              int
	OrderConfirmedFunc func(ctx context.Context, order *domain.Order) error
}

func (m *mockNotifier) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	m.calls++
	if m.OrderConfirmedFunc != nil {
		return m.OrderConfirmedFunc(ctx, order)
	}
	return nil
}

func TestMulti_OrderConfirmed(t *testing.T) {
	errSMTP := errors.New("smtp down")

	tests := []struct {
		name    string
		errs    []error
		wantErr []error
	}{
		{name: "all succeed", errs: []error{nil, nil}},
		{name: "one failure does not stop the rest", errs: []error{errSMTP, nil}, wantErr: []error{errSMTP}},
		{name: "no channels", errs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				channels  []Channel
				notifiers []*mockNotifier
			)
			for i, err := range tt.errs {
				err := err
				n := &mockNotifier{OrderConfirmedFunc: func(ctx context.Context, order *domain.Order) error { return err }}
				notifiers = append(notifiers, n)
				channels = append(channels, Channel{Name: string(rune('a' + i)), Notifier: n})
			}

			err := NewMulti(nil, channels...).OrderConfirmed(context.Background(), &domain.Order{ID: uuid.New()})

			for _, n := range notifiers {
				assert.Equal(t, 1, n.calls)
			}
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}
