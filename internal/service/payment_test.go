package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEventLog implements domain.PaymentEventLog with injectable errors
type failingEventLog struct {
	seenErr   error
	recordErr error
}

func (l *failingEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	return false, l.seenErr
}

func (l *failingEventLog) Record(ctx context.Context, event domain.PaymentEvent) error {
	return l.recordErr
}

// placeGatewayOrder puts qty of product A in the shopper's cart and checks out
// through the gateway.
func placeGatewayOrder(t *testing.T, f *fixture, id domain.Identity, qty int) *domain.Order {
	t.Helper()
	ctx := context.Background()

	s := f.session(t, id)
	_, err := s.SetQuantity(ctx, "A", qty)
	require.NoError(t, err)
	f.saveAddress(t, id, "1 Main St", "12345")
	s.Wait()

	placed, err := f.assembler.Assemble(ctx, AssembleParams{Session: s, PaymentMethod: domain.PaymentMethodGateway})
	require.NoError(t, err)
	require.NotEmpty(t, placed.Order.PaymentReference)
	return placed.Order
}

func succeeded(eventID, reference string) domain.PaymentEvent {
	return domain.PaymentEvent{
		EventID:       eventID,
		Type:          "checkout.session.completed",
		CorrelationID: reference,
		Outcome:       domain.PaymentSucceeded,
	}
}

func failed(eventID, reference string) domain.PaymentEvent {
	return domain.PaymentEvent{
		EventID:       eventID,
		Type:          "checkout.session.expired",
		CorrelationID: reference,
		Outcome:       domain.PaymentFailed,
	}
}

func TestHandleEvent_SuccessFinalizesOrder(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	user := uuid.New()
	id := member("dev-1", user)
	order := placeGatewayOrder(t, f, id, 2)

	result, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
	require.NoError(t, err)
	f.payments.Wait()

	assert.Equal(t, ResultPaid, result)
	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, stored.Status)
	assert.True(t, stored.IsPaid)

	assert.Equal(t, 3, f.inventory.Stock("A"))
	assert.True(t, f.session(t, id).Cart().IsEmpty())
	device, _ := f.devices.Load(ctx, "dev-1")
	account, _ := f.accounts.Load(ctx, user.String())
	assert.True(t, device.IsEmpty())
	assert.True(t, account.IsEmpty())
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, 1, f.events.Len())
}

func TestHandleEvent_DuplicateDeliveryDecrementsOnce(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)
	event := succeeded("evt_1", order.PaymentReference)

	first, err := f.payments.HandleEvent(ctx, event)
	require.NoError(t, err)
	second, err := f.payments.HandleEvent(ctx, event)
	require.NoError(t, err)
	f.payments.Wait()

	assert.Equal(t, ResultPaid, first)
	assert.Equal(t, ResultDuplicate, second)
	assert.Equal(t, 3, f.inventory.Stock("A"))
	assert.Equal(t, 1, f.notifier.count())
}

func TestHandleEvent_RedeliveryWithNewEventIDIsIgnored(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)

	_, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
	require.NoError(t, err)
	result, err := f.payments.HandleEvent(ctx, succeeded("evt_2", order.PaymentReference))
	require.NoError(t, err)

	assert.Equal(t, ResultIgnored, result)
	assert.Equal(t, 3, f.inventory.Stock("A"))
}

func TestHandleEvent_ConcurrentDuplicatesFinalizeOnce(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)

	var wg sync.WaitGroup
	results := make([]PaymentResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()
	f.payments.Wait()

	paid := 0
	for _, r := range results {
		if r == ResultPaid {
			paid++
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 3, f.inventory.Stock("A"))
	assert.Equal(t, 1, f.notifier.count())
}

func TestHandleEvent_FailureDeletesPendingOrder(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	id := guest("dev-1")
	order := placeGatewayOrder(t, f, id, 2)

	result, err := f.payments.HandleEvent(ctx, failed("evt_1", order.PaymentReference))
	require.NoError(t, err)

	assert.Equal(t, ResultDeleted, result)
	_, err = f.orders.Get(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Equal(t, 5, f.inventory.Stock("A"))
	assert.Equal(t, domain.Cart{"A": 2}, f.session(t, id).Cart(), "cart kept so the shopper can retry")
}

func TestHandleEvent_FailureAfterPaymentIsIgnored(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)

	_, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
	require.NoError(t, err)
	result, err := f.payments.HandleEvent(ctx, failed("evt_2", order.PaymentReference))
	require.NoError(t, err)

	assert.Equal(t, ResultIgnored, result)
	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
}

var paymentMetrics = sync.OnceValue(func() *telemetry.BusinessMetrics {
	return telemetry.InitBusinessMetrics("service_test")
})

func TestHandleEvent_UnknownCorrelation(t *testing.T) {
	metrics := paymentMetrics()

	tests := []struct {
		name          string
		event         domain.PaymentEvent
		want          PaymentResult
		wantUnmatched float64
	}{
		{
			name:          "captured payment for a swept order is flagged",
			event:         succeeded("evt_1", "cs_test_unknown"),
			want:          ResultUnmatched,
			wantUnmatched: 1,
		},
		{
			name:  "failed payment for a missing order is ignored",
			event: failed("evt_2", "cs_test_unknown"),
			want:  ResultIgnored,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]int{"A": 5})
			before := testutil.ToFloat64(metrics.PaymentsUnmatched)

			result, err := f.payments.HandleEvent(context.Background(), tt.event)
			require.NoError(t, err)

			assert.Equal(t, tt.want, result)
			assert.Equal(t, tt.wantUnmatched, testutil.ToFloat64(metrics.PaymentsUnmatched)-before)
			assert.Equal(t, 1, f.events.Len())
			assert.Equal(t, 5, f.inventory.Stock("A"))
		})
	}
}

func TestHandleEvent_SweptOrderPaidLater(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)

	swept, err := f.orders.DeleteStalePending(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, swept)

	result, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
	require.NoError(t, err)

	assert.Equal(t, ResultUnmatched, result)
	assert.Equal(t, 5, f.inventory.Stock("A"))
}

func TestHandleEvent_DecrementFailureKeepsOrderPaid(t *testing.T) {
	f := newFixture(t, map[string]int{"A": 5})
	ctx := context.Background()
	order := placeGatewayOrder(t, f, guest("dev-1"), 2)

	// Stock sold elsewhere while the shopper was paying.
	f.inventory.SetStock("A", 1)

	result, err := f.payments.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
	require.NoError(t, err)
	f.payments.Wait()

	assert.Equal(t, ResultPaid, result)
	stored, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, 1, f.inventory.Stock("A"), "inventory never goes negative")
	assert.Equal(t, 1, f.notifier.count())
}

func TestHandleEvent_EventLogErrors(t *testing.T) {
	tests := []struct {
		name       string
		log        *failingEventLog
		wantResult PaymentResult
	}{
		{
			name: "seen lookup fails before any change",
			log:  &failingEventLog{seenErr: errors.New("db down")},
		},
		{
			name:       "record fails after the transition",
			log:        &failingEventLog{recordErr: errors.New("db down")},
			wantResult: ResultPaid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, map[string]int{"A": 5})
			ctx := context.Background()
			order := placeGatewayOrder(t, f, guest("dev-1"), 2)

			handler := NewPaymentConfirmationHandler(PaymentHandlerConfig{
				Events:    tt.log,
				Orders:    f.orders,
				Inventory: f.inventory,
				Carts:     f.sessions,
				Logger:    discardLogger(),
			})

			result, err := handler.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
			require.Error(t, err)
			assert.Equal(t, tt.wantResult, result)

			// Redelivery after the failure never decrements twice.
			tt.log.seenErr, tt.log.recordErr = nil, nil
			_, err = handler.HandleEvent(ctx, succeeded("evt_1", order.PaymentReference))
			require.NoError(t, err)
			assert.Equal(t, 3, f.inventory.Stock("A"))
		})
	}
}
