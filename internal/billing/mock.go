package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is a mock payment gateway for testing and local development.
// Simulates hosted checkout without calling Stripe.
type MockGateway struct {
	// CreateCheckoutSessionFunc allows customizing session creation behavior
	CreateCheckoutSessionFunc func(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// ParseWebhookEventFunc allows customizing webhook parsing behavior
	ParseWebhookEventFunc func(payload []byte, signatureHeader string) (*WebhookEvent, error)

	// Sessions stores created sessions by id
	Sessions map[string]CheckoutSessionParams

	// CallLog tracks method calls for test assertions
	CallLog []string

	mu sync.Mutex
}

var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Sessions: make(map[string]CheckoutSessionParams),
		CallLog:  []string{},
	}
}

// CreateCheckoutSession records the call and returns a fake hosted session.
func (m *MockGateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateCheckoutSession(%s, %d, %s)", params.OrderID, params.AmountCents, params.Currency))
	m.mu.Unlock()

	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}

	id := "cs_test_" + uuid.New().String()

	m.mu.Lock()
	m.Sessions[id] = params
	m.mu.Unlock()

	return &CheckoutSession{
		ID:  id,
		URL: "https://checkout.example.test/pay/" + id,
	}, nil
}

// ParseWebhookEvent decodes an unsigned WebhookEvent JSON payload.
// The signature header must be non-empty.
func (m *MockGateway) ParseWebhookEvent(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, "ParseWebhookEvent")
	m.mu.Unlock()

	if m.ParseWebhookEventFunc != nil {
		return m.ParseWebhookEventFunc(payload, signatureHeader)
	}

	if signatureHeader == "" {
		return nil, ErrInvalidWebhookSignature
	}
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return &event, nil
}

// Calls returns a copy of the call log.
func (m *MockGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}
