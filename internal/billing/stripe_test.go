package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func newTestGateway(t *testing.T) *StripeGateway {
	t.Helper()
	gw, err := NewStripeGateway(StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: testWebhookSecret,
	})
	require.NoError(t, err)
	return gw
}

func signedPayload(t *testing.T, payload string, secret string) ([]byte, string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  secret,
	})
	return signed.Payload, signed.Header
}

func TestParseWebhookEvent(t *testing.T) {
	completed := `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_test_abc",
			"object": "checkout.session",
			"payment_status": "paid",
			"metadata": {"order_id": "order-123"}
		}}
	}`

	tests := []struct {
		name        string
		payload     string
		secret      string
		wantErr     error
		wantType    string
		wantSession string
		wantStatus  string
		wantOrderID string
	}{
		{
			name:        "decodes checkout session completed",
			payload:     completed,
			secret:      testWebhookSecret,
			wantType:    EventCheckoutCompleted,
			wantSession: "cs_test_abc",
			wantStatus:  PaymentStatusPaid,
			wantOrderID: "order-123",
		},
		{
			name:    "rejects wrong secret",
			payload: completed,
			secret:  "whsec_wrong_secret",
			wantErr: ErrInvalidWebhookSignature,
		},
		{
			name:     "passes through unrelated events",
			payload:  `{"id": "evt_2", "object": "event", "type": "customer.created", "data": {"object": {}}}`,
			secret:   testWebhookSecret,
			wantType: "customer.created",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t)
			body, header := signedPayload(t, tt.payload, tt.secret)

			event, err := gw.ParseWebhookEvent(body, header)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, event.Type)
			assert.Equal(t, tt.wantSession, event.CheckoutSessionID)
			assert.Equal(t, tt.wantStatus, event.PaymentStatus)
			assert.Equal(t, tt.wantOrderID, event.OrderID)
		})
	}
}

func TestParseWebhookEvent_MissingSignature(t *testing.T) {
	gw := newTestGateway(t)
	_, err := gw.ParseWebhookEvent([]byte(`{"id":"evt_1"}`), "")
	assert.ErrorIs(t, err, ErrInvalidWebhookSignature)
}

func TestCreateCheckoutSession_RejectsTinyAmounts(t *testing.T) {
	gw := newTestGateway(t)
	_, err := gw.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		OrderID:     "order-1",
		AmountCents: 49,
	})
	assert.ErrorIs(t, err, ErrAmountTooSmall)
}

func TestStripeConfig_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   StripeConfig
		wantErr  bool
		testMode bool
	}{
		{
			name:     "valid test mode config",
			config:   StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec_123"},
			testMode: true,
		},
		{
			name:   "valid live mode config",
			config: StripeConfig{APIKey: "sk_live_123", WebhookSecret: "whsec_123"},
		},
		{
			name:    "missing api key",
			config:  StripeConfig{WebhookSecret: "whsec_123"},
			wantErr: true,
		},
		{
			name:    "missing webhook secret",
			config:  StripeConfig{APIKey: "sk_test_123"},
			wantErr: true,
		},
		{
			name:    "session ttl out of range",
			config:  StripeConfig{APIKey: "sk_test_123", WebhookSecret: "whsec_123", SessionTTLMinutes: 10},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.testMode, tt.config.IsTestMode())
		})
	}
}

func TestStripeError(t *testing.T) {
	original := errors.New("boom")

	tests := []struct {
		name          string
		err           *StripeError
		wantMessage   string
		wantTemporary bool
	}{
		{
			name:        "invalid request",
			err:         &StripeError{Message: "Amount must be at least 50 cents", Code: "amount_too_small", StripeCode: "400"},
			wantMessage: "stripe: Amount must be at least 50 cents (code: amount_too_small)",
		},
		{
			name:          "rate limited",
			err:           &StripeError{Message: "Too many requests", Code: "rate_limit", StripeCode: "429"},
			wantMessage:   "stripe: Too many requests (code: rate_limit)",
			wantTemporary: true,
		},
		{
			name:          "server error without code",
			err:           &StripeError{Message: "Internal error", StripeCode: "503", OriginalError: original},
			wantMessage:   "stripe: Internal error",
			wantTemporary: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.err.Error())
			assert.Equal(t, tt.wantTemporary, tt.err.IsTemporary())
			assert.Equal(t, tt.wantTemporary, IsTemporary(fmt.Errorf("create session: %w", tt.err)))
		})
	}

	wrapped := &StripeError{Message: "x", OriginalError: original}
	assert.True(t, errors.Is(wrapped, original))
}

func TestMockGateway(t *testing.T) {
	gw := NewMockGateway()

	session, err := gw.CreateCheckoutSession(context.Background(), CheckoutSessionParams{
		OrderID:     "order-1",
		AmountCents: 2599,
		Currency:    "usd",
	})
	require.NoError(t, err)
	assert.Contains(t, session.URL, session.ID)
	assert.Equal(t, int64(2599), gw.Sessions[session.ID].AmountCents)
	assert.Equal(t, []string{"CreateCheckoutSession(order-1, 2599, usd)"}, gw.Calls())

	_, err = gw.ParseWebhookEvent([]byte(`{}`), "")
	assert.ErrorIs(t, err, ErrInvalidWebhookSignature)
}
