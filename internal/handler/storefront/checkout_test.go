package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAssembler implements OrderAssembler for testing
type mockAssembler struct {
	assembleFunc func(ctx context.Context, params service.AssembleParams) (*service.PlacedOrder, error)
}

func (m *mockAssembler) Assemble(ctx context.Context, params service.AssembleParams) (*service.PlacedOrder, error) {
	if m.assembleFunc != nil {
		return m.assembleFunc(ctx, params)
	}
	return nil, nil
}

func pendingOrder(method domain.PaymentMethod) *domain.Order {
	return &domain.Order{
		ID:             uuid.New(),
		OriginalAmount: decimal.RequireFromString("20.00"),
		DiscountAmount: decimal.Zero,
		Amount:         decimal.RequireFromString("20.00"),
		Currency:       "usd",
		PaymentMethod:  method,
		Status:         domain.OrderStatusPending,
	}
}

func TestCheckoutHandler_Checkout(t *testing.T) {
	addressID := uuid.New()

	tests := []struct {
		name         string
		body         any
		assembleErr  error
		wantStatus   int
		wantCode     string
		wantRedirect string
		wantLines    int
	}{
		{
			name:         "gateway order redirects",
			body:         map[string]string{"address_id": addressID.String(), "payment_method": "gateway"},
			wantStatus:   http.StatusCreated,
			wantRedirect: "https://pay.example.com/cs_1",
		},
		{
			name:       "cash on delivery",
			body:       map[string]string{"payment_method": "cod"},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed address id",
			body:       map[string]string{"address_id": "nope", "payment_method": "cod"},
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.EINVALID,
		},
		{
			name:        "empty cart",
			body:        map[string]string{"payment_method": "cod"},
			assembleErr: service.ErrEmptyCart,
			wantStatus:  http.StatusBadRequest,
			wantCode:    domain.EINVALID,
		},
		{
			name: "stock conflict lists lines",
			body: map[string]string{"payment_method": "cod"},
			assembleErr: &service.StockConflictError{Lines: []service.LineCheck{
				{ProductID: "p1", Requested: 3, Available: 1, Reason: service.ReasonInsufficientStock},
			}},
			wantStatus: http.StatusConflict,
			wantCode:   domain.ECONFLICT,
			wantLines:  1,
		},
		{
			name:        "gateway unavailable",
			body:        map[string]string{"payment_method": "gateway"},
			assembleErr: service.ErrPaymentGateway,
			wantStatus:  http.StatusPaymentRequired,
			wantCode:    domain.EPAYMENT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, _ := newSessions(map[string]int{"p1": 5})
			var got service.AssembleParams
			assembler := &mockAssembler{
				assembleFunc: func(ctx context.Context, params service.AssembleParams) (*service.PlacedOrder, error) {
					got = params
					if tt.assembleErr != nil {
						return nil, tt.assembleErr
					}
					placed := &service.PlacedOrder{Order: pendingOrder(params.PaymentMethod)}
					if params.PaymentMethod == domain.PaymentMethodGateway {
						placed.RedirectURL = "https://pay.example.com/cs_1"
					}
					return placed, nil
				},
			}
			h := NewCheckoutHandler(sessions, assembler, "https://shop.example.com", discardLogger())

			rec := httptest.NewRecorder()
			h.Checkout(rec, newRequest(t, http.MethodPost, "/api/checkout", tt.body, domain.Identity{DeviceID: "dev-1"}, nil))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				body := decodeBody[errorEnvelope](t, rec)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				assert.Len(t, body.Error.Lines, tt.wantLines)
				return
			}

			resp := decodeBody[CheckoutResponse](t, rec)
			assert.Equal(t, tt.wantRedirect, resp.RedirectURL)
			assert.Equal(t, domain.OrderStatusPending, resp.Order.Status)
			require.NotNil(t, got.Session)
			assert.Equal(t, "dev-1", got.Session.Identity().DeviceID)
			assert.Equal(t, "https://shop.example.com/cart", got.CancelURL)
			assert.Contains(t, got.SuccessURL, "{CHECKOUT_SESSION_ID}")
		})
	}
}
