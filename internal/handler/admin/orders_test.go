package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/memory"
	"github.com/dukerupert/decks/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderHandler(t *testing.T, order domain.Order) (*OrderHandler, *memory.OrderStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewOrderStore()
	order.Amount = decimal.NewFromInt(25)
	order.OriginalAmount = order.Amount
	require.NoError(t, store.Create(context.Background(), &order))
	return NewOrderHandler(service.NewOrderService(store, logger), logger), store
}

func statusRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/"+id+"/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", id)
	return req
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		method     domain.PaymentMethod
		from       domain.OrderStatus
		body       string
		wantStatus int
		wantPaid   bool
	}{
		{
			name:       "paid to processing",
			method:     domain.PaymentMethodGateway,
			from:       domain.OrderStatusPaid,
			body:       `{"status":"processing"}`,
			wantStatus: http.StatusOK,
			wantPaid:   true,
		},
		{
			name:       "cash on delivery is paid when delivered",
			method:     domain.PaymentMethodCOD,
			from:       domain.OrderStatusShipped,
			body:       `{"status":"delivered"}`,
			wantStatus: http.StatusOK,
			wantPaid:   true,
		},
		{
			name:       "skipping a step",
			method:     domain.PaymentMethodGateway,
			from:       domain.OrderStatusPaid,
			body:       `{"status":"delivered"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "moving backwards",
			method:     domain.PaymentMethodCOD,
			from:       domain.OrderStatusShipped,
			body:       `{"status":"processing"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "missing status",
			method:     domain.PaymentMethodCOD,
			from:       domain.OrderStatusProcessing,
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			h, store := newOrderHandler(t, domain.Order{
				ID:            id,
				DeviceID:      "dev-1",
				PaymentMethod: tt.method,
				Status:        tt.from,
				IsPaid:        tt.method == domain.PaymentMethodGateway,
			})

			rec := httptest.NewRecorder()
			h.UpdateStatus(rec, statusRequest(id.String(), tt.body))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				stored, err := store.Get(context.Background(), id)
				require.NoError(t, err)
				assert.Equal(t, tt.from, stored.Status)
				return
			}

			var view handler.OrderView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tt.wantPaid, view.IsPaid)
		})
	}
}

func TestOrderHandler_UnknownOrder(t *testing.T) {
	h, _ := newOrderHandler(t, domain.Order{ID: uuid.New(), Status: domain.OrderStatusPaid})

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		rec := httptest.NewRecorder()
		h.UpdateStatus(rec, statusRequest(id, `{"status":"processing"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
	}
}

func TestOrderHandler_Get(t *testing.T) {
	id := uuid.New()
	h, _ := newOrderHandler(t, domain.Order{
		ID:               id,
		DeviceID:         "dev-1",
		PaymentMethod:    domain.PaymentMethodGateway,
		PaymentReference: "cs_hidden",
		Status:           domain.OrderStatusPaid,
		IsPaid:           true,
	})

	req := httptest.NewRequest(http.MethodGet, "/admin/orders/"+id.String(), nil)
	req.SetPathValue("id", id.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var view handler.OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusProcessing}, view.NextStatuses)
	assert.NotContains(t, rec.Body.String(), "cs_hidden")
}
