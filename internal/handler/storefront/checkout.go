package storefront

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/service"
	"github.com/google/uuid"
)

// OrderAssembler places orders from cart sessions.
type OrderAssembler interface {
	Assemble(ctx context.Context, params service.AssembleParams) (*service.PlacedOrder, error)
}

// CheckoutHandler handles order placement.
type CheckoutHandler struct {
	sessions  CartSessions
	assembler OrderAssembler
	baseURL   string
	logger    *slog.Logger
}

// NewCheckoutHandler creates a new checkout handler. baseURL is where the
// payment gateway sends shoppers back to.
func NewCheckoutHandler(sessions CartSessions, assembler OrderAssembler, baseURL string, logger *slog.Logger) *CheckoutHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckoutHandler{
		sessions:  sessions,
		assembler: assembler,
		baseURL:   baseURL,
		logger:    logger,
	}
}

type checkoutRequest struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
	DiscountCode  string `json:"discount_code"`
}

// CheckoutResponse carries the placed order. RedirectURL is set for gateway
// orders; the shopper completes payment there.
type CheckoutResponse struct {
	Order       handler.OrderView `json:"order"`
	RedirectURL string            `json:"redirect_url,omitempty"`
}

// Checkout handles POST /api/checkout
//
// Responses:
//   - 201: order placed (cash on delivery) or awaiting payment (gateway)
//   - 400: empty cart, missing address, unknown payment method or discount
//   - 402: the payment session could not be opened
//   - 409: stock changed; the body lists the lines to adjust
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var addressID uuid.UUID
	if req.AddressID != "" {
		id, err := uuid.Parse(req.AddressID)
		if err != nil {
			handler.ErrorResponse(w, r, domain.NewValidationError("checkout", "address_id", "Address id is not valid"))
			return
		}
		addressID = id
	}

	session, _, err := h.sessions.Get(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	placed, err := h.assembler.Assemble(r.Context(), service.AssembleParams{
		Session:       session,
		AddressID:     addressID,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		DiscountCode:  req.DiscountCode,
		SuccessURL:    h.baseURL + "/checkout/complete?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     h.baseURL + "/cart",
	})
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(r.Context(), h.logger).Info("checkout completed",
		"order_id", placed.Order.ID,
		"payment_method", placed.Order.PaymentMethod,
	)
	handler.WriteJSON(w, http.StatusCreated, CheckoutResponse{
		Order:       handler.NewOrderView(placed.Order),
		RedirectURL: placed.RedirectURL,
	})
}
