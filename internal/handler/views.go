package handler

import (
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderView is the JSON representation of an order.
type OrderView struct {
	ID             uuid.UUID            `json:"id"`
	Status         domain.OrderStatus   `json:"status"`
	IsPaid         bool                 `json:"is_paid"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	Items          []domain.OrderItem   `json:"items"`
	OriginalAmount decimal.Decimal      `json:"original_amount"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	Amount         decimal.Decimal      `json:"amount"`
	DiscountCode   string               `json:"discount_code,omitempty"`
	Currency       string               `json:"currency"`
	AddressID      uuid.UUID            `json:"address_id"`
	NextStatuses   []domain.OrderStatus `json:"next_statuses"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewOrderView converts an order for the API. The gateway reference and the
// owning device stay server side.
func NewOrderView(o *domain.Order) OrderView {
	next := o.NextStatuses()
	if next == nil {
		next = []domain.OrderStatus{}
	}
	return OrderView{
		ID:             o.ID,
		Status:         o.Status,
		IsPaid:         o.IsPaid,
		PaymentMethod:  o.PaymentMethod,
		Items:          o.Items,
		OriginalAmount: o.OriginalAmount,
		DiscountAmount: o.DiscountAmount,
		Amount:         o.Amount,
		DiscountCode:   o.DiscountCode,
		Currency:       o.Currency,
		AddressID:      o.AddressID,
		NextStatuses:   next,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// AddressView is the JSON representation of a delivery address.
type AddressView struct {
	ID         uuid.UUID `json:"id"`
	Guest      bool      `json:"guest"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state,omitempty"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func NewAddressView(a *domain.Address) AddressView {
	return AddressView{
		ID:         a.ID,
		Guest:      a.IsGuestAddress,
		FullName:   a.FullName,
		Email:      a.Email,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		LastUsedAt: a.LastUsedAt,
	}
}
