package storefront

import (
	"context"
	"net/http"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/dukerupert/decks/internal/handler"
	"github.com/dukerupert/decks/internal/middleware"
	"github.com/dukerupert/decks/internal/service"
	"github.com/google/uuid"
)

// AddressService manages shopper delivery addresses.
type AddressService interface {
	List(ctx context.Context, identity domain.Identity) ([]domain.Address, error)
	Resolve(ctx context.Context, identity domain.Identity) (*domain.Address, error)
	Select(ctx context.Context, identity domain.Identity, addressID uuid.UUID) (*domain.Address, error)
	Save(ctx context.Context, identity domain.Identity, input service.AddressInput) (*domain.Address, error)
	Promote(ctx context.Context, addressID uuid.UUID, identity domain.Identity) (*domain.Address, error)
}

// AddressHandler handles the address API.
type AddressHandler struct {
	addresses AddressService
}

func NewAddressHandler(addresses AddressService) *AddressHandler {
	return &AddressHandler{addresses: addresses}
}

// AddressListResponse lists addresses most recently used first. SelectedID is
// the address checkout uses when none is given.
type AddressListResponse struct {
	Addresses  []handler.AddressView `json:"addresses"`
	SelectedID *uuid.UUID            `json:"selected_id"`
}

// List handles GET /api/addresses
func (h *AddressHandler) List(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.addresses.List(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	resp := AddressListResponse{Addresses: make([]handler.AddressView, 0, len(addresses))}
	for i := range addresses {
		resp.Addresses = append(resp.Addresses, handler.NewAddressView(&addresses[i]))
	}
	if len(addresses) > 0 {
		resp.SelectedID = &addresses[0].ID
	}
	handler.WriteJSON(w, http.StatusOK, resp)
}

// Current handles GET /api/addresses/current
//
// Returns the address checkout uses by default, or 204 when the shopper has
// none yet.
func (h *AddressHandler) Current(w http.ResponseWriter, r *http.Request) {
	addr, err := h.addresses.Resolve(r.Context(), middleware.GetIdentity(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if addr == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.NewAddressView(addr))
}

// Select handles POST /api/addresses/{id}/select
func (h *AddressHandler) Select(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handler.NotFoundResponse(w, r)
		return
	}

	addr, err := h.addresses.Select(r.Context(), middleware.GetIdentity(r), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.NewAddressView(addr))
}

// Create handles POST /api/addresses
//
// Anonymous shoppers get a guest address tied to their device. Signed-in
// shoppers reuse an equivalent saved address instead of storing a duplicate.
func (h *AddressHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.AddressInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	addr, err := h.addresses.Save(r.Context(), middleware.GetIdentity(r), input)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, handler.NewAddressView(addr))
}

// Promote handles POST /api/addresses/{id}/promote
//
// Moves a guest address of this device onto the signed-in account.
func (h *AddressHandler) Promote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handler.NotFoundResponse(w, r)
		return
	}

	addr, err := h.addresses.Promote(r.Context(), id, middleware.GetIdentity(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, handler.NewAddressView(addr))
}
