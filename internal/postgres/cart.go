package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountCartStore implements domain.CartPersister for the account copy of a
// cart. Carts are stored as a JSONB object of product id to quantity, keyed
// by user id.
type AccountCartStore struct {
	db DB
}

var _ domain.CartPersister = (*AccountCartStore)(nil)

func NewAccountCartStore(db DB) *AccountCartStore {
	return &AccountCartStore{db: db}
}

func (s *AccountCartStore) Load(ctx context.Context, key string) (domain.Cart, error) {
	userID, err := uuid.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("invalid account cart key %q: %w", key, err)
	}

	var raw []byte
	err = s.db.QueryRow(ctx, `SELECT items FROM account_carts WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return nil, fmt.Errorf("failed to decode account cart: %w", err)
	}
	return cart.Clone(), nil
}

func (s *AccountCartStore) Save(ctx context.Context, key string, cart domain.Cart) error {
	userID, err := uuid.Parse(key)
	if err != nil {
		return fmt.Errorf("invalid account cart key %q: %w", key, err)
	}

	raw, err := json.Marshal(cart.Clone())
	if err != nil {
		return fmt.Errorf("failed to encode account cart: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO account_carts (user_id, items, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = now()`,
		userID, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save account cart: %w", err)
	}
	return nil
}

func (s *AccountCartStore) Clear(ctx context.Context, key string) error {
	userID, err := uuid.Parse(key)
	if err != nil {
		return fmt.Errorf("invalid account cart key %q: %w", key, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM account_carts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear account cart: %w", err)
	}
	return nil
}
