package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AddressStore implements domain.AddressStore.
type AddressStore struct {
	db DB
}

var _ domain.AddressStore = (*AddressStore)(nil)

func NewAddressStore(db DB) *AddressStore {
	return &AddressStore{db: db}
}

const addressColumns = `
	id, user_id, is_guest_address, device_id, full_name, email, phone,
	street, city, state, postal_code, country, last_used_at, created_at`

func (s *AddressStore) Create(ctx context.Context, addr *domain.Address) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now()
	}
	if addr.LastUsedAt.IsZero() {
		addr.LastUsedAt = addr.CreatedAt
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO addresses (`+addressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		addr.ID, nullUUID(addr.UserID), addr.IsGuestAddress, addr.DeviceID,
		addr.FullName, addr.Email, addr.Phone,
		addr.Street, addr.City, addr.State, addr.PostalCode, addr.Country,
		addr.LastUsedAt, addr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert address: %w", err)
	}
	return nil
}

func (s *AddressStore) Get(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	row := s.db.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id)
	addr, err := scanAddress(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	return addr, nil
}

func (s *AddressStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Address, error) {
	return s.list(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE user_id = $1 AND NOT is_guest_address
		ORDER BY last_used_at DESC`, userID)
}

func (s *AddressStore) ListGuestByDevice(ctx context.Context, deviceID string) ([]domain.Address, error) {
	return s.list(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE device_id = $1 AND is_guest_address
		ORDER BY last_used_at DESC`, deviceID)
}

func (s *AddressStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.exec(ctx, "touch", `UPDATE addresses SET last_used_at = $2 WHERE id = $1`, id, at)
}

func (s *AddressStore) AttachToUser(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	return s.exec(ctx, "attach", `
		UPDATE addresses SET user_id = $2, is_guest_address = FALSE
		WHERE id = $1`, id, userID)
}

func (s *AddressStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete", `DELETE FROM addresses WHERE id = $1`, id)
}

func (s *AddressStore) exec(ctx context.Context, action, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s address: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}

func (s *AddressStore) list(ctx context.Context, sql string, arg any) ([]domain.Address, error) {
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query addresses: %w", err)
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		addr, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, *addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addresses: %w", err)
	}
	return out, nil
}

func scanAddress(row pgx.Row) (*domain.Address, error) {
	var (
		a      domain.Address
		userID uuid.NullUUID
	)
	err := row.Scan(
		&a.ID, &userID, &a.IsGuestAddress, &a.DeviceID, &a.FullName, &a.Email, &a.Phone,
		&a.Street, &a.City, &a.State, &a.PostalCode, &a.Country, &a.LastUsedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = userID.UUID
	}
	return &a, nil
}
