package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OrderStore implements domain.OrderStore. The conditional methods are single
// UPDATE or DELETE statements guarded by the expected state.
type OrderStore struct {
	db DB
}

var _ domain.OrderStore = (*OrderStore)(nil)

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderColumns = `
	id, user_id, device_id, address_id, contact_email,
	original_amount::text, discount_amount::text, amount::text, discount_code, currency,
	payment_method, payment_reference, status, is_paid, created_at, updated_at`

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.UpdatedAt = order.CreatedAt

	return execTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, user_id, device_id, address_id, contact_email,
				original_amount, discount_amount, amount, discount_code, currency,
				payment_method, payment_reference, status, is_paid, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			order.ID, nullUUID(order.UserID), order.DeviceID, order.AddressID, order.ContactEmail,
			order.OriginalAmount.String(), order.DiscountAmount.String(), order.Amount.String(),
			order.DiscountCode, order.Currency,
			string(order.PaymentMethod), nullString(order.PaymentReference), string(order.Status), order.IsPaid,
			order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for _, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)`,
				order.ID, item.ProductID, item.Name, item.Quantity, item.UnitPrice.String(),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert order items: %w", err)
		}
		return nil
	})
}

func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

func (s *OrderStore) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	if reference == "" {
		return nil, domain.ErrOrderNotFound
	}
	return s.getWhere(ctx, `payment_reference = $1`, reference)
}

func (s *OrderStore) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE orders SET payment_reference = $2, updated_at = now() WHERE id = $1`,
		id, reference,
	)
	if err != nil {
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET status = 'paid', is_paid = TRUE, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND NOT is_paid`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *OrderStore) DeleteIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM orders WHERE id = $1 AND status = 'pending' AND NOT is_paid`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus never clears is_paid: markPaid can only set it.
func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, markPaid bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders SET status = $3, is_paid = is_paid OR $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), markPaid,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *OrderStore) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM orders
		WHERE payment_method = 'gateway' AND status = 'pending' AND NOT is_paid AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pending orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OrderStore) getWhere(ctx context.Context, cond string, arg any) (*domain.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+cond, arg)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	items, err := s.items(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *OrderStore) items(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT product_id, name, quantity, unit_price::text
		FROM order_items WHERE order_id = $1 ORDER BY product_id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var (
			item  domain.OrderItem
			price string
		)
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid unit price %q: %w", price, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}
	return items, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                          domain.Order
		userID                     uuid.NullUUID
		original, discount, amount string
		method, status             string
		reference                  *string
	)
	err := row.Scan(
		&o.ID, &userID, &o.DeviceID, &o.AddressID, &o.ContactEmail,
		&original, &discount, &amount, &o.DiscountCode, &o.Currency,
		&method, &reference, &status, &o.IsPaid, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		o.UserID = userID.UUID
	}
	if reference != nil {
		o.PaymentReference = *reference
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.Status = domain.OrderStatus(status)

	if o.OriginalAmount, err = decimal.NewFromString(original); err != nil {
		return nil, fmt.Errorf("invalid original amount: %w", err)
	}
	if o.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("invalid discount amount: %w", err)
	}
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return &o, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
