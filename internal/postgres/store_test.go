package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

// mockDB implements DB for testing. Only Exec and BeginTx are expected.
type mockDB struct {
	execFunc    func(sql string, args ...any) (pgconn.CommandTag, error)
	beginTxFunc func() (pgx.Tx, error)
	calls       []execCall
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.calls = append(m.calls, execCall{sql: squash(sql), args: args})
	return m.execFunc(sql, args...)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{err: errors.New("unexpected query")}
}

func (m *mockDB) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return m.beginTxFunc()
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }

// mockTx implements the parts of pgx.Tx the stores use.
type mockTx struct {
	pgx.Tx
	execFunc   func(sql string, args ...any) (pgconn.CommandTag, error)
	calls      []execCall
	committed  bool
	rolledBack bool
}

func (t *mockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.calls = append(t.calls, execCall{sql: squash(sql), args: args})
	return t.execFunc(sql, args...)
}

func (t *mockTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *mockTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func squash(sql string) string {
	return strings.Join(strings.Fields(sql), " ")
}

func affected(tag string) func(string, ...any) (pgconn.CommandTag, error) {
	return func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag(tag), nil
	}
}

func TestInventoryStore_Decrement(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		execErr error
		wantErr error
	}{
		{name: "enough stock", tag: "UPDATE 1"},
		{name: "guard refuses", tag: "UPDATE 0", wantErr: domain.ErrInsufficientInventory},
		{name: "database error", execErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{execFunc: func(string, ...any) (pgconn.CommandTag, error) {
				return pgconn.NewCommandTag(tt.tag), tt.execErr
			}}

			err := NewInventoryStore(db).Decrement(context.Background(), "deck-tarot", 2)

			switch {
			case tt.execErr != nil:
				assert.ErrorIs(t, err, tt.execErr)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.NoError(t, err)
			}

			require.Len(t, db.calls, 1)
			assert.Contains(t, db.calls[0].sql, "SET available_stock = available_stock - $2")
			assert.Contains(t, db.calls[0].sql, "WHERE product_id = $1 AND available_stock >= $2")
			assert.Equal(t, []any{"deck-tarot", 2}, db.calls[0].args)
		})
	}
}

func TestInventoryStore_DecrementAll(t *testing.T) {
	lines := []domain.StockLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 1},
	}

	t.Run("all lines applied in one transaction", func(t *testing.T) {
		tx := &mockTx{execFunc: affected("UPDATE 1")}
		db := &mockDB{beginTxFunc: func() (pgx.Tx, error) { return tx, nil }}

		require.NoError(t, NewInventoryStore(db).DecrementAll(context.Background(), lines))

		assert.True(t, tx.committed)
		assert.False(t, tx.rolledBack)
		require.Len(t, tx.calls, 2)
		assert.Equal(t, []any{"a", 2}, tx.calls[0].args)
		assert.Equal(t, []any{"b", 2}, tx.calls[1].args)
		for _, call := range tx.calls {
			assert.Contains(t, call.sql, "available_stock >= $2")
		}
		assert.Empty(t, db.calls, "no statement runs outside the transaction")
	})

	t.Run("one short line rolls back the batch", func(t *testing.T) {
		tx := &mockTx{execFunc: func(sql string, args ...any) (pgconn.CommandTag, error) {
			if args[0] == "b" {
				return pgconn.NewCommandTag("UPDATE 0"), nil
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		}}
		db := &mockDB{beginTxFunc: func() (pgx.Tx, error) { return tx, nil }}

		err := NewInventoryStore(db).DecrementAll(context.Background(), lines)

		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		assert.False(t, tx.committed)
		assert.True(t, tx.rolledBack)
	})

	t.Run("empty batch touches nothing", func(t *testing.T) {
		db := &mockDB{beginTxFunc: func() (pgx.Tx, error) {
			t.Fatal("transaction started for an empty batch")
			return nil, nil
		}}
		assert.NoError(t, NewInventoryStore(db).DecrementAll(context.Background(), nil))
	})
}

func TestOrderStore_CompareAndSet(t *testing.T) {
	pendingGuard := "status = 'pending' AND NOT is_paid"

	tests := []struct {
		name     string
		tag      string
		call     func(s *OrderStore, id uuid.UUID) (bool, error)
		wantSQL  []string
		wantDone bool
	}{
		{
			name:     "mark paid wins",
			tag:      "UPDATE 1",
			call:     func(s *OrderStore, id uuid.UUID) (bool, error) { return s.MarkPaid(context.Background(), id) },
			wantSQL:  []string{"SET status = 'paid', is_paid = TRUE", pendingGuard},
			wantDone: true,
		},
		{
			name:    "mark paid loses",
			tag:     "UPDATE 0",
			call:    func(s *OrderStore, id uuid.UUID) (bool, error) { return s.MarkPaid(context.Background(), id) },
			wantSQL: []string{pendingGuard},
		},
		{
			name:     "delete pending wins",
			tag:      "DELETE 1",
			call:     func(s *OrderStore, id uuid.UUID) (bool, error) { return s.DeleteIfPending(context.Background(), id) },
			wantSQL:  []string{"DELETE FROM orders WHERE id = $1", pendingGuard},
			wantDone: true,
		},
		{
			name:    "delete finalized order is refused",
			tag:     "DELETE 0",
			call:    func(s *OrderStore, id uuid.UUID) (bool, error) { return s.DeleteIfPending(context.Background(), id) },
			wantSQL: []string{pendingGuard},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{execFunc: affected(tt.tag)}
			id := uuid.New()

			done, err := tt.call(NewOrderStore(db), id)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDone, done)
			require.Len(t, db.calls, 1)
			for _, fragment := range tt.wantSQL {
				assert.Contains(t, db.calls[0].sql, fragment)
			}
			assert.Equal(t, []any{id}, db.calls[0].args)
		})
	}
}

func TestOrderStore_DeleteStalePending(t *testing.T) {
	db := &mockDB{execFunc: affected("DELETE 3")}
	cutoff := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	n, err := NewOrderStore(db).DeleteStalePending(context.Background(), cutoff)
	require.NoError(t, err)

	assert.EqualValues(t, 3, n)
	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].sql, "payment_method = 'gateway' AND status = 'pending' AND NOT is_paid AND created_at < $1")
	assert.Equal(t, []any{cutoff}, db.calls[0].args)

	db.execFunc = func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("connection reset")
	}
	_, err = NewOrderStore(db).DeleteStalePending(context.Background(), cutoff)
	assert.Error(t, err)
}
