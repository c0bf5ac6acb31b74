package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
	now    func() time.Time

	// CreateErr, when set, is returned by Create.
	CreateErr error
}

var _ domain.OrderStore = (*OrderStore)(nil)

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[uuid.UUID]*domain.Order),
		now:    time.Now,
	}
}

func (s *OrderStore) Create(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return s.CreateErr
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (s *OrderStore) GetByPaymentReference(ctx context.Context, reference string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if reference != "" && o.PaymentReference == reference {
			return copyOrder(o), nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *OrderStore) SetPaymentReference(ctx context.Context, id uuid.UUID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentReference = reference
	o.UpdatedAt = s.now()
	return nil
}

func (s *OrderStore) MarkPaid(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != domain.OrderStatusPending || o.IsPaid {
		return false, nil
	}
	o.Status = domain.OrderStatusPaid
	o.IsPaid = true
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *OrderStore) DeleteIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != domain.OrderStatusPending || o.IsPaid {
		return false, nil
	}
	delete(s.orders, id)
	return true, nil
}

func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, markPaid bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if markPaid {
		o.IsPaid = true
	}
	o.UpdatedAt = s.now()
	return true, nil
}

func (s *OrderStore) DeleteStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, o := range s.orders {
		if o.PaymentMethod == domain.PaymentMethodGateway &&
			o.Status == domain.OrderStatusPending && !o.IsPaid &&
			o.CreatedAt.Before(cutoff) {
			delete(s.orders, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored orders.
func (s *OrderStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}
