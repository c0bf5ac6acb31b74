// Package events publishes order lifecycle events to NATS for fulfilment and
// notification consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectOrderConfirmed carries orders that became binding.
const SubjectOrderConfirmed = "orders.confirmed"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

var _ Conn = (*nats.Conn)(nil)

// OrderConfirmedEvent is the message body published on SubjectOrderConfirmed.
type OrderConfirmedEvent struct {
	OrderID       string      `json:"order_id"`
	UserID        string      `json:"user_id,omitempty"`
	AddressID     string      `json:"address_id"`
	PaymentMethod string      `json:"payment_method"`
	Amount        string      `json:"amount"`
	Currency      string      `json:"currency"`
	Items         []EventItem `json:"items"`
	ConfirmedAt   time.Time   `json:"confirmed_at"`
}

// EventItem is one order line in an event.
type EventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// NATSPublisher implements domain.Notifier by publishing order events.
type NATSPublisher struct {
	conn   Conn
	logger *slog.Logger
	now    func() time.Time
}

var _ domain.Notifier = (*NATSPublisher)(nil)

func NewNATSPublisher(conn Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, logger: logger, now: time.Now}
}

// Connect dials NATS with reconnects enabled and logs connection changes.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("decks"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// OrderConfirmed publishes the order and waits for the server to accept it.
func (p *NATSPublisher) OrderConfirmed(ctx context.Context, order *domain.Order) error {
	event := OrderConfirmedEvent{
		OrderID:       order.ID.String(),
		AddressID:     order.AddressID.String(),
		PaymentMethod: string(order.PaymentMethod),
		Amount:        order.Amount.StringFixed(2),
		Currency:      order.Currency,
		ConfirmedAt:   p.now().UTC(),
	}
	if order.UserID != uuid.Nil {
		event.UserID = order.UserID.String()
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, EventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
		})
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	msg := nats.NewMsg(SubjectOrderConfirmed)
	msg.Data = data
	// Consumers with JetStream dedup on this header.
	msg.Header.Set(nats.MsgIdHdr, "order-confirmed-"+event.OrderID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush order event: %w", err)
	}

	p.logger.Debug("order event published", "order_id", event.OrderID, "subject", SubjectOrderConfirmed)
	return nil
}
