// Package redisstore keeps the device copy of shopper carts in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/decks/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultDeviceCartTTL keeps an idle device cart for thirty days.
const DefaultDeviceCartTTL = 30 * 24 * time.Hour

// DeviceCartStore implements domain.CartPersister keyed by device id.
// Every save refreshes the TTL, so only abandoned carts expire.
type DeviceCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ domain.CartPersister = (*DeviceCartStore)(nil)

func NewDeviceCartStore(client *redis.Client, ttl time.Duration) *DeviceCartStore {
	if ttl <= 0 {
		ttl = DefaultDeviceCartTTL
	}
	return &DeviceCartStore{client: client, ttl: ttl}
}

func (s *DeviceCartStore) Load(ctx context.Context, deviceID string) (domain.Cart, error) {
	data, err := s.client.Get(ctx, cartKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return cart.Clone(), nil
}

// Save stores the cart. An empty cart deletes the key.
func (s *DeviceCartStore) Save(ctx context.Context, deviceID string, cart domain.Cart) error {
	cart = cart.Clone()
	if cart.IsEmpty() {
		return s.Clear(ctx, deviceID)
	}

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(deviceID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *DeviceCartStore) Clear(ctx context.Context, deviceID string) error {
	if err := s.client.Del(ctx, cartKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Ping checks the connection. Used by the health endpoint.
func (s *DeviceCartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func cartKey(deviceID string) string {
	return fmt.Sprintf("cart:device:%s", deviceID)
}
