package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

const (
	defaultTTL = 15 * time.Minute
	// Spread expirations so a burst of sign-ins does not expire together.
	maxJitter = 5 * time.Minute
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: defaultTTL}
}

func (c *RedisCache) Get(ctx context.Context, identityKey string) (domain.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(identityKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{}, ErrCacheMiss
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cached cart failed: %w", err)
	}
	return cart, nil
}

func (c *RedisCache) Set(ctx context.Context, identityKey string, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := c.ttl + time.Duration(rand.Int63n(int64(maxJitter)))
	if err := c.client.Set(ctx, cartKey(identityKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, identityKey string) error {
	if err := c.client.Del(ctx, cartKey(identityKey)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(identityKey string) string {
	return "cartsync:cart:" + identityKey
}
