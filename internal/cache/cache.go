// Package cache holds the read-through cart cache sitting in front of the
// remote document store. Reads are unmetered, so caching them never interacts
// with the write rate limiter.
package cache

import (
	"context"
	"errors"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, identityKey string) (domain.Cart, error)
	Set(ctx context.Context, identityKey string, cart domain.Cart) error
	Delete(ctx context.Context, identityKey string) error
}

var ErrCacheMiss = errors.New("cache miss")
