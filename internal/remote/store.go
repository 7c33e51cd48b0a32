// Package remote wraps the hosted document store. Every mutating call in the
// system goes through the Adapter here so throttling and backoff are enforced
// uniformly and exactly once.
package remote

import (
	"context"
	"errors"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// Store is the narrow boundary with the external document store. Consumers
// define this interface, not the backend implementation; mongostore provides
// the real one and tests provide fakes.
type Store interface {
	// GetCart returns ErrCartNotFound when no cart exists for the key.
	GetCart(ctx context.Context, identityKey string) (domain.Cart, error)
	// PutCart fully replaces the cart record for the key.
	PutCart(ctx context.Context, identityKey string, cart domain.Cart) error
	// CreateOrder stores the order and returns its assigned id.
	CreateOrder(ctx context.Context, order domain.Order) (string, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	SetOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	OrdersByUser(ctx context.Context, identityKey string) ([]domain.Order, error)
	// SubscribeCart pushes every remote cart update to onChange until the
	// returned unsubscribe function is called. A deleted cart is delivered
	// as an empty cart.
	SubscribeCart(ctx context.Context, identityKey string, onChange func(domain.Cart)) (func(), error)
}

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrOrderNotFound = errors.New("order not found")

	// ErrResourceExhausted is what store implementations translate their
	// backend's quota errors into. It is the only error class the adapter
	// retries.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrRateLimitExceeded means the retry budget for a throttled call is
	// spent. Surfaced as a transient failure; the caller may retry the
	// whole operation later.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	ErrIllegalStatusChange = errors.New("order status can only move forward")
)
