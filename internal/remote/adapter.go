package remote

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/krishiv-patel/thelatestnew/internal/cache"
	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// Adapter is the single gateway to the remote store. Mutating calls pass
// through the limiter; reads and subscriptions are unmetered. The adapter,
// not its callers, recomputes derived cart totals immediately before every
// write, so a stale caller-supplied total can never be persisted.
type Adapter struct {
	store   Store
	limiter *Limiter
	cache   cache.CartCache // optional
	sfg     singleflight.Group
}

func NewAdapter(store Store, limiter *Limiter, c cache.CartCache) *Adapter {
	if limiter == nil {
		limiter = NewLimiter(DefaultLimiterConfig(), nil)
	}
	return &Adapter{store: store, limiter: limiter, cache: c}
}

// GetCart returns the remote cart for the key, or an empty cart when none
// exists yet. Concurrent cache misses for the same key are collapsed with
// singleflight.
func (a *Adapter) GetCart(ctx context.Context, identityKey string) (domain.Cart, error) {
	v, err, _ := a.sfg.Do(identityKey, func() (interface{}, error) {
		if a.cache != nil {
			cart, err := a.cache.Get(ctx, identityKey)
			if err == nil {
				return cart, nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				log.Printf("cart cache get error: %v", err)
			}
		}

		cart, err := a.store.GetCart(ctx, identityKey)
		if errors.Is(err, ErrCartNotFound) {
			return domain.EmptyCart(identityKey), nil
		}
		if err != nil {
			return domain.Cart{}, err
		}

		if a.cache != nil {
			if err := a.cache.Set(ctx, identityKey, cart); err != nil {
				log.Printf("cart cache set error: %v", err)
			}
		}
		return cart, nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	return v.(domain.Cart), nil
}

// PutCart fully replaces the remote cart. Totals are recomputed from the
// lines here, and updatedAt is stamped on every write.
func (a *Adapter) PutCart(ctx context.Context, identityKey string, cart domain.Cart) error {
	cart = cart.Repriced()
	cart.Key = identityKey
	cart.UpdatedAt = time.Now()

	err := a.throttled(ctx, func(ctx context.Context) error {
		return a.store.PutCart(ctx, identityKey, cart)
	})
	if err != nil {
		return err
	}

	a.invalidate(identityKey)
	return nil
}

// CreateOrder stores the order snapshot and returns its assigned id.
func (a *Adapter) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	if len(order.Items) == 0 {
		verr := domain.NewValidationError()
		verr.Add("items", "order must contain at least one item")
		return "", verr
	}

	now := time.Now()
	order.Status = domain.OrderStatusPlaced
	order.CreatedAt = now
	order.UpdatedAt = now

	var id string
	err := a.throttled(ctx, func(ctx context.Context) error {
		var callErr error
		id, callErr = a.store.CreateOrder(ctx, order)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SetOrderStatus advances an order's status. Backward and no-op transitions
// are rejected before anything is written.
func (a *Adapter) SetOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	current, err := a.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !domain.CanTransitionTo(current.Status, status) {
		return ErrIllegalStatusChange
	}
	return a.throttled(ctx, func(ctx context.Context) error {
		return a.store.SetOrderStatus(ctx, orderID, status)
	})
}

func (a *Adapter) OrdersByUser(ctx context.Context, identityKey string) ([]domain.Order, error) {
	return a.store.OrdersByUser(ctx, identityKey)
}

// SubscribeCart passes through to the store; subscriptions are not metered.
func (a *Adapter) SubscribeCart(ctx context.Context, identityKey string, onChange func(domain.Cart)) (func(), error) {
	return a.store.SubscribeCart(ctx, identityKey, onChange)
}

// throttled runs one mutating call under the limiter. Resource exhaustion
// from the backend re-enters the backoff loop; any other error propagates
// untouched for the caller to decide.
func (a *Adapter) throttled(ctx context.Context, fn func(ctx context.Context) error) error {
	for {
		if err := a.limiter.Acquire(ctx); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			a.limiter.Success()
			return nil
		}
		if !errors.Is(err, ErrResourceExhausted) {
			return err
		}

		if berr := a.limiter.Backoff(ctx); berr != nil {
			return berr
		}
	}
}

func (a *Adapter) invalidate(identityKey string) {
	if a.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.cache.Delete(ctx, identityKey); err != nil {
		log.Printf("cart cache invalidate error: %v", err)
	}
}
