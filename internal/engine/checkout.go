package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
)

// PlaceOrder runs the checkout for the signed-in identity: the cart, stamped
// with the given address and payment method, is written remotely first, the
// order is created from that durable state, and only then is the cart cleared
// on both sides. A crash between the writes leaves a repriced cart remotely
// but never a half-made order.
func (e *Engine) PlaceOrder(ctx context.Context, addr domain.Address, pm domain.PaymentMethod) (domain.Order, error) {
	e.mu.Lock()
	if !e.signedIn {
		e.mu.Unlock()
		return domain.Order{}, ErrNotSignedIn
	}
	// Checkout takes the single remote-writer slot: the pending debounced
	// push is cancelled and any in-flight push is drained first, so a
	// stale cart write cannot land after the remote clear below and
	// resurrect the purchased lines.
	if e.pushTimer != nil {
		e.pushTimer.Stop()
	}
	for e.inFlight {
		e.pushCond.Wait()
	}
	if !e.signedIn {
		e.mu.Unlock()
		return domain.Order{}, ErrNotSignedIn
	}
	e.inFlight = true
	e.pushQueued = false
	key := e.ident.Key
	email := e.ident.Email
	cart := e.cart.WithShippingAddress(addr).WithPaymentMethod(pm)
	e.mu.Unlock()
	defer e.releaseWriter()

	if err := validateCheckout(cart, addr); err != nil {
		return domain.Order{}, err
	}

	if err := e.remote.PutCart(ctx, key, cart); err != nil {
		return domain.Order{}, fmt.Errorf("checkout: writing cart: %w", err)
	}

	order := domain.OrderFromCart(cart, email)
	id, err := e.remote.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("checkout: creating order: %w", err)
	}
	order.ID = id

	empty := domain.EmptyCart(key)
	if err := e.remote.PutCart(ctx, key, empty); err != nil {
		// The order exists; a leftover remote cart is an inconvenience,
		// not a correctness problem.
		log.Printf("checkout for %s: clearing remote cart failed: %v", key, err)
	}
	if err := e.local.Clear(); err != nil {
		log.Printf("cart snapshot clear error: %v", err)
	}

	e.mu.Lock()
	e.cart = empty
	e.mutSeq++
	if e.signedIn {
		e.setStateLocked(StateSynced)
	}
	e.mu.Unlock()
	e.notify(empty)

	return order, nil
}

// Orders returns the signed-in identity's order history, newest first.
func (e *Engine) Orders(ctx context.Context) ([]domain.Order, error) {
	e.mu.Lock()
	if !e.signedIn {
		e.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	key := e.ident.Key
	e.mu.Unlock()

	return e.remote.OrdersByUser(ctx, key)
}

func validateCheckout(cart domain.Cart, addr domain.Address) error {
	verr := domain.NewValidationError()
	if len(cart.Lines) == 0 {
		verr.Add("cart", "cart is empty")
	}
	if strings.TrimSpace(addr.FullName) == "" {
		verr.Add("fullName", "full name is required")
	}
	if strings.TrimSpace(addr.Line1) == "" {
		verr.Add("line1", "address line is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		verr.Add("city", "city is required")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		verr.Add("postalCode", "postal code is required")
	}
	if strings.TrimSpace(addr.Country) == "" {
		verr.Add("country", "country is required")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
