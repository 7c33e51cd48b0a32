// Package engine reconciles the local cart with its remote counterpart: it
// merges the two on sign-in and reconnect, coalesces ordinary mutations into
// debounced remote pushes, and is the only component that creates orders.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
	"github.com/krishiv-patel/thelatestnew/internal/snapshot"
)

// RemoteClient is what the engine needs from the remote sync adapter.
// Consumers define this interface, not the adapter; *remote.Adapter
// satisfies it and tests provide fakes.
type RemoteClient interface {
	GetCart(ctx context.Context, identityKey string) (domain.Cart, error)
	PutCart(ctx context.Context, identityKey string, cart domain.Cart) error
	CreateOrder(ctx context.Context, order domain.Order) (string, error)
	OrdersByUser(ctx context.Context, identityKey string) ([]domain.Order, error)
	SubscribeCart(ctx context.Context, identityKey string, onChange func(domain.Cart)) (func(), error)
}

type Config struct {
	// DebounceWindow is the quiet period after which coalesced mutations
	// are pushed remotely. Default 2s.
	DebounceWindow time.Duration
	// PushTimeout bounds a single background push. Default 10s.
	PushTimeout time.Duration
}

const mergeTimeout = 30 * time.Second

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 2 * time.Second
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 10 * time.Second
	}
	return c
}

type Engine struct {
	cfg      Config
	local    snapshot.Store
	remote   RemoteClient
	identity IdentityProvider

	mu       sync.Mutex
	state    State
	cart     domain.Cart
	ident    Identity
	signedIn bool
	online   bool
	merged   bool // a merge committed during this identity session

	mutSeq     uint64 // bumped on every local mutation
	inFlight   bool   // one remote cart writer at a time: a push or a checkout
	pushQueued bool
	pushTimer  *time.Timer
	pushCond   *sync.Cond // signalled whenever inFlight clears

	subs      map[int]func(domain.Cart)
	nextSubID int

	unsubIdentity func()
	unsubRemote   func()
	closed        bool
	wg            sync.WaitGroup
}

func New(cfg Config, local snapshot.Store, rc RemoteClient, idp IdentityProvider) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		local:    local,
		remote:   rc,
		identity: idp,
		state:    StateAnonymous,
		online:   true,
		subs:     make(map[int]func(domain.Cart)),
	}
	e.pushCond = sync.NewCond(&e.mu)
	return e
}

// Start loads the local snapshot, hooks into identity changes and, when
// already signed in, runs the initial merge before returning.
func (e *Engine) Start(ctx context.Context) error {
	cart, err := e.local.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.cart = cart
	e.mu.Unlock()

	if e.identity == nil {
		return nil
	}
	e.unsubIdentity = e.identity.OnChange(e.handleIdentityChange)
	if id, ok := e.identity.Current(); ok {
		e.mu.Lock()
		e.ident = id
		e.signedIn = true
		e.mu.Unlock()
		e.runMerge(ctx)
	}
	return nil
}

// Close stops the debounce timer and the subscriptions, then waits for any
// in-flight background work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	if e.pushTimer != nil {
		e.pushTimer.Stop()
	}
	unsubI, unsubR := e.unsubIdentity, e.unsubRemote
	e.unsubIdentity, e.unsubRemote = nil, nil
	e.mu.Unlock()

	if unsubI != nil {
		unsubI()
	}
	if unsubR != nil {
		unsubR()
	}
	e.wg.Wait()
}

// Cart returns the current in-memory cart value.
func (e *Engine) Cart() domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers fn to run after every cart change. The returned
// function unregisters it.
func (e *Engine) Subscribe(fn func(domain.Cart)) func() {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

func (e *Engine) Add(p domain.Product) domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.AddLine(p) })
}

func (e *Engine) Remove(productID string) domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.RemoveLine(productID) })
}

func (e *Engine) SetQuantity(productID string, n int) domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.SetQuantity(productID, n) })
}

func (e *Engine) SetShippingAddress(a domain.Address) domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.WithShippingAddress(a) })
}

func (e *Engine) SetPaymentMethod(pm domain.PaymentMethod) domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.WithPaymentMethod(pm) })
}

func (e *Engine) Clear() domain.Cart {
	return e.mutate(func(c domain.Cart) domain.Cart { return c.Clear() })
}

// SetOnline tells the engine about network transitions. Going offline parks
// the session; coming back online re-syncs with the remote store.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	if online == e.online || e.closed {
		e.mu.Unlock()
		return
	}
	e.online = online

	if !online {
		if e.signedIn {
			e.setStateLocked(StateOffline)
		}
		if e.pushTimer != nil {
			e.pushTimer.Stop()
		}
		e.mu.Unlock()
		return
	}

	if !e.signedIn {
		e.mu.Unlock()
		return
	}
	merged := e.merged
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		if merged {
			// The remote cart was already reconciled this session, so
			// an additive merge would double-count everything the
			// remote side already has. Replaying the current cart as
			// a full replace is the correct catch-up.
			e.mu.Lock()
			e.setStateLocked(StateDirty)
			e.mu.Unlock()
			e.push()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mergeTimeout)
		defer cancel()
		e.runMerge(ctx)
	}()
}

// mutate applies fn to the cart, persists the snapshot, notifies subscribers
// and schedules a debounced push. Local application is synchronous; only the
// remote write is deferred.
func (e *Engine) mutate(fn func(domain.Cart) domain.Cart) domain.Cart {
	e.mu.Lock()
	e.cart = fn(e.cart)
	e.mutSeq++
	cart := e.cart
	if err := e.local.Save(cart); err != nil {
		log.Printf("cart snapshot save error: %v", err)
	}
	if e.signedIn && e.online {
		e.setStateLocked(StateDirty)
		e.scheduleLocked()
	}
	e.mu.Unlock()

	e.notify(cart)
	return cart
}

func (e *Engine) scheduleLocked() {
	if e.closed {
		return
	}
	if e.pushTimer == nil {
		e.pushTimer = time.AfterFunc(e.cfg.DebounceWindow, e.push)
		return
	}
	// Coalesce: the pending push is cancelled and rescheduled, so only the
	// last state within a quiet period is written.
	e.pushTimer.Reset(e.cfg.DebounceWindow)
}

// push issues at most one remote write at a time. A push requested while one
// is in flight runs right after it, against the then-current cart.
func (e *Engine) push() {
	e.mu.Lock()
	if e.closed || !e.signedIn || !e.online {
		e.mu.Unlock()
		return
	}
	if e.inFlight {
		e.pushQueued = true
		e.mu.Unlock()
		return
	}
	e.inFlight = true
	seq := e.mutSeq
	cart := e.cart
	key := e.ident.Key
	e.wg.Add(1)
	e.mu.Unlock()

	go e.doPush(key, cart, seq)
}

func (e *Engine) doPush(key string, cart domain.Cart, seq uint64) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PushTimeout)
	defer cancel()
	err := e.remote.PutCart(ctx, key, cart)

	e.mu.Lock()
	e.inFlight = false
	e.pushCond.Broadcast()
	queued := e.pushQueued
	e.pushQueued = false

	switch {
	case err != nil:
		if e.signedIn {
			e.setStateLocked(StatePendingRetry)
		}
		log.Printf("cart push for %s failed, will retry on next mutation or reconnect: %v", key, err)
	case seq == e.mutSeq:
		// The remote store now matches the latest local state; the local
		// snapshot has nothing unconfirmed left to hold.
		if e.signedIn {
			e.setStateLocked(StateSynced)
		}
		if err := e.local.Clear(); err != nil {
			log.Printf("cart snapshot clear error: %v", err)
		}
	default:
		// Stale push: something mutated the cart while this write was in
		// flight. Discard the outcome; the newer state is on its way.
	}
	closed := e.closed
	e.mu.Unlock()

	if queued && !closed {
		e.push()
	}
}

// releaseWriter frees the single remote-writer slot and runs any push that
// queued while it was held.
func (e *Engine) releaseWriter() {
	e.mu.Lock()
	e.inFlight = false
	e.pushCond.Broadcast()
	queued := e.pushQueued
	e.pushQueued = false
	closed := e.closed
	e.mu.Unlock()

	if queued && !closed {
		e.push()
	}
}

func (e *Engine) handleIdentityChange(id Identity, signedIn bool) {
	if !signedIn {
		e.mu.Lock()
		e.ident = Identity{}
		e.signedIn = false
		e.merged = false
		e.setStateLocked(StateAnonymous)
		if e.pushTimer != nil {
			e.pushTimer.Stop()
		}
		unsubR := e.unsubRemote
		e.unsubRemote = nil
		e.mu.Unlock()
		if unsubR != nil {
			unsubR()
		}

		// The merged cart belonged to the departing identity; fall back
		// to whatever anonymous snapshot remains (usually empty).
		cart, err := e.local.Load()
		if err != nil {
			log.Printf("cart snapshot load error: %v", err)
			cart = domain.EmptyCart("")
		}
		e.mu.Lock()
		e.cart = cart
		e.mu.Unlock()
		e.notify(cart)
		return
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.ident = id
	e.signedIn = true
	e.merged = false
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), mergeTimeout)
		defer cancel()
		e.runMerge(ctx)
	}()
}

// runMerge performs the one-time merge pass between the local snapshot and
// the remote cart. The snapshot is cleared only after the merged cart is
// durably written remotely; on failure it is retained so a retry reproduces
// the same merge.
func (e *Engine) runMerge(ctx context.Context) {
	e.mu.Lock()
	if e.closed || !e.signedIn || !e.online {
		e.mu.Unlock()
		return
	}
	key := e.ident.Key
	e.setStateLocked(StateMerging)
	e.mu.Unlock()

	local, err := e.local.Load()
	if err != nil {
		log.Printf("cart snapshot load error, merging empty local cart: %v", err)
		local = domain.EmptyCart("")
	}

	remoteCart, err := e.remote.GetCart(ctx, key)
	if err != nil {
		log.Printf("cart merge for %s: remote read failed: %v", key, err)
		e.toPendingRetry()
		return
	}

	merged := Merge(local, remoteCart)
	merged.Key = key
	if err := e.remote.PutCart(ctx, key, merged); err != nil {
		log.Printf("cart merge for %s: remote write failed: %v", key, err)
		e.toPendingRetry()
		return
	}

	if err := e.local.Clear(); err != nil {
		log.Printf("cart snapshot clear error: %v", err)
	}

	e.mu.Lock()
	e.cart = merged
	e.merged = true
	e.setStateLocked(StateSynced)
	e.mu.Unlock()

	e.subscribeRemote(key)
	e.notify(merged)
}

// subscribeRemote starts listening for remote cart updates for the key,
// replacing any previous subscription.
func (e *Engine) subscribeRemote(key string) {
	unsub, err := e.remote.SubscribeCart(context.Background(), key, e.onRemoteChange)
	if err != nil {
		log.Printf("cart subscription for %s failed: %v", key, err)
		return
	}

	e.mu.Lock()
	old := e.unsubRemote
	if e.closed {
		e.unsubRemote = nil
		e.mu.Unlock()
		unsub()
		return
	}
	e.unsubRemote = unsub
	e.mu.Unlock()

	if old != nil {
		old()
	}
}

// onRemoteChange adopts a remote cart update, but only while the session is
// quiet: local state wins while a mutation is unpushed or a write is in
// flight.
func (e *Engine) onRemoteChange(c domain.Cart) {
	e.mu.Lock()
	if e.closed || !e.signedIn || e.state != StateSynced || e.inFlight {
		e.mu.Unlock()
		return
	}
	e.cart = c.Repriced()
	cart := e.cart
	e.mu.Unlock()
	e.notify(cart)
}

func (e *Engine) toPendingRetry() {
	e.mu.Lock()
	if e.signedIn {
		e.setStateLocked(StatePendingRetry)
	}
	e.mu.Unlock()
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	log.Printf("cart session: %s -> %s", e.state, s)
	e.state = s
}

func (e *Engine) notify(cart domain.Cart) {
	e.mu.Lock()
	fns := make([]func(domain.Cart), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(cart)
	}
}
