package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishiv-patel/thelatestnew/internal/domain"
	"github.com/krishiv-patel/thelatestnew/internal/snapshot"
)

var errRemoteDown = errors.New("remote store unavailable")

type fakeRemote struct {
	mu          sync.RWMutex
	carts       map[string]domain.Cart
	orders      map[string]domain.Order
	getErr      error
	putErrs     []error
	createErrs  []error
	putCalls    int
	createCalls int
	nextOrderID int
	subs        map[string][]func(domain.Cart)

	// putGate, when set, blocks every PutCart after counting it until the
	// test sends on (one call) or closes (all calls) the channel.
	putGate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		carts:  make(map[string]domain.Cart),
		orders: make(map[string]domain.Order),
		subs:   make(map[string][]func(domain.Cart)),
	}
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeRemote) GetCart(_ context.Context, key string) (domain.Cart, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.getErr != nil {
		return domain.Cart{}, f.getErr
	}
	c, ok := f.carts[key]
	if !ok {
		return domain.EmptyCart(key), nil
	}
	return c, nil
}

func (f *fakeRemote) PutCart(_ context.Context, key string, cart domain.Cart) error {
	f.mu.Lock()
	f.putCalls++
	err := popErr(&f.putErrs)
	gate := f.putGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.carts[key] = cart
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) CreateOrder(_ context.Context, order domain.Order) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := popErr(&f.createErrs); err != nil {
		return "", err
	}
	f.nextOrderID++
	id := fmt.Sprintf("order-%d", f.nextOrderID)
	order.ID = id
	f.orders[id] = order
	return id, nil
}

func (f *fakeRemote) OrdersByUser(_ context.Context, key string) ([]domain.Order, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Order
	for _, o := range f.orders {
		if o.UserEmail == key {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeRemote) SubscribeCart(_ context.Context, key string, onChange func(domain.Cart)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[key] = append(f.subs[key], onChange)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, key)
	}, nil
}

// gatePuts makes every subsequent PutCart block until the returned channel
// is sent on (releases one call) or closed (releases all).
func (f *fakeRemote) gatePuts() chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.putGate = gate
	f.mu.Unlock()
	return gate
}

// fire delivers a remote cart update to every subscriber of the key.
func (f *fakeRemote) fire(key string, cart domain.Cart) {
	f.mu.RLock()
	fns := append([]func(domain.Cart){}, f.subs[key]...)
	f.mu.RUnlock()
	for _, fn := range fns {
		fn(cart)
	}
}

func (f *fakeRemote) storedCart(key string) domain.Cart {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.carts[key]
}

func (f *fakeRemote) putCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.putCalls
}

type fakeIdentity struct {
	mu       sync.Mutex
	id       Identity
	signedIn bool
	subs     []func(Identity, bool)
}

func (f *fakeIdentity) Current() (Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id, f.signedIn
}

func (f *fakeIdentity) OnChange(fn func(Identity, bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeIdentity) set(id Identity, signedIn bool) {
	f.mu.Lock()
	f.id = id
	f.signedIn = signedIn
	fns := append([]func(Identity, bool){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(id, signedIn)
	}
}

func (f *fakeIdentity) signIn(email string) {
	f.set(Identity{Key: domain.NormalizeKey(email), Email: email, Verified: true}, true)
}

func (f *fakeIdentity) signOut() {
	f.set(Identity{}, false)
}

func signedInIdentity(email string) *fakeIdentity {
	fi := &fakeIdentity{}
	fi.id = Identity{Key: domain.NormalizeKey(email), Email: email, Verified: true}
	fi.signedIn = true
	return fi
}

func testProduct(id, price string) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  "product " + id,
		Price: decimal.RequireFromString(price),
	}
}

func newTestEngine(t *testing.T, fr *fakeRemote, fi IdentityProvider, local snapshot.Store) *Engine {
	t.Helper()
	e := New(Config{
		DebounceWindow: 40 * time.Millisecond,
		PushTimeout:    time.Second,
	}, local, fr, fi)
	t.Cleanup(e.Close)
	return e
}

func waitState(t *testing.T, e *Engine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return e.State() == want },
		2*time.Second, 5*time.Millisecond, "state never reached %s, last %s", want, e.State())
}

func TestStartMergesLocalAndRemote(t *testing.T) {
	local := snapshot.NewMemStore()
	require.NoError(t, local.Save(domain.EmptyCart("").AddLine(testProduct("sku-1", "10.00"))))

	fr := newFakeRemote()
	remoteCart := domain.EmptyCart("u@example.com").
		AddLine(testProduct("sku-1", "10.00")).
		AddLine(testProduct("sku-1", "10.00")).
		AddLine(testProduct("sku-2", "5.00"))
	fr.carts["u@example.com"] = remoteCart

	e := newTestEngine(t, fr, signedInIdentity("U@example.com "), local)
	require.NoError(t, e.Start(context.Background()))

	require.Equal(t, StateSynced, e.State())

	cart := e.Cart()
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, 1, cart.Lines[1].Quantity)
	assert.Equal(t, "u@example.com", cart.Key)

	// Committed remotely and dropped from the local snapshot.
	assert.Equal(t, 3, fr.storedCart("u@example.com").Lines[0].Quantity)
	snap, err := local.Load()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestStartWithoutRemoteCart(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))

	require.Equal(t, StateSynced, e.State())
	assert.True(t, e.Cart().IsEmpty())
}

func TestMutationsDebounceIntoOnePush(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))
	mergePuts := fr.putCount()

	e.Add(testProduct("sku-1", "10.00"))
	e.Add(testProduct("sku-1", "10.00"))
	e.Add(testProduct("sku-2", "5.00"))
	require.Equal(t, StateDirty, e.State())

	require.Eventually(t, func() bool {
		c := fr.storedCart("u@example.com")
		return len(c.Lines) == 2 && c.Lines[0].Quantity == 2
	}, 2*time.Second, 5*time.Millisecond)
	waitState(t, e, StateSynced)

	assert.Equal(t, mergePuts+1, fr.putCount(), "mutations within the window must coalesce")
}

func TestPushFailureGoesPendingRetryThenRecovers(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))

	fr.mu.Lock()
	fr.putErrs = []error{errRemoteDown}
	fr.mu.Unlock()

	e.Add(testProduct("sku-1", "10.00"))
	waitState(t, e, StatePendingRetry)

	// The unconfirmed state stays in the snapshot until a push lands.
	lc := e.local.(*snapshot.MemStore)
	snap, err := lc.Load()
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1)

	// The next mutation schedules a fresh push which now succeeds.
	e.Add(testProduct("sku-1", "10.00"))
	waitState(t, e, StateSynced)
	assert.Equal(t, 2, fr.storedCart("u@example.com").Lines[0].Quantity)

	snap, err = lc.Load()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestMergeFailureKeepsSnapshot(t *testing.T) {
	lc := snapshot.NewMemStore()
	require.NoError(t, lc.Save(domain.EmptyCart("").AddLine(testProduct("sku-1", "10.00"))))

	fr := newFakeRemote()
	fr.getErr = errRemoteDown

	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), lc)
	require.NoError(t, e.Start(context.Background()))

	require.Equal(t, StatePendingRetry, e.State())
	snap, err := lc.Load()
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1, "snapshot must survive a failed merge")
}

func TestOfflineParksAndReconnectReplays(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))

	e.SetOnline(false)
	require.Equal(t, StateOffline, e.State())
	before := fr.putCount()

	e.Add(testProduct("sku-1", "10.00"))
	e.Add(testProduct("sku-1", "10.00"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before, fr.putCount(), "no pushes while offline")

	// The merge already committed this session, so reconnecting replays
	// the current cart instead of additively merging it again.
	e.SetOnline(true)
	waitState(t, e, StateSynced)
	got := fr.storedCart("u@example.com")
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 2, got.Lines[0].Quantity)
}

func TestSignInAndSignOut(t *testing.T) {
	fr := newFakeRemote()
	fr.carts["u@example.com"] = domain.EmptyCart("u@example.com").AddLine(testProduct("sku-2", "5.00"))

	fi := &fakeIdentity{}
	e := newTestEngine(t, fr, fi, snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))
	require.Equal(t, StateAnonymous, e.State())

	e.Add(testProduct("sku-1", "10.00"))
	require.Equal(t, StateAnonymous, e.State(), "anonymous mutations stay local")
	require.Equal(t, 0, fr.putCount())

	fi.signIn("u@example.com")
	waitState(t, e, StateSynced)
	cart := e.Cart()
	require.Len(t, cart.Lines, 2)

	fi.signOut()
	require.Equal(t, StateAnonymous, e.State())
	assert.True(t, e.Cart().IsEmpty(), "merged cart belongs to the departed identity")
}

func TestRemoteChangeAdoptedWhenQuiet(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))

	var (
		mu       sync.Mutex
		notified int
	)
	unsub := e.Subscribe(func(domain.Cart) {
		mu.Lock()
		notified++
		mu.Unlock()
	})
	defer unsub()

	updated := domain.EmptyCart("u@example.com").AddLine(testProduct("sku-9", "3.00"))
	fr.fire("u@example.com", updated)

	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "sku-9", cart.Lines[0].ProductID)
	mu.Lock()
	assert.Equal(t, 1, notified)
	mu.Unlock()
}

func TestStalePushOutcomeDiscarded(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))
	mergePuts := fr.putCount()

	gate := fr.gatePuts()
	e.Add(testProduct("sku-1", "10.00"))
	require.Eventually(t, func() bool { return fr.putCount() == mergePuts+1 },
		2*time.Second, 5*time.Millisecond, "first push never started")

	// Mutate while the first write is still in flight; its completion is
	// now stale and its outcome must be thrown away.
	e.Add(testProduct("sku-1", "10.00"))
	gate <- struct{}{}

	require.Eventually(t, func() bool { return fr.putCount() == mergePuts+2 },
		2*time.Second, 5*time.Millisecond, "follow-up push never started")

	// The follow-up push is still blocked on the gate, so anything synced
	// or cleared by now could only have come from the stale completion.
	assert.Equal(t, StateDirty, e.State(), "stale completion must not mark the session synced")
	snap, err := e.local.(*snapshot.MemStore).Load()
	require.NoError(t, err)
	require.Len(t, snap.Lines, 1, "stale completion must not clear the snapshot")
	assert.Equal(t, 2, snap.Lines[0].Quantity)

	close(gate)
	waitState(t, e, StateSynced)
	assert.Equal(t, 2, fr.storedCart("u@example.com").Lines[0].Quantity)
	snap, err = e.local.(*snapshot.MemStore).Load()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestRemoteChangeIgnoredWhileDirty(t *testing.T) {
	fr := newFakeRemote()
	e := newTestEngine(t, fr, signedInIdentity("u@example.com"), snapshot.NewMemStore())
	require.NoError(t, e.Start(context.Background()))

	e.Add(testProduct("sku-1", "10.00"))
	require.Equal(t, StateDirty, e.State())

	fr.fire("u@example.com", domain.EmptyCart("u@example.com").AddLine(testProduct("sku-9", "3.00")))

	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "sku-1", cart.Lines[0].ProductID, "unpushed local state must win")
}
