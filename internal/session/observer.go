// Package session tracks who is signed in and what role they hold. The
// Observer mirrors identity provider session changes; the Resolver turns
// each identity into a role, discarding lookups a newer identity has
// superseded.
package session

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/trafficwise/platform/internal/domain"
)

// State is the observed session state.
type State int

const (
	// StateUnknown holds until the provider reports for the first time.
	StateUnknown State = iota
	StateSignedOut
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed-out"
	case StateSignedIn:
		return "signed-in"
	default:
		return "unknown"
	}
}

// Snapshot is the current session. Identity is set only when signed in.
type Snapshot struct {
	State    State
	Identity *domain.Identity
}

// UID returns the signed-in uid or "".
func (s Snapshot) UID() string {
	if s.State != StateSignedIn || s.Identity == nil {
		return ""
	}
	return s.Identity.UID
}

// SignedIn builds a signed-in snapshot.
func SignedIn(id domain.Identity) Snapshot {
	return Snapshot{State: StateSignedIn, Identity: &id}
}

// SignedOut is the snapshot with no session.
func SignedOut() Snapshot {
	return Snapshot{State: StateSignedOut}
}

// Source is an identity provider that pushes session changes. The callback
// receives nil on sign-out.
type Source interface {
	OnSessionChange(cb func(*domain.Identity)) (unsubscribe func())
}

type subscriber[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// fanout delivers values to subscribers in publish order.
type fanout[T any] struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	subs      map[uint64]*subscriber[T]
	nextID    uint64
}

func (f *fanout[T]) add(fn func(T)) (*subscriber[T], func()) {
	s := &subscriber[T]{fn: fn}
	s.active.Store(true)

	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[uint64]*subscriber[T])
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = s
	f.mu.Unlock()

	var once sync.Once
	return s, func() {
		once.Do(func() {
			s.active.Store(false)
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *fanout[T]) publish(v T) {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	f.deliver(v)
}

// deliver calls every active subscriber. The caller holds deliverMu.
func (f *fanout[T]) deliver(v T) {
	f.mu.Lock()
	ids := make([]uint64, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	subs := make([]*subscriber[T], 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, f.subs[id])
	}
	f.mu.Unlock()

	for _, s := range subs {
		if s.active.Load() {
			s.fn(v)
		}
	}
}

// Observer holds the current Snapshot and notifies subscribers of changes.
type Observer struct {
	mu      sync.RWMutex
	current Snapshot
	subs    fanout[Snapshot]
}

// NewObserver returns an observer in StateUnknown.
func NewObserver() *Observer {
	return &Observer{}
}

// Current returns the latest snapshot.
func (o *Observer) Current() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Subscribe registers fn for every subsequent change. When the state is
// already known fn is also called once with it, before any later change. The
// returned function must be called on teardown; after it returns fn is not
// invoked again. fn must not subscribe to or publish on o.
func (o *Observer) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.subs.deliverMu.Lock()
	defer o.subs.deliverMu.Unlock()

	_, unsub := o.subs.add(fn)
	if cur := o.Current(); cur.State != StateUnknown {
		fn(cur)
	}
	return unsub
}

// Publish records a provider-reported session. nil means signed out.
func (o *Observer) Publish(id *domain.Identity) {
	snap := SignedOut()
	if id != nil {
		snap = SignedIn(*id)
	}

	// Recording and delivery share deliverMu with Subscribe's replay, so a
	// new subscriber never sees an older snapshot after a newer one.
	o.subs.deliverMu.Lock()
	defer o.subs.deliverMu.Unlock()

	o.mu.Lock()
	o.current = snap
	o.mu.Unlock()

	o.subs.deliver(snap)
}

// Bind forwards every change reported by src into the observer.
func (o *Observer) Bind(src Source) (unbind func()) {
	return src.OnSessionChange(o.Publish)
}
