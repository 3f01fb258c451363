package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/trafficwise/platform/internal/domain"
)

// RoleStatus is the progress of role resolution for one identity.
type RoleStatus int

const (
	// RoleNone means there is no signed-in identity to resolve.
	RoleNone RoleStatus = iota
	RolePending
	RoleResolved
	// RoleMissing means the uid has no profile. It never implies role user.
	RoleMissing
	RoleFailed
)

func (s RoleStatus) String() string {
	switch s {
	case RolePending:
		return "pending"
	case RoleResolved:
		return "resolved"
	case RoleMissing:
		return "missing"
	case RoleFailed:
		return "failed"
	default:
		return "none"
	}
}

// RoleState is the resolver output, keyed to the uid that requested it.
type RoleState struct {
	UID    string
	Status RoleStatus
	Role   domain.Role
	Err    error
}

// ProfileLookup reads a profile by uid, returning nil when none exists.
type ProfileLookup interface {
	FindProfile(ctx context.Context, uid string) (*domain.Profile, error)
}

// ProfileLookupFunc adapts a function to ProfileLookup.
type ProfileLookupFunc func(ctx context.Context, uid string) (*domain.Profile, error)

func (f ProfileLookupFunc) FindProfile(ctx context.Context, uid string) (*domain.Profile, error) {
	return f(ctx, uid)
}

// Resolver re-resolves the role every time the identity changes. Each
// request carries a generation number; a lookup that completes after a newer
// identity arrived is dropped.
type Resolver struct {
	lookup  ProfileLookup
	logger  *slog.Logger
	timeout time.Duration

	// pubMu orders the generation check with delivery so a superseded
	// state is never published after its successor.
	pubMu   sync.Mutex
	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	current RoleState
	subs    fanout[RoleState]
}

// NewResolver creates a resolver. timeout bounds each profile lookup.
func NewResolver(lookup ProfileLookup, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{lookup: lookup, timeout: timeout, logger: logger}
}

// Current returns the latest role state.
func (r *Resolver) Current() RoleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Subscribe registers fn for every role state change.
func (r *Resolver) Subscribe(fn func(RoleState)) (unsubscribe func()) {
	_, unsub := r.subs.add(fn)
	return unsub
}

// Attach resolves on every change observed by obs.
func (r *Resolver) Attach(obs *Observer) (detach func()) {
	return obs.Subscribe(r.Resolve)
}

// Resolve starts resolution for snap, superseding any in-flight lookup.
func (r *Resolver) Resolve(snap Snapshot) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	r.gen++
	gen := r.gen
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}

	uid := snap.UID()
	if uid == "" {
		r.current = RoleState{Status: RoleNone}
		state := r.current
		r.mu.Unlock()
		r.subs.publish(state)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	r.cancel = cancel
	r.current = RoleState{UID: uid, Status: RolePending}
	pending := r.current
	r.mu.Unlock()

	r.subs.publish(pending)
	go r.run(ctx, cancel, gen, uid)
}

func (r *Resolver) run(ctx context.Context, cancel context.CancelFunc, gen uint64, uid string) {
	defer cancel()

	state := resolveRole(ctx, r.lookup, uid)

	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.logger.Debug("discarding superseded role resolution", "uid", uid)
		return
	}
	r.current = state
	r.cancel = nil
	r.mu.Unlock()

	if state.Status == RoleFailed {
		r.logger.Warn("role resolution failed", "uid", uid, "error", state.Err)
	}
	r.subs.publish(state)
}

// ResolveNow performs a blocking lookup for uid. The API gates use it
// directly since a request always carries a settled session.
func ResolveNow(ctx context.Context, lookup ProfileLookup, uid string) RoleState {
	return resolveRole(ctx, lookup, uid)
}

func resolveRole(ctx context.Context, lookup ProfileLookup, uid string) RoleState {
	profile, err := lookup.FindProfile(ctx, uid)
	switch {
	case err != nil:
		return RoleState{UID: uid, Status: RoleFailed, Err: err}
	case profile == nil:
		return RoleState{UID: uid, Status: RoleMissing, Err: domain.ErrProfileNotFound(uid)}
	default:
		return RoleState{UID: uid, Status: RoleResolved, Role: profile.Role}
	}
}
