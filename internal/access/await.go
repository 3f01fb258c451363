package access

import (
	"context"
	"fmt"

	"github.com/trafficwise/platform/internal/session"
)

// Gate is any decision function over the session and role state.
type Gate func(session.Snapshot, session.RoleState) Decision

// Public adapts PublicOnly to a Gate.
func Public(s session.Snapshot, _ session.RoleState) Decision { return PublicOnly(s) }

// Await re-evaluates gate on every session or role change until it is
// conclusive or ctx ends. Both subscriptions are released before returning.
func Await(ctx context.Context, obs *session.Observer, res *session.Resolver, gate Gate) (Decision, error) {
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	unsubSession := obs.Subscribe(func(session.Snapshot) { notify() })
	defer unsubSession()
	unsubRole := res.Subscribe(func(session.RoleState) { notify() })
	defer unsubRole()

	for {
		if d := gate(obs.Current(), res.Current()); d.Conclusive() {
			return d, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return loading(), fmt.Errorf("access decision still loading: %w", ctx.Err())
		}
	}
}
