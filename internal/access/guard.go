// Package access decides, for any navigation or request, whether the caller
// may proceed. Every gate is a pure function of the session snapshot and the
// role state; loading always wins over a redirect.
package access

import (
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/session"
)

// Outcome is the kind of gate decision.
type Outcome int

const (
	// Loading means the inputs are not settled yet; show nothing conclusive.
	Loading Outcome = iota
	Allow
	Redirect
	// Stay keeps the user on a neutral screen without navigating.
	Stay
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	case Stay:
		return "stay"
	default:
		return "loading"
	}
}

// Decision is a gate verdict. Target is set for Redirect and Stay.
type Decision struct {
	Outcome Outcome
	Target  domain.Route
	Notice  string
}

// Conclusive reports whether the decision can be acted upon.
func (d Decision) Conclusive() bool { return d.Outcome != Loading }

func allow() Decision { return Decision{Outcome: Allow} }

func loading() Decision { return Decision{Outcome: Loading} }

func redirect(to domain.Route) Decision { return Decision{Outcome: Redirect, Target: to} }

func redirectWith(to domain.Route, notice string) Decision {
	return Decision{Outcome: Redirect, Target: to, Notice: notice}
}

// PublicOnly admits visitors without a session, such as the sign-in and
// sign-up screens.
func PublicOnly(s session.Snapshot) Decision {
	switch s.State {
	case session.StateSignedOut:
		return allow()
	case session.StateSignedIn:
		return redirect(domain.RouteHome)
	default:
		return loading()
	}
}

// Authenticated admits a signed-in caller whose profile exists. When required
// is non-empty the resolved role must equal it. Role state keyed to a
// different uid is stale and counts as pending.
func Authenticated(s session.Snapshot, r session.RoleState, required domain.Role) Decision {
	switch s.State {
	case session.StateUnknown:
		return loading()
	case session.StateSignedOut:
		return redirect(domain.RouteSignIn)
	}

	uid := s.UID()
	if uid == "" {
		return redirect(domain.RouteSignIn)
	}
	if r.UID != uid {
		return loading()
	}

	switch r.Status {
	case session.RoleResolved:
		if required != "" && r.Role != required {
			return redirect(domain.RouteHome)
		}
		return allow()
	case session.RoleMissing:
		return redirectWith(domain.RouteSignIn, domain.ErrProfileNotFound(uid).Message)
	case session.RoleFailed:
		return redirectWith(domain.RouteSignIn, "Could not load your profile. Please sign in again.")
	default:
		return loading()
	}
}

// SessionOnly admits any signed-in caller without consulting the profile. It
// guards sign-out, which must stay reachable when the profile is missing.
func SessionOnly(s session.Snapshot, _ session.RoleState) Decision {
	switch s.State {
	case session.StateUnknown:
		return loading()
	case session.StateSignedIn:
		if s.UID() != "" {
			return allow()
		}
	}
	return redirect(domain.RouteSignIn)
}

// RoleRequired is Authenticated scoped to role.
func RoleRequired(role domain.Role) func(session.Snapshot, session.RoleState) Decision {
	return func(s session.Snapshot, r session.RoleState) Decision {
		return Authenticated(s, r, role)
	}
}

// Landing is where a freshly signed-in user is sent.
func Landing(role domain.Role) domain.Route {
	if role == domain.RoleAdmin {
		return domain.RouteAdminDashboard
	}
	return domain.RouteHome
}
