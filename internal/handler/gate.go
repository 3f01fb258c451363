package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/trafficwise/platform/internal/access"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/metrics"
	"github.com/trafficwise/platform/internal/session"
)

const roleKey contextKeyType = "role"

// RoleFromContext returns the role resolved by the gate for this request.
func RoleFromContext(ctx context.Context) domain.Role {
	role, _ := ctx.Value(roleKey).(domain.Role)
	return role
}

// Gates applies the access guard to routes. The role is looked up on every
// gated request, so profile edits take effect without a new token.
type Gates struct {
	lookup session.ProfileLookup
	logger *slog.Logger
}

// NewGates creates gate middleware backed by lookup.
func NewGates(lookup session.ProfileLookup, logger *slog.Logger) *Gates {
	return &Gates{lookup: lookup, logger: logger}
}

// PublicOnly admits only requests without a session.
func (g *Gates) PublicOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := access.PublicOnly(snapshotOf(r))
		metrics.GateDecisionsTotal.WithLabelValues("public", d.Outcome.String()).Inc()
		if d.Outcome == access.Allow {
			next.ServeHTTP(w, r)
			return
		}
		RespondError(w, domain.ErrAlreadyAuthenticated())
	})
}

// SessionOnly admits any signed-in caller, with or without a profile.
func (g *Gates) SessionOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := access.SessionOnly(snapshotOf(r), session.RoleState{})
		metrics.GateDecisionsTotal.WithLabelValues("session", d.Outcome.String()).Inc()
		if d.Outcome == access.Allow {
			next.ServeHTTP(w, r)
			return
		}
		RespondError(w, domain.ErrUnauthenticated("Please sign in to continue."))
	})
}

// Authenticated admits any signed-in caller with a profile.
func (g *Gates) Authenticated(next http.Handler) http.Handler {
	return g.require("authenticated", "")(next)
}

// Admin admits signed-in callers whose profile role is admin.
func (g *Gates) Admin(next http.Handler) http.Handler {
	return g.require("admin", domain.RoleAdmin)(next)
}

func (g *Gates) require(name string, role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := snapshotOf(r)
			var state session.RoleState
			if uid := snap.UID(); uid != "" {
				state = session.ResolveNow(r.Context(), g.lookup, uid)
				if state.Status == session.RoleFailed {
					g.logger.Warn("role lookup failed", "uid", uid, "error", state.Err,
						"request_id", GetRequestID(r.Context()))
				}
			}

			d := access.Authenticated(snap, state, role)
			metrics.GateDecisionsTotal.WithLabelValues(name, d.Outcome.String()).Inc()
			if d.Outcome == access.Allow {
				ctx := context.WithValue(r.Context(), roleKey, state.Role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			RespondError(w, refusal(d, state))
		})
	}
}

// refusal renders a non-allow decision as the error a client acts on.
func refusal(d access.Decision, state session.RoleState) error {
	if d.Outcome != access.Redirect {
		return domain.ErrInternal("access decision unavailable", nil)
	}
	switch {
	case d.Target == domain.RouteHome:
		return domain.ErrUnauthorized("You do not have access to this page.")
	case state.Status == session.RoleMissing:
		return domain.ErrProfileNotFound(state.UID)
	case d.Notice != "":
		return domain.ErrUnauthenticated(d.Notice)
	default:
		return domain.ErrUnauthenticated("Please sign in to continue.")
	}
}

func snapshotOf(r *http.Request) session.Snapshot {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return session.SignedIn(claims.Identity())
	}
	return session.SignedOut()
}
