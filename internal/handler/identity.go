package handler

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
)

// IdentityProvider is the account and session surface behind /auth.
type IdentityProvider interface {
	SignUp(ctx context.Context, input service.SignUpInput) (*service.AuthResult, error)
	SignIn(ctx context.Context, input service.SignInInput, ip string) (*service.AuthResult, error)
	SignOut(ctx context.Context, claims *auth.Claims) error
	CurrentIdentity(claims *auth.Claims) (domain.Identity, error)
	Profile(ctx context.Context, uid string) (*domain.Profile, error)
}

// IdentityHandler handles sign-up, sign-in, sign-out and session endpoints.
type IdentityHandler struct {
	identity IdentityProvider
}

// NewIdentityHandler creates a new IdentityHandler.
func NewIdentityHandler(identity IdentityProvider) *IdentityHandler {
	return &IdentityHandler{identity: identity}
}

// SignUp handles POST /auth/signup.
func (h *IdentityHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var input service.SignUpInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}

	result, err := h.identity.SignUp(r.Context(), input)
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, result)
}

// SignIn handles POST /auth/signin.
func (h *IdentityHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var input service.SignInInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondBadBody(w)
		return
	}

	result, err := h.identity.SignIn(r.Context(), input, ClientIP(r))
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

// SignOut handles POST /auth/signout.
func (h *IdentityHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.identity.SignOut(r.Context(), auth.ClaimsFromContext(r.Context())); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}

// Session handles GET /auth/session.
func (h *IdentityHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, err := h.identity.CurrentIdentity(auth.ClaimsFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"identity": id,
		"role":     RoleFromContext(r.Context()),
	})
}

// Me handles GET /profiles/me.
func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.identity.Profile(r.Context(), auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile)
}

// ClientIP returns the first X-Forwarded-For hop, falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
