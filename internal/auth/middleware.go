package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const (
	claimsKey  contextKey = "auth_claims"
	subjectKey contextKey = "auth_subject"
	tokenKey   contextKey = "auth_token"
)

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// SubjectFromContext extracts the session uid from request context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(subjectKey).(string)
	return sub
}

// TokenFromContext returns the raw bearer token of the request.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey).(string)
	return tok
}

// WithClaims returns ctx carrying claims, as Authenticate would.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, subjectKey, claims.Subject)
}

// Authenticate resolves the bearer token, if any, into request claims. It
// never rejects: a missing, invalid, expired or revoked token leaves the
// request signed out, and the access gates downstream decide what that means.
func Authenticate(jwtMgr *JWTManager, denylist Denylist, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if raw == "" {
				if err != nil {
					logger.Debug("ignoring malformed Authorization header", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtMgr.ValidateToken(raw)
			if err != nil {
				logger.Debug("ignoring invalid session token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			revoked, err := denylist.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				logger.Warn("denylist lookup failed", "token_id", claims.ID, "error", err)
			}
			if revoked {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = context.WithValue(ctx, tokenKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}
