//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/trafficwise/platform/internal/client"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
	"github.com/trafficwise/platform/internal/service"
)

const (
	AdminEmail    = "root@trafficwise.test"
	AdminPassword = "admin-pass"
	UserPassword  = "secret1"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// API returns a client that sends token on every call. An empty token means signed out.
func (env *TestEnv) API(token string) *client.Client {
	c := client.New(env.Server.URL, 10*time.Second)
	c.SetToken(func() string { return token })
	return c
}

// SignUp registers a user and returns its first session.
func (env *TestEnv) SignUp(email string) *service.AuthResult {
	env.t.Helper()
	c, cancel := ctx()
	defer cancel()

	res, err := env.API("").SignUp(c, service.SignUpInput{
		DisplayName:     "Test User",
		Email:           email,
		Phone:           "555-0100",
		Password:        UserPassword,
		ConfirmPassword: UserPassword,
	})
	if err != nil {
		env.t.Fatalf("SignUp %s: %v", email, err)
	}
	return res
}

// AdminToken provisions the bootstrap admin once and signs in as it.
func (env *TestEnv) AdminToken() string {
	env.t.Helper()
	c, cancel := ctx()
	defer cancel()

	dir := service.NewDirectoryService(env.Pool, repository.NewPgAuthUserRepository(),
		repository.NewPgProfileRepository(), repository.NewOutboxRepository(), env.Logger)
	if _, err := dir.EnsureBootstrapAdmin(c, AdminEmail, AdminPassword); err != nil {
		env.t.Fatalf("AdminToken: bootstrap: %v", err)
	}
	res, err := env.API("").SignIn(c, AdminEmail, AdminPassword)
	if err != nil {
		env.t.Fatalf("AdminToken: sign in: %v", err)
	}
	return res.Session.Token
}

// Clips writes one minimal ISO-BMFF file per direction. East is a QuickTime
// file so both accepted types are exercised.
func (env *TestEnv) Clips() map[domain.Direction]string {
	env.t.Helper()
	dir := env.t.TempDir()
	files := make(map[domain.Direction]string, len(domain.Directions))
	for _, d := range domain.Directions {
		name, brand := string(d)+".mp4", "isom"
		if d == domain.East {
			name, brand = string(d)+".mov", "qt  "
		}
		b := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}
		b = append(b, brand...)
		b = append(b, 0x00, 0x00, 0x02, 0x00)
		b = append(b, brand...)
		b = append(b, "mp41"...)
		b = append(b, make([]byte, 512)...)

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, b, 0o600); err != nil {
			env.t.Fatalf("Clips: %v", err)
		}
		files[d] = path
	}
	return files
}

// Submit uploads a fresh bundle as token and returns the pending activity.
func (env *TestEnv) Submit(token, idempotencyKey string) *domain.Activity {
	env.t.Helper()
	c, cancel := ctx()
	defer cancel()

	act, err := env.API(token).Submit(c, env.Clips(), idempotencyKey)
	if err != nil {
		env.t.Fatalf("Submit: %v", err)
	}
	return act
}

// CountOutboxEvents counts outbox rows of eventType for an aggregate.
func (env *TestEnv) CountOutboxEvents(aggregateID string, eventType domain.EventType) int {
	env.t.Helper()
	c, cancel := ctx()
	defer cancel()

	var n int
	err := env.Pool.QueryRow(c,
		`SELECT COUNT(*) FROM event_outbox WHERE aggregate_id = $1 AND event_type = $2`,
		aggregateID, string(eventType)).Scan(&n)
	if err != nil {
		env.t.Fatalf("CountOutboxEvents: %v", err)
	}
	return n
}
