//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all tables.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"results",
		"activities",
		"event_outbox",
		"profiles",
		"login_attempts",
		"auth_users",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
