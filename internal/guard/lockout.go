package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// Lockout blocks sign-in for an email after MaxAttempts failures inside
// LockoutWindow, counted from the login_attempts table.
type Lockout struct {
	db     repository.DBTX
	logger *slog.Logger
}

// NewLockout creates a lockout guard over db.
func NewLockout(db repository.DBTX, logger *slog.Logger) *Lockout {
	return &Lockout{db: db, logger: logger}
}

// Record inserts a sign-in attempt row.
func (l *Lockout) Record(ctx context.Context, email, ip string, success bool) {
	_, err := l.db.Exec(ctx, `
		INSERT INTO login_attempts (email, ip_address, success)
		VALUES ($1, $2, $3)`,
		strings.ToLower(email), ip, success)
	if err != nil {
		l.logger.Warn("failed to record sign-in attempt", "error", err)
	}
}

// Check returns ErrAccountLocked if the account has too many recent failures.
func (l *Lockout) Check(ctx context.Context, email string) error {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false
		  AND created_at > $2`,
		strings.ToLower(email), time.Now().Add(-LockoutWindow)).Scan(&count)
	if err != nil {
		l.logger.Warn("lockout check failed, allowing", "error", err)
		return nil // fail open on DB error
	}
	if count >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed sign-in attempts, try again later")
	}
	return nil
}
