package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trafficwise/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TxBeginner is a DBTX that can also open a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AuthUserRepository provides access to auth_users.
type AuthUserRepository interface {
	// FindByEmail returns an auth user by email, or nil if none.
	FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AuthUser, error)

	// FindByID returns an auth user by id, or nil if none.
	FindByID(ctx context.Context, db DBTX, id string) (*domain.AuthUser, error)

	// Create inserts a new auth user.
	Create(ctx context.Context, db DBTX, user *domain.AuthUser) error
}

// ProfileRepository provides access to profiles.
type ProfileRepository interface {
	// FindByUID returns a profile, or nil if none exists for uid.
	FindByUID(ctx context.Context, db DBTX, uid string) (*domain.Profile, error)

	// Create inserts a new profile.
	Create(ctx context.Context, db DBTX, profile *domain.Profile) error

	// Update applies the editable fields and returns the stored row, or nil if uid is unknown.
	Update(ctx context.Context, db DBTX, uid string, update domain.ProfileUpdate) (*domain.Profile, error)

	// Upsert writes every field of profile, inserting or replacing by uid. A zero
	// RegisterDate keeps the stored date, or stamps now for a new row.
	Upsert(ctx context.Context, db DBTX, profile *domain.Profile) error

	// Delete removes a profile. Returns false when nothing was deleted.
	Delete(ctx context.Context, db DBTX, uid string) (bool, error)

	// List returns all profiles ordered by register date.
	List(ctx context.Context, db DBTX) ([]domain.Profile, error)

	// CountAdmins returns the number of admin profiles.
	CountAdmins(ctx context.Context, db DBTX) (int, error)

	// NextEmployeeNumber draws the next value of the admin employee code sequence.
	NextEmployeeNumber(ctx context.Context, db DBTX) (int64, error)

	// AdvanceEmployeeSequence makes later draws return numbers above floor.
	AdvanceEmployeeSequence(ctx context.Context, db DBTX, floor int64) error
}

// ActivityRepository provides access to activities.
type ActivityRepository interface {
	// Create inserts a new activity. Returns domain CONFLICT if the id already exists.
	Create(ctx context.Context, db DBTX, activity *domain.Activity) error

	// FindByID returns an activity, or nil if none.
	FindByID(ctx context.Context, db DBTX, id string) (*domain.Activity, error)

	// ListByStatus returns activities in the given status, oldest first.
	ListByStatus(ctx context.Context, db DBTX, status domain.ActivityStatus, limit int) ([]domain.Activity, error)

	// CountByStatus returns how many activities are in the given status.
	CountByStatus(ctx context.Context, db DBTX, status domain.ActivityStatus) (int, error)

	// Transition moves a pending activity to status `to` and returns the updated row.
	// It returns nil when no pending activity with that id exists; the caller
	// decides between not-found and invalid transition.
	Transition(ctx context.Context, db DBTX, id string, to domain.ActivityStatus, at time.Time) (*domain.Activity, error)
}

// ResultRepository provides access to published results.
type ResultRepository interface {
	// Create inserts a result. Returns domain CONFLICT if the activity already has one.
	Create(ctx context.Context, db DBTX, result *domain.Result) error

	// FindByActivity returns the result produced by an activity, or nil.
	FindByActivity(ctx context.Context, db DBTX, activityID string) (*domain.Result, error)

	// ListByUser returns a user's results, newest first.
	ListByUser(ctx context.Context, db DBTX, userID string, limit int) ([]domain.Result, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events, oldest first.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}
