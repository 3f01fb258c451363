package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trafficwise/platform/internal/domain"
)

type activityRepo struct{}

// NewActivityRepository returns a pgx-backed ActivityRepository.
func NewActivityRepository() ActivityRepository {
	return &activityRepo{}
}

const activityColumns = `id, user_id, results, status, created_at, updated_at`

func scanActivity(row pgx.Row) (*domain.Activity, error) {
	a := &domain.Activity{}
	var raw []byte
	var status string
	if err := row.Scan(&a.ID, &a.UserID, &raw, &status, &a.Timestamp, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &a.Results); err != nil {
		return nil, fmt.Errorf("activity %s: decode results: %w", a.ID, err)
	}
	var err error
	if a.Status, err = domain.ParseActivityStatus(status); err != nil {
		return nil, fmt.Errorf("activity %s: %w", a.ID, err)
	}
	return a, nil
}

func (r *activityRepo) Create(ctx context.Context, db DBTX, a *domain.Activity) error {
	raw, err := json.Marshal(a.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO activities (id, user_id, results, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, raw, string(a.Status), a.Timestamp)
	if isUniqueViolation(err) {
		return domain.ErrConflict(fmt.Sprintf("activity %s already exists", a.ID))
	}
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *activityRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.Activity, error) {
	a, err := scanActivity(db.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *activityRepo) ListByStatus(ctx context.Context, db DBTX, status domain.ActivityStatus, limit int) ([]domain.Activity, error) {
	rows, err := db.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *activityRepo) CountByStatus(ctx context.Context, db DBTX, status domain.ActivityStatus) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM activities WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}

// Transition is the check-then-write step of review. The status predicate is
// evaluated under the row lock taken by UPDATE, so of two concurrent callers
// only the first sees a pending row; the second gets nil.
func (r *activityRepo) Transition(ctx context.Context, db DBTX, id string, to domain.ActivityStatus, at time.Time) (*domain.Activity, error) {
	a, err := scanActivity(db.QueryRow(ctx, `
		UPDATE activities SET status = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+activityColumns, id, string(to), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transition activity: %w", err)
	}
	return a, nil
}
