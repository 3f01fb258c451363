package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/trafficwise/platform/internal/domain"
)

type resultRepo struct{}

// NewResultRepository returns a pgx-backed ResultRepository.
func NewResultRepository() ResultRepository {
	return &resultRepo{}
}

const resultColumns = `id, user_id, activity_id, results, created_at`

func scanResult(row pgx.Row) (*domain.Result, error) {
	res := &domain.Result{}
	var raw []byte
	if err := row.Scan(&res.ID, &res.UserID, &res.ActivityID, &raw, &res.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &res.Results); err != nil {
		return nil, fmt.Errorf("result %s: decode results: %w", res.ID, err)
	}
	return res, nil
}

// Create inserts a result. The unique index on activity_id turns a second
// result for the same activity into a CONFLICT.
func (r *resultRepo) Create(ctx context.Context, db DBTX, res *domain.Result) error {
	raw, err := json.Marshal(res.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	_, err = db.Exec(ctx,
		`INSERT INTO results (id, user_id, activity_id, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
		res.ID, res.UserID, res.ActivityID, raw, res.Timestamp)
	if isUniqueViolation(err) {
		return domain.ErrConflict(fmt.Sprintf("result for activity %s already exists", res.ActivityID))
	}
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r *resultRepo) FindByActivity(ctx context.Context, db DBTX, activityID string) (*domain.Result, error) {
	res, err := scanResult(db.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE activity_id = $1`, activityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *resultRepo) ListByUser(ctx context.Context, db DBTX, userID string, limit int) ([]domain.Result, error) {
	rows, err := db.Query(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}
