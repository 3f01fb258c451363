package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/trafficwise/platform/internal/domain"
)

// PgAuthUserRepository implements AuthUserRepository using pgx.
type PgAuthUserRepository struct{}

// NewPgAuthUserRepository creates a new PgAuthUserRepository.
func NewPgAuthUserRepository() *PgAuthUserRepository {
	return &PgAuthUserRepository{}
}

const authUserColumns = `id, email, password_hash, display_name, disabled, created_at, updated_at`

func scanAuthUser(row pgx.Row) (*domain.AuthUser, error) {
	u := &domain.AuthUser{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Disabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByEmail returns an auth user by email, or nil if not found.
func (r *PgAuthUserRepository) FindByEmail(ctx context.Context, db DBTX, email string) (*domain.AuthUser, error) {
	return scanAuthUser(db.QueryRow(ctx,
		`SELECT `+authUserColumns+` FROM auth_users WHERE lower(email) = lower($1)`, email))
}

// FindByID returns an auth user by id, or nil if not found.
func (r *PgAuthUserRepository) FindByID(ctx context.Context, db DBTX, id string) (*domain.AuthUser, error) {
	return scanAuthUser(db.QueryRow(ctx,
		`SELECT `+authUserColumns+` FROM auth_users WHERE id = $1`, id))
}

// Create inserts a new auth user.
func (r *PgAuthUserRepository) Create(ctx context.Context, db DBTX, user *domain.AuthUser) error {
	_, err := db.Exec(ctx,
		`INSERT INTO auth_users (id, email, password_hash, display_name) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName)
	if isUniqueViolation(err) {
		return domain.ErrEmailInUse()
	}
	return err
}
