package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/trafficwise/platform/internal/domain"
)

// PgProfileRepository implements ProfileRepository using pgx.
type PgProfileRepository struct{}

// NewPgProfileRepository creates a new PgProfileRepository.
func NewPgProfileRepository() *PgProfileRepository {
	return &PgProfileRepository{}
}

const profileColumns = `uid, email, display_name, phone, address, verified, role, user_type, employee_code, register_date`

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	p := &domain.Profile{}
	var role, userType string
	err := row.Scan(&p.UID, &p.Email, &p.DisplayName, &p.Phone, &p.Address, &p.Verified,
		&role, &userType, &p.EmployeeCode, &p.RegisterDate)
	if err != nil {
		return nil, err
	}
	if p.Role, err = domain.ParseRole(role); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.UID, err)
	}
	if p.UserType, err = domain.ParseUserType(userType); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.UID, err)
	}
	return p, nil
}

// FindByUID returns a profile, or nil if not found.
func (r *PgProfileRepository) FindByUID(ctx context.Context, db DBTX, uid string) (*domain.Profile, error) {
	p, err := scanProfile(db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE uid = $1`, uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Create inserts a new profile. role and user_type are written from Role so they cannot diverge.
func (r *PgProfileRepository) Create(ctx context.Context, db DBTX, profile *domain.Profile) error {
	profile.SetRole(profile.Role)
	row := db.QueryRow(ctx,
		`INSERT INTO profiles (uid, email, display_name, phone, address, verified, role, user_type, employee_code)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING register_date`,
		profile.UID, profile.Email, profile.DisplayName, profile.Phone, profile.Address, profile.Verified,
		string(profile.Role), string(profile.UserType), profile.EmployeeCode,
	)
	err := row.Scan(&profile.RegisterDate)
	if isUniqueViolation(err) {
		return domain.ErrConflict(fmt.Sprintf("profile %s already exists", profile.UID))
	}
	return err
}

// Update applies the editable fields and recomputes role from user type.
func (r *PgProfileRepository) Update(ctx context.Context, db DBTX, uid string, update domain.ProfileUpdate) (*domain.Profile, error) {
	role := update.UserType.Role()
	p, err := scanProfile(db.QueryRow(ctx,
		`UPDATE profiles SET display_name = $2, phone = $3, email = $4, user_type = $5, role = $6
		 WHERE uid = $1
		 RETURNING `+profileColumns,
		uid, update.DisplayName, update.Phone, update.Email, string(role.UserType()), string(role)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Upsert writes every field of profile, keyed by uid. A zero RegisterDate is
// sent as NULL so the stored date survives, and new rows get now().
func (r *PgProfileRepository) Upsert(ctx context.Context, db DBTX, profile *domain.Profile) error {
	profile.SetRole(profile.Role)
	var registered *time.Time
	if !profile.RegisterDate.IsZero() {
		registered = &profile.RegisterDate
	}
	_, err := db.Exec(ctx,
		`INSERT INTO profiles (uid, email, display_name, phone, address, verified, role, user_type, employee_code, register_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, now()))
		 ON CONFLICT (uid) DO UPDATE SET
		   email = EXCLUDED.email, display_name = EXCLUDED.display_name, phone = EXCLUDED.phone,
		   address = EXCLUDED.address, verified = EXCLUDED.verified, role = EXCLUDED.role,
		   user_type = EXCLUDED.user_type, employee_code = EXCLUDED.employee_code,
		   register_date = COALESCE($10::timestamptz, profiles.register_date)`,
		profile.UID, profile.Email, profile.DisplayName, profile.Phone, profile.Address, profile.Verified,
		string(profile.Role), string(profile.UserType), profile.EmployeeCode, registered,
	)
	return err
}

// Delete removes a profile. Activities and results are left untouched.
func (r *PgProfileRepository) Delete(ctx context.Context, db DBTX, uid string) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM profiles WHERE uid = $1`, uid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns all profiles ordered by register date.
func (r *PgProfileRepository) List(ctx context.Context, db DBTX) ([]domain.Profile, error) {
	rows, err := db.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY register_date ASC, uid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CountAdmins returns the number of admin profiles.
func (r *PgProfileRepository) CountAdmins(ctx context.Context, db DBTX) (int, error) {
	var n int
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE role = 'admin'`).Scan(&n)
	return n, err
}

// NextEmployeeNumber draws from admin_employee_code_seq. Sequence values are
// never handed out twice, even across concurrent transactions.
func (r *PgProfileRepository) NextEmployeeNumber(ctx context.Context, db DBTX) (int64, error) {
	var n int64
	err := db.QueryRow(ctx, `SELECT nextval('admin_employee_code_seq')`).Scan(&n)
	return n, err
}

// AdvanceEmployeeSequence moves admin_employee_code_seq to at least floor. It
// never moves the sequence backwards.
func (r *PgProfileRepository) AdvanceEmployeeSequence(ctx context.Context, db DBTX, floor int64) error {
	_, err := db.Exec(ctx,
		`SELECT setval('admin_employee_code_seq', GREATEST($1::bigint, last_value), true)
		 FROM admin_employee_code_seq`, floor)
	return err
}
