package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// DirectoryService is admin CRUD over profiles. Callers are gated to admins
// before reaching it; it does not re-check the role.
type DirectoryService struct {
	db       repository.TxBeginner
	users    repository.AuthUserRepository
	profiles repository.ProfileRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
}

// NewDirectoryService creates a new DirectoryService.
func NewDirectoryService(
	db repository.TxBeginner,
	users repository.AuthUserRepository,
	profiles repository.ProfileRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *DirectoryService {
	return &DirectoryService{db: db, users: users, profiles: profiles, outbox: outbox, logger: logger}
}

// CreateAdminInput holds the create-admin form.
type CreateAdminInput struct {
	DisplayName string `json:"displayName" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"max=40"`
	Password    string `json:"password" validate:"required,min=6"`
}

// List returns every profile.
func (s *DirectoryService) List(ctx context.Context) ([]domain.Profile, error) {
	profiles, err := s.profiles.List(ctx, s.db)
	if err != nil {
		return nil, storeErr("list profiles", err)
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	return profiles, nil
}

// CreateAdmin provisions an admin account. The employee code is drawn from a
// sequence inside the same transaction, so concurrent creations never share one.
func (s *DirectoryService) CreateAdmin(ctx context.Context, input CreateAdminInput) (*domain.Profile, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, s.db, input.Email)
	if err != nil {
		return nil, storeErr("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrEmailInUse()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	profile, err := s.createAdmin(ctx, tx, input, string(hash))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	s.logger.Info("admin created", "uid", profile.UID, "employee_code", *profile.EmployeeCode)
	return profile, nil
}

func (s *DirectoryService) createAdmin(ctx context.Context, tx repository.DBTX, input CreateAdminInput, hash string) (*domain.Profile, error) {
	n, err := s.profiles.NextEmployeeNumber(ctx, tx)
	if err != nil {
		return nil, storeErr("next employee number", err)
	}
	code := domain.FormatEmployeeCode(n)

	uid := uuid.NewString()
	if err := s.users.Create(ctx, tx, &domain.AuthUser{
		ID:           uid,
		Email:        input.Email,
		PasswordHash: hash,
		DisplayName:  input.DisplayName,
	}); err != nil {
		return nil, storeErr("create auth user", err)
	}

	profile := &domain.Profile{
		UID:          uid,
		Email:        input.Email,
		DisplayName:  input.DisplayName,
		Phone:        input.Phone,
		EmployeeCode: &code,
	}
	profile.SetRole(domain.RoleAdmin)
	if err := s.profiles.Create(ctx, tx, profile); err != nil {
		return nil, storeErr("create profile", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewProfileEvent(domain.EventProfileCreated, profile)); err != nil {
		return nil, storeErr("insert outbox event", err)
	}
	return profile, nil
}

// Edit updates name, phone, email and user type. Role is recomputed from the
// user type.
func (s *DirectoryService) Edit(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.Profile, error) {
	update.Email = strings.TrimSpace(update.Email)
	update.DisplayName = strings.TrimSpace(update.DisplayName)
	if err := validateInput(update); err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	profile, err := s.profiles.Update(ctx, tx, uid, update)
	if err != nil {
		return nil, storeErr("update profile", err)
	}
	if profile == nil {
		return nil, domain.ErrNotFound("profile", uid)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewProfileEvent(domain.EventProfileUpdated, profile)); err != nil {
		return nil, storeErr("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	s.logger.Info("profile updated", "uid", uid, "role", profile.Role)
	return profile, nil
}

// Delete removes a profile. The user's activities and results stay.
func (s *DirectoryService) Delete(ctx context.Context, uid string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	profile, err := s.profiles.FindByUID(ctx, tx, uid)
	if err != nil {
		return storeErr("find profile", err)
	}
	if profile == nil {
		return domain.ErrNotFound("profile", uid)
	}
	deleted, err := s.profiles.Delete(ctx, tx, uid)
	if err != nil {
		return storeErr("delete profile", err)
	}
	if !deleted {
		return domain.ErrNotFound("profile", uid)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewProfileEvent(domain.EventProfileDeleted, profile)); err != nil {
		return storeErr("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return storeErr("commit tx", err)
	}

	s.logger.Info("profile deleted", "uid", uid)
	return nil
}

// Export returns a point-in-time snapshot of all profiles. It has no side
// effects.
func (s *DirectoryService) Export(ctx context.Context) ([]domain.Profile, error) {
	return s.List(ctx)
}

// Import writes a snapshot back, replacing profiles by uid. Every row is
// checked before anything is written; the import is all or nothing. The
// employee code sequence is advanced past every imported code.
func (s *DirectoryService) Import(ctx context.Context, profiles []domain.Profile) (int, error) {
	problems := make(map[string]string)
	var highest int64
	for i, p := range profiles {
		key := p.UID
		if key == "" {
			key = fmt.Sprintf("row %d", i+1)
			problems[key] = "_id is required"
			continue
		}
		if err := p.CheckInvariant(); err != nil {
			problems[key] = fmt.Sprintf("role %q does not match user type %q", p.Role, p.UserType)
			continue
		}
		if p.EmployeeCode != nil {
			n, err := domain.ParseEmployeeCode(*p.EmployeeCode)
			if err != nil {
				problems[key] = err.Error()
				continue
			}
			highest = max(highest, n)
		}
	}
	if len(problems) > 0 {
		return 0, domain.ErrValidationFields(problems)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	for i := range profiles {
		if err := s.profiles.Upsert(ctx, tx, &profiles[i]); err != nil {
			return 0, storeErr("upsert profile", err)
		}
	}
	if highest > 0 {
		if err := s.profiles.AdvanceEmployeeSequence(ctx, tx, highest); err != nil {
			return 0, storeErr("advance employee sequence", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, storeErr("commit tx", err)
	}

	s.logger.Info("profiles imported", "count", len(profiles))
	return len(profiles), nil
}

// EnsureBootstrapAdmin provisions the first admin from configuration when no
// admin exists yet. It is a no-op otherwise, and when email is empty.
func (s *DirectoryService) EnsureBootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" {
		return false, nil
	}
	n, err := s.profiles.CountAdmins(ctx, s.db)
	if err != nil {
		return false, storeErr("count admins", err)
	}
	if n > 0 {
		return false, nil
	}

	if _, err := s.CreateAdmin(ctx, CreateAdminInput{
		DisplayName: "Administrator",
		Email:       email,
		Password:    password,
	}); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}
