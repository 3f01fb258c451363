package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trafficwise/platform/internal/access"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// SignInLimiter tracks sign-in attempts per email.
type SignInLimiter interface {
	Check(ctx context.Context, email string) error
	Record(ctx context.Context, email, ip string, success bool)
}

// IdentityService is the identity provider: accounts, credentials and
// session tokens.
type IdentityService struct {
	db       repository.TxBeginner
	users    repository.AuthUserRepository
	profiles repository.ProfileRepository
	outbox   repository.OutboxRepository
	jwtMgr   *auth.JWTManager
	denylist auth.Denylist
	lockout  SignInLimiter
	logger   *slog.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(
	db repository.TxBeginner,
	users repository.AuthUserRepository,
	profiles repository.ProfileRepository,
	outbox repository.OutboxRepository,
	jwtMgr *auth.JWTManager,
	denylist auth.Denylist,
	lockout SignInLimiter,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		db:       db,
		users:    users,
		profiles: profiles,
		outbox:   outbox,
		jwtMgr:   jwtMgr,
		denylist: denylist,
		lockout:  lockout,
		logger:   logger,
	}
}

// SignUpInput holds the sign-up form.
type SignUpInput struct {
	DisplayName     string `json:"displayName" validate:"required,max=120"`
	Email           string `json:"email"`
	Phone           string `json:"phone" validate:"required,max=40"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// SignInInput holds the sign-in form.
type SignInInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned on successful sign-up or sign-in.
type AuthResult struct {
	Session *auth.Session  `json:"session"`
	Profile domain.Profile `json:"profile"`
	Landing domain.Route   `json:"landing"`
}

// SignUp creates an account and its user profile in one transaction and
// signs the new user in. Sign-up never grants the admin role.
func (s *IdentityService) SignUp(ctx context.Context, input SignUpInput) (*AuthResult, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Phone = strings.TrimSpace(input.Phone)

	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrInvalidEmail()
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, domain.ErrWeakPassword()
	}
	if input.Password != input.ConfirmPassword {
		return nil, domain.ErrValidation("Passwords do not match.")
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

	uid := uuid.NewString()
	profile := &domain.Profile{
		UID:         uid,
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Phone:       input.Phone,
	}
	profile.SetRole(domain.RoleUser)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if err := s.users.Create(ctx, tx, &domain.AuthUser{
		ID:           uid,
		Email:        input.Email,
		PasswordHash: string(hash),
		DisplayName:  input.DisplayName,
	}); err != nil {
		return nil, storeErr("create auth user", err)
	}
	if err := s.profiles.Create(ctx, tx, profile); err != nil {
		return nil, storeErr("create profile", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewProfileEvent(domain.EventProfileCreated, profile)); err != nil {
		return nil, storeErr("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	session, err := s.jwtMgr.GenerateToken(domain.Identity{UID: uid, Email: input.Email, DisplayName: input.DisplayName})
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	s.logger.Info("account created", "uid", uid)
	return &AuthResult{Session: session, Profile: *profile, Landing: access.Landing(profile.Role)}, nil
}

// SignIn verifies credentials and issues a session. The landing route is
// the admin dashboard for admins and home otherwise. A uid without a profile
// is refused with PROFILE_NOT_FOUND rather than signed in as a plain user.
func (s *IdentityService) SignIn(ctx context.Context, input SignInInput, ip string) (*AuthResult, error) {
	input.Email = strings.TrimSpace(input.Email)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	if err := s.lockout.Check(ctx, input.Email); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.db, input.Email)
	if err != nil {
		return nil, storeErr("find user", err)
	}
	if user == nil {
		s.lockout.Record(ctx, input.Email, ip, false)
		return nil, domain.ErrUserNotFound()
	}
	if user.Disabled {
		return nil, domain.ErrUserDisabled()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.lockout.Record(ctx, input.Email, ip, false)
		return nil, domain.ErrWrongPassword()
	}
	s.lockout.Record(ctx, input.Email, ip, true)

	profile, err := s.profiles.FindByUID(ctx, s.db, user.ID)
	if err != nil {
		return nil, storeErr("find profile", err)
	}
	if profile == nil {
		s.logger.Warn("sign-in for uid without profile", "uid", user.ID)
		return nil, domain.ErrProfileNotFound(user.ID)
	}

	session, err := s.jwtMgr.GenerateToken(domain.Identity{UID: user.ID, Email: user.Email, DisplayName: user.DisplayName})
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &AuthResult{Session: session, Profile: *profile, Landing: access.Landing(profile.Role)}, nil
}

// SignOut revokes the session token until it expires.
func (s *IdentityService) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return domain.ErrUnauthenticated("not signed in")
	}
	var until time.Time
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, claims.ID, until); err != nil {
		return domain.ErrInternal("revoke session", err)
	}
	s.logger.Info("signed out", "uid", claims.Subject)
	return nil
}

// CurrentIdentity returns the identity behind claims.
func (s *IdentityService) CurrentIdentity(claims *auth.Claims) (domain.Identity, error) {
	if claims == nil {
		return domain.Identity{}, domain.ErrUnauthenticated("not signed in")
	}
	return claims.Identity(), nil
}

// FindProfile returns the profile for uid, or nil when none exists.
func (s *IdentityService) FindProfile(ctx context.Context, uid string) (*domain.Profile, error) {
	p, err := s.profiles.FindByUID(ctx, s.db, uid)
	if err != nil {
		return nil, storeErr("find profile", err)
	}
	return p, nil
}

// Profile returns the caller's own profile.
func (s *IdentityService) Profile(ctx context.Context, uid string) (*domain.Profile, error) {
	p, err := s.FindProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrProfileNotFound(uid)
	}
	return p, nil
}
