package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
)

const minPasswordLength = 6

type Service struct {
	users      UserRepository
	tokens     *auth.TokenIssuer
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, bcryptCost: bcrypt.DefaultCost, logger: logger}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		return nil, apperr.MissingField("name")
	case in.Email == "":
		return nil, apperr.MissingField("email")
	case in.Password == "":
		return nil, apperr.MissingField("password")
	case in.Role == "":
		return nil, apperr.MissingField("role")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "invalid email address")
	}
	if len(in.Password) < minPasswordLength {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}
	if !ValidRole(in.Role) {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "invalid role %q", in.Role)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperr.Conflict(apperr.CodeEmailTaken, "email already registered")
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}

	u := &User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Phone:        in.Phone,
		Profile:      NewProfile(in.Role),
	}
	ProfileUpdate{
		Age:            in.Age,
		Village:        in.Village,
		Specialization: in.Specialization,
		Qualification:  in.Qualification,
		Availability:   in.Availability,
	}.Apply(u)

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Login verifies credentials and returns a bearer token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperr.MissingField("email")
	}
	if in.Password == "" {
		return nil, apperr.MissingField("password")
	}

	invalid := apperr.Unauthorized(apperr.CodeInvalidCredentials, "invalid credentials")
	u, err := s.users.GetByEmail(ctx, email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, invalid
	}

	token, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &LoginResult{Token: token, User: u}, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, caller, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	if caller != id {
		return nil, apperr.Forbidden("not authorized to update this profile")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Apply(u)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) UpdatePassword(ctx context.Context, caller, id uuid.UUID, change PasswordChange) error {
	if caller != id {
		return apperr.Forbidden("not authorized to update this password")
	}
	if change.CurrentPassword == "" {
		return apperr.MissingField("currentPassword")
	}
	if len(change.NewPassword) < minPasswordLength {
		return apperr.Validation(apperr.CodeInvalidInput, "password must be at least %d characters", minPasswordLength)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(change.CurrentPassword))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return apperr.Validation(apperr.CodeInvalidCredentials, "current password is incorrect")
	}
	if err != nil {
		return apperr.Internal(err, "verify password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(change.NewPassword), s.bcryptCost)
	if err != nil {
		return apperr.Internal(err, "hash password")
	}
	if err := s.users.UpdatePassword(ctx, id, string(hash)); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	s.logger.Info().Str("user_id", id.String()).Msg("password changed")
	return nil
}

func (s *Service) ListDoctors(ctx context.Context) ([]*User, error) {
	return s.users.ListByRole(ctx, auth.RoleDoctor)
}

// DoctorsBySpecialization groups doctors by specialization; doctors without
// one are listed under DefaultSpecialization.
func (s *Service) DoctorsBySpecialization(ctx context.Context) (map[string][]*User, error) {
	doctors, err := s.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}
	groups := lo.GroupBy(doctors, func(u *User) string { return u.Specialization() })
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Name < g[j].Name })
	}
	return groups, nil
}
