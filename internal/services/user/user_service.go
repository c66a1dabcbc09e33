package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/curaious/xm/internal/security"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserService struct {
	repo *UserRepo
}

func NewUserService(repo *UserRepo) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.PasswordAuthEnabled {
		return nil, fmt.Errorf("%w: password authentication is disabled for this user", ErrInvalidCredentials)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// GlobalRoles returns the roles the user holds outside any workspace. Names that do
// not match a known role are skipped.
func (s *UserService) GlobalRoles(ctx context.Context, id uuid.UUID) ([]security.Role, error) {
	names, err := s.repo.GetGlobalRoleNames(ctx, id)
	if err != nil {
		return nil, err
	}

	roles := make([]security.Role, 0, len(names))
	for _, name := range names {
		switch r := security.Role(name); r {
		case security.RoleGlobalAdmin, security.RoleExaminee, security.RoleWorkspaceAdmin,
			security.RoleExaminer, security.RoleReviewer:
			roles = append(roles, r)
		}
	}
	return roles, nil
}
